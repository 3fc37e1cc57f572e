// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/engine/internal/aggregation"
)

func squareHyperparams() Hyperparams {
	return Hyperparams{MaxDepth: 2, MinNumSamples: 1, Lambda: 0.0, NumBins: 4}
}

// scorerFactoryFor builds the ScorerFactory Train expects, closing
// over a fixed target and an all-zero running prediction.
func scorerFactoryFor(y []float64) ScorerFactory {
	yhatOld := make([]float64, len(y))
	return func() Scorer { return newRSquaredScorer(y, yhatOld) }
}

func calcWeightFor(y []float64) func(rows []int) float64 {
	return func(rows []int) float64 {
		var sum float64
		for _, r := range rows {
			sum += y[r]
		}
		if len(rows) == 0 {
			return 0
		}
		return sum / float64(len(rows))
	}
}

func TestTrainSplitsOnObviousNumericalThreshold(t *testing.T) {
	rows := []int{0, 1, 2, 3}
	y := []float64{0, 0, 10, 10}
	candidate := Candidate{
		DataUsed: aggregation.PeripheralNumerical, Aggregation: aggregation.Avg,
		Column: "x", Key: "x", Kind: Numerical,
		Values: []float64{1, 2, 8, 9},
	}

	root := Train(rows, []Candidate{candidate}, scorerFactoryFor(y), calcWeightFor(y), squareHyperparams(), 0)
	require.False(t, root.IsLeaf())
	require.NotNil(t, root.Split)
	require.False(t, root.Split.IsCategorical)
	require.False(t, root.Split.IsNaNDummy)

	for i, row := range rows {
		leaf := root.Route(
			func(key string) float64 { return candidate.Values[row] },
			func(key string) int32 { return 0 },
		)
		if y[i] < 5 {
			require.Less(t, leaf.Weight, 5.0, "row %d should route to the low-weight leaf", row)
		} else {
			require.Greater(t, leaf.Weight, 5.0, "row %d should route to the high-weight leaf", row)
		}
	}
}

func TestTrainStopsAtMaxDepth(t *testing.T) {
	rows := []int{0, 1}
	y := []float64{1, 2}
	candidate := Candidate{
		DataUsed: aggregation.PeripheralNumerical, Aggregation: aggregation.Avg,
		Column: "x", Key: "x", Kind: Numerical, Values: []float64{0, 1},
	}
	hp := Hyperparams{MaxDepth: 0, MinNumSamples: 1, NumBins: 4}
	root := Train(rows, []Candidate{candidate}, scorerFactoryFor(y), calcWeightFor(y), hp, 0)
	require.True(t, root.IsLeaf())
}

func TestFindBestSplitTieBreaksByDataUsedThenColumnIndex(t *testing.T) {
	rows := []int{0, 1, 2, 3}
	y := []float64{0, 0, 10, 10}

	// Two candidates carry identical values (hence identical scores),
	// differing only in DataUsed ordinal and ColumnIndex. The earlier
	// DataUsed ordinal must win regardless of column index.
	low := Candidate{
		DataUsed: aggregation.PeripheralNumerical, Aggregation: aggregation.Avg,
		Column: "a", Key: "a", ColumnIndex: 5, Kind: Numerical,
		Values: []float64{1, 2, 8, 9},
	}
	high := Candidate{
		DataUsed: aggregation.SameUnitNumerical, Aggregation: aggregation.Avg,
		Column: "b", Key: "b", ColumnIndex: 0, Kind: Numerical,
		Values: []float64{1, 2, 8, 9},
	}

	best, _, _, _ := findBestSplit(rows, []Candidate{high, low}, scorerFactoryFor(y), squareHyperparams())
	require.NotNil(t, best)
	require.Equal(t, "a", best.Column, "earliest DataUsed ordinal must win the tie")
}
