// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package match

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario 4 from spec.md §8: 5 matches with numerical values
// [3.0, 1.0, NaN, 2.0, NaN] and num_bins=2 on [1,3]. After binning the
// non-NaN positions must be value-partitioned and the NaN tail must
// stay contiguous at the end, with indptr == [0, n_low, n_non_nan].
func TestNumericalBinnerScenario4(t *testing.T) {
	values := []float64{3.0, 1.0, math.NaN(), 2.0, math.NaN()}
	matches := make([]Match, len(values))
	for i := range matches {
		matches[i] = Match{PopulationRow: i, PeripheralRow: i, Category: -1}
	}
	extract := func(m Match) float64 { return values[m.PeripheralRow] }

	nanBegin := PartitionNaN(matches, 0, len(matches), extract)
	require.Equal(t, 3, nanBegin)

	indptr, step := NumericalBinner(matches, 0, nanBegin, extract, 2, 0)
	require.NotNil(t, indptr)
	require.Equal(t, nanBegin, indptr[len(indptr)-1])
	require.Equal(t, 3, len(indptr)) // numBins+1 == 3
	require.Greater(t, step, 0.0)

	for i := nanBegin; i < len(matches); i++ {
		require.True(t, math.IsNaN(extract(matches[i])))
	}
	// bin 0 (value < min+step) should hold value 1.0, bin 1 should hold values >= min+step.
	require.Equal(t, 1.0, extract(matches[0]))
}

func TestNumericalBinnerDegenerate(t *testing.T) {
	values := []float64{5.0, 5.0, 5.0}
	matches := []Match{{PeripheralRow: 0}, {PeripheralRow: 1}, {PeripheralRow: 2}}
	extract := func(m Match) float64 { return values[m.PeripheralRow] }
	indptr, _ := NumericalBinner(matches, 0, 3, extract, 4, 0)
	require.Nil(t, indptr)
}

func TestCategoricalBinner(t *testing.T) {
	cats := []int32{2, 0, 1, 1, 0}
	matches := make([]Match, len(cats))
	for i := range matches {
		matches[i] = Match{PeripheralRow: i}
	}
	extract := func(m Match) int32 { return cats[m.PeripheralRow] }

	indptr, present := CategoricalBinner(matches, 0, len(matches), extract, 0, 2)
	require.Equal(t, 4, len(indptr)) // maxCat-minCat+2 == 4
	require.Equal(t, len(matches), indptr[len(indptr)-1])
	require.Equal(t, []int32{0, 1, 2}, present)
}

func TestMergeCategories(t *testing.T) {
	require.Equal(t, []int32{0, 1, 2, 3}, MergeCategories([]int32{0, 2}, []int32{1, 2, 3}))
	require.Equal(t, []int32{}, MergeCategories(nil, nil))
}
