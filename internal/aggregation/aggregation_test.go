// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package aggregation

import (
	"math"
	"testing"

	"github.com/relboost/engine/internal/errs"
	"github.com/relboost/engine/internal/match"
	"github.com/stretchr/testify/require"
)

func TestParseGrammar(t *testing.T) {
	for _, name := range []string{
		"AVG", "AVG TIME BETWEEN", "SUM", "COUNT", "COUNT DISTINCT",
		"COUNT MINUS COUNT DISTINCT", "FIRST", "LAST", "MIN", "MAX",
		"MEDIAN", "STDDEV", "VAR",
	} {
		_, err := Parse(name)
		require.NoError(t, err, name)
	}

	_, err := Parse("AVERAGE")
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.UnknownAggregation, kind)
}

func TestParseDataUsedWireGrammar(t *testing.T) {
	for _, name := range []string{
		"categorical", "discrete", "na", "numerical",
		"same_units_categorical", "same_units_discrete", "same_units_discrete_ts",
		"same_units_numerical", "same_units_numerical_ts", "subfeatures",
	} {
		_, err := ParseDataUsed(name)
		require.NoError(t, err, name)
	}
	_, err := ParseDataUsed("bogus")
	require.Error(t, err)
}

func TestDataUsedOrdinalOrder(t *testing.T) {
	// spec.md §4.6's tie-break relies on this ordering: each tag in
	// spec.md §4.4's list must sort before the next.
	order := []DataUsed{
		PeripheralNumerical, PeripheralDiscrete, PeripheralCategorical,
		PopulationNumerical, PopulationDiscrete,
		SameUnitNumerical, SameUnitNumericalTS, SameUnitDiscrete, SameUnitDiscreteTS,
		TimeStampsDiff, TimeStampsWindow, Subfeatures, NotApplicable,
	}
	for i := 1; i < len(order); i++ {
		require.Less(t, int(order[i-1]), int(order[i]))
	}
}

// spec.md §8 invariant 4: every aggregation's identity element on an
// empty match set.
func TestEmptySetIdentityElements(t *testing.T) {
	require.True(t, math.IsNaN(Compute(Avg, nil, nil)))
	require.Equal(t, 0.0, Compute(Sum, nil, nil))
	require.Equal(t, 0.0, Compute(Count, nil, nil))
	require.True(t, math.IsNaN(Compute(Min, nil, nil)))
	require.True(t, math.IsNaN(Compute(Max, nil, nil)))
}

func TestStddevVarSkippedBelowTwoSamples(t *testing.T) {
	require.True(t, math.IsNaN(Compute(Var, []float64{5}, nil)))
	require.True(t, math.IsNaN(Compute(Stddev, []float64{5}, nil)))

	v := Compute(Var, []float64{1, 2, 3, 4}, nil)
	require.InDelta(t, 1.25, v, 1e-9)
	sd := Compute(Stddev, []float64{1, 2, 3, 4}, nil)
	require.InDelta(t, math.Sqrt(1.25), sd, 1e-9)
}

func TestCountDistinctAndMinusCountDistinct(t *testing.T) {
	values := []float64{1, 1, 2, math.NaN(), 3}
	require.Equal(t, 3.0, Compute(CountDistinct, values, nil))
	require.Equal(t, 1.0, Compute(CountMinusCountDistinct, values, nil)) // 4 non-null - 3 distinct
}

func TestMedianOddEven(t *testing.T) {
	require.Equal(t, 2.0, Compute(Median, []float64{3, 1, 2}, nil))
	require.Equal(t, 2.5, Compute(Median, []float64{1, 2, 3, 4}, nil))
}

func TestFirstLastByTimeStamp(t *testing.T) {
	values := []float64{10, 20, 30}
	timestamps := []float64{5, 1, 9}
	require.Equal(t, 20.0, Compute(First, values, timestamps))
	require.Equal(t, 30.0, Compute(Last, values, timestamps))
}

func TestAvgTimeBetween(t *testing.T) {
	got := Compute(AvgTimeBetween, nil, []float64{1, 5, 2})
	require.InDelta(t, 2.0, got, 1e-9) // sorted [1,2,5] -> diffs [1,3] -> avg 2
}

// Scenario 2 from spec.md §8: population x=[10,20,30] joined to
// peripheral x=[[1,2],[3,4],[]] sharing a unit; AVG(t2.x - t1.x) by
// rownum yields [-8.5, -16.5, NaN].
func TestScenario2SameUnitAverage(t *testing.T) {
	popX := []float64{10, 20, 30}
	peripX := []float64{1, 2, 3, 4}

	matches := []match.Match{
		{PopulationRow: 0, PeripheralRow: 0},
		{PopulationRow: 0, PeripheralRow: 1},
		{PopulationRow: 1, PeripheralRow: 2},
		{PopulationRow: 1, PeripheralRow: 3},
	}

	extract := SameUnitDifference(peripX, popX, true)

	row0 := Extract(extract, matches, 0, 2)
	row1 := Extract(extract, matches, 2, 4)
	var row2 []float64

	require.InDelta(t, -8.5, Compute(Avg, row0, nil), 1e-9)
	require.InDelta(t, -16.5, Compute(Avg, row1, nil), 1e-9)
	require.True(t, math.IsNaN(Compute(Avg, row2, nil)))
}
