// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package match

import (
	"testing"

	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/dataframe"
	"github.com/stretchr/testify/require"
)

// Scenario 1 from spec.md §8: population rows p=[(1,10),(2,11)]
// (dates encoded as ordinal day numbers for simplicity), peripheral
// rows (jk,ts) = [(1,5),(1,11),(2,1),(2,15)]. Expected COUNT with
// ts_right <= ts_left per population row: [2, 1].
func TestBuildScenario1(t *testing.T) {
	pop := dataframe.New("population", 2)
	require.NoError(t, pop.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{1, 2})))
	require.NoError(t, pop.AddFloat(column.New[float64]("ts", column.RoleTimeStamp, "", []float64{10, 11})))

	perip := dataframe.New("peripheral", 4)
	require.NoError(t, perip.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{1, 1, 2, 2})))
	require.NoError(t, perip.AddFloat(column.New[float64]("ts", column.RoleTimeStamp, "", []float64{5, 11, 1, 15})))

	left, err := pop.CreateSubview("jk", "ts", "")
	require.NoError(t, err)
	right, err := perip.CreateSubview("jk", "ts", "")
	require.NoError(t, err)

	set := Build(left, right)

	counts := map[int]int{}
	for _, m := range set.Matches {
		counts[m.PopulationRow]++
	}
	require.Equal(t, 2, counts[0])
	require.Equal(t, 1, counts[1])
}

func TestBuildUpperTimeStamp(t *testing.T) {
	pop := dataframe.New("population", 1)
	require.NoError(t, pop.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{1})))
	require.NoError(t, pop.AddFloat(column.New[float64]("ts", column.RoleTimeStamp, "", []float64{10})))
	require.NoError(t, pop.AddFloat(column.New[float64]("upper_ts", column.RoleTimeStamp, "", []float64{8})))

	perip := dataframe.New("peripheral", 2)
	require.NoError(t, perip.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{1, 1})))
	require.NoError(t, perip.AddFloat(column.New[float64]("ts", column.RoleTimeStamp, "", []float64{5, 5})))

	left, err := pop.CreateSubview("jk", "ts", "upper_ts")
	require.NoError(t, err)
	right, err := perip.CreateSubview("jk", "ts", "")
	require.NoError(t, err)

	set := Build(left, right)
	// upper_ts(8) <= ts(10), so ts1 < upper is false: no matches should survive.
	require.Empty(t, set.Matches)
}

func TestBuildNullJoinKeyExcluded(t *testing.T) {
	pop := dataframe.New("population", 1)
	require.NoError(t, pop.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{-1})))

	perip := dataframe.New("peripheral", 1)
	require.NoError(t, perip.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{-1})))

	left, err := pop.CreateSubview("jk", "", "")
	require.NoError(t, err)
	right, err := perip.CreateSubview("jk", "", "")
	require.NoError(t, err)

	set := Build(left, right)
	require.Empty(t, set.Matches)
}
