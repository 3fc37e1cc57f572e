// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tableholder

import (
	"testing"

	"github.com/relboost/engine/internal/aggregation"
	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/dataframe"
	"github.com/relboost/engine/internal/match"
	"github.com/relboost/engine/internal/placeholder"
	"github.com/stretchr/testify/require"
)

func buildPopAndPerip(t *testing.T) (*dataframe.DataFrame, *dataframe.DataFrame) {
	t.Helper()
	pop := dataframe.New("population", 3)
	require.NoError(t, pop.AddInt32(column.New[int32]("id", column.RoleJoinKey, "", []int32{1, 2, 3})))
	require.NoError(t, pop.AddFloat(column.New[float64]("x", column.RoleNumerical, "dollar", []float64{10, 20, 30})))

	perip := dataframe.New("orders", 4)
	require.NoError(t, perip.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{1, 1, 2, 2})))
	require.NoError(t, perip.AddFloat(column.New[float64]("x", column.RoleNumerical, "dollar", []float64{1, 2, 3, 4})))
	return pop, perip
}

func TestBuildSameUnitNumerical(t *testing.T) {
	pop, perip := buildPopAndPerip(t)
	tables := map[string]*dataframe.DataFrame{"orders": perip}

	p := placeholder.Placeholder{
		Name: "population",
		JoinedTables: []placeholder.Edge{
			{JoinKeyLeft: "id", JoinKeyRight: "jk", Joined: placeholder.Placeholder{Name: "orders"}},
		},
	}

	th, err := Build(pop, p, func(name string) (*dataframe.DataFrame, bool) { df, ok := tables[name]; return df, ok })
	require.NoError(t, err)
	require.Len(t, th.Peripherals, 1)

	peripheral := th.Peripherals[0]
	pair, ok := peripheral.SameUnitNumerical["x"]
	require.True(t, ok)
	require.True(t, pair.OtherIsPopulation)
	require.Equal(t, "x", pair.OtherColumn)
	require.Equal(t, aggregation.SameUnitNumerical, pair.DataUsed)

	set := match.Build(peripheral.Left, peripheral.Subview)
	require.Len(t, set.Matches, 4)
}

func TestBuildSelfJoin(t *testing.T) {
	pop := dataframe.New("events", 3)
	require.NoError(t, pop.AddInt32(column.New[int32]("id", column.RoleJoinKey, "", []int32{1, 1, 1})))
	require.NoError(t, pop.AddFloat(column.New[float64]("ts", column.RoleTimeStamp, "", []float64{10, 20, 30})))

	p := placeholder.Placeholder{
		Name:      "events",
		SelfJoins: []placeholder.SelfJoin{{JoinKey: "id", TimeStamp: "ts", Lag: 5}},
	}

	th, err := Build(pop, p, func(string) (*dataframe.DataFrame, bool) { return nil, false })
	require.NoError(t, err)
	require.Len(t, th.Peripherals, 1)
	require.True(t, th.Peripherals[0].Lagged)

	set := match.BuildLagged(th.Peripherals[0].Left, th.Peripherals[0].Subview, th.Peripherals[0].Lag)
	// row with ts=30 (lag 5 -> 25) matches rows with ts<=25: ts=10,20 -> 2 matches.
	counts := map[int]int{}
	for _, m := range set.Matches {
		counts[m.PopulationRow]++
	}
	require.Equal(t, 2, counts[2])
}
