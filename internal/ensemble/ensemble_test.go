// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ensemble

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/comm"
	"github.com/relboost/engine/internal/dataframe"
	"github.com/relboost/engine/internal/placeholder"
	"github.com/relboost/engine/internal/tableholder"
)

func buildFitTable(t *testing.T) *tableholder.TableHolder {
	t.Helper()
	pop := dataframe.New("population", 4)
	require.NoError(t, pop.AddInt32(column.New[int32]("id", column.RoleJoinKey, "", []int32{1, 2, 3, 4})))

	perip := dataframe.New("orders", 6)
	require.NoError(t, perip.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{1, 1, 2, 2, 3, 4})))
	require.NoError(t, perip.AddFloat(column.New[float64]("amount", column.RoleNumerical, "dollar", []float64{10, 20, 100, 110, 5, 200})))

	tables := map[string]*dataframe.DataFrame{"orders": perip}
	ph := placeholder.Placeholder{
		Name: "population",
		JoinedTables: []placeholder.Edge{
			{JoinKeyLeft: "id", JoinKeyRight: "jk", Joined: placeholder.Placeholder{Name: "orders"}},
		},
	}

	th, err := tableholder.Build(pop, ph, func(name string) (*dataframe.DataFrame, bool) { df, ok := tables[name]; return df, ok })
	require.NoError(t, err)
	return th
}

func TestFitReducesSquareLoss(t *testing.T) {
	th := buildFitTable(t)
	target := []float64{15, 105, 5, 200}

	hp := Hyperparams{
		NumFeatures: 3, MaxDepth: 2, MinNumSamples: 1,
		Shrinkage: 1.0, ShareAggregations: 1.0, LossFunction: "SquareLoss", Lambda: 0.0, Seed: 1, NumBins: 8,
	}
	ens, err := Fit(th, target, hp, comm.NoopCommunicator{})
	require.NoError(t, err)
	require.Len(t, ens.Trees, 3)

	pred, err := Transform(ens, th, comm.NoopCommunicator{})
	require.NoError(t, err)
	require.Len(t, pred, 4)

	var initialSSE, finalSSE float64
	for i, y := range target {
		initialSSE += (y - ens.InitialPrediction) * (y - ens.InitialPrediction)
		finalSSE += (y - pred[i]) * (y - pred[i])
	}
	require.Less(t, finalSSE, initialSSE)
}

func TestFitDeterministicUnderSeed(t *testing.T) {
	th := buildFitTable(t)
	target := []float64{15, 105, 5, 200}
	hp := Hyperparams{
		NumFeatures: 2, MaxDepth: 2, MinNumSamples: 1,
		Shrinkage: 0.5, ShareAggregations: 1.0, LossFunction: "SquareLoss", Lambda: 1.0, Seed: 7, NumBins: 8,
	}

	ens1, err := Fit(th, target, hp, comm.NoopCommunicator{})
	require.NoError(t, err)
	pred1, err := Transform(ens1, th, comm.NoopCommunicator{})
	require.NoError(t, err)

	ens2, err := Fit(th, target, hp, comm.NoopCommunicator{})
	require.NoError(t, err)
	pred2, err := Transform(ens2, th, comm.NoopCommunicator{})
	require.NoError(t, err)

	require.Equal(t, pred1, pred2)
}

func TestFitWithSubfeatures(t *testing.T) {
	pop := dataframe.New("population", 3)
	require.NoError(t, pop.AddInt32(column.New[int32]("id", column.RoleJoinKey, "", []int32{1, 2, 3})))

	per1 := dataframe.New("per1", 4)
	require.NoError(t, per1.AddInt32(column.New[int32]("per1_id", column.RoleJoinKey, "", []int32{1, 1, 2, 3})))
	require.NoError(t, per1.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{1, 1, 2, 3})))

	per2 := dataframe.New("per2", 5)
	require.NoError(t, per2.AddInt32(column.New[int32]("jk2", column.RoleJoinKey, "", []int32{1, 1, 1, 2, 3})))
	require.NoError(t, per2.AddFloat(column.New[float64]("value", column.RoleNumerical, "", []float64{1, 2, 3, 40, 500})))

	tables := map[string]*dataframe.DataFrame{"per1": per1, "per2": per2}
	ph := placeholder.Placeholder{
		Name: "population",
		JoinedTables: []placeholder.Edge{
			{
				JoinKeyLeft: "id", JoinKeyRight: "jk",
				Joined: placeholder.Placeholder{
					Name: "per1",
					JoinedTables: []placeholder.Edge{
						{JoinKeyLeft: "per1_id", JoinKeyRight: "jk2", Joined: placeholder.Placeholder{Name: "per2"}},
					},
				},
			},
		},
	}

	th, err := tableholder.Build(pop, ph, func(name string) (*dataframe.DataFrame, bool) { df, ok := tables[name]; return df, ok })
	require.NoError(t, err)

	target := []float64{1, 40, 500}
	hp := Hyperparams{
		NumFeatures: 1, MaxDepth: 1, MinNumSamples: 1,
		Shrinkage: 1.0, ShareAggregations: 1.0, LossFunction: "SquareLoss", Lambda: 0.0, Seed: 3, NumBins: 4,
	}

	ens, err := Fit(th, target, hp, comm.NoopCommunicator{})
	require.NoError(t, err)
	require.Contains(t, ens.SubEnsembles, "per1")

	pred, err := Transform(ens, th, comm.NoopCommunicator{})
	require.NoError(t, err)
	require.Len(t, pred, 3)
}
