// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package comm

import (
	"sync/atomic"
	"testing"

	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/dataframe"
	"github.com/stretchr/testify/require"
)

func TestBarrierRunsAllTasks(t *testing.T) {
	var count int64
	tasks := make([]func() error, 10)
	for i := range tasks {
		tasks[i] = func() error {
			atomic.AddInt64(&count, 1)
			return nil
		}
	}
	for _, c := range []Communicator{NewThreadPoolCommunicator(), NoopCommunicator{}} {
		atomic.StoreInt64(&count, 0)
		require.NoError(t, c.Barrier(tasks))
		require.Equal(t, int64(10), count)
	}
}

func TestKahanSumMatchesNaive(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	require.InDelta(t, 15.0, KahanSum(values), 1e-9)
}

func TestScatterDataFramePartitionsAllRows(t *testing.T) {
	df := dataframe.New("t", 10)
	require.NoError(t, df.AddInt32(column.New[int32]("id", column.RoleJoinKey, "", []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})))
	v := dataframe.NewView(df)

	for _, c := range []Communicator{NewThreadPoolCommunicator(), NoopCommunicator{}} {
		parts := c.ScatterDataFrame(v)
		total := 0
		for _, p := range parts {
			total += p.Len()
		}
		require.Equal(t, 10, total)
	}
}

func TestReduceVecElementwise(t *testing.T) {
	c := NoopCommunicator{}
	got := c.ReduceVec([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.Equal(t, []float64{9, 12}, got)
}
