// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataframe

import (
	"testing"

	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestAddColumnRowCountMismatch(t *testing.T) {
	df := New("population", 3)
	err := df.AddFloat(column.New("x", column.RoleNumerical, "", []float64{1, 2}))
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.SchemaError, kind)
}

func TestIndexExcludesNullJoinKeys(t *testing.T) {
	idx := BuildIndex([]int32{1, -1, 1, 2, -1})
	require.Equal(t, []int{0, 2}, idx.Lookup(1))
	require.Equal(t, []int{3}, idx.Lookup(2))
	require.Empty(t, idx.Lookup(-1))
}

func TestCreateSubviewErrors(t *testing.T) {
	df := New("peripheral", 2)
	require.NoError(t, df.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{0, 1})))

	_, err := df.CreateSubview("missing_jk", "", "")
	require.Error(t, err)
	kind, _ := errs.KindOf(err)
	require.Equal(t, errs.SchemaError, kind)

	_, err = df.CreateSubview("jk", "missing_ts", "")
	require.Error(t, err)
}

func TestCreateSubviewOK(t *testing.T) {
	df := New("peripheral", 3)
	require.NoError(t, df.AddInt32(column.New[int32]("jk", column.RoleJoinKey, "", []int32{0, 1, 1})))
	require.NoError(t, df.AddFloat(column.New[float64]("ts", column.RoleTimeStamp, "", []float64{1, 2, 3})))

	sv, err := df.CreateSubview("jk", "ts", "")
	require.NoError(t, err)
	require.True(t, sv.HasTimeStamp)
	require.False(t, sv.HasUpperTimeStamp)
	require.Equal(t, int32(1), sv.JoinKeyAt(1))
	require.Equal(t, float64(2), sv.TimeStampAt(1))
}
