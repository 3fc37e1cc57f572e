// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package criterion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRSquaredPerfectFit(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	yMean := 2.5
	c := New(yMean)
	for _, v := range y {
		c.UpdateSamples(1, v, v, 1) // yhat == y everywhere
	}
	require.InDelta(t, 1.0, c.Value(), 1e-9)
}

func TestRSquaredMeanPrediction(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	yMean := 2.5
	c := New(yMean)
	for _, v := range y {
		c.UpdateSamples(1, v, yMean, 1) // yhat == mean everywhere -> R^2 == 0
	}
	require.InDelta(t, 0.0, c.Value(), 1e-9)
}

func TestFindMaximumSkipsNaN(t *testing.T) {
	c := New(0)
	c.stored = []float64{0.1, math.NaN(), 0.9, 0.4}
	idx, v := c.FindMaximum()
	require.Equal(t, 2, idx)
	require.InDelta(t, 0.9, v, 1e-9)
}

func TestCommitRevert(t *testing.T) {
	c := New(0)
	c.UpdateSamples(1, 5, 5, 1)
	c.Commit()
	c.UpdateSamples(1, 100, 0, 1) // corrupt current without committing
	c.RevertToCommit()
	require.Equal(t, 1, c.current.N)
}

func TestUpdateSamplesMigration(t *testing.T) {
	c := New(2)
	c.UpdateSamples(1, 1, 1, 1)
	c.UpdateSamples(1, 3, 3, 1)
	require.Equal(t, 2, c.current.N)
	c.UpdateSamples(-1, 1, 1, 1) // migrate the first row out, as the split walk does
	require.Equal(t, 1, c.current.N)
	require.InDelta(t, 1.0, c.Value(), 1e-9)
}
