// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package loss

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKnownLosses(t *testing.T) {
	sq, err := Parse("SquareLoss", 1.0)
	require.NoError(t, err)
	require.Equal(t, "SquareLoss", sq.Name())

	ce, err := Parse("CrossEntropyLoss", 1.0)
	require.NoError(t, err)
	require.Equal(t, "CrossEntropyLoss", ce.Name())
}

func TestParseUnknownLoss(t *testing.T) {
	_, err := Parse("HuberLoss", 1.0)
	require.Error(t, err)
}

func TestSquareLossGradients(t *testing.T) {
	sq := Square{Lambda: 0}
	g, h := sq.CalcGradients([]float64{1, 2, 3}, []float64{1, 1, 1})
	require.Equal(t, []float64{0, -1, -2}, g)
	require.Equal(t, []float64{1, 1, 1}, h)
}

func TestSquareLossWeightReducesLoss(t *testing.T) {
	sq := Square{Lambda: 1}
	y := []float64{5, 5, 5, 5}
	yhatOld := make([]float64, 4)
	g, h := sq.CalcGradients(y, yhatOld)
	sumG, sumH := 0.0, 0.0
	for i := range g {
		sumG += g[i]
		sumH += h[i]
	}
	w := sq.CalcWeight(sumG, sumH, 1)
	require.Greater(t, w, 0.0) // targets are positive, so the optimal weight should move predictions up
}

func TestCrossEntropyGradientsAtZeroLogit(t *testing.T) {
	ce := CrossEntropy{Lambda: 0}
	g, _ := ce.CalcGradients([]float64{1, 0}, []float64{0, 0})
	require.InDelta(t, -0.5, g[0], 1e-9)
	require.InDelta(t, 0.5, g[1], 1e-9)
}

func TestCalcUpdateRateImprovesLoss(t *testing.T) {
	sq := Square{Lambda: 0}
	y := []float64{10, 10, 10}
	yhatOld := []float64{0, 0, 0}
	treePred := []float64{1, 1, 1}
	eta := sq.CalcUpdateRate(y, yhatOld, treePred)
	require.Greater(t, eta, 0.0)
	require.LessOrEqual(t, eta, 1.0)
}
