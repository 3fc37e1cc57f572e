// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package loss

// Square is spec.md §4.5's SquareLoss: ordinary least squares,
// g = yhat - y, h = 1.
type Square struct {
	Lambda float64
}

func (Square) Name() string { return "SquareLoss" }

func (Square) CalcGradients(y, yhatOld []float64) (g, h []float64) {
	g = make([]float64, len(y))
	h = make([]float64, len(y))
	for i := range y {
		g[i] = yhatOld[i] - y[i]
		h[i] = 1
	}
	return g, h
}

func (l Square) CalcWeight(sumG, sumH, lambda float64) float64 {
	return calcWeight(sumG, sumH, lambda)
}

func (l Square) EvaluateSplit(sumGLeft, sumHLeft, sumGRight, sumHRight, sumGParent, sumHParent, lambda float64) float64 {
	return evaluateSplit(sumGLeft, sumHLeft, sumGRight, sumHRight, sumGParent, sumHParent, lambda)
}

func (l Square) CalcUpdateRate(y, yhatOld, treePredictions []float64) float64 {
	lossAt := func(eta float64) float64 {
		sum := 0.0
		for i := range y {
			r := yhatOld[i] + eta*treePredictions[i] - y[i]
			sum += r * r
		}
		return sum
	}
	return calcUpdateRate(lossAt)
}

func (Square) Predict(raw []float64) []float64 {
	out := make([]float64, len(raw))
	copy(out, raw)
	return out
}
