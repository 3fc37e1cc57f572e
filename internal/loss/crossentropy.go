// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package loss

import "math"

// CrossEntropy is spec.md §4.5's CrossEntropyLoss: binary
// classification, predictions held in logit space internally and
// passed through a sigmoid on output. g/h are the standard logistic
// gradient/hessian, p = sigmoid(yhatOld), g = p - y, h = p*(1-p).
type CrossEntropy struct {
	Lambda float64
}

func (CrossEntropy) Name() string { return "CrossEntropyLoss" }

func (CrossEntropy) CalcGradients(y, yhatOld []float64) (g, h []float64) {
	g = make([]float64, len(y))
	h = make([]float64, len(y))
	for i := range y {
		p := sigmoid(yhatOld[i])
		g[i] = p - y[i]
		h[i] = p * (1 - p)
	}
	return g, h
}

func (l CrossEntropy) CalcWeight(sumG, sumH, lambda float64) float64 {
	return calcWeight(sumG, sumH, lambda)
}

func (l CrossEntropy) EvaluateSplit(sumGLeft, sumHLeft, sumGRight, sumHRight, sumGParent, sumHParent, lambda float64) float64 {
	return evaluateSplit(sumGLeft, sumHLeft, sumGRight, sumHRight, sumGParent, sumHParent, lambda)
}

func (l CrossEntropy) CalcUpdateRate(y, yhatOld, treePredictions []float64) float64 {
	lossAt := func(eta float64) float64 {
		sum := 0.0
		for i := range y {
			logit := yhatOld[i] + eta*treePredictions[i]
			p := sigmoid(logit)
			// clip to avoid log(0)
			const eps = 1e-12
			if p < eps {
				p = eps
			}
			if p > 1-eps {
				p = 1 - eps
			}
			if y[i] >= 0.5 {
				sum -= math.Log(p)
			} else {
				sum -= math.Log(1 - p)
			}
		}
		return sum
	}
	return calcUpdateRate(lossAt)
}

func (CrossEntropy) Predict(raw []float64) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = sigmoid(v)
	}
	return out
}
