// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package loss implements spec.md §4.5 (C5): the two supported loss
// functions, their per-row gradients and second-order leaf-weight
// closed forms, and the update-rate line search each boosting round
// runs after a tree is trained.
package loss

import (
	"math"

	"github.com/relboost/engine/internal/errs"
	"github.com/relboost/engine/pkg/log"
)

// Function is a second-order (gradient-boosting) loss: it produces
// per-row gradient/hessian pairs from the current predictions, a
// closed-form optimal leaf weight from accumulated sufficient
// statistics, the corresponding loss-reduction score used to compare
// candidate splits, and a line search for the per-tree update rate
// (spec.md §4.5).
type Function interface {
	Name() string

	// CalcGradients returns per-row first and second derivatives of
	// the loss at the current prediction yhatOld (logit space for
	// CrossEntropyLoss) against targets y.
	CalcGradients(y, yhatOld []float64) (g, h []float64)

	// CalcWeight returns the optimal leaf weight w* = -sumG/(sumH+lambda)
	// minimizing the second-order Taylor approximation over one block
	// of rows.
	CalcWeight(sumG, sumH, lambda float64) float64

	// EvaluateSplit returns the loss-reduction score of a binary split
	// whose two children have sufficient statistics (sumGLeft,
	// sumHLeft) and (sumGRight, sumHRight), relative to not splitting
	// (sumGParent, sumHParent).
	EvaluateSplit(sumGLeft, sumHLeft, sumGRight, sumHRight, sumGParent, sumHParent, lambda float64) float64

	// CalcUpdateRate runs a bounded backtracking line search for the
	// scalar eta minimizing loss(yhatOld + eta*treePredictions), the
	// shrinkage-free update rate this tree's predictions are scaled by
	// before accumulation into the ensemble's running prediction.
	CalcUpdateRate(y, yhatOld, treePredictions []float64) float64

	// Predict maps logits/raw scores to the loss's native prediction
	// space (identity for SquareLoss, sigmoid for CrossEntropyLoss).
	Predict(raw []float64) []float64
}

// Parse resolves the hyperparameters JSON's loss_function field
// (spec.md §6: `"SquareLoss"` or `"CrossEntropyLoss"`).
func Parse(name string, lambda float64) (Function, error) {
	switch name {
	case "SquareLoss":
		log.Debugf("loss.Parse: SquareLoss, lambda=%v", lambda)
		return Square{Lambda: lambda}, nil
	case "CrossEntropyLoss":
		log.Debugf("loss.Parse: CrossEntropyLoss, lambda=%v", lambda)
		return CrossEntropy{Lambda: lambda}, nil
	default:
		return nil, errs.New(errs.SchemaError, "LOSS/PARSE", "unknown loss_function %q", name)
	}
}

// calcWeight is the shared closed form: w* = -sumG/(sumH+lambda).
func calcWeight(sumG, sumH, lambda float64) float64 {
	denom := sumH + lambda
	if denom == 0 {
		return 0
	}
	return -sumG / denom
}

// gain is the standard second-order split-quality term
// 0.5 * (G^2/(H+lambda)), shared by both losses' EvaluateSplit.
func gain(sumG, sumH, lambda float64) float64 {
	denom := sumH + lambda
	if denom == 0 {
		return 0
	}
	return 0.5 * (sumG * sumG) / denom
}

func evaluateSplit(sumGLeft, sumHLeft, sumGRight, sumHRight, sumGParent, sumHParent, lambda float64) float64 {
	return gain(sumGLeft, sumHLeft, lambda) + gain(sumGRight, sumHRight, lambda) - gain(sumGParent, sumHParent, lambda)
}

// calcUpdateRate runs a bounded line search for the scalar minimizing
// sum(lossAt(eta)): it evaluates eta = 1, 1/2, 1/4, ..., 2^-20 and
// returns the one with the lowest loss.
func calcUpdateRate(lossAt func(eta float64) float64) float64 {
	const maxIter = 20
	eta, best, bestLoss := 1.0, 1.0, lossAt(1.0)
	for i := 0; i < maxIter; i++ {
		eta /= 2
		l := lossAt(eta)
		if l < bestLoss {
			best, bestLoss = eta, l
		}
	}
	return best
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
