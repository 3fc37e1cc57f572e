// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tree

import (
	"github.com/relboost/engine/internal/criterion"
	"github.com/relboost/engine/internal/loss"
	"github.com/relboost/engine/internal/util"
)

// Scorer is the split-quality evaluator the tree walk drives one row
// at a time, per spec.md §4.6 step 3's "migrate matches out of the
// right sufficient-statistic block into the left block". Two
// implementations back it: lossScorer (CrossEntropyLoss, any loss in
// general) and rSquaredScorer (the R² optimization criterion, used
// for SquareLoss per spec.md §4.5).
type Scorer interface {
	// Reset seeds the right block with every row and empties the left
	// block, establishing the "no split yet" baseline.
	Reset(rows []int)

	// MoveLeft migrates one row's contribution from the right block
	// to the left block in O(1).
	MoveLeft(row int)

	// Score returns the current split's loss-reduction (or R²) value;
	// NaN marks a degenerate, unusable split.
	Score() float64
}

// NewScorer picks the scorer spec.md §4.5 assigns to fn: the R²
// criterion for SquareLoss, the generic second-order gain for every
// other loss (currently just CrossEntropyLoss).
func NewScorer(fn loss.Function, y, yhatOld []float64, lambda float64) Scorer {
	if _, ok := fn.(loss.Square); ok {
		return newRSquaredScorer(y, yhatOld)
	}
	return newLossScorer(fn, y, yhatOld, lambda)
}

// lossScorer tracks sumG/sumH for the left and right blocks and
// scores via the loss function's second-order gain formula.
type lossScorer struct {
	fn     loss.Function
	lambda float64
	g, h   []float64

	sumGParent, sumHParent float64
	sumGLeft, sumHLeft     float64
	sumGRight, sumHRight   float64
}

func newLossScorer(fn loss.Function, y, yhatOld []float64, lambda float64) *lossScorer {
	g, h := fn.CalcGradients(y, yhatOld)
	return &lossScorer{fn: fn, lambda: lambda, g: g, h: h}
}

func (s *lossScorer) Reset(rows []int) {
	s.sumGLeft, s.sumHLeft = 0, 0
	s.sumGRight, s.sumHRight = 0, 0
	for _, r := range rows {
		s.sumGRight += s.g[r]
		s.sumHRight += s.h[r]
	}
	s.sumGParent, s.sumHParent = s.sumGRight, s.sumHRight
}

func (s *lossScorer) MoveLeft(row int) {
	s.sumGLeft += s.g[row]
	s.sumHLeft += s.h[row]
	s.sumGRight -= s.g[row]
	s.sumHRight -= s.h[row]
}

func (s *lossScorer) Score() float64 {
	return s.fn.EvaluateSplit(s.sumGLeft, s.sumHLeft, s.sumGRight, s.sumHRight, s.sumGParent, s.sumHParent, s.lambda)
}

// rSquaredScorer tracks two criterion.Criterion (left/right blocks)
// and scores by their combined R².
type rSquaredScorer struct {
	y, yhatOld []float64
	yMean      float64
	left, right *criterion.Criterion
}

func newRSquaredScorer(y, yhatOld []float64) *rSquaredScorer {
	mean, _ := util.Mean(y) // empty y never reaches a scorer: Train requires at least one row
	return &rSquaredScorer{y: y, yhatOld: yhatOld, yMean: mean}
}

func (s *rSquaredScorer) Reset(rows []int) {
	s.left = criterion.New(s.yMean)
	s.right = criterion.New(s.yMean)
	for _, r := range rows {
		s.right.UpdateSamples(1, s.y[r], s.yhatOld[r], 1)
	}
}

func (s *rSquaredScorer) MoveLeft(row int) {
	s.left.UpdateSamples(1, s.y[row], s.yhatOld[row], 1)
	s.right.UpdateSamples(-1, s.y[row], s.yhatOld[row], 1)
}

func (s *rSquaredScorer) Score() float64 {
	l, r := s.left.Value(), s.right.Value()
	if isNaN(l) {
		return r
	}
	if isNaN(r) {
		return l
	}
	return l + r
}

func isNaN(f float64) bool { return f != f }
