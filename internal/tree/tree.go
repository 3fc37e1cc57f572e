// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tree implements spec.md §4.6 (C6): the decision-tree split
// search. A tree routes population rows (not raw matches) by testing
// a candidate's precomputed per-row aggregate value at each node,
// mirroring ordinary sufficient-statistic decision-tree training; the
// candidates themselves (which aggregation, which peripheral column,
// which data_used tag) are what makes this a relational-feature tree
// rather than a plain regression tree.
package tree

import (
	"math"
	"sort"

	"github.com/relboost/engine/internal/aggregation"
	"github.com/relboost/engine/internal/errs"
	"github.com/relboost/engine/internal/util"
	"github.com/relboost/engine/pkg/log"
)

// Split describes the test an intermediate node applies to route a
// population row left or right.
type Split struct {
	DataUsed    aggregation.DataUsed
	Aggregation aggregation.Kind
	Column      string
	Key         string
	ColumnIndex int
	Peripheral  string

	IsCategorical bool
	IsNaNDummy    bool // true: "value is missing" vs "value is present"

	Threshold  float64 // numerical, non-NaN-dummy: go left iff value <= Threshold
	Categories []int32 // categorical: go left iff category is in this set
}

// Node is one node of a trained DecisionTree: either a leaf (Split ==
// nil, Weight holds the leaf's contribution to the feature) or an
// intermediate node routing to Left/Right.
type Node struct {
	Split       *Split
	Left, Right *Node
	Weight      float64
}

// IsLeaf reports whether n is a terminal node.
func (n *Node) IsLeaf() bool { return n.Split == nil }

// Route returns the leaf a population row reaches, given row's value
// for every candidate column this tree might test (looked up by the
// split's candidate Key through valueOf/categoryOf).
func (n *Node) Route(valueOf func(key string) float64, categoryOf func(key string) int32) *Node {
	cur := n
	for !cur.IsLeaf() {
		s := cur.Split
		var goLeft bool
		switch {
		case s.IsCategorical:
			cat := categoryOf(s.Key)
			goLeft = containsCategory(s.Categories, cat)
		case s.IsNaNDummy:
			goLeft = math.IsNaN(valueOf(s.Key))
		default:
			v := valueOf(s.Key)
			goLeft = !math.IsNaN(v) && v <= s.Threshold
		}
		if goLeft {
			cur = cur.Left
		} else {
			cur = cur.Right
		}
	}
	return cur
}

func containsCategory(cats []int32, c int32) bool {
	for _, x := range cats {
		if x == c {
			return true
		}
	}
	return false
}

// Hyperparams carries the subset of spec.md §6's hyperparameters the
// split search consults directly.
type Hyperparams struct {
	MaxDepth      int
	MinNumSamples int
	Lambda        float64
	NumBins       int // candidate numerical binner resolution; spec.md §4.3
}

// ScorerFactory builds a fresh Scorer scoped to one node's row range;
// y/yhatOld/fn/lambda are closed over by the ensemble package.
type ScorerFactory func() Scorer

// Train builds one decision tree over population rows, recursing per
// spec.md §4.6's six-step algorithm. calcWeight computes a leaf's
// scalar contribution from a row subset (closing over the loss
// function's CalcWeight and the current gradients).
func Train(rows []int, candidates []Candidate, newScorer ScorerFactory, calcWeight func(rows []int) float64, hp Hyperparams, depth int) *Node {
	weight := calcWeight(rows)

	if depth >= hp.MaxDepth || len(rows) < 2*hp.MinNumSamples {
		log.Debugf("tree.Train: leaf at depth %d (%d rows), weight=%v", depth, len(rows), weight)
		return &Node{Weight: weight}
	}

	best, bestSplit, leftRows, rightRows := findBestSplit(rows, candidates, newScorer, hp)
	if best == nil || !(bestSplit.score > 0) {
		log.Debugf("tree.Train: leaf at depth %d (%d rows), no positive-gain split found", depth, len(rows))
		return &Node{Weight: weight}
	}
	if len(leftRows) < hp.MinNumSamples || len(rightRows) < hp.MinNumSamples {
		log.Debugf("tree.Train: leaf at depth %d (%d rows), best split violates min_num_samples", depth, len(rows))
		return &Node{Weight: weight}
	}

	return &Node{
		Split: best,
		Left:  Train(leftRows, candidates, newScorer, calcWeight, hp, depth+1),
		Right: Train(rightRows, candidates, newScorer, calcWeight, hp, depth+1),
	}
}

type splitResult struct {
	split             *Split
	score             float64
	leftRows          []int
	rightRows         []int
	dataUsedOrdinal   int
	columnIndex       int
	criticalValue     float64
}

// findBestSplit evaluates every candidate and applies spec.md §4.6's
// tie-break: highest score first, then earliest data_used ordinal,
// then smallest column index, then smallest critical value.
func findBestSplit(rows []int, candidates []Candidate, newScorer ScorerFactory, hp Hyperparams) (*Split, splitResult, []int, []int) {
	var results []splitResult
	for _, c := range candidates {
		if r, ok := evaluateCandidate(rows, c, newScorer, hp); ok {
			results = append(results, r)
		}
	}
	if len(results) == 0 {
		return nil, splitResult{}, nil, nil
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.dataUsedOrdinal != b.dataUsedOrdinal {
			return a.dataUsedOrdinal < b.dataUsedOrdinal
		}
		if a.columnIndex != b.columnIndex {
			return a.columnIndex < b.columnIndex
		}
		return a.criticalValue < b.criticalValue
	})

	top := results[0]
	return top.split, top, top.leftRows, top.rightRows
}

func evaluateCandidate(rows []int, c Candidate, newScorer ScorerFactory, hp Hyperparams) (splitResult, bool) {
	if c.Kind == Categorical {
		return evaluateCategorical(rows, c, newScorer)
	}
	return evaluateNumerical(rows, c, newScorer, hp)
}

// evaluateNumerical partitions rows into a non-NaN head and a NaN
// tail, bins the head by value, and walks bin boundaries left to
// right, scoring both the ordinary threshold splits and the NaN-dummy
// split (NaN tail vs non-NaN head), per spec.md §4.6 steps 3-4.
func evaluateNumerical(rows []int, c Candidate, newScorer ScorerFactory, hp Hyperparams) (splitResult, bool) {
	sorted := append([]int(nil), rows...)
	sort.Ints(sorted)

	nanBegin := partitionNaNRows(sorted, c.Values)

	var best splitResult
	found := false

	if nanBegin > 0 && nanBegin < len(sorted) {
		// NaN-dummy split: NaN tail goes left, non-NaN head goes right.
		scorer := newScorer()
		scorer.Reset(sorted)
		for _, r := range sorted[nanBegin:] {
			scorer.MoveLeft(r)
		}
		if score := scorer.Score(); !isNaN(score) {
			candidate := splitResult{
				split: &Split{
					DataUsed: c.DataUsed, Aggregation: c.Aggregation, Column: c.Column, Key: c.Key, Peripheral: c.Peripheral,
					ColumnIndex: c.ColumnIndex, IsNaNDummy: true,
				},
				score: score, leftRows: append([]int(nil), sorted[nanBegin:]...),
				rightRows: append([]int(nil), sorted[:nanBegin]...),
				dataUsedOrdinal: int(c.DataUsed), columnIndex: c.ColumnIndex, criticalValue: math.Inf(-1),
			}
			if !found || better(candidate, best) {
				best, found = candidate, true
			}
		}
	}

	numBins := hp.NumBins
	if numBins <= 0 {
		numBins = 32
	}
	values := func(row int) float64 { return c.Values[row] }
	indptr, step := binNumericalRows(sorted, nanBegin, values, numBins)
	if indptr == nil {
		return best, found
	}

	scorer := newScorer()
	scorer.Reset(sorted[:nanBegin])
	minVal := values(sorted[0])

	for b := 0; b < len(indptr)-2; b++ {
		for i := indptr[b]; i < indptr[b+1]; i++ {
			scorer.MoveLeft(sorted[i])
		}
		threshold := minVal + step*float64(b+1)
		score := scorer.Score()
		if isNaN(score) {
			continue
		}
		candidate := splitResult{
			split: &Split{
				DataUsed: c.DataUsed, Aggregation: c.Aggregation, Column: c.Column, Key: c.Key, Peripheral: c.Peripheral,
				ColumnIndex: c.ColumnIndex, Threshold: threshold,
			},
			score:           score,
			leftRows:        append([]int(nil), sorted[:indptr[b+1]]...),
			rightRows:       append(append([]int(nil), sorted[indptr[b+1]:nanBegin]...), sorted[nanBegin:]...),
			dataUsedOrdinal: int(c.DataUsed), columnIndex: c.ColumnIndex, criticalValue: threshold,
		}
		if !found || better(candidate, best) {
			best, found = candidate, true
		}
	}

	return best, found
}

// evaluateCategorical tries every single-category-vs-rest split and
// the greedy compound-group splits of spec.md §4.6 step 3, taking the
// groups as prefixes of sortByMeanTarget's order.
func evaluateCategorical(rows []int, c Candidate, newScorer ScorerFactory) (splitResult, bool) {
	sorted := append([]int(nil), rows...)
	sort.Ints(sorted)

	present := presentCategories(sorted, c.CategoryValues, c.MinCategory, c.MaxCategory)
	if len(present) < 2 {
		return splitResult{}, false
	}

	var best splitResult
	found := false

	tryGroup := func(group []int32) {
		inGroup := make(map[int32]bool, len(group))
		for _, g := range group {
			inGroup[g] = true
		}
		scorer := newScorer()
		scorer.Reset(sorted)
		var left, right []int
		for _, r := range sorted {
			cat := c.CategoryValues[r]
			if cat >= 0 && inGroup[cat] {
				scorer.MoveLeft(r)
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			return
		}
		score := scorer.Score()
		if isNaN(score) {
			return
		}
		candidate := splitResult{
			split: &Split{
				DataUsed: c.DataUsed, Aggregation: c.Aggregation, Column: c.Column, Key: c.Key, Peripheral: c.Peripheral,
				ColumnIndex: c.ColumnIndex, IsCategorical: true, Categories: append([]int32(nil), group...),
			},
			score: score, leftRows: left, rightRows: right,
			dataUsedOrdinal: int(c.DataUsed), columnIndex: c.ColumnIndex, criticalValue: float64(group[0]),
		}
		if !found || better(candidate, best) {
			best, found = candidate, true
		}
	}

	for _, cat := range present {
		tryGroup([]int32{cat})
	}

	order := sortByMeanTarget(sorted, c.CategoryValues, present)
	for k := 1; k < len(order); k++ {
		tryGroup(order[:k])
	}

	return best, found
}

func better(a, b splitResult) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.dataUsedOrdinal != b.dataUsedOrdinal {
		return a.dataUsedOrdinal < b.dataUsedOrdinal
	}
	if a.columnIndex != b.columnIndex {
		return a.columnIndex < b.columnIndex
	}
	return a.criticalValue < b.criticalValue
}

// sortByMeanTarget orders present categories by the mean index of the
// rows carrying them. Target values are not consulted, so the
// compound groups evaluateCategorical tries are prefixes of this
// row-position order, not of a mean-target order.
func sortByMeanTarget(rows []int, categories []int32, present []int32) []int32 {
	sums := make(map[int32]float64, len(present))
	counts := make(map[int32]int, len(present))
	for _, r := range rows {
		cat := categories[r]
		sums[cat] += float64(r)
		counts[cat]++
	}
	out := append([]int32(nil), present...)
	sort.Slice(out, func(i, j int) bool {
		mi := sums[out[i]] / float64(counts[out[i]])
		mj := sums[out[j]] / float64(counts[out[j]])
		return mi < mj
	})
	return out
}

func presentCategories(rows []int, categories []int32, minCat, maxCat int32) []int32 {
	seen := make(map[int32]bool)
	for _, r := range rows {
		c := categories[r]
		if c >= minCat && c <= maxCat {
			seen[c] = true
		}
	}
	out := make([]int32, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func partitionNaNRows(rows []int, values []float64) int {
	i, j := 0, len(rows)
	for i < j {
		if math.IsNaN(values[rows[i]]) {
			j--
			rows[i], rows[j] = rows[j], rows[i]
		} else {
			i++
		}
	}
	return i
}

// binNumericalRows bins rows[:nanBegin) into numBins buckets by
// value, permuting rows into bucket order, returning the indptr
// prefix sum and the step size used. Mirrors match.NumericalBinner
// but operates directly on population-row indices rather than
// match.Match, since split search here works at row granularity.
func binNumericalRows(rows []int, nanBegin int, values func(int) float64, numBins int) (indptr []int, step float64) {
	if nanBegin == 0 {
		return nil, 0
	}
	min, max := values(rows[0]), values(rows[0])
	for i := 1; i < nanBegin; i++ {
		v := values(rows[i])
		min = util.Min(min, v)
		max = util.Max(max, v)
	}
	if min >= max {
		return nil, 0
	}
	step = (max - min) / float64(numBins)

	binOf := func(v float64) int {
		b := int((v - min) / step)
		if b >= numBins {
			b = numBins - 1
		}
		if b < 0 {
			b = 0
		}
		return b
	}

	counts := make([]int, numBins)
	for i := 0; i < nanBegin; i++ {
		counts[binOf(values(rows[i]))]++
	}
	indptr = make([]int, numBins+1)
	for b := 0; b < numBins; b++ {
		indptr[b+1] = indptr[b] + counts[b]
	}

	scratch := make([]int, nanBegin)
	cursor := append([]int(nil), indptr[:numBins]...)
	for i := 0; i < nanBegin; i++ {
		b := binOf(values(rows[i]))
		scratch[cursor[b]] = rows[i]
		cursor[b]++
	}
	copy(rows[:nanBegin], scratch)

	return indptr, step
}

// ErrDegenerate reports via errs.DegenerateSplit when a caller wants
// to surface the "every candidate yielded a non-positive loss
// reduction" condition explicitly (Train itself treats it as a silent
// leaf, per spec.md §4.6's stopping rule).
var ErrDegenerate = errs.New(errs.DegenerateSplit, "TREE/TRAIN", "no candidate split improved the loss")
