// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package criterion implements spec.md §4.5's R² optimization
// criterion (C5): the incrementally-updated sufficient statistics the
// decision-tree split search uses to score each candidate split, and
// the commit/revert/store machinery that lets the search walk a bin
// boundary, try it, and cheaply back out if the next boundary turns
// out better (spec.md §4.6 step 3).
package criterion

import "math"

// Stats holds the six running sums spec.md §4.5 names:
// {Σw, Σ(y·w), Σ(y−ȳ)², Σ(y−ȳ)ŷ, Σŷ, Σŷ²}, plus Σ(y−ȳ), which the RSS
// expansion in RSquared also needs, relative to a fixed target
// mean ȳ supplied at construction.
type Stats struct {
	SumW             float64
	SumYW            float64
	SumYCentered     float64
	SumYCenteredSq   float64
	SumYCenteredYhat float64
	SumYhat          float64
	SumYhatSq        float64
	N                int
}

// add mutates s by sign*1 occurrence of one row (y, yhat, w), relative
// to mean yMean. sign is +1 to add a row into the block, -1 to remove
// one (the "migrate one bin from right into left" step of spec.md
// §4.6's split walk never needs to rescan the whole match set).
func (s *Stats) add(sign float64, y, yhat, w, yMean float64) {
	yc := y - yMean
	s.SumW += sign * w
	s.SumYW += sign * y * w
	s.SumYCentered += sign * yc
	s.SumYCenteredSq += sign * yc * yc
	s.SumYCenteredYhat += sign * yc * yhat
	s.SumYhat += sign * yhat
	s.SumYhatSq += sign * yhat * yhat
	s.N += int(sign)
}

// RSquared computes R² = 1 − RSS/TSS for this block, where
// TSS = Σ(y−ȳ)² and RSS is expanded algebraically from the stored
// sums without ever re-touching the raw per-row values:
//
//	RSS = TSS + N·ȳ² − 2(Σ(y−ȳ)ŷ + ȳ·Σŷ) + 2ȳ·Σ(y−ȳ) + Σŷ²
//
// Returns NaN if TSS is zero (a degenerate, single-valued target
// range) or N == 0, signaling "no meaningful split score here".
func (s Stats) RSquared(yMean float64) float64 {
	if s.N == 0 || s.SumYCenteredSq == 0 {
		return math.NaN()
	}
	tss := s.SumYCenteredSq
	rss := tss + float64(s.N)*yMean*yMean - 2*(s.SumYCenteredYhat+yMean*s.SumYhat) + 2*yMean*s.SumYCentered + s.SumYhatSq
	return 1 - rss/tss
}

// Criterion is spec.md §4.5's R² optimization criterion: a committed
// snapshot of sufficient statistics, a mutable current snapshot the
// split walk migrates rows into, and a deque of scores recorded at
// each candidate boundary (find_maximum walks this to pick the split).
type Criterion struct {
	YMean float64

	committed Stats
	current   Stats
	stored    []float64
}

// New returns a Criterion scoring splits against target mean yMean.
func New(yMean float64) *Criterion {
	return &Criterion{YMean: yMean}
}

// Reset zeroes both the committed and current sufficient statistics
// and clears the stored-score deque.
func (c *Criterion) Reset() {
	c.committed = Stats{}
	c.current = Stats{}
	c.stored = c.stored[:0]
}

// UpdateSamples adds (sign=+1) or removes (sign=-1) one row's
// contribution to the current sufficient statistics, per spec.md
// §4.5's "update_samples mutates S in O(|indices|)" contract applied
// one row at a time by the tree split walk.
func (c *Criterion) UpdateSamples(sign float64, y, yhat, w float64) {
	c.current.add(sign, y, yhat, w, c.YMean)
}

// Value returns the current block's R² score.
func (c *Criterion) Value() float64 {
	return c.current.RSquared(c.YMean)
}

// StoreCurrentStage appends the current R² score to the stored deque,
// recording one candidate boundary for later find_maximum.
func (c *Criterion) StoreCurrentStage() {
	c.stored = append(c.stored, c.Value())
}

// ValuesStored returns the i-th recorded score.
func (c *Criterion) ValuesStored(i int) float64 {
	return c.stored[i]
}

// FindMaximum walks the stored candidate list and returns the index
// of its maximum (NaN entries, meaning a degenerate split, never win)
// and that value. Returns (-1, NaN) if nothing was stored.
func (c *Criterion) FindMaximum() (int, float64) {
	best, bestValue := -1, math.Inf(-1)
	for i, v := range c.stored {
		if math.IsNaN(v) {
			continue
		}
		if best == -1 || v > bestValue {
			best, bestValue = i, v
		}
	}
	if best == -1 {
		return -1, math.NaN()
	}
	return best, bestValue
}

// Commit accepts the current sufficient statistics as the new
// committed state.
func (c *Criterion) Commit() {
	c.committed = c.current
}

// RevertToCommit discards the current sufficient statistics, falling
// back to the last committed state.
func (c *Criterion) RevertToCommit() {
	c.current = c.committed
}
