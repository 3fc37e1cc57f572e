// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tree

import (
	"math/rand"

	"github.com/relboost/engine/internal/aggregation"
)

// CandidateKind distinguishes how a Candidate's per-population-row
// values are binned during split search.
type CandidateKind int

const (
	Numerical CandidateKind = iota
	Categorical
)

// Candidate is one (aggregation, peripheral column, data_used) triple
// from spec.md §4.6's candidate-tree builder: a precomputed,
// per-population-row aggregate value (or category code) the split
// search bins and walks.
type Candidate struct {
	DataUsed    aggregation.DataUsed
	Aggregation aggregation.Kind
	Column      string
	Key         string // unique across the whole candidate list; Route/valueOf dispatch on this, not Column
	ColumnIndex int    // tie-break: smallest column index wins among ties
	Peripheral  string // name of the peripheral table this candidate's aggregation reads from, for SQL emission

	Kind           CandidateKind
	Values         []float64 // one entry per population row (Numerical)
	CategoryValues []int32   // one entry per population row (Categorical)
	MinCategory    int32
	MaxCategory    int32
}

// BuildCandidates assembles the candidate list for one tree, per
// spec.md §4.6: one entry per (supported aggregation, eligible
// peripheral column) pair the caller has already computed
// per-population-row values for, via aggregation.Compute over each
// population row's own match subset. Building the actual per-column
// aggregate values is the ensemble package's job (it owns the
// TableHolder and match sets); this constructor only copies the
// metadata slice, keeping the caller's order, which PruneCandidates'
// round-robin indexing then follows.
func BuildCandidates(entries []Candidate) []Candidate {
	out := append([]Candidate(nil), entries...)
	return out
}

// PruneCandidates applies spec.md §4.6's share_aggregations /
// round_robin candidate pruning, once per tree (feature index
// featureIndex), deterministically from (seed, featureIndex).
func PruneCandidates(candidates []Candidate, share float64, roundRobin bool, numFeatures, featureIndex int, seed uint64) []Candidate {
	if roundRobin {
		var out []Candidate
		for i, c := range candidates {
			if numFeatures > 0 && i%numFeatures == featureIndex {
				out = append(out, c)
			}
		}
		return out
	}
	if share >= 1 {
		return candidates
	}
	rng := rand.New(rand.NewSource(int64(seed) + int64(featureIndex)))
	var out []Candidate
	for _, c := range candidates {
		if rng.Float64() < share {
			out = append(out, c)
		}
	}
	return out
}
