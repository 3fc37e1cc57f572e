// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package match implements spec.md §4.1 and §4.3: building the match
// set for one peripheral edge (join-key equality plus time-stamp
// ordering), and binning a match range by a candidate column so the
// decision-tree split search can walk bin boundaries instead of
// rescanning the whole set.
package match

import (
	"math"

	"github.com/relboost/engine/internal/dataframe"
	"github.com/relboost/engine/pkg/log"
)

// Match is one surviving (population_row, peripheral_row) pair for one
// peripheral edge, per spec.md §3. Category is filled in transiently
// by CategoricalBinner for whichever candidate categorical column is
// currently being evaluated; it is -1 (no category) otherwise.
type Match struct {
	PopulationRow int
	PeripheralRow int
	Category      int32
}

// Set is the match set for one peripheral edge: a flat slice of
// Match, re-binned and re-partitioned repeatedly by the tree split
// search as it descends.
type Set struct {
	Matches []Match
}

// Build implements spec.md §4.1's subview matching: for each row l of
// left (population), look up jk_left[l] in right's (peripheral)
// index; admit each candidate r iff the time-stamp rule holds:
//
//	ts2 <= ts1 and (upper is NaN/absent or ts1 < upper)
//
// where ts1/ts2 are the left/right time stamps for the edge. If the
// edge carries no time stamps at all, every row sharing the join key
// is admitted.
func Build(left, right dataframe.Subview) Set {
	idx, ok := right.View.DF.Index(right.JoinKeyName)
	if !ok {
		// No index means no peripheral rows carry a non-null join
		// key; the match set is empty.
		return Set{}
	}

	var matches []Match
	for l := 0; l < left.View.Len(); l++ {
		jk := left.JoinKeyAt(l)
		if jk < 0 {
			continue
		}
		candidates := idx.Lookup(jk)
		if len(candidates) == 0 {
			continue
		}

		var ts1, upper float64
		hasTS := left.HasTimeStamp && right.HasTimeStamp
		if hasTS {
			ts1 = left.TimeStampAt(l)
		}
		hasUpper := left.HasUpperTimeStamp
		if hasUpper {
			upper = left.UpperTimeStampAt(l)
		}

		for _, rRow := range candidates {
			r, found := positionOf(right.View.Rows, rRow)
			if !found {
				// rRow belongs to a different worker's partition of
				// the peripheral view; skip it here.
				continue
			}
			if hasTS {
				ts2 := right.TimeStampAt(r)
				if !(ts2 <= ts1) {
					continue
				}
			}
			if hasUpper && !math.IsNaN(upper) && !(ts1 < upper) {
				continue
			}
			matches = append(matches, Match{
				PopulationRow: left.View.Rows[l],
				PeripheralRow: right.View.Rows[r],
				Category:      -1,
			})
		}
	}
	log.Debugf("match.Build: %d rows matched", len(matches))
	return Set{Matches: matches}
}

// BuildLagged implements the self-join variant of Build, supplemented
// from original_source/.../multirel/timeseries/TimeSeriesModel.hpp: a
// table is matched against itself through the same join key, but the
// time-stamp rule is offset by lag, i.e. ts2 <= ts1 - lag instead of
// ts2 <= ts1. left and right are ordinarily subviews of the same
// backing DataFrame.
func BuildLagged(left, right dataframe.Subview, lag float64) Set {
	idx, ok := right.View.DF.Index(right.JoinKeyName)
	if !ok {
		return Set{}
	}

	var matches []Match
	for l := 0; l < left.View.Len(); l++ {
		jk := left.JoinKeyAt(l)
		if jk < 0 {
			continue
		}
		candidates := idx.Lookup(jk)
		if len(candidates) == 0 {
			continue
		}

		ts1 := left.TimeStampAt(l) - lag

		for _, rRow := range candidates {
			r, found := positionOf(right.View.Rows, rRow)
			if !found {
				continue
			}
			ts2 := right.TimeStampAt(r)
			if !(ts2 <= ts1) {
				continue
			}
			matches = append(matches, Match{
				PopulationRow: left.View.Rows[l],
				PeripheralRow: right.View.Rows[r],
				Category:      -1,
			})
		}
	}
	log.Debugf("match.BuildLagged: %d rows matched, lag=%v", len(matches), lag)
	return Set{Matches: matches}
}

// positionOf returns the position of backing-row r within the sorted
// view rows, via binary search, and whether r is actually present
// (it may not be, if the view is a worker's partition and the index
// was built against the unpartitioned backing column).
func positionOf(rows []int, r int) (int, bool) {
	lo, hi := 0, len(rows)
	for lo < hi {
		mid := (lo + hi) / 2
		if rows[mid] < r {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(rows) && rows[lo] == r
}
