// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package match

import "math"

// ValueFunc extracts the candidate column's value for one match,
// which may be NaN (missing).
type ValueFunc func(m Match) float64

// CategoryFunc extracts the candidate categorical column's code for
// one match, or -1 if null.
type CategoryFunc func(m Match) int32

// PartitionNaN reorders matches[begin:end) in place so that every
// match with a non-NaN value (per extract) comes first, and returns
// nanBegin, the index (relative to the start of the slice, i.e. an
// absolute index into matches) of the first NaN entry. This is the
// "[begin, nan_begin, end)" precondition NumericalBinner expects.
func PartitionNaN(matches []Match, begin, end int, extract ValueFunc) (nanBegin int) {
	i, j := begin, end
	for i < j {
		if math.IsNaN(extract(matches[i])) {
			j--
			matches[i], matches[j] = matches[j], matches[i]
		} else {
			i++
		}
	}
	return i
}

// NumericalBinner bins matches[begin:nanBegin) into contiguous buckets
// by value, permuting them into bucket order, and leaves the NaN tail
// matches[nanBegin:end) untouched. It returns indptr, a prefix-sum of
// per-bin counts of length numBins+1 (so indptr[i]-indptr[i-1] is bin
// i-1's count, relative to begin), and the actual step size used.
//
// Exactly one of numBins (>0) or stepSize (>0) should be supplied; the
// other is computed from it. If the non-NaN range is degenerate
// (min >= max) or numBins resolves to 0, indptr is nil: "no split
// possible" (spec.md §4.3).
func NumericalBinner(matches []Match, begin, nanBegin int, extract ValueFunc, numBins int, stepSize float64) (indptr []int, actualStep float64) {
	n := nanBegin - begin
	if n == 0 {
		return []int{0}, 0
	}

	min, max := extract(matches[begin]), extract(matches[begin])
	for i := begin + 1; i < nanBegin; i++ {
		v := extract(matches[i])
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	if min >= max {
		return nil, 0
	}

	if stepSize > 0 {
		numBins = int(math.Ceil((max - min) / stepSize))
		if numBins < 1 {
			numBins = 1
		}
	} else {
		if numBins <= 0 {
			return nil, 0
		}
		stepSize = (max - min) / float64(numBins)
	}

	binOf := func(v float64) int {
		b := int((v - min) / stepSize)
		if b >= numBins {
			b = numBins - 1
		}
		if b < 0 {
			b = 0
		}
		return b
	}

	counts := make([]int, numBins)
	for i := begin; i < nanBegin; i++ {
		counts[binOf(extract(matches[i]))]++
	}

	indptr = make([]int, numBins+1)
	for b := 0; b < numBins; b++ {
		indptr[b+1] = indptr[b] + counts[b]
	}

	// Stable bucket placement into a scratch buffer, then copy back.
	scratch := make([]Match, n)
	cursor := make([]int, numBins)
	copy(cursor, indptr[:numBins])
	for i := begin; i < nanBegin; i++ {
		m := matches[i]
		b := binOf(extract(m))
		scratch[cursor[b]] = m
		cursor[b]++
	}
	copy(matches[begin:nanBegin], scratch)

	return indptr, stepSize
}

// CategoricalBinner bins matches[begin:end) (where every match's
// category code, per extract, lies in [minCat, maxCat]) into one
// bucket per category, permuting them into bucket order. It returns
// indptr of length maxCat-minCat+2 and the sorted list of category
// codes that actually occurred (non-empty buckets only).
func CategoricalBinner(matches []Match, begin, end int, extract CategoryFunc, minCat, maxCat int32) (indptr []int, present []int32) {
	numCats := int(maxCat-minCat) + 1
	if numCats <= 0 {
		return []int{0}, nil
	}

	binOf := func(c int32) int {
		b := int(c - minCat)
		if b < 0 {
			b = 0
		}
		if b >= numCats {
			b = numCats - 1
		}
		return b
	}

	counts := make([]int, numCats)
	for i := begin; i < end; i++ {
		counts[binOf(extract(matches[i]))]++
	}

	indptr = make([]int, numCats+1)
	for b := 0; b < numCats; b++ {
		indptr[b+1] = indptr[b] + counts[b]
		if counts[b] > 0 {
			present = append(present, minCat+int32(b))
		}
	}

	scratch := make([]Match, end-begin)
	cursor := make([]int, numCats)
	copy(cursor, indptr[:numCats])
	for i := begin; i < end; i++ {
		m := matches[i]
		m.Category = extract(m)
		b := binOf(m.Category)
		scratch[cursor[b]] = m
		cursor[b]++
	}
	copy(matches[begin:end], scratch)

	return indptr, present
}

// MergeCategories merges two sorted, duplicate-free category lists,
// as used to reduce the "categories that actually occur" list across
// workers (spec.md §4.3's "reduced-across-workers list").
func MergeCategories(a, b []int32) []int32 {
	out := make([]int32, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
