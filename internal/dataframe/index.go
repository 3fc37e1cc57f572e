// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataframe

import "sort"

// Index maps a join-key value to the sorted list of row numbers
// carrying that value. Negative (null) join-key values are excluded.
// Building an Index is O(n log n) once per data frame, per spec.md §4.1.
type Index struct {
	rows map[int32][]int
}

// BuildIndex builds the join-key index for a column of int32 join-key
// values. Rows with a negative value (encoded null) are skipped.
func BuildIndex(joinKeys []int32) *Index {
	buckets := make(map[int32][]int)
	for row, jk := range joinKeys {
		if jk < 0 {
			continue
		}
		buckets[jk] = append(buckets[jk], row)
	}
	// Every bucket is already built in ascending row order because we
	// iterate the column in row order; sort is a defensive no-op for
	// already-sorted input and guards against any future caller that
	// hands rows out of order.
	for jk := range buckets {
		sort.Ints(buckets[jk])
	}
	return &Index{rows: buckets}
}

// Lookup returns the sorted row numbers carrying join-key value jk.
func (idx *Index) Lookup(jk int32) []int {
	return idx.rows[jk]
}
