// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataframe

// View is a DataFrame plus a shared, immutable sorted list of row
// indices into it. All accessors project through Rows. Views never
// copy cells; they are ownership-shared handles over the same backing
// DataFrame (spec.md §9: shared-pointer-to-vector subview indices
// become reference-counted handles over immutable slices in Go, which
// is simply a slice header shared by value — the backing array is
// never copied).
type View struct {
	DF   *DataFrame
	Rows []int // sorted ascending
}

// NewView returns a view over every row of df, in order.
func NewView(df *DataFrame) View {
	rows := make([]int, df.NRows())
	for i := range rows {
		rows[i] = i
	}
	return View{DF: df, Rows: rows}
}

// Len returns the number of rows visible through the view.
func (v View) Len() int { return len(v.Rows) }

// Int32At reads column name at the view's i-th row.
func (v View) Int32At(name string, i int) (int32, bool) {
	c, ok := v.DF.Int32Column(name)
	if !ok {
		return 0, false
	}
	return c.At(v.Rows[i]), true
}

// FloatAt reads column name at the view's i-th row.
func (v View) FloatAt(name string, i int) (float64, bool) {
	c, ok := v.DF.FloatColumn(name)
	if !ok {
		return 0, false
	}
	return c.At(v.Rows[i]), true
}

// Restrict returns a new View over a sub-selection of this view's
// rows, addressed by position (not backing-frame row number). rows
// must already be sorted ascending by backing-frame row number; the
// caller (C8's scatter, or any split partitioning) is responsible for
// that, mirroring the teacher's "views never copy cells" policy.
func (v View) Restrict(positions []int) View {
	rows := make([]int, len(positions))
	for i, p := range positions {
		rows[i] = v.Rows[p]
	}
	return View{DF: v.DF, Rows: rows}
}
