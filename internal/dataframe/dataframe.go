// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dataframe implements spec.md §3's DataFrame and
// DataFrameView: an ordered collection of role-grouped columns, one
// join-key index per join-key column, and the immutable-row-index view
// type every accessor in the engine reads through.
package dataframe

import (
	"fmt"

	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/errs"
)

// DataFrame is an ordered collection of columns grouped by role,
// together with an index for each join-key column. All columns must
// have identical row count; role is fixed once the frame is built.
type DataFrame struct {
	Name string

	int32Cols map[string]column.Column[int32]
	floatCols map[string]column.Column[float64]
	order     []string // column names in insertion order, for deterministic iteration

	nrows int

	indices map[string]*Index
}

// New builds an empty, named DataFrame with nrows rows. Columns are
// added with AddInt32/AddFloat, each of which is checked against nrows.
func New(name string, nrows int) *DataFrame {
	return &DataFrame{
		Name:      name,
		int32Cols: make(map[string]column.Column[int32]),
		floatCols: make(map[string]column.Column[float64]),
		nrows:     nrows,
		indices:   make(map[string]*Index),
	}
}

// NRows returns the data frame's row count.
func (df *DataFrame) NRows() int { return df.nrows }

// AddInt32 adds a categorical/join-key/text/unused column. If the
// column's role is RoleJoinKey, an Index is built for it immediately.
func (df *DataFrame) AddInt32(c column.Column[int32]) error {
	if c.Len() != df.nrows {
		return errs.WithPath(errs.SchemaError, "DATAFRAME/ADDCOLUMN", df.Name+"."+c.Name,
			"column has %d rows, data frame has %d", c.Len(), df.nrows)
	}
	df.int32Cols[c.Name] = c
	df.order = append(df.order, c.Name)
	if c.Role == column.RoleJoinKey {
		df.indices[c.Name] = BuildIndex(c.Values)
	}
	return nil
}

// AddFloat adds a discrete/numerical/target/time_stamp/unused column.
func (df *DataFrame) AddFloat(c column.Column[float64]) error {
	if c.Len() != df.nrows {
		return errs.WithPath(errs.SchemaError, "DATAFRAME/ADDCOLUMN", df.Name+"."+c.Name,
			"column has %d rows, data frame has %d", c.Len(), df.nrows)
	}
	df.floatCols[c.Name] = c
	df.order = append(df.order, c.Name)
	return nil
}

// Int32Column looks up a categorical/join-key/text column by name.
func (df *DataFrame) Int32Column(name string) (column.Column[int32], bool) {
	c, ok := df.int32Cols[name]
	return c, ok
}

// FloatColumn looks up a discrete/numerical/target/time_stamp column
// by name.
func (df *DataFrame) FloatColumn(name string) (column.Column[float64], bool) {
	c, ok := df.floatCols[name]
	return c, ok
}

// Int32ColumnsWithRole returns the names of all int32 columns with the
// given role, in insertion order.
func (df *DataFrame) Int32ColumnsWithRole(role column.Role) []string {
	var out []string
	for _, name := range df.order {
		if c, ok := df.int32Cols[name]; ok && c.Role == role {
			out = append(out, name)
		}
	}
	return out
}

// FloatColumnsWithRole returns the names of all float columns with the
// given role, in insertion order.
func (df *DataFrame) FloatColumnsWithRole(role column.Role) []string {
	var out []string
	for _, name := range df.order {
		if c, ok := df.floatCols[name]; ok && c.Role == role {
			out = append(out, name)
		}
	}
	return out
}

// Index returns the join-key index built for the named join-key
// column, if any.
func (df *DataFrame) Index(joinKeyName string) (*Index, bool) {
	idx, ok := df.indices[joinKeyName]
	return idx, ok
}

func (df *DataFrame) String() string {
	return fmt.Sprintf("DataFrame(%s, %d rows, %d columns)", df.Name, df.nrows, len(df.order))
}
