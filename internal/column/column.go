// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package column

import "github.com/relboost/engine/pkg/units"

// Numeric is the set of value types a Column may hold: a 32-bit signed
// integer (an encoded category or join-key code) or a 64-bit float.
// Interned strings are represented as int32 codes against a shared
// Encoding held by the owning DataFrame, not inside the Column itself.
type Numeric interface {
	~int32 | ~float64
}

// Column is a named, typed, role- and unit-tagged sequence. All
// columns of one data frame must share the same row count; that
// invariant is enforced by DataFrame, not by Column itself.
type Column[T Numeric] struct {
	Name   string
	Role   Role
	Unit   units.Unit
	Values []T
}

// New builds a Column, trimming nothing: Values is taken by reference
// semantics (Go slices), matching the teacher's shared-read-only
// column-storage policy of spec.md §5 — callers must not mutate Values
// after handing it to a Column that may be read concurrently.
func New[T Numeric](name string, role Role, unit string, values []T) Column[T] {
	return Column[T]{Name: name, Role: role, Unit: units.New(unit), Values: values}
}

// Len returns the row count of the column.
func (c Column[T]) Len() int {
	return len(c.Values)
}

// At returns the value at row i.
func (c Column[T]) At(i int) T {
	return c.Values[i]
}
