// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package errs defines the typed error kinds the engine raises, per
// the error-handling design: schema and parser errors surface with the
// full path (table/column) to the caller, degenerate splits are normal
// control flow rather than failures, and numeric anomalies never panic.
package errs

import (
	"errors"
	"fmt"
)

// Kind distinguishes the error categories the engine can raise.
type Kind int

const (
	// SchemaError is raised for a missing join key, missing time
	// stamp, or a row-count mismatch between a data frame's columns.
	SchemaError Kind = iota + 1

	// UnknownAggregation is raised by the aggregation-string parser
	// for any name outside the stable grammar.
	UnknownAggregation

	// UnknownDataUsed is raised by the data-used-tag parser for any
	// name outside the stable grammar.
	UnknownDataUsed

	// DegenerateSplit is raised internally (never surfaced to a
	// caller) when every candidate at a node yields a non-positive
	// loss reduction; the node becomes a leaf.
	DegenerateSplit

	// EmptyColumn marks that an aggregation was demanded over an
	// empty match set; it degrades to a NaN feature rather than
	// aborting training.
	EmptyColumn

	// NumericOverflow marks a floating-point computation that
	// produced an overflow or invalid result; it degrades to NaN.
	NumericOverflow

	// CommError is raised when the communicator abstraction fails
	// (a worker goroutine panicked or a barrier could not complete).
	// It is fatal at the enclosing training boundary.
	CommError

	// CacheMiss is not a failure. It is returned by the fingerprint
	// cache to signal that the caller must build the artifact itself.
	CacheMiss

	// IOFailure is raised when reading or writing a persisted
	// ensemble's on-disk directory fails or finds malformed content.
	IOFailure
)

func (k Kind) String() string {
	switch k {
	case SchemaError:
		return "SchemaError"
	case UnknownAggregation:
		return "UnknownAggregation"
	case UnknownDataUsed:
		return "UnknownDataUsed"
	case DegenerateSplit:
		return "DegenerateSplit"
	case EmptyColumn:
		return "EmptyColumn"
	case NumericOverflow:
		return "NumericOverflow"
	case CommError:
		return "CommError"
	case CacheMiss:
		return "CacheMiss"
	case IOFailure:
		return "IOFailure"
	default:
		return "UnknownKind"
	}
}

// Error is a typed engine error. Component identifies the subsystem
// that raised it (for example "DATAFRAME/SUBVIEW"), following the
// teacher's "PACKAGE/FILE > message" logging convention so the same
// string doubles as a diagnostic prefix.
type Error struct {
	Kind      Kind
	Component string
	Path      string // table/column path, when applicable
	Err       error  // wrapped cause, if any
}

func New(kind Kind, component, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Component: component, Err: fmt.Errorf(format, args...)}
}

func WithPath(kind Kind, component, path, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Component: component, Path: path, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s > [%s] %s: %v", e.Component, e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s > %s: %v", e.Component, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, &Error{Kind: ...}) style comparisons; only
// the Kind field is considered.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf reports the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (kind Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
