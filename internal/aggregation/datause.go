// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aggregation implements spec.md §4.4: the aggregation library
// (the pure reduction functions computed over a set of "values to be
// aggregated") and the DataUsed tag identifying which side/role of a
// peripheral edge supplies those values.
package aggregation

import (
	"github.com/relboost/engine/internal/errs"
	"github.com/relboost/engine/pkg/log"
)

// DataUsed identifies which side/role of a peripheral edge supplies
// the value an aggregation reduces over. Its ordinal order is load
// bearing: spec.md §4.6's split-search tie-break prefers the
// candidate with the earliest DataUsed ordinal, then smallest column
// index, then smallest critical value.
type DataUsed int

const (
	PeripheralNumerical DataUsed = iota
	PeripheralDiscrete
	PeripheralCategorical
	PopulationNumerical
	PopulationDiscrete
	SameUnitNumerical
	SameUnitNumericalTS
	SameUnitDiscrete
	SameUnitDiscreteTS
	SameUnitCategorical
	TimeStampsDiff
	TimeStampsWindow
	Subfeatures
	NotApplicable
)

func (d DataUsed) String() string {
	switch d {
	case PeripheralNumerical:
		return "x_perip_numerical"
	case PeripheralDiscrete:
		return "x_perip_discrete"
	case PeripheralCategorical:
		return "x_perip_categorical"
	case PopulationNumerical:
		return "x_popul_numerical"
	case PopulationDiscrete:
		return "x_popul_discrete"
	case SameUnitNumerical:
		return "same_unit_numerical"
	case SameUnitNumericalTS:
		return "same_unit_numerical_ts"
	case SameUnitDiscrete:
		return "same_unit_discrete"
	case SameUnitDiscreteTS:
		return "same_unit_discrete_ts"
	case SameUnitCategorical:
		return "same_unit_categorical"
	case TimeStampsDiff:
		return "time_stamps_diff"
	case TimeStampsWindow:
		return "time_stamps_window"
	case Subfeatures:
		return "subfeatures"
	case NotApplicable:
		return "not_applicable"
	default:
		return "unknown"
	}
}

// wireDataUsed is the smaller external grammar from spec.md §6, a
// subset of the internal enum: population-side, time-stamp-diff,
// time-stamp-window and subfeature tags are assigned programmatically
// by the candidate-tree builder rather than named on the wire.
var wireDataUsed = map[string]DataUsed{
	"categorical":             PeripheralCategorical,
	"discrete":                PeripheralDiscrete,
	"na":                      NotApplicable,
	"numerical":               PeripheralNumerical,
	"same_units_categorical":  SameUnitCategorical,
	"same_units_discrete":     SameUnitDiscrete,
	"same_units_discrete_ts":  SameUnitDiscreteTS,
	"same_units_numerical":    SameUnitNumerical,
	"same_units_numerical_ts": SameUnitNumericalTS,
	"subfeatures":             Subfeatures,
}

// ParseDataUsed parses the stable wire grammar of spec.md §6, raising
// UnknownDataUsed for any other string.
func ParseDataUsed(s string) (DataUsed, error) {
	d, ok := wireDataUsed[s]
	if !ok {
		return 0, errs.New(errs.UnknownDataUsed, "AGGREGATION/PARSE_DATA_USED", "unknown data_used tag %q", s)
	}
	log.Debugf("aggregation.ParseDataUsed: %q -> %d", s, d)
	return d, nil
}

var internalDataUsed = func() map[string]DataUsed {
	out := make(map[string]DataUsed)
	for d := PeripheralNumerical; d <= NotApplicable; d++ {
		out[d.String()] = d
	}
	return out
}()

// ParseInternalDataUsed parses DataUsed.String()'s full internal
// grammar (a superset of the external wire grammar ParseDataUsed
// accepts), used to round-trip a persisted ensemble's own on-disk
// representation.
func ParseInternalDataUsed(s string) (DataUsed, error) {
	d, ok := internalDataUsed[s]
	if !ok {
		return 0, errs.New(errs.UnknownDataUsed, "AGGREGATION/PARSE_DATA_USED", "unknown data_used tag %q", s)
	}
	return d, nil
}
