// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package placeholder implements spec.md §3's Placeholder: a
// recursive description of the join graph, parsed from the wire JSON
// shape of spec.md §6.
package placeholder

import (
	"encoding/json"

	"github.com/relboost/engine/internal/errs"
)

// Edge describes how one joined (peripheral) table relates to its
// parent, per spec.md §3: a 5-tuple of (join_key_left, join_key_right,
// time_stamp_left, time_stamp_right, upper_time_stamp_left), plus the
// per-edge AllowLaggedTargets flag from spec.md §6.
type Edge struct {
	JoinKeyLeft       string
	JoinKeyRight      string
	TimeStampLeft     string // optional, "" if absent
	TimeStampRight    string // optional, "" if absent
	UpperTimeStampLeft string // optional, "" if absent

	// AllowLaggedTargets is the edge's allow_lagged_targets entry from
	// the wire form. It is parsed and stored only: no component reads
	// it, and candidate building never uses target columns as inputs.
	AllowLaggedTargets bool

	Joined Placeholder
}

// SelfJoin describes a lookback join of a table to itself through a
// lagged join key, supplemented from
// original_source/src/engine/Code/include/multirel/timeseries/TimeSeriesModel.hpp.
// It behaves like any other Edge for match-building and same-unit
// purposes (internal/tableholder treats it as just another peripheral
// edge whose peripheral table happens to be the population table
// itself), except the time-stamp comparison is offset by Lag before
// the usual ts2 <= ts1 rule is applied.
type SelfJoin struct {
	JoinKey   string
	TimeStamp string
	Lag       float64 // in the same real-number time-stamp units as TimeStamp
}

// Placeholder is a recursive join-graph node.
type Placeholder struct {
	Name         string
	JoinedTables []Edge
	SelfJoins    []SelfJoin
}

// wireEdge/wirePlaceholder mirror the JSON shape of spec.md §6:
// {name, joined_tables[], join_keys_used[], other_join_keys_used[],
//  time_stamps_used[], other_time_stamps_used[], upper_time_stamps_used[],
//  allow_lagged_targets[]}.
type wirePlaceholder struct {
	Name                 string            `json:"name"`
	JoinedTables         []json.RawMessage `json:"joined_tables"`
	JoinKeysUsed         []string          `json:"join_keys_used"`
	OtherJoinKeysUsed    []string          `json:"other_join_keys_used"`
	TimeStampsUsed       []string          `json:"time_stamps_used"`
	OtherTimeStampsUsed  []string          `json:"other_time_stamps_used"`
	UpperTimeStampsUsed  []string          `json:"upper_time_stamps_used"`
	AllowLaggedTargets   []bool            `json:"allow_lagged_targets"`
	SelfJoins            []wireSelfJoin    `json:"self_joins"`
}

type wireSelfJoin struct {
	JoinKey   string  `json:"join_key"`
	TimeStamp string  `json:"time_stamp"`
	Lag       float64 `json:"lag"`
}

// Parse decodes a Placeholder from its JSON wire form, recursively
// parsing every joined table.
func Parse(raw []byte) (Placeholder, error) {
	var w wirePlaceholder
	if err := json.Unmarshal(raw, &w); err != nil {
		return Placeholder{}, errs.New(errs.SchemaError, "PLACEHOLDER/PARSE", "invalid json: %w", err)
	}
	return fromWire(w)
}

func fromWire(w wirePlaceholder) (Placeholder, error) {
	n := len(w.JoinedTables)
	if len(w.JoinKeysUsed) != n || len(w.OtherJoinKeysUsed) != n {
		return Placeholder{}, errs.New(errs.SchemaError, "PLACEHOLDER/PARSE",
			"join_keys_used/other_join_keys_used must have one entry per joined table (got %d vs %d tables)",
			len(w.JoinKeysUsed), n)
	}

	p := Placeholder{Name: w.Name}

	for i, raw := range w.JoinedTables {
		var childWire wirePlaceholder
		if err := json.Unmarshal(raw, &childWire); err != nil {
			return Placeholder{}, errs.New(errs.SchemaError, "PLACEHOLDER/PARSE", "invalid joined table json: %w", err)
		}
		child, err := fromWire(childWire)
		if err != nil {
			return Placeholder{}, err
		}

		edge := Edge{
			JoinKeyLeft:  w.JoinKeysUsed[i],
			JoinKeyRight: w.OtherJoinKeysUsed[i],
			Joined:       child,
		}
		if i < len(w.TimeStampsUsed) {
			edge.TimeStampLeft = w.TimeStampsUsed[i]
		}
		if i < len(w.OtherTimeStampsUsed) {
			edge.TimeStampRight = w.OtherTimeStampsUsed[i]
		}
		if i < len(w.UpperTimeStampsUsed) {
			edge.UpperTimeStampLeft = w.UpperTimeStampsUsed[i]
		}
		if i < len(w.AllowLaggedTargets) {
			edge.AllowLaggedTargets = w.AllowLaggedTargets[i]
		}
		p.JoinedTables = append(p.JoinedTables, edge)
	}

	for _, sj := range w.SelfJoins {
		p.SelfJoins = append(p.SelfJoins, SelfJoin{JoinKey: sj.JoinKey, TimeStamp: sj.TimeStamp, Lag: sj.Lag})
	}

	return p, nil
}
