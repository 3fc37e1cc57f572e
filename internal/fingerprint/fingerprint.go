// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fingerprint implements spec.md §4.9 (C9): the canonical
// structured value identifying one feature-learning stage, derived
// from its hyperparameters, its dependency fingerprints (forming a
// DAG), and its declared random seed, plus the content-addressed
// build-once cache keyed off it.
package fingerprint

import (
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a canonical structured value: two Fingerprints are
// equal iff the stage they describe is guaranteed to produce
// identical output. Dependencies form the DAG edge list (e.g. a
// subfeature tree's fingerprint feeding into the main ensemble's).
type Fingerprint struct {
	Stage             string          `json:"stage"`
	PopulationSchema  string          `json:"population_schema"`
	PeripheralSchemas []string        `json:"peripheral_schemas"`
	Hyperparameters   json.RawMessage `json:"hyperparameters"`
	Seed              uint64          `json:"seed"`
	Dependencies      []string        `json:"dependencies"` // hex digests of dependency fingerprints, sorted
}

// New builds a Fingerprint for one stage. dependencies need not be
// sorted by the caller; New canonicalizes the order so that two
// logically-identical dependency sets always hash identically
// regardless of construction order.
func New(stage, populationSchema string, peripheralSchemas []string, hyperparameters json.RawMessage, seed uint64, dependencies []string) Fingerprint {
	sortedPeripherals := append([]string(nil), peripheralSchemas...)
	sort.Strings(sortedPeripherals)
	sortedDeps := append([]string(nil), dependencies...)
	sort.Strings(sortedDeps)
	return Fingerprint{
		Stage:             stage,
		PopulationSchema:  populationSchema,
		PeripheralSchemas: sortedPeripherals,
		Hyperparameters:   hyperparameters,
		Seed:              seed,
		Dependencies:      sortedDeps,
	}
}

// Digest returns the fingerprint's stable hex digest, used as the
// cache key. Canonicalization happens in New; Digest only has to
// serialize deterministically, which encoding/json already does for
// struct fields (always emitted in field-declaration order).
func (f Fingerprint) Digest() string {
	// json.Marshal never fails on this struct: every field is a
	// plain string, slice of strings, RawMessage, or uint64.
	b, _ := json.Marshal(f)
	h := xxhash.New()
	h.Write(b)
	return hex64(h.Sum64())
}

const hexDigits = "0123456789abcdef"

func hex64(v uint64) string {
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
