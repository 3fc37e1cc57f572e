// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema validates and decodes the engine's external wire
// interface (spec.md §6): hyperparameters and placeholder join-graph
// JSON, both against embedded JSON Schema documents before decoding
// into Go types.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/relboost/engine/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind selects which embedded schema Validate checks a document
// against.
type Kind int

const (
	Hyperparameters Kind = iota + 1
	Placeholder
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadFS(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

func init() {
	jsonschema.Loaders["embedFS"] = loadFS
}

func compile(k Kind) (*jsonschema.Schema, error) {
	switch k {
	case Hyperparameters:
		return jsonschema.Compile("embedFS://schemas/hyperparameters.schema.json")
	case Placeholder:
		return jsonschema.Compile("embedFS://schemas/placeholder.schema.json")
	default:
		return nil, fmt.Errorf("schema: unknown kind %d", k)
	}
}

// Validate checks r against the embedded schema for k.
func Validate(k Kind, r io.Reader) error {
	s, err := compile(k)
	if err != nil {
		return err
	}

	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		log.Errorf("schema.Validate() - failed to decode: %v", err)
		return err
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%#v", err)
	}
	return nil
}

// HyperparametersDoc is the decoded form of spec.md §6's hyperparameter
// JSON.
type HyperparametersDoc struct {
	NumFeatures       int     `json:"num_features"`
	MaxDepth          int     `json:"max_depth"`
	MinNumSamples     int     `json:"min_num_samples"`
	Shrinkage         float64 `json:"shrinkage"`
	ShareAggregations float64 `json:"share_aggregations"`
	RoundRobin        bool    `json:"round_robin"`
	LossFunction      string  `json:"loss_function"`
	Lambda            float64 `json:"lambda"`
	Seed              uint64  `json:"seed"`
	NumBins           int     `json:"num_bins"`
}

// ParseHyperparameters validates raw against the embedded
// hyperparameters schema, then decodes it.
func ParseHyperparameters(raw []byte) (HyperparametersDoc, error) {
	var doc HyperparametersDoc
	if err := Validate(Hyperparameters, bytes.NewReader(raw)); err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, err
	}
	if doc.NumBins == 0 {
		doc.NumBins = 32
	}
	return doc, nil
}
