// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"bytes"
	"testing"
)

func TestValidateHyperparameters(t *testing.T) {
	raw := []byte(`{
		"num_features": 10,
		"max_depth": 3,
		"min_num_samples": 100,
		"shrinkage": 0.3,
		"share_aggregations": 1.0,
		"loss_function": "SquareLoss",
		"lambda": 0.0,
		"seed": 42
	}`)
	if err := Validate(Hyperparameters, bytes.NewReader(raw)); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateHyperparametersRejectsUnknownLoss(t *testing.T) {
	raw := []byte(`{
		"num_features": 1, "max_depth": 1, "min_num_samples": 1,
		"shrinkage": 0.1, "share_aggregations": 1.0,
		"loss_function": "HuberLoss", "lambda": 0.0, "seed": 1
	}`)
	if err := Validate(Hyperparameters, bytes.NewReader(raw)); err == nil {
		t.Fatal("expected validation error for unknown loss_function")
	}
}

func TestParseHyperparametersDefaultsNumBins(t *testing.T) {
	raw := []byte(`{
		"num_features": 1, "max_depth": 1, "min_num_samples": 1,
		"shrinkage": 0.1, "share_aggregations": 1.0,
		"loss_function": "CrossEntropyLoss", "lambda": 0.0, "seed": 1
	}`)
	doc, err := ParseHyperparameters(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.NumBins != 32 {
		t.Fatalf("expected default num_bins=32, got %d", doc.NumBins)
	}
}

func TestValidatePlaceholder(t *testing.T) {
	raw := []byte(`{
		"name": "population",
		"joined_tables": [
			{"name": "orders", "joined_tables": [], "join_keys_used": [], "other_join_keys_used": []}
		],
		"join_keys_used": ["customer_id"],
		"other_join_keys_used": ["customer_id"],
		"allow_lagged_targets": [false]
	}`)
	if err := Validate(Placeholder, bytes.NewReader(raw)); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}
