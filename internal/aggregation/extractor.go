// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package aggregation

import "github.com/relboost/engine/internal/match"

// ValueFunc extracts the "value to be aggregated" for one match, per
// spec.md §4.4. It mirrors the teacher's AggregationParser: selection
// of which columns feed the extractor happens once, at candidate-tree
// build time, keyed off DataUsed; the extractor itself is then a pure
// function applied per match during binning and sufficient-statistic
// accumulation.
type ValueFunc func(m match.Match) float64

// PeripheralColumn builds a ValueFunc reading straight off a
// peripheral column (DataUsed x_perip_numerical / x_perip_discrete).
func PeripheralColumn(col []float64) ValueFunc {
	return func(m match.Match) float64 { return col[m.PeripheralRow] }
}

// PopulationColumn builds a ValueFunc reading straight off a
// population column (DataUsed x_popul_numerical / x_popul_discrete).
func PopulationColumn(col []float64) ValueFunc {
	return func(m match.Match) float64 { return col[m.PopulationRow] }
}

// SameUnitDifference builds a ValueFunc for a same-unit aggregation
// (DataUsed same_unit_numerical/_discrete and their _ts variants):
// peripheral value minus the paired column's value, the pairing
// being either the population side or another peripheral column
// sharing the same unit string, per AggregationParser::make_aggregation's
// is_population-template-bool dispatch.
func SameUnitDifference(peripheral []float64, other []float64, otherIsPopulation bool) ValueFunc {
	if otherIsPopulation {
		return func(m match.Match) float64 { return peripheral[m.PeripheralRow] - other[m.PopulationRow] }
	}
	return func(m match.Match) float64 { return peripheral[m.PeripheralRow] - other[m.PeripheralRow] }
}

// TimeStampDifference builds a ValueFunc for DataUsed
// time_stamps_diff: population time stamp minus peripheral time
// stamp.
func TimeStampDifference(populationTS, peripheralTS []float64) ValueFunc {
	return func(m match.Match) float64 { return populationTS[m.PopulationRow] - peripheralTS[m.PeripheralRow] }
}

// CategoricalEquality builds a ValueFunc for DataUsed
// same_unit_categorical: 1.0 when the peripheral category code equals
// the paired column's code, 0.0 otherwise, so the usual numeric
// aggregations can reduce the indicator (AVG giving the fraction of
// matches agreeing).
func CategoricalEquality(peripheral []int32, other []int32, otherIsPopulation bool) ValueFunc {
	if otherIsPopulation {
		return func(m match.Match) float64 {
			if peripheral[m.PeripheralRow] == other[m.PopulationRow] {
				return 1.0
			}
			return 0.0
		}
	}
	return func(m match.Match) float64 {
		if peripheral[m.PeripheralRow] == other[m.PeripheralRow] {
			return 1.0
		}
		return 0.0
	}
}

// Extract applies f to every match in matches[begin:end), producing a
// values slice Compute can reduce.
func Extract(f ValueFunc, matches []match.Match, begin, end int) []float64 {
	out := make([]float64, end-begin)
	for i := begin; i < end; i++ {
		out[i-begin] = f(matches[i])
	}
	return out
}
