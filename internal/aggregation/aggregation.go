// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package aggregation

import (
	"math"
	"sort"

	"github.com/relboost/engine/internal/errs"
	"github.com/relboost/engine/pkg/log"
)

// Kind is one of the thirteen aggregations of spec.md §4.4's stable,
// bit-exact string grammar.
type Kind int

const (
	Avg Kind = iota
	AvgTimeBetween
	Sum
	Count
	CountDistinct
	CountMinusCountDistinct
	First
	Last
	Min
	Max
	Median
	Stddev
	Var
)

var grammar = map[string]Kind{
	"AVG":                        Avg,
	"AVG TIME BETWEEN":           AvgTimeBetween,
	"SUM":                        Sum,
	"COUNT":                      Count,
	"COUNT DISTINCT":             CountDistinct,
	"COUNT MINUS COUNT DISTINCT": CountMinusCountDistinct,
	"FIRST":                      First,
	"LAST":                       Last,
	"MIN":                        Min,
	"MAX":                        Max,
	"MEDIAN":                     Median,
	"STDDEV":                     Stddev,
	"VAR":                        Var,
}

// Parse parses one of the stable aggregation-string names, case
// sensitive, raising UnknownAggregation otherwise.
func Parse(s string) (Kind, error) {
	k, ok := grammar[s]
	if !ok {
		return 0, errs.New(errs.UnknownAggregation, "AGGREGATION/PARSE", "unknown aggregation %q", s)
	}
	log.Debugf("aggregation.Parse: %q -> %d", s, k)
	return k, nil
}

var kindNames = func() map[Kind]string {
	out := make(map[Kind]string, len(grammar))
	for name, k := range grammar {
		out[k] = name
	}
	return out
}()

// String renders k as the same stable grammar name Parse accepts.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// RequiresTimeStamp reports whether this aggregation is meaningless
// without a peripheral time stamp (spec.md §4.6's candidate-tree
// builder excludes FIRST/LAST/AVG TIME BETWEEN otherwise).
func (k Kind) RequiresTimeStamp() bool {
	return k == First || k == Last || k == AvgTimeBetween
}

// AppliesToCategorical reports whether this aggregation is meaningful
// over a categorical value (spec.md §4.6 excludes AVG on a
// categorical, and by extension every purely numeric reduction).
func (k Kind) AppliesToCategorical() bool {
	switch k {
	case Count, CountDistinct, CountMinusCountDistinct, First, Last:
		return true
	default:
		return false
	}
}

// Compute reduces values (the "value to be aggregated", one per
// surviving match) to a scalar per spec.md §4.4's per-aggregation
// contract, using timestamps (parallel to values) for the two
// aggregations that need row ordering. Empty values returns each
// aggregation's identity element per spec.md §8 invariant 4; values
// containing NaN are treated as null and excluded from every
// aggregation except COUNT, which counts all rows regardless of
// nullity.
func Compute(k Kind, values, timestamps []float64) float64 {
	switch k {
	case Count:
		return float64(len(values))
	case Sum:
		s := 0.0
		for _, v := range values {
			if !math.IsNaN(v) {
				s += v
			}
		}
		return s
	case Avg:
		s, n := sumNonNull(values)
		if n == 0 {
			return math.NaN()
		}
		return s / float64(n)
	case CountDistinct:
		return float64(len(distinct(values)))
	case CountMinusCountDistinct:
		_, n := sumNonNull(values)
		return float64(n - len(distinct(values)))
	case Min:
		m, ok := math.NaN(), false
		for _, v := range values {
			if math.IsNaN(v) {
				continue
			}
			if !ok || v < m {
				m, ok = v, true
			}
		}
		return m
	case Max:
		m, ok := math.NaN(), false
		for _, v := range values {
			if math.IsNaN(v) {
				continue
			}
			if !ok || v > m {
				m, ok = v, true
			}
		}
		return m
	case Median:
		return median(values)
	case Stddev:
		v := variance(values)
		if math.IsNaN(v) {
			return v
		}
		return math.Sqrt(v)
	case Var:
		return variance(values)
	case First:
		return extreme(values, timestamps, false)
	case Last:
		return extreme(values, timestamps, true)
	case AvgTimeBetween:
		return avgTimeBetween(timestamps)
	default:
		return math.NaN()
	}
}

func sumNonNull(values []float64) (sum float64, n int) {
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	return sum, n
}

func distinct(values []float64) []float64 {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			seen[v] = struct{}{}
		}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	return out
}

func median(values []float64) float64 {
	nonNull := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			nonNull = append(nonNull, v)
		}
	}
	if len(nonNull) == 0 {
		return math.NaN()
	}
	sort.Float64s(nonNull)
	mid := len(nonNull) / 2
	if len(nonNull)%2 == 1 {
		return nonNull[mid]
	}
	return (nonNull[mid-1] + nonNull[mid]) / 2
}

// variance implements the population-variance formula, skipped
// (NaN) when fewer than two non-null values are present.
func variance(values []float64) float64 {
	sum, n := sumNonNull(values)
	if n < 2 {
		return math.NaN()
	}
	mean := sum / float64(n)
	ss := 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		ss += d * d
	}
	return ss / float64(n)
}

// extreme returns the value whose parallel timestamp is minimal
// (last=false) or maximal (last=true). Rows with a NaN timestamp are
// ignored; an empty or all-NaN-timestamp input returns NaN (degraded
// EmptyColumn, spec.md §7).
func extreme(values, timestamps []float64, last bool) float64 {
	best, bestTS, ok := math.NaN(), 0.0, false
	for i, ts := range timestamps {
		if math.IsNaN(ts) {
			continue
		}
		if !ok || (!last && ts < bestTS) || (last && ts > bestTS) {
			best, bestTS, ok = values[i], ts, true
		}
	}
	return best
}

func avgTimeBetween(timestamps []float64) float64 {
	sorted := make([]float64, 0, len(timestamps))
	for _, ts := range timestamps {
		if !math.IsNaN(ts) {
			sorted = append(sorted, ts)
		}
	}
	if len(sorted) < 2 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	sum := 0.0
	for i := 1; i < len(sorted); i++ {
		sum += sorted[i] - sorted[i-1]
	}
	return sum / float64(len(sorted)-1)
}
