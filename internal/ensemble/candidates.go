// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ensemble

import (
	"fmt"
	"sort"

	"github.com/relboost/engine/internal/aggregation"
	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/match"
	"github.com/relboost/engine/internal/tableholder"
	"github.com/relboost/engine/internal/tree"
)

// candidateKey builds the string BuildCandidates uses as a Candidate's
// Key, unique across the whole list: Route/valueOf dispatch on this
// rather than on Column, since two peripherals (or two aggregations of
// the same column) may otherwise collide.
func candidateKey(peripheral string, d aggregation.DataUsed, k aggregation.Kind, column string) string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%s", peripheral, d, k, column)
}

// numericAggregations are applied to numerical/discrete/same-unit
// peripheral columns; the time-stamp-dependent ones are filtered out
// per edge when the edge carries no time stamp.
var numericAggregations = []aggregation.Kind{
	aggregation.Avg, aggregation.AvgTimeBetween, aggregation.Sum,
	aggregation.Count, aggregation.CountDistinct, aggregation.CountMinusCountDistinct,
	aggregation.First, aggregation.Last, aggregation.Min, aggregation.Max,
	aggregation.Median, aggregation.Stddev, aggregation.Var,
}

var categoricalAggregations = []aggregation.Kind{
	aggregation.Count, aggregation.CountDistinct, aggregation.CountMinusCountDistinct,
	aggregation.First, aggregation.Last,
}

// groupByPopulationRow buckets a match set's positions by
// PopulationRow, returning an index of [begin,end) ranges into a
// population-row-sorted permutation of matches.
type matchGroups struct {
	matches []match.Match
	begin   map[int]int
	end     map[int]int
}

func groupByPopulationRow(set match.Set) matchGroups {
	ms := append([]match.Match(nil), set.Matches...)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].PopulationRow < ms[j].PopulationRow })
	begin := make(map[int]int)
	end := make(map[int]int)
	for i, m := range ms {
		if _, ok := begin[m.PopulationRow]; !ok {
			begin[m.PopulationRow] = i
		}
		end[m.PopulationRow] = i + 1
	}
	return matchGroups{matches: ms, begin: begin, end: end}
}

func (g matchGroups) rangeFor(row int) (int, int) {
	b, ok := g.begin[row]
	if !ok {
		return 0, 0
	}
	return b, g.end[row]
}

// buildPerRowValues applies f then Compute over every population row's
// own match subset, producing one value per row. A row with no
// matches gets whatever aggregation.Compute returns for an empty slice
// (0 for COUNT and SUM, for example), per spec.md §8 invariant 4's
// empty-set identities.
func buildPerRowValues(nrows int, g matchGroups, f aggregation.ValueFunc, tsOf aggregation.ValueFunc, k aggregation.Kind) []float64 {
	out := make([]float64, nrows)
	for row := 0; row < nrows; row++ {
		b, e := g.rangeFor(row)
		values := aggregation.Extract(f, g.matches, b, e)
		var timestamps []float64
		if k.RequiresTimeStamp() && tsOf != nil {
			timestamps = aggregation.Extract(tsOf, g.matches, b, e)
		}
		out[row] = aggregation.Compute(k, values, timestamps)
	}
	return out
}

// buildPerRowCategory picks the first match's category code per
// population row, per this implementation's row-level candidate
// routing simplification (see DESIGN.md): a categorical candidate
// needs exactly one category per row, not an aggregated reduction, so
// ties among multiple matches are broken by match order rather than
// by a chosen aggregation.
func buildPerRowCategory(nrows int, g matchGroups, codes []int32, peripheralSide bool) ([]int32, int32, int32) {
	out := make([]int32, nrows)
	var min, max int32
	first := true
	for row := 0; row < nrows; row++ {
		b, e := g.rangeFor(row)
		if e <= b {
			out[row] = -1
			continue
		}
		var code int32
		if peripheralSide {
			code = codes[g.matches[b].PeripheralRow]
		} else {
			code = codes[g.matches[b].PopulationRow]
		}
		out[row] = code
		if first {
			min, max, first = code, code, false
		} else {
			if code < min {
				min = code
			}
			if code > max {
				max = code
			}
		}
	}
	return out, min, max
}

// columnIndexer assigns stable, deterministic column indices across
// the whole candidate list for this node, used for spec.md §4.6's
// tie-break.
type columnIndexer struct{ next int }

func (ci *columnIndexer) take() int {
	i := ci.next
	ci.next++
	return i
}

// sortedPairNames returns m's keys in sorted order, so same-unit
// candidates get the same position and column index on every run.
func sortedPairNames(m map[string]tableholder.SameUnitPair) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildCandidates assembles the full candidate list for one
// TableHolder level (not recursing into Subtables; Fit handles
// subfeatures separately), per spec.md §4.4/§4.6: one Candidate per
// (peripheral edge, eligible aggregation, column) triple, plus
// same-unit and time-stamp-difference candidates per edge.
func BuildCandidates(th *tableholder.TableHolder) ([]tree.Candidate, error) {
	nrows := th.Population.NRows()
	var out []tree.Candidate
	ci := &columnIndexer{}

	for _, p := range th.Peripherals {
		var set match.Set
		if p.Lagged {
			set = match.BuildLagged(p.Left, p.Subview, p.Lag)
		} else {
			set = match.Build(p.Left, p.Subview)
		}
		g := groupByPopulationRow(set)

		peripheralDF := p.Subview.View.DF
		hasTS := p.Subview.HasTimeStamp && p.Left.HasTimeStamp

		for _, name := range append(
			peripheralDF.FloatColumnsWithRole(column.RoleNumerical),
			peripheralDF.FloatColumnsWithRole(column.RoleDiscrete)...,
		) {
			col, _ := peripheralDF.FloatColumn(name)
			dataUsed := aggregation.PeripheralNumerical
			if col.Role == column.RoleDiscrete {
				dataUsed = aggregation.PeripheralDiscrete
			}
			f := func(vals []float64) aggregation.ValueFunc {
				return func(m match.Match) float64 { return vals[m.PeripheralRow] }
			}(col.Values)

			var tf aggregation.ValueFunc
			if hasTS {
				tsCol, _ := peripheralDF.FloatColumn(p.Subview.TimeStampName)
				tf = func(vals []float64) aggregation.ValueFunc {
					return func(m match.Match) float64 { return vals[m.PeripheralRow] }
				}(tsCol.Values)
			}

			for _, k := range numericAggregations {
				if k.RequiresTimeStamp() && !hasTS {
					continue
				}
				values := buildPerRowValues(nrows, g, f, tf, k)
				out = append(out, tree.Candidate{
					DataUsed: dataUsed, Aggregation: k, Column: name,
					Key: candidateKey(p.Name, dataUsed, k, name),
					ColumnIndex: ci.take(), Peripheral: p.Name,
					Kind: tree.Numerical, Values: values,
				})
			}
		}

		for _, name := range peripheralDF.Int32ColumnsWithRole(column.RoleCategorical) {
			col, _ := peripheralDF.Int32Column(name)
			codes, min, max := buildPerRowCategory(nrows, g, col.Values, true)
			out = append(out, tree.Candidate{
				DataUsed: aggregation.PeripheralCategorical, Aggregation: aggregation.First, Column: name,
				Key: candidateKey(p.Name, aggregation.PeripheralCategorical, aggregation.First, name),
				ColumnIndex: ci.take(), Peripheral: p.Name,
				Kind: tree.Categorical, CategoryValues: codes, MinCategory: min, MaxCategory: max,
			})
		}

		for _, name := range sortedPairNames(p.SameUnitNumerical) {
			pair := p.SameUnitNumerical[name]
			col, _ := peripheralDF.FloatColumn(name)
			other := resolveOtherFloat(th, p, pair)
			f := aggregation.SameUnitDifference(col.Values, other, pair.OtherIsPopulation)
			for _, k := range numericAggregations {
				if k.RequiresTimeStamp() {
					continue
				}
				values := buildPerRowValues(nrows, g, f, nil, k)
				out = append(out, tree.Candidate{
					DataUsed: pair.DataUsed, Aggregation: k, Column: name,
					Key: candidateKey(p.Name, pair.DataUsed, k, name),
					ColumnIndex: ci.take(), Peripheral: p.Name,
					Kind: tree.Numerical, Values: values,
				})
			}
		}

		for _, name := range sortedPairNames(p.SameUnitDiscrete) {
			pair := p.SameUnitDiscrete[name]
			col, _ := peripheralDF.FloatColumn(name)
			other := resolveOtherFloat(th, p, pair)
			f := aggregation.SameUnitDifference(col.Values, other, pair.OtherIsPopulation)
			for _, k := range numericAggregations {
				if k.RequiresTimeStamp() {
					continue
				}
				values := buildPerRowValues(nrows, g, f, nil, k)
				out = append(out, tree.Candidate{
					DataUsed: pair.DataUsed, Aggregation: k, Column: name,
					Key: candidateKey(p.Name, pair.DataUsed, k, name),
					ColumnIndex: ci.take(), Peripheral: p.Name,
					Kind: tree.Numerical, Values: values,
				})
			}
		}

		// Same-unit categorical pairs carry no ordering, so only the
		// equality indicator is meaningful; unlike the numerical/discrete
		// loops above, a single AVG candidate (the fraction of matches
		// whose codes agree) is generated per pair rather than the full
		// numericAggregations set.
		for _, name := range sortedPairNames(p.SameUnitCategorical) {
			pair := p.SameUnitCategorical[name]
			col, _ := peripheralDF.Int32Column(name)
			other := resolveOtherInt32(th, p, pair)
			f := aggregation.CategoricalEquality(col.Values, other, pair.OtherIsPopulation)
			values := buildPerRowValues(nrows, g, f, nil, aggregation.Avg)
			out = append(out, tree.Candidate{
				DataUsed: pair.DataUsed, Aggregation: aggregation.Avg, Column: name,
				Key: candidateKey(p.Name, pair.DataUsed, aggregation.Avg, name),
				ColumnIndex: ci.take(), Peripheral: p.Name,
				Kind: tree.Numerical, Values: values,
			})
		}

		if hasTS {
			popTS, _ := th.Population.FloatColumn(p.Left.TimeStampName)
			peripTS, _ := peripheralDF.FloatColumn(p.Subview.TimeStampName)
			f := aggregation.TimeStampDifference(popTS.Values, peripTS.Values)
			for _, k := range []aggregation.Kind{aggregation.Avg, aggregation.Min, aggregation.Max} {
				values := buildPerRowValues(nrows, g, f, nil, k)
				out = append(out, tree.Candidate{
					DataUsed: aggregation.TimeStampsDiff, Aggregation: k, Column: p.Subview.TimeStampName,
					Key: candidateKey(p.Name, aggregation.TimeStampsDiff, k, p.Subview.TimeStampName),
					ColumnIndex: ci.take(), Peripheral: p.Name,
					Kind: tree.Numerical, Values: values,
				})
			}
		}
	}

	for _, name := range th.Population.FloatColumnsWithRole(column.RoleNumerical) {
		col, _ := th.Population.FloatColumn(name)
		values := append([]float64(nil), col.Values...)
		out = append(out, tree.Candidate{
			DataUsed: aggregation.PopulationNumerical, Aggregation: aggregation.Avg, Column: name,
			Key: candidateKey("", aggregation.PopulationNumerical, aggregation.Avg, name),
			ColumnIndex: ci.take(), Kind: tree.Numerical, Values: values,
		})
	}
	for _, name := range th.Population.FloatColumnsWithRole(column.RoleDiscrete) {
		col, _ := th.Population.FloatColumn(name)
		values := append([]float64(nil), col.Values...)
		out = append(out, tree.Candidate{
			DataUsed: aggregation.PopulationDiscrete, Aggregation: aggregation.Avg, Column: name,
			Key: candidateKey("", aggregation.PopulationDiscrete, aggregation.Avg, name),
			ColumnIndex: ci.take(), Kind: tree.Numerical, Values: values,
		})
	}

	return out, nil
}

// resolveOtherFloat looks up the paired column's values for a same-unit
// descriptor, either on the population frame or on the same peripheral
// frame.
func resolveOtherFloat(th *tableholder.TableHolder, p tableholder.Peripheral, pair tableholder.SameUnitPair) []float64 {
	if pair.OtherIsPopulation {
		col, _ := th.Population.FloatColumn(pair.OtherColumn)
		return col.Values
	}
	col, _ := p.Subview.View.DF.FloatColumn(pair.OtherColumn)
	return col.Values
}

// resolveOtherInt32 is resolveOtherFloat's categorical counterpart, used
// by the same-unit categorical equality indicator.
func resolveOtherInt32(th *tableholder.TableHolder, p tableholder.Peripheral, pair tableholder.SameUnitPair) []int32 {
	if pair.OtherIsPopulation {
		col, _ := th.Population.Int32Column(pair.OtherColumn)
		return col.Values
	}
	col, _ := p.Subview.View.DF.Int32Column(pair.OtherColumn)
	return col.Values
}
