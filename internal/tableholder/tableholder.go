// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tableholder implements spec.md §3/§4.2 (C2): materializing
// the join graph described by a placeholder into a tree of population
// and peripheral subviews, plus the same-unit descriptor lists each
// peripheral edge needs for its same-unit aggregations.
package tableholder

import (
	"github.com/relboost/engine/internal/aggregation"
	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/dataframe"
	"github.com/relboost/engine/internal/errs"
	"github.com/relboost/engine/internal/placeholder"
	"github.com/relboost/engine/pkg/units"
)

// SameUnitPair is one entry of a same-unit descriptor list: the
// peripheral column named PeripheralColumn may be aggregated as a
// difference (or, for categorical columns, an equality indicator)
// against OtherColumn, which lives on the population side
// (OtherIsPopulation) or on the same peripheral table.
type SameUnitPair struct {
	OtherColumn       string
	OtherIsPopulation bool
	DataUsed          aggregation.DataUsed
}

// Peripheral is one joined table beneath a TableHolder node: its
// subview (restricted to the edge's join key and time stamps), the
// placeholder edge that produced it, its same-unit descriptor lists,
// and any further-nested subtables.
type Peripheral struct {
	Name   string
	Edge   placeholder.Edge
	Lagged bool // true for a self-join edge; Build used match.BuildLagged
	Lag    float64

	// Left is the population side resolved against this edge's own
	// join key and time stamps, which may differ edge to edge; match.Build
	// (or match.BuildLagged, for a self-join) is called as
	// match.Build(peripheral.Left, peripheral.Subview).
	Left    dataframe.Subview
	Subview dataframe.Subview

	SameUnitNumerical   map[string]SameUnitPair
	SameUnitDiscrete    map[string]SameUnitPair
	SameUnitCategorical map[string]SameUnitPair

	Subtables *TableHolder
}

// TableHolder is one node of the materialized join graph: the
// population table itself plus its directly joined peripheral tables.
// Each Peripheral carries its own population-side subview (Left),
// since two edges out of the same population can use different join
// keys or time stamps.
type TableHolder struct {
	Name        string
	Population  *dataframe.DataFrame
	Peripherals []Peripheral
}

// Tables resolves a table name (population or any peripheral) to its
// backing DataFrame; Build takes one so recursion into nested
// placeholders can look up further peripheral tables by name.
type Tables func(name string) (*dataframe.DataFrame, bool)

// Build materializes p into a TableHolder rooted at population,
// recursively resolving every joined table and self-join through
// tables, and computing each edge's same-unit descriptor lists.
func Build(population *dataframe.DataFrame, p placeholder.Placeholder, tables Tables) (*TableHolder, error) {
	th := &TableHolder{Name: p.Name, Population: population}

	for _, edge := range p.JoinedTables {
		peripDF, ok := tables(edge.Joined.Name)
		if !ok {
			return nil, errs.WithPath(errs.SchemaError, "TABLEHOLDER/BUILD", edge.Joined.Name,
				"peripheral table not found")
		}

		left, err := population.CreateSubview(edge.JoinKeyLeft, edge.TimeStampLeft, edge.UpperTimeStampLeft)
		if err != nil {
			return nil, err
		}
		right, err := peripDF.CreateSubview(edge.JoinKeyRight, edge.TimeStampRight, "")
		if err != nil {
			return nil, err
		}

		peripheral := Peripheral{
			Name:    edge.Joined.Name,
			Edge:    edge,
			Left:    left,
			Subview: right,
		}
		peripheral.SameUnitNumerical, peripheral.SameUnitDiscrete, peripheral.SameUnitCategorical =
			identifySameUnits(population, peripDF)

		if len(edge.Joined.JoinedTables) > 0 || len(edge.Joined.SelfJoins) > 0 {
			sub, err := Build(peripDF, edge.Joined, tables)
			if err != nil {
				return nil, err
			}
			peripheral.Subtables = sub
		}

		th.Peripherals = append(th.Peripherals, peripheral)
	}

	for _, sj := range p.SelfJoins {
		left, err := population.CreateSubview(sj.JoinKey, sj.TimeStamp, "")
		if err != nil {
			return nil, err
		}
		peripheral := Peripheral{
			Name:    p.Name,
			Lagged:  true,
			Lag:     sj.Lag,
			Left:    left,
			Subview: left, // same backing frame, same subview shape
		}
		peripheral.SameUnitNumerical, peripheral.SameUnitDiscrete, peripheral.SameUnitCategorical =
			identifySameUnits(population, population)
		th.Peripherals = append(th.Peripherals, peripheral)
	}

	return th, nil
}

// identifySameUnits builds the three same-unit descriptor lists for
// one peripheral edge, per spec.md §3's same-units lists: for every
// peripheral column, look first for a population column sharing its
// unit, then for another peripheral column (excluding itself) sharing
// its unit. Both-population pairs never arise (the search always
// starts from a peripheral column); same-column pairs are excluded by
// name; pairs across two different peripheral tables never arise
// because this function only ever sees one edge's own two tables.
func identifySameUnits(population, peripheral *dataframe.DataFrame) (numerical, discrete, categorical map[string]SameUnitPair) {
	numerical = make(map[string]SameUnitPair)
	discrete = make(map[string]SameUnitPair)
	categorical = make(map[string]SameUnitPair)

	for _, name := range peripheral.FloatColumnsWithRole(column.RoleNumerical) {
		if pair, ok := findSameUnitFloat(name, column.RoleNumerical, population, peripheral, aggregation.SameUnitNumerical, aggregation.SameUnitNumerical, aggregation.SameUnitNumericalTS); ok {
			numerical[name] = pair
		}
	}
	for _, name := range peripheral.FloatColumnsWithRole(column.RoleDiscrete) {
		if pair, ok := findSameUnitFloat(name, column.RoleDiscrete, population, peripheral, aggregation.SameUnitDiscrete, aggregation.SameUnitDiscrete, aggregation.SameUnitDiscreteTS); ok {
			discrete[name] = pair
		}
	}
	for _, name := range peripheral.Int32ColumnsWithRole(column.RoleCategorical) {
		if pair, ok := findSameUnitCategorical(name, population, peripheral); ok {
			categorical[name] = pair
		}
	}

	return numerical, discrete, categorical
}

func findSameUnitFloat(name string, role column.Role, population, peripheral *dataframe.DataFrame, populationTag, peripheralTag, tsTag aggregation.DataUsed) (SameUnitPair, bool) {
	col, _ := peripheral.FloatColumn(name)
	unit := col.Unit

	for _, oname := range population.FloatColumnsWithRole(role) {
		ocol, _ := population.FloatColumn(oname)
		if units.Joinable(unit, ocol.Unit) {
			return SameUnitPair{OtherColumn: oname, OtherIsPopulation: true, DataUsed: tagFor(unit, populationTag, tsTag)}, true
		}
	}
	for _, oname := range peripheral.FloatColumnsWithRole(role) {
		if oname == name {
			continue
		}
		ocol, _ := peripheral.FloatColumn(oname)
		if units.Joinable(unit, ocol.Unit) {
			return SameUnitPair{OtherColumn: oname, OtherIsPopulation: false, DataUsed: tagFor(unit, peripheralTag, tsTag)}, true
		}
	}
	return SameUnitPair{}, false
}

func tagFor(unit units.Unit, plain, ts aggregation.DataUsed) aggregation.DataUsed {
	if unit.ComparisonOnly() {
		return ts
	}
	return plain
}

func findSameUnitCategorical(name string, population, peripheral *dataframe.DataFrame) (SameUnitPair, bool) {
	// Pairs with the population column of the same name, whatever its
	// role, if there is one; otherwise with the first other categorical
	// column of the peripheral table. Units are not compared.
	if _, ok := population.Int32Column(name); ok {
		return SameUnitPair{OtherColumn: name, OtherIsPopulation: true, DataUsed: aggregation.SameUnitCategorical}, true
	}
	for _, oname := range peripheral.Int32ColumnsWithRole(column.RoleCategorical) {
		if oname != name {
			return SameUnitPair{OtherColumn: oname, OtherIsPopulation: false, DataUsed: aggregation.SameUnitCategorical}, true
		}
	}
	return SameUnitPair{}, false
}
