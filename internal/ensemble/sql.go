// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ensemble

import (
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/relboost/engine/internal/aggregation"
	"github.com/relboost/engine/internal/tableholder"
	"github.com/relboost/engine/internal/tree"
)

// sqlAggExpr renders a (kind, expr) pair as the SQL aggregate function
// call the aggregation library's Kind names imply, per spec.md §6's
// stable aggregation string grammar.
func sqlAggExpr(k aggregation.Kind, expr string) string {
	switch k {
	case aggregation.Avg, aggregation.AvgTimeBetween:
		return fmt.Sprintf("AVG(%s)", expr)
	case aggregation.Sum:
		return fmt.Sprintf("SUM(%s)", expr)
	case aggregation.Count:
		return fmt.Sprintf("COUNT(%s)", expr)
	case aggregation.CountDistinct:
		return fmt.Sprintf("COUNT(DISTINCT %s)", expr)
	case aggregation.CountMinusCountDistinct:
		return fmt.Sprintf("(COUNT(%s) - COUNT(DISTINCT %s))", expr, expr)
	case aggregation.First:
		return fmt.Sprintf("FIRST(%s)", expr)
	case aggregation.Last:
		return fmt.Sprintf("LAST(%s)", expr)
	case aggregation.Min:
		return fmt.Sprintf("MIN(%s)", expr)
	case aggregation.Max:
		return fmt.Sprintf("MAX(%s)", expr)
	case aggregation.Median:
		return fmt.Sprintf("MEDIAN(%s)", expr)
	case aggregation.Stddev:
		return fmt.Sprintf("STDDEV(%s)", expr)
	case aggregation.Var:
		return fmt.Sprintf("VAR(%s)", expr)
	default:
		return fmt.Sprintf("AVG(%s)", expr)
	}
}

// subfeatureRef names a previously emitted combined subfeature table
// (the full sub-ensemble prediction, per combinedSubfeatureTable) and
// its single value column.
type subfeatureRef struct {
	table  string
	column string
}

// subfeatureJoin pairs one subfeature-bearing peripheral with the join
// alias EmitTreeSQL assigns it for one tree's generated query.
type subfeatureJoin struct {
	alias string
	ref   subfeatureRef
}

// columnExpr resolves a Split's source expression: the learned
// aggregation wrapped around a plain peripheral column reference, a
// same-unit difference `AGG(t2.x - t1.y)`, a time-stamp-difference
// epoch subtraction, or a subfeature join's COALESCE'd value, per
// spec.md §4.7's SQL emission rules. Splits reading population-only
// columns are never grouped rows, so they render unaggregated.
func columnExpr(s *tree.Split, subAliases map[string]subfeatureJoin) string {
	switch s.DataUsed {
	case aggregation.SameUnitNumerical, aggregation.SameUnitNumericalTS,
		aggregation.SameUnitDiscrete, aggregation.SameUnitDiscreteTS, aggregation.SameUnitCategorical:
		return sqlAggExpr(s.Aggregation, fmt.Sprintf("(t2.%s - t1.%s)", s.Column, s.Column))
	case aggregation.TimeStampsDiff, aggregation.TimeStampsWindow:
		return sqlAggExpr(s.Aggregation, fmt.Sprintf("(strftime('%%s', t1.%s) - strftime('%%s', t2.%s))", s.Column, s.Column))
	case aggregation.PopulationNumerical, aggregation.PopulationDiscrete:
		return fmt.Sprintf("t1.%s", s.Column)
	case aggregation.Subfeatures:
		if j, ok := subAliases[s.Peripheral]; ok {
			return sqlAggExpr(s.Aggregation, fmt.Sprintf("COALESCE(%s.%s, 0.0)", j.alias, j.ref.column))
		}
		return sqlAggExpr(s.Aggregation, fmt.Sprintf("t2.%s", s.Column))
	default:
		return sqlAggExpr(s.Aggregation, fmt.Sprintf("t2.%s", s.Column))
	}
}

// splitPredicate renders one internal node's learned split as a SQL
// boolean predicate over the tree-walk path that reaches a given leaf
// (true when the path goes left at this node).
func splitPredicate(s *tree.Split, goLeft bool, subAliases map[string]subfeatureJoin) string {
	expr := columnExpr(s, subAliases)
	switch {
	case s.IsCategorical:
		cats := make([]string, len(s.Categories))
		for i, c := range s.Categories {
			cats[i] = fmt.Sprintf("%d", c)
		}
		in := fmt.Sprintf("%s IN (%s)", expr, strings.Join(cats, ", "))
		if goLeft {
			return in
		}
		return "NOT " + in
	case s.IsNaNDummy:
		if goLeft {
			return fmt.Sprintf("%s IS NULL", expr)
		}
		return fmt.Sprintf("%s IS NOT NULL", expr)
	default:
		if goLeft {
			return fmt.Sprintf("(%s IS NOT NULL AND %s <= %v)", expr, expr, s.Threshold)
		}
		return fmt.Sprintf("(%s IS NULL OR %s > %v)", expr, expr, s.Threshold)
	}
}

// pathStep is one (split, goLeft) decision on a root-to-leaf path.
type pathStep struct {
	split  *tree.Split
	goLeft bool
}

// leafPath is a complete root-to-leaf path: the predicates to reach
// the leaf, plus the leaf's own weight.
type leafPath struct {
	steps  []pathStep
	weight float64
}

func collectLeafPaths(n *tree.Node, prefix []pathStep, out *[]leafPath) {
	if n.IsLeaf() {
		path := append([]pathStep(nil), prefix...)
		*out = append(*out, leafPath{steps: path, weight: n.Weight})
		return
	}
	collectLeafPaths(n.Left, append(prefix, pathStep{n.Split, true}), out)
	collectLeafPaths(n.Right, append(prefix, pathStep{n.Split, false}), out)
}

// collectSubfeaturePeripherals walks n collecting the distinct
// peripheral names that any Subfeatures-tagged split in this tree
// reads from, in first-encountered order.
func collectSubfeaturePeripherals(n *tree.Node, seen map[string]bool, out *[]string) {
	if n == nil || n.IsLeaf() {
		return
	}
	if n.Split.DataUsed == aggregation.Subfeatures && !seen[n.Split.Peripheral] {
		seen[n.Split.Peripheral] = true
		*out = append(*out, n.Split.Peripheral)
	}
	collectSubfeaturePeripherals(n.Left, seen, out)
	collectSubfeaturePeripherals(n.Right, seen, out)
}

// EmitTreeSQL renders one tree's feature as the DROP/CREATE TABLE pair
// spec.md §4.7 describes. num is this feature's 1-based position in
// the script (used for FEATURE_<prefix><num> naming). peripheralTable
// names the join target for non-population-only splits.
// subfeatureTables resolves a peripheral name to the combined
// subfeature table EmitEnsembleSQL already emitted for it, so a
// Subfeatures-tagged split can be joined against its actual prediction
// instead of reading a peripheral column that does not exist.
func EmitTreeSQL(prefix string, num int, ft FeatureTree, peripheralTable string, th *tableholder.TableHolder, subfeatureTables map[string]subfeatureRef) ([]string, error) {
	var paths []leafPath
	collectLeafPaths(ft.Root, nil, &paths)

	var stmts []string
	table := fmt.Sprintf("FEATURE_%s%d", prefix, num)

	drop := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
	stmts = append(stmts, drop)

	var subNames []string
	collectSubfeaturePeripherals(ft.Root, make(map[string]bool), &subNames)
	subAliases := make(map[string]subfeatureJoin, len(subNames))
	for i, name := range subNames {
		if ref, ok := subfeatureTables[name]; ok {
			subAliases[name] = subfeatureJoin{alias: fmt.Sprintf("sub%d", i), ref: ref}
		}
	}

	selectExpr := fmt.Sprintf("(%s) AS feature_%d", caseExpr(paths, subAliases), num)

	builder := sq.Select(selectExpr, "t1.rowid AS rownum").From("population t1")
	if peripheralTable != "" {
		jkLeft, jkRight := joinKeysFor(th, peripheralTable)
		builder = builder.LeftJoin(fmt.Sprintf("%s t2 ON t1.%s = t2.%s", peripheralTable, jkLeft, jkRight))
	}
	for _, name := range subNames {
		j, ok := subAliases[name]
		if !ok {
			continue
		}
		builder = builder.LeftJoin(fmt.Sprintf("%s %s ON t2.rowid = %s.rownum", j.ref.table, j.alias, j.alias))
	}
	builder = builder.GroupBy("t1.rowid")

	selectSQL, _, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s AS %s", table, selectSQL))

	return stmts, nil
}

// caseExpr folds every leaf path into a single SQL CASE expression:
// the first path whose predicates all hold determines the feature
// value, mirroring the tree walk Node.Route performs in memory.
func caseExpr(paths []leafPath, subAliases map[string]subfeatureJoin) string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, path := range paths {
		var preds []string
		for _, step := range path.steps {
			preds = append(preds, splitPredicate(step.split, step.goLeft, subAliases))
		}
		b.WriteString(" WHEN ")
		if len(preds) == 0 {
			b.WriteString("1=1")
		} else {
			b.WriteString(strings.Join(preds, " AND "))
		}
		b.WriteString(" THEN ")
		fmt.Fprintf(&b, "%v", path.weight)
	}
	b.WriteString(" ELSE 0.0 END")
	return b.String()
}

// combinedSubfeatureTable emits the single-column table holding a
// sub-ensemble's full prediction (initial prediction plus every
// tree's shrunk, previously emitted contribution), per spec.md §4.7:
// the value an outer Subfeatures split's COALESCE(...) reads.
func combinedSubfeatureTable(prefix string, sub *Ensemble) ([]string, subfeatureRef) {
	table := fmt.Sprintf("FEATURE_%sCOMBINED", prefix)
	ref := subfeatureRef{table: table, column: "subfeature"}

	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", table)}

	if len(sub.Trees) == 0 {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE TABLE %s AS SELECT rowid AS rownum, %v AS %s FROM population",
			table, sub.InitialPrediction, ref.column))
		return stmts, ref
	}

	terms := []string{fmt.Sprintf("%v", sub.InitialPrediction)}
	first := fmt.Sprintf("FEATURE_%s%d", prefix, 1)
	builder := sq.Select().From(first + " f0")
	for i, t := range sub.Trees {
		alias := fmt.Sprintf("f%d", i)
		if i > 0 {
			tableName := fmt.Sprintf("FEATURE_%s%d", prefix, i+1)
			builder = builder.LeftJoin(fmt.Sprintf("%s %s ON %s.rownum = f0.rownum", tableName, alias, alias))
		}
		terms = append(terms, fmt.Sprintf("(%v * %s.feature_%d)", t.UpdateRate, alias, i+1))
	}
	selectExpr := fmt.Sprintf("(%s) AS %s", strings.Join(terms, " + "), ref.column)
	builder = builder.Columns(selectExpr, "f0.rownum AS rownum")

	selectSQL, _, err := builder.ToSql()
	if err != nil {
		selectSQL = fmt.Sprintf("SELECT %s, f0.rownum AS rownum FROM %s f0", selectExpr, first)
	}
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s AS %s", table, selectSQL))
	return stmts, ref
}

// EmitEnsembleSQL renders every tree's SQL, per spec.md §4.7: each
// sub-ensemble's statements come first (its trees numbered from 1
// under prefix+<peripheral>+"_", then its combined-subfeature table),
// followed by the main features, numbered from 1 under prefix.
func EmitEnsembleSQL(prefix string, ens *Ensemble, th *tableholder.TableHolder) ([]string, error) {
	var stmts []string
	num := 0

	subNames := make([]string, 0, len(ens.SubEnsembles))
	for name := range ens.SubEnsembles {
		subNames = append(subNames, name)
	}
	sort.Strings(subNames)

	subfeatureTables := make(map[string]subfeatureRef, len(subNames))
	for _, name := range subNames {
		sub := ens.SubEnsembles[name]
		subPrefix := prefix + name + "_"
		subStmts, err := EmitEnsembleSQL(subPrefix, sub, lookupSubtables(th, name))
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, subStmts...)

		combinedStmts, ref := combinedSubfeatureTable(subPrefix, sub)
		stmts = append(stmts, combinedStmts...)
		subfeatureTables[name] = ref
	}

	for _, ft := range ens.Trees {
		num++
		peripheralTable := peripheralTableFor(ft.Root)
		treeStmts, err := EmitTreeSQL(prefix, num, ft, peripheralTable, th, subfeatureTables)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, treeStmts...)
	}

	return stmts, nil
}

// joinKeysFor resolves the (population-side, peripheral-side) join
// key column names for one edge, falling back to "join_key" on either
// side when th is nil (as in a unit test that only cares about the
// CASE expression) or the edge cannot be found. A self-join peripheral
// has no Edge, so its own join key is used on both sides.
func joinKeysFor(th *tableholder.TableHolder, peripheralName string) (string, string) {
	if th == nil {
		return "join_key", "join_key"
	}
	for _, p := range th.Peripherals {
		if p.Name == peripheralName {
			if p.Lagged {
				return p.Left.JoinKeyName, p.Left.JoinKeyName
			}
			return p.Edge.JoinKeyLeft, p.Edge.JoinKeyRight
		}
	}
	return "join_key", "join_key"
}

func lookupSubtables(th *tableholder.TableHolder, peripheralName string) *tableholder.TableHolder {
	if th == nil {
		return nil
	}
	for _, p := range th.Peripherals {
		if p.Name == peripheralName {
			return p.Subtables
		}
	}
	return nil
}

// peripheralTableFor returns the name of the first peripheral any
// split in the tree reads from, or "" for a population-only (or
// constant-leaf) tree.
func peripheralTableFor(n *tree.Node) string {
	if n == nil || n.IsLeaf() {
		return ""
	}
	if n.Split.Peripheral != "" {
		return n.Split.Peripheral
	}
	if p := peripheralTableFor(n.Left); p != "" {
		return p
	}
	return peripheralTableFor(n.Right)
}
