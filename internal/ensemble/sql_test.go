// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ensemble

import (
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/relboost/engine/internal/aggregation"
	"github.com/relboost/engine/internal/tree"
)

// constantTree is a single-leaf tree, the simplest shape EmitTreeSQL
// can render: its CASE expression is a single `WHEN 1=1` branch
// yielding the leaf weight.
func constantTree(weight float64) FeatureTree {
	return FeatureTree{FeatureIndex: 0, Root: &tree.Node{Weight: weight}, UpdateRate: 1.0}
}

func TestEmitTreeSQLConstantLeaf(t *testing.T) {
	stmts, err := EmitTreeSQL("t", 1, constantTree(3.5), "", nil, nil)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "DROP TABLE IF EXISTS FEATURE_t1")
	require.Contains(t, stmts[1], "CREATE TABLE FEATURE_t1")
	require.Contains(t, stmts[1], "feature_1")
}

func TestEmitTreeSQLExecutesAgainstSQLite(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE population (rowid INTEGER PRIMARY KEY, join_key INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO population (rowid, join_key) VALUES (1, 1), (2, 2), (3, 3)`)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE orders (rowid INTEGER PRIMARY KEY, join_key INTEGER, amount REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders (join_key, amount) VALUES (1, 10), (2, 100), (3, 5)`)
	require.NoError(t, err)

	split := &tree.Split{
		DataUsed: aggregation.PeripheralNumerical, Aggregation: aggregation.Avg,
		Column: "amount", Key: "k", Threshold: 50, Peripheral: "orders",
	}
	root := &tree.Node{
		Split: split,
		Left:  &tree.Node{Weight: 1.0},
		Right: &tree.Node{Weight: 0.0},
	}

	stmts, err := EmitTreeSQL("x", 1, FeatureTree{Root: root, UpdateRate: 1.0}, "orders", nil, nil)
	require.NoError(t, err)
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoErrorf(t, err, "statement: %s", s)
	}

	rows, err := db.Query("SELECT feature_1, rownum FROM FEATURE_x1 ORDER BY rownum")
	require.NoError(t, err)
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var feature float64
		var rownum int
		require.NoError(t, rows.Scan(&feature, &rownum))
		values = append(values, feature)
	}
	require.Len(t, values, 3)
}

func TestEmitTreeSQLRendersSubfeatureJoin(t *testing.T) {
	split := &tree.Split{
		DataUsed: aggregation.Subfeatures, Aggregation: aggregation.Avg,
		Column: "orders", Key: "k", Threshold: 0.5, Peripheral: "orders",
	}
	root := &tree.Node{
		Split: split,
		Left:  &tree.Node{Weight: 1.0},
		Right: &tree.Node{Weight: 0.0},
	}

	subfeatureTables := map[string]subfeatureRef{
		"orders": {table: "FEATURE_orders_COMBINED", column: "subfeature"},
	}

	stmts, err := EmitTreeSQL("x", 1, FeatureTree{Root: root, UpdateRate: 1.0}, "orders", nil, subfeatureTables)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[1], "LEFT JOIN FEATURE_orders_COMBINED sub0 ON t2.rowid = sub0.rownum")
	require.Contains(t, stmts[1], "COALESCE(sub0.subfeature, 0.0)")
}
