// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/comm"
	"github.com/relboost/engine/internal/dataframe"
	"github.com/relboost/engine/internal/ensemble"
	"github.com/relboost/engine/internal/fingerprint"
	"github.com/relboost/engine/internal/placeholder"
	"github.com/relboost/engine/internal/tableholder"
	"github.com/relboost/engine/internal/util"
	"github.com/relboost/engine/pkg/log"
	"github.com/relboost/engine/pkg/schema"
)

// defaultCacheBytes bounds the fingerprint build cache wrapping Fit,
// per spec.md §4.9 (C9). Set -cache-bytes=0 to disable it entirely.
const defaultCacheBytes = 256 << 20

// dataFrameSchema renders df's name, row count and column set as a
// stable string: name, role and unit per column, grouped by role in a
// fixed role order and in insertion order within each role. Two frames with an
// identical schema string are interchangeable for fingerprinting
// purposes even if their row values differ.
func dataFrameSchema(df *dataframe.DataFrame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d", df.Name, df.NRows())
	for _, role := range []column.Role{
		column.RoleCategorical, column.RoleDiscrete, column.RoleNumerical,
		column.RoleJoinKey, column.RoleTarget, column.RoleTimeStamp, column.RoleText, column.RoleUnused,
	} {
		for _, name := range df.Int32ColumnsWithRole(role) {
			c, _ := df.Int32Column(name)
			fmt.Fprintf(&b, "|%s:%s:%s", name, role, c.Unit)
		}
		for _, name := range df.FloatColumnsWithRole(role) {
			c, _ := df.FloatColumn(name)
			fmt.Fprintf(&b, "|%s:%s:%s", name, role, c.Unit)
		}
	}
	return b.String()
}

// peripheralSchemas collects one schema string per peripheral table
// reachable from th, in traversal order; fingerprint.New sorts them,
// so fingerprinting is insensitive to placeholder traversal order.
func peripheralSchemas(th *tableholder.TableHolder) []string {
	var out []string
	for _, p := range th.Peripherals {
		out = append(out, dataFrameSchema(p.Subview.View.DF))
		if p.Subtables != nil {
			out = append(out, peripheralSchemas(p.Subtables)...)
		}
	}
	return out
}

// defaultCommunicator builds the worker pool Fit/Transform reduce
// gradients and route rows across, per spec.md §5's data-parallel
// scheduling model.
func defaultCommunicator() comm.Communicator {
	return comm.NewThreadPoolCommunicator()
}

// fitCached wraps ensemble.Fit in the fingerprint build cache, keyed
// on the population/peripheral schemas, the hyperparameters, the
// target column, and the hyperparameters' own seed. A process that
// fits the same stage twice reuses the first build instead of
// retraining; subfeature ensembles are fitted inside ensemble.Fit and
// do not go through this cache. cacheBytes <= 0 disables the cache and
// calls Fit directly.
func fitCached(cacheBytes int, th *tableholder.TableHolder, targetColumn string, target []float64, hp ensemble.Hyperparams) (*ensemble.Ensemble, error) {
	if cacheBytes <= 0 {
		return ensemble.Fit(th, target, hp, defaultCommunicator())
	}

	hpJSON, err := json.Marshal(hp)
	if err != nil {
		return nil, err
	}
	fp := fingerprint.New("fit:"+targetColumn, dataFrameSchema(th.Population), peripheralSchemas(th), hpJSON, hp.Seed, nil)

	cache := fitCache(cacheBytes)
	artifact, err := cache.Get(fp, func() (any, int, error) {
		ens, err := ensemble.Fit(th, target, hp, defaultCommunicator())
		if err != nil {
			return nil, 0, err
		}
		size := len(ens.Trees)*1024 + 1
		return ens, size, nil
	})
	if err != nil {
		return nil, err
	}
	return artifact.(*ensemble.Ensemble), nil
}

var fitCacheInstance *fingerprint.Cache
var fitCacheSize int

// fitCache lazily builds the process-wide fit cache at the requested
// size, rebuilding it if a later call asks for a different size.
func fitCache(cacheBytes int) *fingerprint.Cache {
	if fitCacheInstance == nil || fitCacheSize != cacheBytes {
		fitCacheInstance = fingerprint.NewCache(cacheBytes)
		fitCacheSize = cacheBytes
	}
	return fitCacheInstance
}

// columnBatch is the wire shape of one `(name, role, unit, type,
// values[])` input column, as spec.md §6's inputs section describes.
// float and int32 columns are mutually exclusive on the wire: Type
// "int32" columns carry pre-encoded int32 codes in IntValues, and
// every other Type carries floats in Values, whatever the role.
type columnBatch struct {
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Unit      string    `json:"unit"`
	Type      string    `json:"type"` // "float" or "int32"
	Values    []float64 `json:"values,omitempty"`
	IntValues []int32   `json:"int_values,omitempty"`
}

// tableInput is one named table's column batches, keyed by table name
// in the population/peripherals JSON file.
type tableInput struct {
	Name    string        `json:"name"`
	NumRows int           `json:"num_rows"`
	Columns []columnBatch `json:"columns"`
}

func parseRole(s string) column.Role {
	switch s {
	case "categorical":
		return column.RoleCategorical
	case "discrete":
		return column.RoleDiscrete
	case "join_key":
		return column.RoleJoinKey
	case "target":
		return column.RoleTarget
	case "time_stamp":
		return column.RoleTimeStamp
	case "text":
		return column.RoleText
	case "unused":
		return column.RoleUnused
	default:
		return column.RoleNumerical
	}
}

func buildDataFrame(in tableInput) (*dataframe.DataFrame, error) {
	df := dataframe.New(in.Name, in.NumRows)
	for _, c := range in.Columns {
		role := parseRole(c.Role)
		switch c.Type {
		case "int32":
			if err := df.AddInt32(column.New[int32](c.Name, role, c.Unit, c.IntValues)); err != nil {
				return nil, err
			}
		default:
			if err := df.AddFloat(column.New[float64](c.Name, role, c.Unit, c.Values)); err != nil {
				return nil, err
			}
		}
	}
	return df, nil
}

func loadTables(paths []string) (map[string]*dataframe.DataFrame, error) {
	out := make(map[string]*dataframe.DataFrame, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var in tableInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		df, err := buildDataFrame(in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out[in.Name] = df
	}
	return out, nil
}

func main() {
	var (
		populationFile    string
		peripheralFiles   multiFlag
		placeholderFile   string
		hyperparamsFile   string
		targetColumn      string
		outDir            string
		sqlOut            string
		transformOnlyFrom string
		cacheBytes        int
	)

	flag.StringVar(&populationFile, "population", "", "Path to the population table's column-batch `json` file")
	flag.Var(&peripheralFiles, "peripheral", "Path to one peripheral table's column-batch `json` file (repeatable)")
	flag.StringVar(&placeholderFile, "placeholder", "", "Path to the join-graph placeholder `json` file")
	flag.StringVar(&hyperparamsFile, "hyperparameters", "", "Path to the hyperparameters `json` file")
	flag.StringVar(&targetColumn, "target", "", "Name of the population column to train against")
	flag.StringVar(&outDir, "out", "", "Directory to save the trained ensemble into (obj.json, categories, join_keys_encoding)")
	flag.StringVar(&sqlOut, "sql-out", "", "File to write the emitted SQL script to")
	flag.StringVar(&transformOnlyFrom, "load", "", "Skip training and transform using an ensemble previously saved to `dir`")
	flag.IntVar(&cacheBytes, "cache-bytes", defaultCacheBytes, "Fingerprint build cache size in bytes for Fit (0 disables it)")
	flag.Parse()

	if populationFile == "" || placeholderFile == "" {
		log.Fatal("relboost: -population and -placeholder are required")
	}
	var seenPeripherals []string
	for _, path := range peripheralFiles {
		if util.Contains(seenPeripherals, path) {
			log.Fatalf("relboost: -peripheral %s given more than once", path)
		}
		seenPeripherals = append(seenPeripherals, path)
	}
	for _, path := range append([]string{populationFile, placeholderFile}, peripheralFiles...) {
		if !util.CheckFileExists(path) {
			log.Fatalf("relboost: %s does not exist", path)
		}
	}

	popIn, err := loadSingleTable(populationFile)
	if err != nil {
		log.Fatalf("relboost: loading population: %v", err)
	}
	log.Debugf("relboost: population file %s is %d bytes", populationFile, util.GetFilesize(populationFile))
	population, err := buildDataFrame(popIn)
	if err != nil {
		log.Fatalf("relboost: building population frame: %v", err)
	}

	tables, err := loadTables(peripheralFiles)
	if err != nil {
		log.Fatalf("relboost: loading peripheral tables: %v", err)
	}

	rawPlaceholder, err := os.ReadFile(placeholderFile)
	if err != nil {
		log.Fatalf("relboost: reading placeholder: %v", err)
	}
	ph, err := placeholder.Parse(rawPlaceholder)
	if err != nil {
		log.Fatalf("relboost: parsing placeholder: %v", err)
	}

	th, err := tableholder.Build(population, ph, func(name string) (*dataframe.DataFrame, bool) {
		df, ok := tables[name]
		return df, ok
	})
	if err != nil {
		log.Fatalf("relboost: building table holder: %v", err)
	}

	if transformOnlyFrom != "" {
		ens, _, _, err := ensemble.Load(transformOnlyFrom)
		if err != nil {
			log.Fatalf("relboost: loading ensemble: %v", err)
		}
		writeTransformAndSQL(th, ens, "", sqlOut)
		return
	}

	if hyperparamsFile == "" || targetColumn == "" {
		log.Fatal("relboost: -hyperparameters and -target are required unless -load is given")
	}

	rawHP, err := os.ReadFile(hyperparamsFile)
	if err != nil {
		log.Fatalf("relboost: reading hyperparameters: %v", err)
	}
	doc, err := schema.ParseHyperparameters(rawHP)
	if err != nil {
		log.Fatalf("relboost: parsing hyperparameters: %v", err)
	}

	targetCol, ok := population.FloatColumn(targetColumn)
	if !ok {
		log.Fatalf("relboost: target column %q not found in population", targetColumn)
	}

	hp := ensemble.FromDoc(doc)
	ens, err := fitCached(cacheBytes, th, targetColumn, targetCol.Values, hp)
	if err != nil {
		log.Fatalf("relboost: training: %v", err)
	}

	log.Infof("relboost: trained %d trees (%d subfeature ensembles)", len(ens.Trees), len(ens.SubEnsembles))

	if outDir != "" {
		if err := ensemble.Save(outDir, ens, column.NewEncoding(), column.NewEncoding()); err != nil {
			log.Fatalf("relboost: saving ensemble: %v", err)
		}
	}

	writeTransformAndSQL(th, ens, outDir, sqlOut)
}

func writeTransformAndSQL(th *tableholder.TableHolder, ens *ensemble.Ensemble, prefix, sqlOut string) {
	pred, err := ensemble.Transform(ens, th, defaultCommunicator())
	if err != nil {
		log.Fatalf("relboost: transform: %v", err)
	}
	log.Infof("relboost: transformed %d rows into %d features", len(pred), len(ens.Trees))

	if sqlOut == "" {
		return
	}
	stmts, err := ensemble.EmitEnsembleSQL(prefix, ens, th)
	if err != nil {
		log.Fatalf("relboost: emitting SQL: %v", err)
	}
	f, err := os.Create(sqlOut)
	if err != nil {
		log.Fatalf("relboost: creating %s: %v", sqlOut, err)
	}
	defer f.Close()
	for _, s := range stmts {
		fmt.Fprintf(f, "%s;\n", s)
	}
}

func loadSingleTable(path string) (tableInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return tableInput{}, err
	}
	var in tableInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return tableInput{}, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

// multiFlag collects a repeatable -peripheral flag's values.
type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
