// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ensemble implements spec.md §4.7 (C7): the boosting loop
// over a TableHolder's candidate set, subfeature sub-ensembles, and
// the serialized ensemble's Transform and SQL-emission surfaces.
package ensemble

import (
	"sort"

	"github.com/relboost/engine/internal/aggregation"
	"github.com/relboost/engine/internal/comm"
	"github.com/relboost/engine/internal/loss"
	"github.com/relboost/engine/internal/match"
	"github.com/relboost/engine/internal/tableholder"
	"github.com/relboost/engine/internal/tree"
	"github.com/relboost/engine/internal/util"
	"github.com/relboost/engine/pkg/log"
	"github.com/relboost/engine/pkg/schema"
)

// Hyperparams is the engine-internal form of schema.HyperparametersDoc.
type Hyperparams struct {
	NumFeatures       int
	MaxDepth          int
	MinNumSamples     int
	Shrinkage         float64
	ShareAggregations float64
	RoundRobin        bool
	LossFunction      string
	Lambda            float64
	Seed              uint64
	NumBins           int
}

// FromDoc converts a validated wire hyperparameters document.
func FromDoc(d schema.HyperparametersDoc) Hyperparams {
	return Hyperparams{
		NumFeatures: d.NumFeatures, MaxDepth: d.MaxDepth, MinNumSamples: d.MinNumSamples,
		Shrinkage: d.Shrinkage, ShareAggregations: d.ShareAggregations, RoundRobin: d.RoundRobin,
		LossFunction: d.LossFunction, Lambda: d.Lambda, Seed: d.Seed, NumBins: d.NumBins,
	}
}

func (hp Hyperparams) treeHyperparams() tree.Hyperparams {
	return tree.Hyperparams{MaxDepth: hp.MaxDepth, MinNumSamples: hp.MinNumSamples, Lambda: hp.Lambda, NumBins: hp.NumBins}
}

// FeatureTree is one trained tree of the ensemble plus its update
// rate, per spec.md §4.7 step 3: the tree's raw prediction is scaled
// by UpdateRate (which already has Shrinkage folded in) before being
// accumulated into yhat_old.
type FeatureTree struct {
	FeatureIndex int
	Root         *tree.Node
	UpdateRate   float64
}

// Ensemble is a trained sequence of trees over one TableHolder level,
// plus any subfeature sub-ensembles trained on nested placeholders,
// per spec.md §4.7's "subfeatures" mechanism.
type Ensemble struct {
	Hyperparams       Hyperparams
	InitialPrediction float64
	Trees             []FeatureTree
	SubEnsembles      map[string]*Ensemble // keyed by peripheral name
}

// Fit trains an ensemble over th's population rows against target,
// per spec.md §4.7's outer boosting loop. comm is consulted for the
// data-parallel steps (per-tree transform and gradient accumulation);
// NoopCommunicator runs everything sequentially in the caller's
// goroutine.
func Fit(th *tableholder.TableHolder, target []float64, hp Hyperparams, c comm.Communicator) (*Ensemble, error) {
	fn, err := loss.Parse(hp.LossFunction, hp.Lambda)
	if err != nil {
		return nil, err
	}

	nrows := th.Population.NRows()
	ens := &Ensemble{Hyperparams: hp, SubEnsembles: make(map[string]*Ensemble)}

	candidates, err := BuildCandidates(th)
	if err != nil {
		return nil, err
	}

	subCandidates, err := fitSubfeatures(th, target, hp, c, ens)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, subCandidates...)

	allRows := make([]int, nrows)
	for i := range allRows {
		allRows[i] = i
	}

	yhatOld := make([]float64, nrows)
	g0, h0 := fn.CalcGradients(target, yhatOld)
	sumG0, sumH0 := reduceGH(c, g0, h0, allRows)
	bias := fn.CalcWeight(sumG0, sumH0, hp.Lambda)
	for i := range yhatOld {
		yhatOld[i] = bias
	}
	ens.InitialPrediction = bias

	numFeatures := hp.NumFeatures
	if numFeatures <= 0 {
		numFeatures = 1
	}
	log.Debugf("ensemble.Fit: %d rows, %d candidates, %d features to train", nrows, len(candidates), numFeatures)

	for t := 0; t < numFeatures; t++ {
		pruned := tree.PruneCandidates(candidates, hp.ShareAggregations, hp.RoundRobin, numFeatures, t, hp.Seed)
		if len(pruned) == 0 {
			pruned = candidates
		}

		g, h := fn.CalcGradients(target, yhatOld)
		calcWeight := func(rows []int) float64 {
			sumG, sumH := reduceGH(c, g, h, rows)
			return fn.CalcWeight(sumG, sumH, hp.Lambda)
		}
		scorerFactory := func() tree.Scorer { return tree.NewScorer(fn, target, yhatOld, hp.Lambda) }

		root := tree.Train(allRows, pruned, scorerFactory, calcWeight, hp.treeHyperparams(), 0)
		treePred := transformRows(root, pruned, allRows, c)

		updateRate := fn.CalcUpdateRate(target, yhatOld, treePred) * hp.Shrinkage
		for i := range yhatOld {
			yhatOld[i] += updateRate * treePred[i]
		}

		ens.Trees = append(ens.Trees, FeatureTree{FeatureIndex: t, Root: root, UpdateRate: updateRate})
		log.Debugf("ensemble.Fit: trained feature %d/%d, update_rate=%v", t+1, numFeatures, updateRate)
	}

	return ens, nil
}

// reduceGH sums gradients/hessians over rows, via comm's partitioned
// Reduce when rows is large enough to be worth splitting, per spec.md
// §4.8's data-parallel sufficient-statistic accumulation. Every
// partial sum (sequential or per-partition) uses Kahan summation, not
// just the final combine. The partition count is fixed rather than
// taken from c.NumWorkers(), so the summation order, and with it the
// result, is bit-identical across worker counts.
func reduceGH(c comm.Communicator, g, h []float64, rows []int) (float64, float64) {
	const workers = 4
	if len(rows) < workers*2 {
		return kahanGather(g, rows), kahanGather(h, rows)
	}

	partialG := make([]float64, workers)
	partialH := make([]float64, workers)
	base, extra := len(rows)/workers, len(rows)%workers
	begin := 0
	tasks := make([]func() error, 0, workers)
	for w := 0; w < workers; w++ {
		size := base
		if w < extra {
			size++
		}
		end := begin + size
		wCopy, b, e := w, begin, end
		tasks = append(tasks, func() error {
			partialG[wCopy] = kahanGather(g, rows[b:e])
			partialH[wCopy] = kahanGather(h, rows[b:e])
			return nil
		})
		begin = end
	}
	_ = c.Barrier(tasks)
	return c.Reduce(partialG), c.Reduce(partialH)
}

// kahanGather gathers values[rows[i]] into a contiguous slice and sums
// it with Kahan compensation, so a partition's own partial sum is as
// accurate as the final cross-partition combine.
func kahanGather(values []float64, rows []int) float64 {
	gathered := make([]float64, len(rows))
	for i, r := range rows {
		gathered[i] = values[r]
	}
	return comm.KahanSum(gathered)
}

// transformRows evaluates root over every row, producing its leaf
// weight per row. When comm reports more than one worker, the row set
// is partitioned and routed concurrently, per spec.md §4.8.
func transformRows(root *tree.Node, candidates []tree.Candidate, rows []int, c comm.Communicator) []float64 {
	valueOf, categoryOf := candidateLookup(candidates)

	out := make([]float64, maxRow(rows)+1)
	workers := c.NumWorkers()
	if workers <= 1 || len(rows) < workers*2 {
		for _, r := range rows {
			out[r] = root.Route(valueOf(r), categoryOf(r)).Weight
		}
		return out
	}

	base, extra := len(rows)/workers, len(rows)%workers
	begin := 0
	tasks := make([]func() error, 0, workers)
	for w := 0; w < workers; w++ {
		size := base
		if w < extra {
			size++
		}
		end := begin + size
		b, e := begin, end
		tasks = append(tasks, func() error {
			for _, r := range rows[b:e] {
				out[r] = root.Route(valueOf(r), categoryOf(r)).Weight
			}
			return nil
		})
		begin = end
	}
	_ = c.Barrier(tasks)
	return out
}

func maxRow(rows []int) int {
	m := 0
	for _, r := range rows {
		m = util.Max(m, r)
	}
	return m
}

// candidateLookup builds the per-row valueOf/categoryOf closures
// tree.Node.Route needs, indexed by row so Fit/Transform never
// allocate a map per row.
func candidateLookup(candidates []tree.Candidate) (func(row int) func(string) float64, func(row int) func(string) int32) {
	byKeyNumerical := make(map[string][]float64, len(candidates))
	byKeyCategorical := make(map[string][]int32, len(candidates))
	for _, c := range candidates {
		if c.Kind == tree.Categorical {
			byKeyCategorical[c.Key] = c.CategoryValues
		} else {
			byKeyNumerical[c.Key] = c.Values
		}
	}
	valueOf := func(row int) func(string) float64 {
		return func(key string) float64 { return byKeyNumerical[key][row] }
	}
	categoryOf := func(row int) func(string) int32 {
		return func(key string) int32 { return byKeyCategorical[key][row] }
	}
	return valueOf, categoryOf
}

// fitSubfeatures trains one sub-ensemble per peripheral edge that
// carries nested joined tables, per spec.md §4.7's "subfeatures"
// mechanism: the outer target is pulled down to the peripheral table's
// own row space (one population row's target assigned to every
// peripheral row it matches; a peripheral row matched by more than one
// population row keeps the first one encountered, deterministically by
// match order), the sub-ensemble is trained against that pulled-down
// target, and its predictions are aggregated back up to the outer
// population rows (AVG over the edge's match set) as a single
// "subfeatures"-tagged candidate. Subfeatures train before the main
// loop and in placeholder order, satisfying the determinism
// requirement without a separate dependency graph since nested
// placeholders form a tree, not a DAG.
func fitSubfeatures(th *tableholder.TableHolder, target []float64, hp Hyperparams, c comm.Communicator, ens *Ensemble) ([]tree.Candidate, error) {
	var extra []tree.Candidate
	nrows := th.Population.NRows()

	for _, p := range th.Peripherals {
		if p.Subtables == nil {
			continue
		}

		var set match.Set
		if p.Lagged {
			set = match.BuildLagged(p.Left, p.Subview, p.Lag)
		} else {
			set = match.Build(p.Left, p.Subview)
		}

		subNRows := p.Subtables.Population.NRows()
		subTarget := make([]float64, subNRows)
		has := make([]bool, subNRows)
		for _, m := range set.Matches {
			if !has[m.PeripheralRow] {
				subTarget[m.PeripheralRow] = target[m.PopulationRow]
				has[m.PeripheralRow] = true
			}
		}

		sub, err := Fit(p.Subtables, subTarget, hp, c)
		if err != nil {
			return nil, err
		}
		ens.SubEnsembles[p.Name] = sub

		subCandidates, err := BuildCandidates(p.Subtables)
		if err != nil {
			return nil, err
		}
		subPred := transformAll(sub, subCandidates, subNRows, c)

		g := groupByPopulationRow(set)
		f := aggregation.PeripheralColumn(subPred)
		values := buildPerRowValues(nrows, g, f, nil, aggregation.Avg)

		extra = append(extra, tree.Candidate{
			DataUsed: aggregation.Subfeatures, Aggregation: aggregation.Avg, Column: p.Name,
			Key:         candidateKey(p.Name, aggregation.Subfeatures, aggregation.Avg, p.Name),
			ColumnIndex: -1, Peripheral: p.Name,
			Kind: tree.Numerical, Values: values,
		})
	}

	sort.SliceStable(extra, func(i, j int) bool { return extra[i].Peripheral < extra[j].Peripheral })
	return extra, nil
}

// Transform returns an ensemble's predictions over every row of th's
// population, folding in the initial prediction and every tree's
// shrunk update.
func Transform(ens *Ensemble, th *tableholder.TableHolder, c comm.Communicator) ([]float64, error) {
	candidates, err := BuildCandidates(th)
	if err != nil {
		return nil, err
	}
	subCandidates, err := transformSubfeatures(ens, th, c)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, subCandidates...)

	nrows := th.Population.NRows()
	out := make([]float64, nrows)
	for i := range out {
		out[i] = ens.InitialPrediction
	}
	for _, ft := range ens.Trees {
		rows := make([]int, nrows)
		for i := range rows {
			rows[i] = i
		}
		pred := transformRows(ft.Root, candidates, rows, c)
		for i := range out {
			out[i] += ft.UpdateRate * pred[i]
		}
	}
	return out, nil
}

func transformSubfeatures(ens *Ensemble, th *tableholder.TableHolder, c comm.Communicator) ([]tree.Candidate, error) {
	var extra []tree.Candidate
	nrows := th.Population.NRows()

	for _, p := range th.Peripherals {
		sub, ok := ens.SubEnsembles[p.Name]
		if !ok || p.Subtables == nil {
			continue
		}
		subPred, err := Transform(sub, p.Subtables, c)
		if err != nil {
			return nil, err
		}

		var set match.Set
		if p.Lagged {
			set = match.BuildLagged(p.Left, p.Subview, p.Lag)
		} else {
			set = match.Build(p.Left, p.Subview)
		}
		g := groupByPopulationRow(set)
		f := aggregation.PeripheralColumn(subPred)
		values := buildPerRowValues(nrows, g, f, nil, aggregation.Avg)

		extra = append(extra, tree.Candidate{
			DataUsed: aggregation.Subfeatures, Aggregation: aggregation.Avg, Column: p.Name,
			Key:         candidateKey(p.Name, aggregation.Subfeatures, aggregation.Avg, p.Name),
			ColumnIndex: -1, Peripheral: p.Name,
			Kind: tree.Numerical, Values: values,
		})
	}

	sort.SliceStable(extra, func(i, j int) bool { return extra[i].Peripheral < extra[j].Peripheral })
	return extra, nil
}

func transformAll(ens *Ensemble, candidates []tree.Candidate, nrows int, c comm.Communicator) []float64 {
	out := make([]float64, nrows)
	for i := range out {
		out[i] = ens.InitialPrediction
	}
	rows := make([]int, nrows)
	for i := range rows {
		rows[i] = i
	}
	for _, ft := range ens.Trees {
		pred := transformRows(ft.Root, candidates, rows, c)
		for i := range out {
			out[i] += ft.UpdateRate * pred[i]
		}
	}
	return out
}

// FeatureImportances sums each tree's absolute update-scaled leaf
// contribution to every column it split on, normalized to sum to 1.
func FeatureImportances(ens *Ensemble) map[string]float64 {
	raw := make(map[string]float64)
	var total float64
	var walk func(n *tree.Node, scale float64)
	walk = func(n *tree.Node, scale float64) {
		if n == nil || n.IsLeaf() {
			return
		}
		w := scale * absf(n.Left.Weight-n.Right.Weight)
		raw[n.Split.Column] += w
		total += w
		walk(n.Left, scale)
		walk(n.Right, scale)
	}
	for _, ft := range ens.Trees {
		walk(ft.Root, absf(ft.UpdateRate))
	}
	if total == 0 {
		return raw
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		out[k] = v / total
	}
	return out
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
