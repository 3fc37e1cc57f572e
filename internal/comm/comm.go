// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package comm implements spec.md §4.8's (C8) Communicator
// abstraction: the fan-out/barrier/reduce primitives the split search
// uses to accumulate sufficient statistics across worker goroutines,
// generalized from the teacher's fixed worker-pool-plus-channel
// pattern (internal/repository/jobStartWorker.go) into a bounded,
// errgroup-driven pool.
package comm

import (
	"context"
	"runtime"

	"github.com/relboost/engine/internal/dataframe"
	"golang.org/x/sync/errgroup"
)

// Communicator is the concurrency primitive every parallel stage of
// the engine (match building, binning, sufficient-statistic
// accumulation) is written against, so it runs identically whether
// backed by a worker pool or a single goroutine.
type Communicator interface {
	// NumWorkers returns the degree of parallelism this communicator
	// will actually use.
	NumWorkers() int

	// Barrier runs every task concurrently (bounded by NumWorkers) and
	// blocks until all have returned, per spec.md §4.8. The first
	// error from any task is returned; the others still run to
	// completion.
	Barrier(tasks []func() error) error

	// ScatterDataFrame splits v's rows into up to NumWorkers
	// contiguous partitions, each an independent View.Restrict over
	// the same backing DataFrame (no cell copying, per spec.md §9).
	ScatterDataFrame(v dataframe.View) []dataframe.View

	// Reduce sums one partial float64 per worker with compensated
	// (Kahan) summation, since a naive reduction over many workers'
	// partial sufficient statistics is exactly where floating-point
	// error accumulates (spec.md §1).
	Reduce(partials []float64) float64

	// ReduceVec elementwise-reduces equal-length partial vectors, one
	// per worker (e.g. per-category sufficient-statistic vectors).
	ReduceVec(partials [][]float64) []float64
}

// KahanSum adds values with Neumaier compensated summation, canceling
// most of the rounding error a plain running sum accumulates over a
// long series of floating-point additions.
func KahanSum(values []float64) float64 {
	sum, c := 0.0, 0.0
	for _, v := range values {
		t := sum + v
		if abs(sum) >= abs(v) {
			c += (sum - t) + v
		} else {
			c += (v - t) + sum
		}
		sum = t
	}
	return sum + c
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// ThreadPoolCommunicator runs Barrier's tasks across a fixed pool
// sized max(2, NumCPU/2), mirroring the teacher's single
// background-worker pattern but generalized to N workers via
// golang.org/x/sync/errgroup with a bounded concurrency limit.
type ThreadPoolCommunicator struct {
	workers int
}

// NewThreadPoolCommunicator returns a ThreadPoolCommunicator sized
// max(2, runtime.NumCPU()/2), the teacher's convention for leaving
// headroom for the request-serving goroutines sharing the process.
func NewThreadPoolCommunicator() *ThreadPoolCommunicator {
	n := runtime.NumCPU() / 2
	if n < 2 {
		n = 2
	}
	return &ThreadPoolCommunicator{workers: n}
}

func (c *ThreadPoolCommunicator) NumWorkers() int { return c.workers }

func (c *ThreadPoolCommunicator) Barrier(tasks []func() error) error {
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(c.workers)
	for _, task := range tasks {
		task := task
		g.Go(task)
	}
	return g.Wait()
}

func (c *ThreadPoolCommunicator) ScatterDataFrame(v dataframe.View) []dataframe.View {
	return scatter(v, c.workers)
}

func (c *ThreadPoolCommunicator) Reduce(partials []float64) float64 {
	return KahanSum(partials)
}

func (c *ThreadPoolCommunicator) ReduceVec(partials [][]float64) []float64 {
	return reduceVec(partials)
}

// NoopCommunicator runs every Barrier task sequentially in the
// caller's goroutine; used for single-threaded test fixtures and for
// deterministic reproduction of a reported discrepancy (spec.md §8
// scenario 6 relies on running the same fit under both communicators
// and observing identical results).
type NoopCommunicator struct{}

func (NoopCommunicator) NumWorkers() int { return 1 }

func (NoopCommunicator) Barrier(tasks []func() error) error {
	var first error
	for _, task := range tasks {
		if err := task(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (NoopCommunicator) ScatterDataFrame(v dataframe.View) []dataframe.View {
	return scatter(v, 1)
}

func (NoopCommunicator) Reduce(partials []float64) float64 {
	return KahanSum(partials)
}

func (NoopCommunicator) ReduceVec(partials [][]float64) []float64 {
	return reduceVec(partials)
}

func scatter(v dataframe.View, workers int) []dataframe.View {
	n := v.Len()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	out := make([]dataframe.View, 0, workers)
	base, extra := n/workers, n%workers
	positions := make([]int, n)
	for i := range positions {
		positions[i] = i
	}
	begin := 0
	for w := 0; w < workers; w++ {
		size := base
		if w < extra {
			size++
		}
		end := begin + size
		if end > begin {
			out = append(out, v.Restrict(positions[begin:end]))
		}
		begin = end
	}
	return out
}

func reduceVec(partials [][]float64) []float64 {
	if len(partials) == 0 {
		return nil
	}
	out := make([]float64, len(partials[0]))
	for i := range out {
		col := make([]float64, len(partials))
		for w, p := range partials {
			col[w] = p[i]
		}
		out[i] = KahanSum(col)
	}
	return out
}
