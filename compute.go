package main

import (
	"fmt"
	"runtime"
	"sync"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// Pure-Go matrix multiplication for the "cpu" device, with optional
// row-parallel execution.
//
// Every learned layer in the decision model reduces to C = A @ B where A is
// the flattened (batch*seq, in) activation and B the (in, out) weight. For
// the sizes a decision model runs at (hidden 64-512, context 20-100) this is
// small; splitting output rows across goroutines only pays off past
// MinSizeForParallel rows, so the default keeps small calls single-threaded.
//
// Workers write disjoint row ranges of the output and are joined before
// returning, so nothing outlives the call.
// ===========================================================================

// ComputeConfig controls parallelization behavior for matrix multiplication.
type ComputeConfig struct {
	// Parallel enables multi-threaded execution.
	Parallel bool `mapstructure:"parallel"`

	// NumWorkers specifies the number of worker goroutines to use.
	// If 0, defaults to runtime.NumCPU(). Only used when Parallel is true.
	NumWorkers int `mapstructure:"workers"`

	// MinSizeForParallel is the minimum number of output rows before
	// parallelization is used.
	MinSizeForParallel int `mapstructure:"min_size_for_parallel"`
}

// DefaultComputeConfig returns a sensible default configuration.
func DefaultComputeConfig() ComputeConfig {
	return ComputeConfig{
		Parallel:           true,
		NumWorkers:         0,
		MinSizeForParallel: 64,
	}
}

// SingleThreadedConfig returns a configuration for single-threaded execution.
func SingleThreadedConfig() ComputeConfig {
	return ComputeConfig{
		Parallel:           false,
		NumWorkers:         1,
		MinSizeForParallel: 0,
	}
}

// numWorkers returns the actual number of workers to use.
func (c ComputeConfig) numWorkers() int {
	if !c.Parallel {
		return 1
	}
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}
	return runtime.NumCPU()
}

// shouldParallelize determines if an operation with the given number of
// output rows should be split across workers.
func (c ComputeConfig) shouldParallelize(rows int) bool {
	return c.Parallel && c.numWorkers() > 1 && rows >= c.MinSizeForParallel
}

// MatMul performs single-threaded matrix multiplication: C = A @ B.
// A must be (M, K), B must be (K, N), result is (M, N).
func MatMul(a, b *Tensor) (*Tensor, error) {
	return MatMulWithConfig(a, b, SingleThreadedConfig())
}

// MatMulWithConfig performs matrix multiplication with the given compute config.
//
// Parallelization strategy: divide output rows among workers, each worker
// computes a contiguous block of rows.
func MatMulWithConfig(a, b *Tensor, cfg ComputeConfig) (*Tensor, error) {
	m, n, k, err := matmulDims(a, b)
	if err != nil {
		return nil, err
	}

	out := NewTensor(m, n)

	if !cfg.shouldParallelize(m) {
		matmulRows(a, b, out, 0, m, n, k)
		return out, nil
	}

	numWorkers := cfg.numWorkers()
	rowsPerWorker := (m + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < m; start += rowsPerWorker {
		end := min(start+rowsPerWorker, m)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			matmulRows(a, b, out, start, end, n, k)
		}(start, end)
	}
	wg.Wait()

	return out, nil
}

// matmulRows computes output rows [startRow, endRow).
// The i-k-j loop order walks B row-wise, which keeps accesses sequential.
func matmulRows(a, b, out *Tensor, startRow, endRow, n, k int) {
	for i := startRow; i < endRow; i++ {
		outRow := out.data[i*n : (i+1)*n]
		for kk := 0; kk < k; kk++ {
			aik := a.data[i*k+kk]
			if aik == 0 {
				continue
			}
			bRow := b.data[kk*n : (kk+1)*n]
			for j, bkj := range bRow {
				outRow[j] += aik * bkj
			}
		}
	}
}

func matmulDims(a, b *Tensor) (m, n, k int, err error) {
	if len(a.shape) != 2 || len(b.shape) != 2 {
		return 0, 0, 0, fmt.Errorf("%w: matmul requires 2D tensors, got %v and %v", ErrInvalidShape, a.shape, b.shape)
	}
	if a.shape[1] != b.shape[0] {
		return 0, 0, 0, fmt.Errorf("%w: matmul inner dimensions %v @ %v", ErrShapeMismatch, a.shape, b.shape)
	}
	return a.shape[0], b.shape[1], a.shape[1], nil
}
