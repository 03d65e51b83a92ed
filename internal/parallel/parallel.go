// Package parallel splits index ranges across goroutines for the direct
// backend. Every index is processed exactly once by exactly one worker, so
// callers that write disjoint outputs per index get results that do not
// depend on the worker count.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum indices per goroutine.
}

// DefaultConfig returns defaults based on CPU count. Work items are whole
// batch elements (a matrix product, a softmax row block), so chunks stay small.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// Sequential returns a config that never spawns goroutines.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

// Validate checks the config for use by For.
func (c Config) Validate() error {
	if c.Enabled && c.NumWorkers < 1 {
		return fmt.Errorf("parallel: NumWorkers must be >= 1, got %d", c.NumWorkers)
	}
	if c.MinChunkSize < 0 {
		return fmt.Errorf("parallel: MinChunkSize must be >= 0, got %d", c.MinChunkSize)
	}
	return nil
}

// For executes f(i) for i in [0, n).
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	Range(n, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	}, cfg)
}

// Range partitions [0, n) into contiguous chunks and calls f once per chunk.
func Range(n int, f func(start, end int), cfg Config) {
	if n <= 0 {
		return
	}
	workers := max(cfg.NumWorkers, 1)
	minChunk := max(cfg.MinChunkSize, 1)
	if !cfg.Enabled || workers == 1 || n < 2*minChunk {
		f(0, n)
		return
	}

	chunkSize := max((n+workers-1)/workers, minChunk)

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}
