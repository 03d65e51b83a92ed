// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the direct backend: operator rules run in process on
// the graph's host buffers.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Matrix products on gonum BLAS
//   - Batch elements spread over goroutines
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/femtogpt/backend/cpu"
//	    "github.com/born-ml/femtogpt/graph"
//	)
//
//	func main() {
//	    g := graph.New(cpu.New(cpu.DefaultConfig()))
//	    // allocate, call operators, Forward, Backward...
//	}
//
// Host buffers are authoritative, so Upload, Download and Sync are no-ops.
package cpu
