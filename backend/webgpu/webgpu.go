// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the device backend: operator rules compile to WGSL
// compute kernels dispatched through WebGPU.
//
// Devices are available on Windows; elsewhere New returns ErrUnavailable.
//
// Example:
//
//	import (
//	    "github.com/born-ml/femtogpt/backend/cpu"
//	    "github.com/born-ml/femtogpt/backend/webgpu"
//	    "github.com/born-ml/femtogpt/graph"
//	)
//
//	func main() {
//	    var backend graph.Backend = cpu.New(cpu.DefaultConfig())
//	    if gpu, err := webgpu.New(); err == nil {
//	        defer gpu.Release()
//	        backend = gpu
//	    }
//	    g := graph.New(backend)
//	}
package webgpu

import (
	"github.com/born-ml/femtogpt/graph"
	internalwebgpu "github.com/born-ml/femtogpt/internal/backend/webgpu"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements graph.Backend.
var _ graph.Backend = (*Backend)(nil)

// ErrUnavailable is returned when no WebGPU adapter can be opened.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// New creates a new WebGPU backend. Call Release when done to free GPU
// resources.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether a WebGPU adapter can be opened.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
