// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/born-ml/femtogpt/graph"
	internalcpu "github.com/born-ml/femtogpt/internal/backend/cpu"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Config configures the worker split for batched operator rules.
type Config = internalcpu.Config

// Stats counts forward and backward rule invocations.
type Stats = internalcpu.Stats

// Compile-time check that Backend implements graph.Backend.
var _ graph.Backend = (*Backend)(nil)

// DefaultConfig uses every CPU.
func DefaultConfig() Config {
	return internalcpu.DefaultConfig()
}

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New(cpu.DefaultConfig())
//	g := graph.New(backend)
func New(cfg Config) *Backend {
	return internalcpu.New(cfg)
}
