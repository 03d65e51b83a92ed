// Package cpu implements the direct backend: operator rules run in process
// over the graph's host buffers, with matrix products on gonum BLAS and
// batch elements spread over goroutines.
package cpu

import (
	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/ops"
	"github.com/born-ml/femtogpt/internal/parallel"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// Config configures the CPU backend.
type Config struct {
	Parallel parallel.Config // worker split for batched operator rules
}

// DefaultConfig uses every CPU.
func DefaultConfig() Config {
	return Config{Parallel: parallel.DefaultConfig()}
}

// Stats counts rule invocations.
type Stats struct {
	Forward  int
	Backward int
}

// CPUBackend executes operator rules on host buffers. Host buffers are
// authoritative, so uploads, downloads and syncs are no-ops.
type CPUBackend struct {
	cfg   Config
	stats Stats
}

var _ graph.Backend = (*CPUBackend)(nil)

// New creates a new CPU backend.
func New(cfg Config) *CPUBackend {
	return &CPUBackend{cfg: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Stats returns the number of forward and backward rule invocations so far.
func (cpu *CPUBackend) Stats() Stats {
	return cpu.stats
}

// Register is a no-op: the graph owns host buffers.
func (cpu *CPUBackend) Register(*tensor.Tensor) error { return nil }

// Compile hands the worker configuration to operators that split their rules.
func (cpu *CPUBackend) Compile(n *graph.Node) error {
	if p, ok := n.Op.(ops.Parallel); ok {
		p.SetParallel(cpu.cfg.Parallel)
	}
	return nil
}

// Forward runs the node's forward rule.
func (cpu *CPUBackend) Forward(n *graph.Node) error {
	n.Op.Forward(n.Inputs, n.Output)
	cpu.stats.Forward++
	return nil
}

// Backward runs the node's backward rule.
func (cpu *CPUBackend) Backward(n *graph.Node) error {
	n.Op.Backward(n.Inputs, n.Output)
	cpu.stats.Backward++
	return nil
}

// Upload is a no-op.
func (cpu *CPUBackend) Upload(*tensor.Tensor) error { return nil }

// Download is a no-op.
func (cpu *CPUBackend) Download(*tensor.Tensor, bool) error { return nil }

// ZeroGrad is a no-op: the graph has cleared host gradients.
func (cpu *CPUBackend) ZeroGrad([]*tensor.Tensor) error { return nil }

// SeedGrad is a no-op.
func (cpu *CPUBackend) SeedGrad(*tensor.Tensor) error { return nil }

// Sync is a no-op: rules complete before returning.
func (cpu *CPUBackend) Sync() error { return nil }

// Release is a no-op.
func (cpu *CPUBackend) Release() {}
