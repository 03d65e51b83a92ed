// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph provides the static computation graph with reverse-mode
// differentiation.
//
// A graph is built once: tensors are allocated, parameters are named, and
// operators are added in order. Forward, Backward and Optimize then run the
// same nodes every step on the chosen backend.
//
// Example:
//
//	import (
//	    "github.com/born-ml/femtogpt/backend/cpu"
//	    "github.com/born-ml/femtogpt/graph"
//	    "github.com/born-ml/femtogpt/ops"
//	    "github.com/born-ml/femtogpt/optim"
//	    "github.com/born-ml/femtogpt/tensor"
//	)
//
//	func main() {
//	    g := graph.New(cpu.New(cpu.DefaultConfig()))
//	    x, _ := g.Alloc(tensor.Shape{4, 8})
//	    w, _ := g.AllocParam("w", tensor.Shape{8, 2})
//	    y, _ := g.Alloc(tensor.Shape{4})
//	    logits, _ := g.Call(ops.NewMatMul(), x, w)
//	    loss, _ := g.Call(ops.NewCrossEntropy(), logits, y)
//
//	    _ = g.ZeroGrad()
//	    _ = g.Forward()
//	    _ = g.Backward(loss, 0)
//	    _ = g.Optimize(optim.NewAdamW(optim.DefaultAdamWConfig()), 1e-3)
//	}
package graph

import "github.com/born-ml/femtogpt/internal/graph"

// Graph is a static computation graph bound to one backend.
type Graph = graph.Graph

// Backend executes operator rules for a graph.
type Backend = graph.Backend

// Node is an operator applied to input tensors.
type Node = graph.Node

// TrainingState is the persisted snapshot of a graph's parameters and
// optimizer state.
type TrainingState = graph.TrainingState

// NamedTensor is a parameter snapshot.
type NamedTensor = graph.NamedTensor

// DeviceError reports a failed device operation.
type DeviceError = graph.DeviceError

// Errors returned by graph construction, execution and state loading.
var (
	ErrShapeMismatch      = graph.ErrShapeMismatch
	ErrUnknownTensor      = graph.ErrUnknownTensor
	ErrNotScalar          = graph.ErrNotScalar
	ErrCheckpointMismatch = graph.ErrCheckpointMismatch
	ErrDevice             = graph.ErrDevice
)

// New creates an empty graph on backend.
func New(backend Backend) *Graph {
	return graph.New(backend)
}
