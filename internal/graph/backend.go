package graph

import "github.com/born-ml/femtogpt/internal/tensor"

// Backend executes operator rules for a graph.
//
// The graph owns host buffers for every tensor. A direct backend computes on
// them in place; a device backend mirrors them in device memory, and the
// graph tells it when host contents changed (Upload, SeedGrad) and when host
// contents are needed (Download).
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Register is called once for every tensor the graph allocates.
	Register(t *tensor.Tensor) error

	// Compile prepares a node for execution. It is called once, when the
	// node is added to the graph, before its output is registered. A node
	// rejected here leaves the graph unchanged.
	Compile(n *Node) error

	// Forward evaluates a node, writing its output value.
	Forward(n *Node) error

	// Backward runs a node's backward rule, accumulating into input gradients.
	Backward(n *Node) error

	// Upload publishes the host value buffer of t.
	Upload(t *tensor.Tensor) error

	// Download refreshes the host value (or gradient) buffer of t.
	// It blocks until pending work writing t has completed.
	Download(t *tensor.Tensor, grad bool) error

	// ZeroGrad clears the gradient buffers of ts. Host buffers are already zero.
	ZeroGrad(ts []*tensor.Tensor) error

	// SeedGrad publishes the host gradient buffer of t.
	SeedGrad(t *tensor.Tensor) error

	// Sync blocks until all submitted work has completed.
	Sync() error

	// Release frees backend resources.
	Release()
}
