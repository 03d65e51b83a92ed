// Package ops defines the operator registry of the computation graph.
//
// Each operator kind lives in its own file and provides, side by side:
//   - a shape rule (OutputShape), rejecting incompatible inputs;
//   - a host forward rule and a host backward rule for the direct backend;
//   - a WGSL codegen rule (Kernels) for the device backend.
//
// Backward rules never overwrite gradients: they accumulate (+=) into the
// gradient buffers of their inputs, reading the gradient of their output.
//
// Supported operators:
//   - Add, Mul: element-wise, with suffix broadcasting of the second operand
//   - Coeff: multiplication by a constant
//   - MatMul: batched matrix product, rhs may be a shared 2-D matrix
//   - Transpose: swap of the last two dimensions
//   - TrilMask: causal (lower-triangular) mask
//   - Softmax, LayerNorm: row-wise over the last dimension
//   - Gelu: tanh-approximated GELU
//   - Dropout: host-sampled mask, identity copy at rate 0
//   - Cat: concatenation along the last dimension
//   - Embedding: table lookup by token index
//   - CrossEntropy: mean cross-entropy loss of logits against target indices
package ops

import (
	"errors"
	"fmt"

	"github.com/born-ml/femtogpt/internal/parallel"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// ErrShapeMismatch is returned by shape rules for incompatible inputs.
var ErrShapeMismatch = errors.New("shape mismatch")

// Operator is a node kind of the computation graph.
type Operator interface {
	// Name identifies the operator kind in logs and errors.
	Name() string

	// OutputShape computes the output shape from the input shapes.
	OutputShape(ins []tensor.Shape) (tensor.Shape, error)

	// Forward writes the output value from the input values.
	Forward(ins []*tensor.Tensor, out *tensor.Tensor)

	// Backward accumulates input gradients from the output gradient.
	Backward(ins []*tensor.Tensor, out *tensor.Tensor)

	// Kernels generates the device kernel group for an instance whose
	// output tensor is out and whose inputs have the given shapes.
	Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup
}

// Stochastic operators draw fresh randomness before each training-mode
// evaluation. The graph re-evaluates them on every training forward pass.
type Stochastic interface {
	Resample(ins []*tensor.Tensor, training bool)
}

// SharedSource operators provide host contents for their shared buffers.
// Shared buffers of operators that do not implement it are device scratch.
type SharedSource interface {
	SharedData(i int) []float32
}

// Parallel operators split their host rules across workers.
type Parallel interface {
	SetParallel(cfg parallel.Config)
}

// parallelism is embedded by operators whose host rules use parallel.For.
type parallelism struct {
	par parallel.Config
}

// SetParallel sets the worker configuration for the host rules.
func (p *parallelism) SetParallel(cfg parallel.Config) {
	p.par = cfg
}

func expectInputs(name string, ins []tensor.Shape, n int) error {
	if len(ins) != n {
		return fmt.Errorf("%s: expected %d inputs, got %d: %w", name, n, len(ins), ErrShapeMismatch)
	}
	return nil
}

// suffixBroadcast is the shape rule shared by Add and Mul: b must equal a or
// match its trailing dimensions.
func suffixBroadcast(name string, ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(name, ins, 2); err != nil {
		return nil, err
	}
	a, b := ins[0], ins[1]
	if !a.HasSuffix(b) {
		return nil, fmt.Errorf("%s: %v cannot broadcast onto %v: %w", name, b, a, ErrShapeMismatch)
	}
	return a.Clone(), nil
}
