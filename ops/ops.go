// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ops provides the operators that can be added to a graph.
//
// Every operator carries its shape rule, forward and backward rules for the
// CPU backend, and WGSL kernels for the WebGPU backend.
//
// Example:
//
//	h, _ := g.Call(ops.NewMatMul(), x, w)
//	h, _ = g.Call(ops.NewGelu(), h)
package ops

import (
	"math/rand"

	"github.com/born-ml/femtogpt/internal/ops"
)

// Operator is a differentiable graph operator.
type Operator = ops.Operator

// NewAdd returns elementwise addition with suffix broadcasting of the
// second input.
func NewAdd() Operator { return ops.NewAdd() }

// NewMul returns elementwise multiplication with suffix broadcasting of the
// second input.
func NewMul() Operator { return ops.NewMul() }

// NewCoeff returns multiplication by a constant.
func NewCoeff(c float32) Operator { return ops.NewCoeff(c) }

// NewMatMul returns the batched matrix product.
func NewMatMul() Operator { return ops.NewMatMul() }

// NewTranspose swaps the last two dimensions.
func NewTranspose() Operator { return ops.NewTranspose() }

// NewTrilMask masks entries above the diagonal with -inf.
func NewTrilMask() Operator { return ops.NewTrilMask() }

// NewSoftmax returns softmax over the last dimension.
func NewSoftmax() Operator { return ops.NewSoftmax() }

// NewLayerNorm normalises the last dimension.
func NewLayerNorm() Operator { return ops.NewLayerNorm() }

// NewGelu returns the GELU activation.
func NewGelu() Operator { return ops.NewGelu() }

// NewCat concatenates inputs along the last dimension.
func NewCat() Operator { return ops.NewCat() }

// NewEmbedding looks up rows of a table (second input) by index (first input).
func NewEmbedding() Operator { return ops.NewEmbedding() }

// NewCrossEntropy returns the mean cross-entropy of logits against integer
// targets.
func NewCrossEntropy() Operator { return ops.NewCrossEntropy() }

// NewDropout returns inverted dropout drawing masks from rng.
func NewDropout(rate float32, rng *rand.Rand) (Operator, error) {
	op, err := ops.NewDropout(rate, rng)
	if err != nil {
		return nil, err
	}
	return op, nil
}
