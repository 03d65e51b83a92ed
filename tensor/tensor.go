// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/femtogpt/internal/tensor"

// Shape is a row-major tensor shape.
//
// Example:
//
//	s := tensor.Shape{32, 64, 128}
//	s.NumElements() // 262144
//	s.Last()        // 128
type Shape = tensor.Shape

// ID identifies a tensor within its graph.
type ID = tensor.ID

// Tensor is a graph-owned value buffer with its gradient buffer.
// Backends receive tensors; graph users work with IDs.
type Tensor = tensor.Tensor
