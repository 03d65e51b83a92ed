// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the shapes and handles of graph tensors.
//
// # Overview
//
// Tensors are float32 buffers owned by a graph. Callers never hold a tensor
// directly; they hold its ID and move data through the graph:
//
//	g := graph.New(cpu.New(cpu.DefaultConfig()))
//	x, _ := g.Alloc(tensor.Shape{2, 3})
//	_ = g.Load(x, []float32{1, 2, 3, 4, 5, 6})
//	data, _ := g.Fetch(x)
//
// Shapes are row-major. The last dimension is the contiguous one, and most
// operators treat leading dimensions as batch dimensions.
package tensor
