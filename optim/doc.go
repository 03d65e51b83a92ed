// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training on a graph.
//
// # Overview
//
// This package contains:
//   - AdamW: Adam with decoupled weight decay and bias correction
//   - SGD: Stochastic Gradient Descent with optional momentum
//   - Optimizer interface for custom optimizers
//
// Optimizers are stateless; their step counter and moment buffers live in
// the graph and are saved with every training state.
//
// # Basic Usage
//
//	opt := optim.NewAdamW(optim.DefaultAdamWConfig())
//
//	for step := range steps {
//	    _ = g.ZeroGrad()
//	    _ = g.Forward()
//	    _ = g.Backward(loss, 0)
//	    _ = g.Optimize(opt, lr(step))
//	}
package optim
