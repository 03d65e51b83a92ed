// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import "github.com/born-ml/femtogpt/internal/optim"

// Optimizer updates parameters from their gradients.
type Optimizer = optim.Optimizer

// Param is a parameter exposed to an optimizer step.
type Param = optim.Param

// State is the optimizer state kept by a graph: the step counter and the
// moment buffers of every parameter.
type State = optim.State

// ParamState holds the moment buffers of one parameter.
type ParamState = optim.ParamState

// ErrStateMismatch is returned when moment buffers do not fit a parameter.
var ErrStateMismatch = optim.ErrStateMismatch

// AdamW

// AdamW represents the AdamW optimizer.
type AdamW = optim.AdamW

// AdamWConfig contains configuration for the AdamW optimizer.
type AdamWConfig = optim.AdamWConfig

// DefaultAdamWConfig returns beta1 0.9, beta2 0.999, eps 1e-8 and weight
// decay 0.01.
func DefaultAdamWConfig() AdamWConfig {
	return optim.DefaultAdamWConfig()
}

// NewAdamW creates a new AdamW optimizer.
//
// Example:
//
//	cfg := optim.DefaultAdamWConfig()
//	cfg.WeightDecay = 0
//	opt := optim.NewAdamW(cfg)
func NewAdamW(config AdamWConfig) *AdamW {
	return optim.NewAdamW(config)
}

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for the SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	opt, err := optim.NewSGD(optim.SGDConfig{Momentum: 0.9})
func NewSGD(config SGDConfig) (*SGD, error) {
	return optim.NewSGD(config)
}
