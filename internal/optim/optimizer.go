// Package optim implements optimization algorithms over graph parameters.
//
// This package provides:
//   - Optimizer interface: a stateless update rule applied to parameter triples
//   - AdamW: Adam with decoupled weight decay
//   - SGD: Stochastic Gradient Descent with momentum
//
// Optimizers do not own parameters. The graph binds every parameter as a
// Param (value buffer, gradient buffer, auxiliary state) and the optimizer
// keeps its moments in the auxiliary state, which the graph persists in
// checkpoints together with the step counter.
//
// Example usage:
//
//	opt := optim.NewAdamW(optim.DefaultAdamWConfig())
//
//	for step := range steps {
//	    g.ZeroGrad()
//	    g.Forward()
//	    g.Backward(loss, 0)
//	    g.Optimize(opt, lr)
//	}
package optim

import (
	"errors"
	"fmt"
)

// ErrStateMismatch is returned when auxiliary state does not fit a parameter.
var ErrStateMismatch = errors.New("optimizer state mismatch")

// Optimizer updates parameter values from their gradients.
type Optimizer interface {
	// Name identifies the update rule in checkpoints and logs.
	Name() string

	// Moments returns the number of per-element moment buffers kept per parameter.
	Moments() int

	// Step applies one update to every parameter and advances state.Step.
	Step(state *State, params []Param, lr float32) error
}

// Param binds one parameter's buffers for an optimizer step.
type Param struct {
	Name  string
	Value []float32
	Grad  []float32
	Aux   *ParamState
}

// ParamState is the auxiliary per-parameter optimizer state.
type ParamState struct {
	Moments [][]float32
}

// State is the optimizer state persisted with a checkpoint.
type State struct {
	Step   int          // number of completed optimizer steps
	Params []ParamState // aligned with the graph's parameter order
}

// Clone returns a deep copy of the state.
func (s *State) Clone() State {
	out := State{Step: s.Step, Params: make([]ParamState, len(s.Params))}
	for i, p := range s.Params {
		out.Params[i].Moments = make([][]float32, len(p.Moments))
		for k, m := range p.Moments {
			out.Params[i].Moments[k] = append([]float32(nil), m...)
		}
	}
	return out
}

// moments validates every parameter before touching any, then returns the
// k moment buffers of each, allocating zeros on first use.
func moments(params []Param, k int) ([][][]float32, error) {
	for _, p := range params {
		if err := checkMoments(p, k); err != nil {
			return nil, err
		}
	}
	out := make([][][]float32, len(params))
	for j, p := range params {
		if k == 0 {
			continue
		}
		if len(p.Aux.Moments) == 0 {
			p.Aux.Moments = make([][]float32, k)
			for i := range p.Aux.Moments {
				p.Aux.Moments[i] = make([]float32, len(p.Value))
			}
		}
		out[j] = p.Aux.Moments
	}
	return out, nil
}

// checkMoments validates one parameter without modifying it. An empty
// moment list is allocated later.
func checkMoments(p Param, k int) error {
	if len(p.Grad) != len(p.Value) {
		return fmt.Errorf("param %q: gradient has %d elements, value has %d: %w",
			p.Name, len(p.Grad), len(p.Value), ErrStateMismatch)
	}
	if k == 0 {
		return nil
	}
	if p.Aux == nil {
		return fmt.Errorf("param %q: no auxiliary state bound: %w", p.Name, ErrStateMismatch)
	}
	if len(p.Aux.Moments) == 0 {
		return nil
	}
	if len(p.Aux.Moments) != k {
		return fmt.Errorf("param %q: %d moment buffers, want %d: %w",
			p.Name, len(p.Aux.Moments), k, ErrStateMismatch)
	}
	for i, m := range p.Aux.Moments {
		if len(m) != len(p.Value) {
			return fmt.Errorf("param %q: moment %d has %d elements, want %d: %w",
				p.Name, i, len(m), len(p.Value), ErrStateMismatch)
		}
	}
	return nil
}
