package graph

import (
	"fmt"

	"github.com/born-ml/femtogpt/internal/optim"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// NamedTensor is a parameter snapshot.
type NamedTensor struct {
	Name  string
	Shape tensor.Shape
	Data  []float32
}

// TrainingState is the persisted snapshot of a graph: every parameter value
// in creation order plus the optimizer state (step counter and moments).
type TrainingState struct {
	Params    []NamedTensor
	Optimizer optim.State
}

// TrainingState copies parameters and optimizer state out of the graph,
// after waiting for pending device work.
func (g *Graph) TrainingState() (*TrainingState, error) {
	if err := g.backend.Sync(); err != nil {
		return nil, err
	}
	ts := &TrainingState{
		Params:    make([]NamedTensor, len(g.params)),
		Optimizer: g.optState.Clone(),
	}
	for i, p := range g.params {
		if err := g.backend.Download(p.t, false); err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", p.name, err)
		}
		ts.Params[i] = NamedTensor{
			Name:  p.name,
			Shape: p.t.Shape().Clone(),
			Data:  append([]float32(nil), p.t.Data()...),
		}
	}
	return ts, nil
}

// SetTrainingState loads parameters and optimizer state into the graph.
//
// In strict mode the state must list exactly the graph's parameters, with
// the same names, shapes and order. Otherwise parameters are matched by name
// and loaded where shapes agree; the rest keep their values, and optimizer
// moments are restored only for loaded parameters.
//
// The state is validated in full before anything is written.
func (g *Graph) SetTrainingState(ts *TrainingState, strict bool) error {
	plan, err := g.planLoad(ts, strict)
	if err != nil {
		return err
	}

	for i, src := range plan {
		if src < 0 {
			continue
		}
		p := g.params[i]
		if err := p.t.Load(ts.Params[src].Data); err != nil {
			return err
		}
		if err := g.backend.Upload(p.t); err != nil {
			return fmt.Errorf("load %q: %w", p.name, err)
		}
		g.optState.Params[i] = cloneParamState(ts.Optimizer.Params, src)
	}
	g.optState.Step = ts.Optimizer.Step
	return nil
}

// planLoad maps each graph parameter to its index in ts, or -1 to skip it.
func (g *Graph) planLoad(ts *TrainingState, strict bool) ([]int, error) {
	if ts == nil {
		return nil, fmt.Errorf("nil training state: %w", ErrCheckpointMismatch)
	}
	if n := len(ts.Optimizer.Params); n != 0 && n != len(ts.Params) {
		return nil, fmt.Errorf("%d optimizer entries for %d parameters: %w", n, len(ts.Params), ErrCheckpointMismatch)
	}
	for i, nt := range ts.Params {
		if len(nt.Data) != nt.Shape.NumElements() {
			return nil, fmt.Errorf("parameter %q: %d values for shape %v: %w", nt.Name, len(nt.Data), nt.Shape, ErrCheckpointMismatch)
		}
		if i < len(ts.Optimizer.Params) {
			for k, m := range ts.Optimizer.Params[i].Moments {
				if len(m) != len(nt.Data) {
					return nil, fmt.Errorf("parameter %q: moment %d has %d values, want %d: %w", nt.Name, k, len(m), len(nt.Data), ErrCheckpointMismatch)
				}
			}
		}
	}

	plan := make([]int, len(g.params))
	if strict {
		if len(ts.Params) != len(g.params) {
			return nil, fmt.Errorf("state has %d parameters, graph has %d: %w", len(ts.Params), len(g.params), ErrCheckpointMismatch)
		}
		for i, p := range g.params {
			nt := ts.Params[i]
			if nt.Name != p.name || !nt.Shape.Equal(p.t.Shape()) {
				return nil, fmt.Errorf("parameter %d: state has %q %v, graph has %q %v: %w",
					i, nt.Name, nt.Shape, p.name, p.t.Shape(), ErrCheckpointMismatch)
			}
			plan[i] = i
		}
		return plan, nil
	}

	byName := make(map[string]int, len(ts.Params))
	for i, nt := range ts.Params {
		byName[nt.Name] = i
	}
	for i, p := range g.params {
		plan[i] = -1
		if src, ok := byName[p.name]; ok && ts.Params[src].Shape.Equal(p.t.Shape()) {
			plan[i] = src
		}
	}
	return plan, nil
}

func cloneParamState(states []optim.ParamState, i int) optim.ParamState {
	if i >= len(states) {
		return optim.ParamState{}
	}
	out := optim.ParamState{Moments: make([][]float32, len(states[i].Moments))}
	for k, m := range states[i].Moments {
		out.Moments[k] = append([]float32(nil), m...)
	}
	return out
}
