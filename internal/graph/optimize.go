package graph

import (
	"fmt"

	"github.com/born-ml/femtogpt/internal/optim"
)

// Optimize applies one optimizer step to every parameter, in creation order.
// Only parameter buffers are exposed to the optimizer.
func (g *Graph) Optimize(opt optim.Optimizer, lr float32) error {
	params := make([]optim.Param, len(g.params))
	for i, p := range g.params {
		if err := g.backend.Download(p.t, false); err != nil {
			return fmt.Errorf("optimize %q: %w", p.name, err)
		}
		if err := g.backend.Download(p.t, true); err != nil {
			return fmt.Errorf("optimize %q: %w", p.name, err)
		}
		params[i] = optim.Param{
			Name:  p.name,
			Value: p.t.Data(),
			Grad:  p.t.Grad(),
			Aux:   &g.optState.Params[i],
		}
	}

	if err := opt.Step(&g.optState, params, lr); err != nil {
		return fmt.Errorf("%s step: %w", opt.Name(), err)
	}

	for _, p := range g.params {
		p.t.Touch()
		if err := g.backend.Upload(p.t); err != nil {
			return fmt.Errorf("optimize %q: %w", p.name, err)
		}
	}
	return nil
}
