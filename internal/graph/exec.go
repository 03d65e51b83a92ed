package graph

import (
	"fmt"

	"github.com/born-ml/femtogpt/internal/ops"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// Forward evaluates nodes in creation order. A node runs if it has never run,
// if an input changed since its last evaluation, if an input is listed in
// fresh, or if it is stochastic and the graph is in training mode. Clean
// nodes keep their previous output.
func (g *Graph) Forward(fresh ...tensor.ID) error {
	forced := make(map[tensor.ID]bool, len(fresh))
	for _, id := range fresh {
		if _, err := g.lookup(id); err != nil {
			return err
		}
		forced[id] = true
	}

	for _, n := range g.nodes {
		if !g.dirty(n, forced) {
			continue
		}
		if s, ok := n.Op.(ops.Stochastic); ok {
			s.Resample(n.Inputs, g.training)
		}
		if err := g.backend.Forward(n); err != nil {
			return fmt.Errorf("forward %s -> %d: %w", n.Op.Name(), n.Output.ID(), err)
		}
		n.Output.Touch()
		n.evaluated = true
		if n.seen == nil {
			n.seen = make([]uint64, len(n.Inputs))
		}
		for i, in := range n.Inputs {
			n.seen[i] = in.Version()
		}
	}
	return nil
}

func (g *Graph) dirty(n *Node, forced map[tensor.ID]bool) bool {
	if !n.evaluated {
		return true
	}
	if _, ok := n.Op.(ops.Stochastic); ok && g.training {
		return true
	}
	for i, in := range n.Inputs {
		if forced[in.ID()] || in.Version() != n.seen[i] {
			return true
		}
	}
	return false
}

// ZeroGrad clears every gradient buffer.
func (g *Graph) ZeroGrad() error {
	for _, t := range g.tensors {
		t.ZeroGrad()
	}
	return g.backend.ZeroGrad(g.tensors)
}

// Backward seeds the gradient of a single-element loss with 1 and
// propagates it to every ancestor. See BackwardFrom for limit.
func (g *Graph) Backward(loss tensor.ID, limit int) error {
	t, err := g.lookup(loss)
	if err != nil {
		return err
	}
	if t.Len() != 1 {
		return fmt.Errorf("backward from tensor %d of shape %v: %w", loss, t.Shape(), ErrNotScalar)
	}
	return g.BackwardFrom(loss, []float32{1}, limit)
}

// BackwardFrom seeds the gradient of out with seed and visits the nodes that
// out depends on in reverse creation order, accumulating input gradients.
// With limit > 0 the walk stops after limit backward-rule invocations; nodes
// beyond the limit keep the gradients they held before the call.
func (g *Graph) BackwardFrom(out tensor.ID, seed []float32, limit int) error {
	t, err := g.lookup(out)
	if err != nil {
		return err
	}
	if len(seed) != t.Len() {
		return fmt.Errorf("seed of %d values for tensor %d of shape %v: %w", len(seed), out, t.Shape(), ErrShapeMismatch)
	}
	copy(t.Grad(), seed)
	if err := g.backend.SeedGrad(t); err != nil {
		return err
	}

	last, ok := g.producer[out]
	if !ok {
		return nil // a leaf: nothing to propagate
	}

	needed := map[tensor.ID]bool{out: true}
	invoked := 0
	for i := last; i >= 0; i-- {
		n := g.nodes[i]
		if !needed[n.Output.ID()] {
			continue
		}
		if limit > 0 && invoked >= limit {
			break
		}
		if err := g.backend.Backward(n); err != nil {
			return fmt.Errorf("backward %s -> %d: %w", n.Op.Name(), n.Output.ID(), err)
		}
		invoked++
		for _, in := range n.Inputs {
			needed[in.ID()] = true
		}
	}
	return nil
}
