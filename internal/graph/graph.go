// Package graph implements a static computation graph with reverse-mode
// automatic differentiation.
//
// Tensors and operator nodes are created once, during model assembly, and
// persist for the lifetime of the graph; per step only buffer contents
// change. Nodes are kept in creation order, which is a topological order
// because a node can only consume tensors that already exist.
//
// Usage:
//
//	g := graph.New(cpu.New(cpu.DefaultConfig()))
//	x, _ := g.Alloc(tensor.Shape{4, 8})
//	w, _ := g.AllocParam("w", tensor.Shape{8, 2})
//	y, _ := g.Call(ops.NewMatMul(), x, w)
//	...
//	g.Forward()
//	g.Backward(loss, 0)
//	g.Optimize(opt, lr)
package graph

import (
	"fmt"

	"github.com/born-ml/femtogpt/internal/ops"
	"github.com/born-ml/femtogpt/internal/optim"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// Node is one operator application: op(Inputs...) -> Output.
type Node struct {
	Op     ops.Operator
	Inputs []*tensor.Tensor
	Output *tensor.Tensor

	evaluated bool
	seen      []uint64 // input versions at the last evaluation
}

// InputShapes returns the shapes of the node's inputs.
func (n *Node) InputShapes() []tensor.Shape {
	shapes := make([]tensor.Shape, len(n.Inputs))
	for i, in := range n.Inputs {
		shapes[i] = in.Shape()
	}
	return shapes
}

type param struct {
	name string
	t    *tensor.Tensor
}

// Graph owns tensors, nodes, parameters and the optimizer state.
type Graph struct {
	backend  Backend
	tensors  []*tensor.Tensor // indexed by ID
	nodes    []*Node
	producer map[tensor.ID]int // output ID -> node index

	params     []param
	paramIndex map[string]int
	optState   optim.State

	training bool
}

// New creates an empty graph executing on backend. Graphs start in
// training mode.
func New(backend Backend) *Graph {
	return &Graph{
		backend:    backend,
		producer:   make(map[tensor.ID]int),
		paramIndex: make(map[string]int),
		training:   true,
	}
}

// Backend returns the backend executing the graph.
func (g *Graph) Backend() Backend { return g.backend }

func (g *Graph) alloc(shape tensor.Shape) (*tensor.Tensor, error) {
	t, err := g.next(shape)
	if err != nil {
		return nil, err
	}
	return t, g.commit(t)
}

// next creates the tensor that the next commit will add.
func (g *Graph) next(shape tensor.Shape) (*tensor.Tensor, error) {
	t, err := tensor.New(tensor.ID(len(g.tensors)), shape)
	if err != nil {
		return nil, fmt.Errorf("alloc %v: %w: %w", shape, ErrShapeMismatch, err)
	}
	return t, nil
}

func (g *Graph) commit(t *tensor.Tensor) error {
	if err := g.backend.Register(t); err != nil {
		return fmt.Errorf("register tensor %d: %w", t.ID(), err)
	}
	g.tensors = append(g.tensors, t)
	return nil
}

// Alloc allocates a zero-filled input or constant tensor.
func (g *Graph) Alloc(shape tensor.Shape) (tensor.ID, error) {
	t, err := g.alloc(shape)
	if err != nil {
		return 0, err
	}
	return t.ID(), nil
}

// AllocParam allocates a trainable parameter. Parameters are ordered by
// creation; names must be unique.
func (g *Graph) AllocParam(name string, shape tensor.Shape) (tensor.ID, error) {
	if _, dup := g.paramIndex[name]; dup {
		return 0, fmt.Errorf("parameter %q already exists", name)
	}
	t, err := g.alloc(shape)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", name, err)
	}
	g.paramIndex[name] = len(g.params)
	g.params = append(g.params, param{name: name, t: t})
	g.optState.Params = append(g.optState.Params, optim.ParamState{})
	return t.ID(), nil
}

// Call adds a node applying op to inputs and returns its output tensor.
func (g *Graph) Call(op ops.Operator, inputs ...tensor.ID) (tensor.ID, error) {
	ins := make([]*tensor.Tensor, len(inputs))
	for i, id := range inputs {
		t, err := g.lookup(id)
		if err != nil {
			return 0, fmt.Errorf("%s input %d: %w", op.Name(), i, err)
		}
		ins[i] = t
	}
	n := &Node{Op: op, Inputs: ins}
	shape, err := op.OutputShape(n.InputShapes())
	if err != nil {
		return 0, err
	}
	// The output joins the graph only once the backend accepts the node.
	out, err := g.next(shape)
	if err != nil {
		return 0, fmt.Errorf("%s output: %w", op.Name(), err)
	}
	n.Output = out
	if err := g.backend.Compile(n); err != nil {
		return 0, fmt.Errorf("%s: %w", op.Name(), err)
	}
	if err := g.commit(out); err != nil {
		return 0, fmt.Errorf("%s output: %w", op.Name(), err)
	}
	g.producer[out.ID()] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return out.ID(), nil
}

func (g *Graph) lookup(id tensor.ID) (*tensor.Tensor, error) {
	if id < 0 || int(id) >= len(g.tensors) {
		return nil, fmt.Errorf("tensor %d: %w", id, ErrUnknownTensor)
	}
	return g.tensors[id], nil
}

// Shape returns the shape of a tensor.
func (g *Graph) Shape(id tensor.ID) (tensor.Shape, error) {
	t, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.Shape().Clone(), nil
}

// Load overwrites a tensor's value and marks it dirty.
func (g *Graph) Load(id tensor.ID, data []float32) error {
	t, err := g.lookup(id)
	if err != nil {
		return err
	}
	if len(data) != t.Len() {
		return fmt.Errorf("load %d values into tensor %d of shape %v: %w", len(data), id, t.Shape(), ErrShapeMismatch)
	}
	if err := t.Load(data); err != nil {
		return err
	}
	return g.backend.Upload(t)
}

// Fetch returns a copy of a tensor's value, waiting for pending device work.
func (g *Graph) Fetch(id tensor.ID) ([]float32, error) {
	t, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := g.backend.Download(t, false); err != nil {
		return nil, err
	}
	return append([]float32(nil), t.Data()...), nil
}

// FetchGrad returns a copy of a tensor's gradient.
func (g *Graph) FetchGrad(id tensor.ID) ([]float32, error) {
	t, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := g.backend.Download(t, true); err != nil {
		return nil, err
	}
	return append([]float32(nil), t.Grad()...), nil
}

// Params returns the parameter names in creation order.
func (g *Graph) Params() []string {
	names := make([]string, len(g.params))
	for i, p := range g.params {
		names[i] = p.name
	}
	return names
}

// Param returns the tensor ID of a named parameter.
func (g *Graph) Param(name string) (tensor.ID, bool) {
	i, ok := g.paramIndex[name]
	if !ok {
		return 0, false
	}
	return g.params[i].t.ID(), true
}

// NumParams returns the total number of trainable scalars.
func (g *Graph) NumParams() int {
	n := 0
	for _, p := range g.params {
		n += p.t.Len()
	}
	return n
}

// NumNodes returns the number of operator nodes.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// OptimizerStep returns the number of completed optimizer steps.
func (g *Graph) OptimizerStep() int { return g.optState.Step }

// SetTraining toggles stochastic operators. Switching modes invalidates
// their cached outputs.
func (g *Graph) SetTraining(training bool) {
	if training == g.training {
		return
	}
	g.training = training
	for _, n := range g.nodes {
		if _, ok := n.Op.(ops.Stochastic); ok {
			n.evaluated = false
		}
	}
}

// Training reports whether the graph is in training mode.
func (g *Graph) Training() bool { return g.training }

// Sync blocks until backend work completes.
func (g *Graph) Sync() error { return g.backend.Sync() }
