package ops

import (
	"fmt"

	"github.com/born-ml/femtogpt/internal/tensor"
)

// Transpose swaps the last two dimensions: [..., R, C] -> [..., C, R].
type Transpose struct{}

// NewTranspose creates a transpose operator.
func NewTranspose() *Transpose { return &Transpose{} }

// Name returns the operator name.
func (*Transpose) Name() string { return "transpose" }

// OutputShape returns the input shape with its last two dimensions swapped.
func (op *Transpose) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 1); err != nil {
		return nil, err
	}
	s := ins[0]
	if len(s) < 2 {
		return nil, fmt.Errorf("transpose: need at least 2 dimensions, got %v: %w", s, ErrShapeMismatch)
	}
	out := s.Clone()
	out[len(s)-2], out[len(s)-1] = s[len(s)-1], s[len(s)-2]
	return out, nil
}

func transposeDims(s tensor.Shape) (rows, cols int) {
	return s[len(s)-2], s[len(s)-1]
}

// transposedIndex maps an output index to the input index it reads.
func transposedIndex(id, rows, cols int) int {
	r := id % rows
	c := (id / rows) % cols
	bi := id / (rows * cols)
	return bi*rows*cols + r*cols + c
}

// Forward copies a[bi, r, c] to out[bi, c, r].
func (*Transpose) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	rows, cols := transposeDims(ins[0].Shape())
	a, o := ins[0].Data(), out.Data()
	for id := range o {
		o[id] = a[transposedIndex(id, rows, cols)]
	}
}

// Backward routes each output gradient back to its source element.
func (*Transpose) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	rows, cols := transposeDims(ins[0].Shape())
	g, ag := out.Grad(), ins[0].Grad()
	for id := range g {
		ag[transposedIndex(id, rows, cols)] += g[id]
	}
}

// Kernels generates one thread per element in both directions. The mapping
// is a bijection, so backward threads never write the same element.
func (*Transpose) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	rows, cols := transposeDims(ins[0])
	vars := map[string]string{"R": u32(rows), "C": u32(cols), "RC": u32(rows * cols)}
	src := wgsl(`let r = id % {R};
let c = (id / {R}) % {C};
let src = (id / {RC}) * {RC} + r * {C} + c;
`, vars)
	n := ins[0].NumElements()
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), n, src+"result[id] = a[src];",
				input(0), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, -1), n, src+"a_grad[src] += result_grad[id];",
				inputGrad(0), resultGrad()),
		},
	}
}
