package ops

import (
	"fmt"

	"github.com/born-ml/femtogpt/internal/tensor"
)

// Coeff multiplies its input by a constant.
type Coeff struct {
	c float32
}

// NewCoeff creates a scaling operator.
func NewCoeff(c float32) *Coeff { return &Coeff{c: c} }

// Name returns the operator name.
func (*Coeff) Name() string { return "coeff" }

// OutputShape returns the input shape.
func (op *Coeff) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 1); err != nil {
		return nil, err
	}
	return ins[0].Clone(), nil
}

// Forward computes out = c * a.
func (op *Coeff) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	a, o := ins[0].Data(), out.Data()
	for i := range o {
		o[i] = a[i] * op.c
	}
}

// Backward accumulates c * ∂L/∂out.
func (op *Coeff) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	g, ag := out.Grad(), ins[0].Grad()
	for i := range ag {
		ag[i] += g[i] * op.c
	}
}

// Kernels generates the scaling kernels.
func (op *Coeff) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	n := ins[0].NumElements()
	c := f32(op.c)
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), n,
				fmt.Sprintf("result[id] = a[id] * %s;", c),
				input(0), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, -1), n,
				fmt.Sprintf("a_grad[id] += result_grad[id] * %s;", c),
				inputGrad(0), resultGrad()),
		},
	}
}
