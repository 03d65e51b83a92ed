package ops

import (
	"math"

	"github.com/born-ml/femtogpt/internal/tensor"
)

const (
	geluScale = 0.7978845608028654 // sqrt(2/pi)
	geluCubic = 0.044715
)

// Gelu is the tanh approximation of the Gaussian error linear unit.
//
// Forward:
//
//	gelu(x) = 0.5 * x * (1 + tanh(√(2/π) * (x + 0.044715 * x³)))
//
// Backward:
//
//	gelu'(x) = 0.5 * (1 + t) + 0.5 * x * (1 - t²) * √(2/π) * (1 + 3 * 0.044715 * x²)
type Gelu struct{}

// NewGelu creates a GELU operator.
func NewGelu() *Gelu { return &Gelu{} }

// Name returns the operator name.
func (*Gelu) Name() string { return "gelu" }

// OutputShape returns the input shape.
func (op *Gelu) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 1); err != nil {
		return nil, err
	}
	return ins[0].Clone(), nil
}

func geluTanh(x float32) float32 {
	return float32(math.Tanh(geluScale * float64(x+geluCubic*x*x*x)))
}

// Forward applies GELU element-wise.
func (*Gelu) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	a, o := ins[0].Data(), out.Data()
	for i, x := range a {
		o[i] = 0.5 * x * (1 + geluTanh(x))
	}
}

// Backward accumulates gelu'(x) * ∂L/∂out.
func (*Gelu) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	a, g, ag := ins[0].Data(), out.Grad(), ins[0].Grad()
	for i, x := range a {
		t := geluTanh(x)
		d := 0.5*(1+t) + 0.5*x*(1-t*t)*geluScale*(1+3*geluCubic*x*x)
		ag[i] += g[i] * d
	}
}

// Kernels generates element-wise kernels.
func (*Gelu) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	n := ins[0].NumElements()
	vars := map[string]string{"S": f32(geluScale), "C": f32(geluCubic)}
	head := wgsl(`let x = a[id];
let t = tanh({S} * (x + {C} * x * x * x));
`, vars)
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), n, head+"result[id] = 0.5 * x * (1.0 + t);",
				input(0), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, -1), n, head+wgsl(
				"a_grad[id] += result_grad[id] * (0.5 * (1.0 + t) + 0.5 * x * (1.0 - t * t) * {S} * (1.0 + 3.0 * {C} * x * x));", vars),
				input(0), inputGrad(0), resultGrad()),
		},
	}
}
