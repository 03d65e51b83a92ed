package ops

import "github.com/born-ml/femtogpt/internal/tensor"

// Mul is element-wise multiplication a * b with suffix broadcasting of b.
//
// Backward:
//
//	∂L/∂a = ∂L/∂out * b
//	∂L/∂b = Σ_repeats ∂L/∂out * a
type Mul struct{}

// NewMul creates a multiplication operator.
func NewMul() *Mul { return &Mul{} }

// Name returns the operator name.
func (*Mul) Name() string { return "mul" }

// OutputShape returns the shape of a.
func (op *Mul) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	return suffixBroadcast(op.Name(), ins)
}

// Forward computes out = a * b.
func (*Mul) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	a, b, o := ins[0].Data(), ins[1].Data(), out.Data()
	nb := len(b)
	for i := range o {
		o[i] = a[i] * b[i%nb]
	}
}

// Backward accumulates the product rule gradients.
func (*Mul) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	g := out.Grad()
	a, b := ins[0].Data(), ins[1].Data()
	ag, bg := ins[0].Grad(), ins[1].Grad()
	nb := len(b)
	for i := range ag {
		ag[i] += g[i] * b[i%nb]
	}
	reps := len(g) / nb
	for j := range bg {
		var s float32
		for r := 0; r < reps; r++ {
			s += g[r*nb+j] * a[r*nb+j]
		}
		bg[j] += s
	}
}

// Kernels generates one forward kernel and one backward kernel per input.
func (*Mul) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	na, nb := ins[0].NumElements(), ins[1].NumElements()
	vars := map[string]string{"NB": u32(nb), "REPS": u32(na / nb)}
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), na,
				wgsl("result[id] = a[id] * b[id % {NB}];", vars),
				input(0), input(1), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, 0), na,
				wgsl("a_grad[id] += result_grad[id] * b[id % {NB}];", vars),
				input(1), inputGrad(0), resultGrad()),
			kernel(KernelName("grad", out, 1), nb, wgsl(`var s: f32 = 0.0;
for (var r: u32 = 0u; r < {REPS}; r = r + 1u) {
    let k = r * {NB} + id;
    s += result_grad[k] * a[k];
}
b_grad[id] += s;`, vars),
				input(0), inputGrad(1), resultGrad()),
		},
	}
}
