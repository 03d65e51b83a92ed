package ops

import "github.com/born-ml/femtogpt/internal/tensor"

// Add is element-wise addition a + b, where b is either the same shape as a
// or a suffix of it (broadcast over the leading dimensions of a).
//
// Backward:
//
//	∂L/∂a = ∂L/∂out
//	∂L/∂b = Σ_repeats ∂L/∂out
type Add struct{}

// NewAdd creates an addition operator.
func NewAdd() *Add { return &Add{} }

// Name returns the operator name.
func (*Add) Name() string { return "add" }

// OutputShape returns the shape of a.
func (op *Add) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	return suffixBroadcast(op.Name(), ins)
}

// Forward computes out = a + b.
func (*Add) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	a, b, o := ins[0].Data(), ins[1].Data(), out.Data()
	nb := len(b)
	for i := range o {
		o[i] = a[i] + b[i%nb]
	}
}

// Backward accumulates the output gradient into both inputs.
func (*Add) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	g := out.Grad()
	ag, bg := ins[0].Grad(), ins[1].Grad()
	for i := range ag {
		ag[i] += g[i]
	}
	nb := len(bg)
	reps := len(g) / nb
	for j := range bg {
		var s float32
		for r := 0; r < reps; r++ {
			s += g[r*nb+j]
		}
		bg[j] += s
	}
}

// Kernels generates one forward kernel and one backward kernel per input.
func (*Add) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	na, nb := ins[0].NumElements(), ins[1].NumElements()
	vars := map[string]string{"NB": u32(nb), "REPS": u32(na / nb)}
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), na,
				wgsl("result[id] = a[id] + b[id % {NB}];", vars),
				input(0), input(1), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, 0), na,
				"a_grad[id] += result_grad[id];",
				inputGrad(0), resultGrad()),
			kernel(KernelName("grad", out, 1), nb, wgsl(`var s: f32 = 0.0;
for (var r: u32 = 0u; r < {REPS}; r = r + 1u) {
    s += result_grad[r * {NB} + id];
}
b_grad[id] += s;`, vars),
				inputGrad(1), resultGrad()),
		},
	}
}
