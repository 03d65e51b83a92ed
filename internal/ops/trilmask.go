package ops

import (
	"fmt"

	"github.com/born-ml/femtogpt/internal/tensor"
)

// TrilMask applies a causal mask to square attention scores [..., N, N]:
// entries above the diagonal are replaced by a large negative value so that
// a following softmax assigns them zero weight.
type TrilMask struct{}

// NewTrilMask creates a causal mask operator.
func NewTrilMask() *TrilMask { return &TrilMask{} }

// Name returns the operator name.
func (*TrilMask) Name() string { return "tril_mask" }

// OutputShape returns the input shape; the last two dimensions must be equal.
func (op *TrilMask) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 1); err != nil {
		return nil, err
	}
	s := ins[0]
	if len(s) < 2 || s[len(s)-1] != s[len(s)-2] {
		return nil, fmt.Errorf("tril_mask: need square trailing dimensions, got %v: %w", s, ErrShapeMismatch)
	}
	return s.Clone(), nil
}

// Forward keeps entries with col <= row.
func (*TrilMask) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	n := ins[0].Shape().Last()
	a, o := ins[0].Data(), out.Data()
	for id := range o {
		if id%n <= (id/n)%n {
			o[id] = a[id]
		} else {
			o[id] = maskValue
		}
	}
}

// Backward passes gradients through unmasked entries only.
func (*TrilMask) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	n := ins[0].Shape().Last()
	g, ag := out.Grad(), ins[0].Grad()
	for id := range g {
		if id%n <= (id/n)%n {
			ag[id] += g[id]
		}
	}
}

// Kernels generates the masking kernels.
func (*TrilMask) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	vars := map[string]string{"N": u32(ins[0].Last()), "MASK": f32(maskValue)}
	total := ins[0].NumElements()
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), total, wgsl(`let col = id % {N};
let row = (id / {N}) % {N};
if (col <= row) {
    result[id] = a[id];
} else {
    result[id] = {MASK};
}`, vars),
				input(0), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, -1), total, wgsl(`let col = id % {N};
let row = (id / {N}) % {N};
if (col <= row) {
    a_grad[id] += result_grad[id];
}`, vars),
				inputGrad(0), resultGrad()),
		},
	}
}
