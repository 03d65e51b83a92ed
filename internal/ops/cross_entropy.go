package ops

import (
	"fmt"
	"math"

	"github.com/born-ml/femtogpt/internal/tensor"
)

// CrossEntropy computes the mean cross-entropy of logits [..., V] against
// target indices [...], producing a single-element loss.
//
// Forward (R rows):
//
//	loss = (1/R) Σ_r (logsumexp(x_r) - x_r[t_r])
//
// Backward:
//
//	∂L/∂x_r = g * (softmax(x_r) - onehot(t_r)) / R
//
// Targets receive no gradient. Out-of-range targets contribute zero loss.
type CrossEntropy struct{}

// NewCrossEntropy creates a cross-entropy loss operator.
func NewCrossEntropy() *CrossEntropy { return &CrossEntropy{} }

// Name returns the operator name.
func (*CrossEntropy) Name() string { return "cross_entropy" }

// OutputShape returns [1]; targets must match the leading logit dimensions.
func (op *CrossEntropy) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 2); err != nil {
		return nil, err
	}
	logits, targets := ins[0], ins[1]
	if len(logits) == 0 || !logits[:len(logits)-1].Equal(targets) {
		return nil, fmt.Errorf("cross_entropy: targets %v do not match logits %v: %w", targets, logits, ErrShapeMismatch)
	}
	return tensor.Shape{1}, nil
}

// rowLogSumExp returns the row maximum and log Σ exp(x - max).
func rowLogSumExp(x []float32) (maxVal, lse float32) {
	maxVal = x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for _, v := range x {
		sum += float32(math.Exp(float64(v - maxVal)))
	}
	return maxVal, float32(math.Log(float64(sum)))
}

// Forward computes per-row losses and sums them in row order.
func (*CrossEntropy) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	x, targets := ins[0].Data(), ins[1].Data()
	v := ins[0].Shape().Last()
	rows := len(targets)
	var total float32
	for r := 0; r < rows; r++ {
		row := x[r*v : (r+1)*v]
		t, ok := tokenIndex(targets[r], v)
		if !ok {
			continue
		}
		maxVal, lse := rowLogSumExp(row)
		total += lse - (row[t] - maxVal)
	}
	out.Data()[0] = total / float32(rows)
}

// Backward accumulates the softmax-minus-onehot gradient into the logits.
func (*CrossEntropy) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	x, targets, xg := ins[0].Data(), ins[1].Data(), ins[0].Grad()
	v := ins[0].Shape().Last()
	rows := len(targets)
	scale := out.Grad()[0] / float32(rows)
	for r := 0; r < rows; r++ {
		t, ok := tokenIndex(targets[r], v)
		if !ok {
			continue
		}
		row := x[r*v : (r+1)*v]
		maxVal, lse := rowLogSumExp(row)
		for j, xv := range row {
			p := float32(math.Exp(float64(xv - maxVal - lse)))
			if j == t {
				p--
			}
			xg[r*v+j] += p * scale
		}
	}
}

// Kernels computes per-row losses into a shared scratch buffer, then reduces
// them in a single thread so the sum order matches the host rule.
func (*CrossEntropy) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	v := ins[0].Last()
	rows := ins[1].NumElements()
	vars := map[string]string{"V": u32(v), "VF": f32(float32(v)), "R": u32(rows), "RF": f32(float32(rows))}
	lse := `let off = id * {V};
var max_val = a[off];
for (var j: u32 = 1u; j < {V}; j = j + 1u) {
    max_val = max(max_val, a[off + j]);
}
var sum: f32 = 0.0;
for (var j: u32 = 0u; j < {V}; j = j + 1u) {
    sum += exp(a[off + j] - max_val);
}
let lse = log(sum);
let tv = b[id];
`
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, 0), rows, wgsl(lse+`if (tv >= 0.0 && tv < {VF}) {
    row_loss[id] = lse - (a[off + u32(tv)] - max_val);
} else {
    row_loss[id] = 0.0;
}`, vars),
				input(0), input(1), shared(0, "row_loss")),
			kernel(KernelName("calc", out, 1), 1, wgsl(`var total: f32 = 0.0;
for (var r: u32 = 0u; r < {R}; r = r + 1u) {
    total += row_loss[r];
}
result[0] = total / {RF};`, vars),
				shared(0, "row_loss"), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, -1), rows, wgsl(lse+`if (tv >= 0.0 && tv < {VF}) {
    let t = u32(tv);
    let scale = result_grad[0] / {RF};
    for (var j: u32 = 0u; j < {V}; j = j + 1u) {
        var p = exp(a[off + j] - max_val - lse);
        if (j == t) {
            p = p - 1.0;
        }
        a_grad[off + j] += p * scale;
    }
}`, vars),
				input(0), input(1), inputGrad(0), resultGrad()),
		},
		Shared: []Shared{{Name: "row_loss", Size: rows}},
	}
}
