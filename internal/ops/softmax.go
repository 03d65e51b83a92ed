package ops

import (
	"math"

	"github.com/born-ml/femtogpt/internal/parallel"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// Softmax normalises the last dimension.
//
// Forward (for each row):
//
//	softmax(x)_i = exp(x_i - max(x)) / Σ_j exp(x_j - max(x))
//
// Backward:
//
//	∂L/∂x_j = y_j * (∂L/∂y_j - Σ_i ∂L/∂y_i * y_i)
type Softmax struct {
	parallelism
}

// NewSoftmax creates a softmax operator.
func NewSoftmax() *Softmax { return &Softmax{} }

// Name returns the operator name.
func (*Softmax) Name() string { return "softmax" }

// OutputShape returns the input shape.
func (op *Softmax) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 1); err != nil {
		return nil, err
	}
	return ins[0].Clone(), nil
}

func softmaxRow(x, y []float32) {
	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range x {
		e := float32(math.Exp(float64(v - maxVal)))
		y[i] = e
		sum += e
	}
	for i := range y {
		y[i] /= sum
	}
}

// Forward computes the row-wise softmax.
func (op *Softmax) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	n := ins[0].Shape().Last()
	a, o := ins[0].Data(), out.Data()
	parallel.For(len(o)/n, func(r int) {
		softmaxRow(a[r*n:(r+1)*n], o[r*n:(r+1)*n])
	}, op.par)
}

// Backward uses the cached softmax output.
func (op *Softmax) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	n := ins[0].Shape().Last()
	y, g, ag := out.Data(), out.Grad(), ins[0].Grad()
	parallel.For(len(y)/n, func(r int) {
		off := r * n
		var dot float32
		for j := 0; j < n; j++ {
			dot += g[off+j] * y[off+j]
		}
		for j := 0; j < n; j++ {
			ag[off+j] += y[off+j] * (g[off+j] - dot)
		}
	}, op.par)
}

// Kernels generates one thread per row.
func (*Softmax) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	n := ins[0].Last()
	rows := ins[0].Rows()
	vars := map[string]string{"N": u32(n)}
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), rows, wgsl(`let off = id * {N};
var max_val = a[off];
for (var j: u32 = 1u; j < {N}; j = j + 1u) {
    max_val = max(max_val, a[off + j]);
}
var sum: f32 = 0.0;
for (var j: u32 = 0u; j < {N}; j = j + 1u) {
    let e = exp(a[off + j] - max_val);
    result[off + j] = e;
    sum += e;
}
for (var j: u32 = 0u; j < {N}; j = j + 1u) {
    result[off + j] = result[off + j] / sum;
}`, vars),
				input(0), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, -1), rows, wgsl(`let off = id * {N};
var dot: f32 = 0.0;
for (var j: u32 = 0u; j < {N}; j = j + 1u) {
    dot += result_grad[off + j] * result[off + j];
}
for (var j: u32 = 0u; j < {N}; j = j + 1u) {
    a_grad[off + j] += result[off + j] * (result_grad[off + j] - dot);
}`, vars),
				result(), inputGrad(0), resultGrad()),
		},
	}
}
