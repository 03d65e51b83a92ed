package ops

import (
	"math"

	"github.com/born-ml/femtogpt/internal/parallel"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// layerNormEps is added to the variance before the square root.
const layerNormEps = 1e-5

// LayerNorm normalises the last dimension to zero mean and unit variance.
// It has no affine parameters; the model applies scale and shift with Mul and Add.
//
// Forward (for each row of length N):
//
//	x̂_i = (x_i - mean(x)) / sqrt(var(x) + ε)
//
// Backward:
//
//	∂L/∂x = inv * (g - mean(g) - x̂ * mean(g * x̂)),  inv = 1/sqrt(var + ε)
type LayerNorm struct {
	parallelism
}

// NewLayerNorm creates a layer normalisation operator.
func NewLayerNorm() *LayerNorm { return &LayerNorm{} }

// Name returns the operator name.
func (*LayerNorm) Name() string { return "layer_norm" }

// OutputShape returns the input shape.
func (op *LayerNorm) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 1); err != nil {
		return nil, err
	}
	return ins[0].Clone(), nil
}

// rowStats returns the mean and 1/sqrt(var + eps) of x.
func rowStats(x []float32) (mean, inv float32) {
	n := float32(len(x))
	for _, v := range x {
		mean += v
	}
	mean /= n
	var variance float32
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	variance /= n
	inv = 1 / float32(math.Sqrt(float64(variance+layerNormEps)))
	return mean, inv
}

// Forward normalises each row.
func (op *LayerNorm) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	n := ins[0].Shape().Last()
	a, o := ins[0].Data(), out.Data()
	parallel.For(len(o)/n, func(r int) {
		x := a[r*n : (r+1)*n]
		mean, inv := rowStats(x)
		for j, v := range x {
			o[r*n+j] = (v - mean) * inv
		}
	}, op.par)
}

// Backward recomputes the row statistics from the input.
func (op *LayerNorm) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	n := ins[0].Shape().Last()
	a, y, g, ag := ins[0].Data(), out.Data(), out.Grad(), ins[0].Grad()
	nf := float32(n)
	parallel.For(len(y)/n, func(r int) {
		off := r * n
		_, inv := rowStats(a[off : off+n])
		var gMean, gyMean float32
		for j := 0; j < n; j++ {
			gMean += g[off+j]
			gyMean += g[off+j] * y[off+j]
		}
		gMean /= nf
		gyMean /= nf
		for j := 0; j < n; j++ {
			ag[off+j] += inv * (g[off+j] - gMean - y[off+j]*gyMean)
		}
	}, op.par)
}

// Kernels generates one thread per row.
func (*LayerNorm) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	n := ins[0].Last()
	rows := ins[0].Rows()
	vars := map[string]string{"N": u32(n), "NF": f32(float32(n)), "EPS": f32(layerNormEps)}
	stats := `let off = id * {N};
var mean: f32 = 0.0;
for (var j: u32 = 0u; j < {N}; j = j + 1u) {
    mean += a[off + j];
}
mean = mean / {NF};
var variance: f32 = 0.0;
for (var j: u32 = 0u; j < {N}; j = j + 1u) {
    let d = a[off + j] - mean;
    variance += d * d;
}
variance = variance / {NF};
let inv = 1.0 / sqrt(variance + {EPS});
`
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), rows, wgsl(stats+`for (var j: u32 = 0u; j < {N}; j = j + 1u) {
    result[off + j] = (a[off + j] - mean) * inv;
}`, vars),
				input(0), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, -1), rows, wgsl(stats+`var g_mean: f32 = 0.0;
var gy_mean: f32 = 0.0;
for (var j: u32 = 0u; j < {N}; j = j + 1u) {
    g_mean += result_grad[off + j];
    gy_mean += result_grad[off + j] * result[off + j];
}
g_mean = g_mean / {NF};
gy_mean = gy_mean / {NF};
for (var j: u32 = 0u; j < {N}; j = j + 1u) {
    a_grad[off + j] += inv * (result_grad[off + j] - g_mean - result[off + j] * gy_mean);
}`, vars),
				input(0), result(), inputGrad(0), resultGrad()),
		},
	}
}
