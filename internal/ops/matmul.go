package ops

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/femtogpt/internal/parallel"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// MatMul is a batched matrix product: [..., M, K] @ [..., K, N] -> [..., M, N].
// The right operand may also be a 2-D [K, N] matrix shared by every batch
// element (a projection weight).
//
// Backward:
//
//	∂L/∂A = ∂L/∂C @ Bᵀ
//	∂L/∂B = Aᵀ @ ∂L/∂C   (summed over the batch when B is shared)
type MatMul struct {
	parallelism
}

// NewMatMul creates a matrix product operator.
func NewMatMul() *MatMul { return &MatMul{} }

// Name returns the operator name.
func (*MatMul) Name() string { return "matmul" }

type matmulDims struct {
	batch, m, k, n int
	shared         bool // rhs is a single [K, N] matrix
}

func (d matmulDims) aSize() int { return d.m * d.k }
func (d matmulDims) bSize() int { return d.k * d.n }
func (d matmulDims) cSize() int { return d.m * d.n }

func (d matmulDims) bOffset(i int) int {
	if d.shared {
		return 0
	}
	return i * d.bSize()
}

func matmulShape(a, b tensor.Shape) (matmulDims, error) {
	if len(a) < 2 || len(b) < 2 {
		return matmulDims{}, fmt.Errorf("matmul: operands must be at least 2-D, got %v @ %v: %w", a, b, ErrShapeMismatch)
	}
	d := matmulDims{
		m: a[len(a)-2],
		k: a[len(a)-1],
		n: b[len(b)-1],
	}
	if b[len(b)-2] != d.k {
		return matmulDims{}, fmt.Errorf("matmul: inner dimensions differ, %v @ %v: %w", a, b, ErrShapeMismatch)
	}
	batchA := a[:len(a)-2]
	d.batch = batchA.NumElements()
	switch {
	case len(b) == 2:
		d.shared = true
	case !batchA.Equal(b[:len(b)-2]):
		return matmulDims{}, fmt.Errorf("matmul: batch dimensions differ, %v @ %v: %w", a, b, ErrShapeMismatch)
	}
	return d, nil
}

// OutputShape returns [..., M, N].
func (op *MatMul) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 2); err != nil {
		return nil, err
	}
	d, err := matmulShape(ins[0], ins[1])
	if err != nil {
		return nil, err
	}
	out := ins[0].Clone()
	out[len(out)-1] = d.n
	return out, nil
}

func general(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// Forward computes every batch element with blas32.Gemm, in parallel.
func (op *MatMul) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	d, _ := matmulShape(ins[0].Shape(), ins[1].Shape())
	a, b, c := ins[0].Data(), ins[1].Data(), out.Data()
	parallel.For(d.batch, func(i int) {
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			general(d.m, d.k, a[i*d.aSize():(i+1)*d.aSize()]),
			general(d.k, d.n, b[d.bOffset(i):d.bOffset(i)+d.bSize()]),
			0,
			general(d.m, d.n, c[i*d.cSize():(i+1)*d.cSize()]))
	}, op.par)
}

// Backward accumulates with beta = 1. Gradients of a shared rhs are
// accumulated sequentially in batch order.
func (op *MatMul) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	d, _ := matmulShape(ins[0].Shape(), ins[1].Shape())
	a, b := ins[0].Data(), ins[1].Data()
	ag, bg := ins[0].Grad(), ins[1].Grad()
	g := out.Grad()

	aBlock := func(s []float32, i int) blas32.General {
		return general(d.m, d.k, s[i*d.aSize():(i+1)*d.aSize()])
	}
	bBlock := func(s []float32, i int) blas32.General {
		return general(d.k, d.n, s[d.bOffset(i):d.bOffset(i)+d.bSize()])
	}
	gBlock := func(i int) blas32.General {
		return general(d.m, d.n, g[i*d.cSize():(i+1)*d.cSize()])
	}

	parallel.For(d.batch, func(i int) {
		blas32.Gemm(blas.NoTrans, blas.Trans, 1, gBlock(i), bBlock(b, i), 1, aBlock(ag, i))
		if !d.shared {
			blas32.Gemm(blas.Trans, blas.NoTrans, 1, aBlock(a, i), gBlock(i), 1, bBlock(bg, i))
		}
	}, op.par)

	if d.shared {
		for i := 0; i < d.batch; i++ {
			blas32.Gemm(blas.Trans, blas.NoTrans, 1, aBlock(a, i), gBlock(i), 1, bBlock(bg, i))
		}
	}
}

// Kernels generates one thread per output element forward, and one thread
// per gradient element backward.
func (*MatMul) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	d, _ := matmulShape(ins[0], ins[1])
	bStride := "0u"
	if !d.shared {
		bStride = u32(d.bSize())
	}
	vars := map[string]string{
		"M":  u32(d.m),
		"K":  u32(d.k),
		"N":  u32(d.n),
		"MK": u32(d.aSize()),
		"KN": u32(d.bSize()),
		"MN": u32(d.cSize()),
		"BS": bStride,
		"B":  u32(d.batch),
	}

	calc := wgsl(`let n = id % {N};
let m = (id / {N}) % {M};
let bi = id / {MN};
let a_off = bi * {MK} + m * {K};
let b_off = bi * {BS} + n;
var s: f32 = 0.0;
for (var k: u32 = 0u; k < {K}; k = k + 1u) {
    s += a[a_off + k] * b[b_off + k * {N}];
}
result[id] = s;`, vars)

	gradA := wgsl(`let k = id % {K};
let m = (id / {K}) % {M};
let bi = id / {MK};
let g_off = bi * {MN} + m * {N};
let b_off = bi * {BS} + k * {N};
var s: f32 = 0.0;
for (var n: u32 = 0u; n < {N}; n = n + 1u) {
    s += result_grad[g_off + n] * b[b_off + n];
}
a_grad[id] += s;`, vars)

	var gradB string
	works := d.batch * d.bSize()
	if d.shared {
		works = d.bSize()
		gradB = wgsl(`let n = id % {N};
let k = id / {N};
var s: f32 = 0.0;
for (var bi: u32 = 0u; bi < {B}; bi = bi + 1u) {
    for (var m: u32 = 0u; m < {M}; m = m + 1u) {
        s += a[bi * {MK} + m * {K} + k] * result_grad[bi * {MN} + m * {N} + n];
    }
}
b_grad[id] += s;`, vars)
	} else {
		gradB = wgsl(`let n = id % {N};
let k = (id / {N}) % {K};
let bi = id / {KN};
var s: f32 = 0.0;
for (var m: u32 = 0u; m < {M}; m = m + 1u) {
    s += a[bi * {MK} + m * {K} + k] * result_grad[bi * {MN} + m * {N} + n];
}
b_grad[id] += s;`, vars)
	}

	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), d.batch*d.cSize(), calc,
				input(0), input(1), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, 0), d.batch*d.aSize(), gradA,
				input(1), inputGrad(0), resultGrad()),
			kernel(KernelName("grad", out, 1), works, gradB,
				input(0), inputGrad(1), resultGrad()),
		},
	}
}
