//go:build windows

package webgpu_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/femtogpt/internal/backend/cpu"
	"github.com/born-ml/femtogpt/internal/backend/webgpu"
	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/ops"
	"github.com/born-ml/femtogpt/internal/tensor"
)

func newDevice(t *testing.T) *webgpu.Backend {
	t.Helper()
	b, err := webgpu.New()
	if err != nil {
		t.Skipf("WebGPU not available: %v", err)
	}
	t.Cleanup(b.Release)
	t.Logf("Backend: %s", b.Name())
	return b
}

func TestAdapterInfo(t *testing.T) {
	b, err := webgpu.New()
	if err != nil {
		assert.ErrorIs(t, err, webgpu.ErrUnavailable)
		assert.False(t, webgpu.IsAvailable())
		t.Skipf("WebGPU not available: %v", err)
	}
	defer b.Release()

	assert.True(t, webgpu.IsAvailable())
	info := b.AdapterInfo()
	require.NotNil(t, info)
	assert.Equal(t, "WebGPU ("+info.Device+" "+info.Vendor+")", b.Name())
}

func TestAliasedInputRejected(t *testing.T) {
	g := graph.New(newDevice(t))
	x, err := g.Alloc(tensor.Shape{4})
	require.NoError(t, err)

	_, err = g.Call(ops.NewAdd(), x, x)
	assert.ErrorIs(t, err, webgpu.ErrAliasedInput)
	assert.ErrorIs(t, err, graph.ErrDevice)
	assert.Equal(t, 0, g.NumNodes())

	// The same sum through distinct tensors compiles.
	y, err := g.Alloc(tensor.Shape{4})
	require.NoError(t, err)
	_, err = g.Call(ops.NewAdd(), x, y)
	require.NoError(t, err)
}

type attention struct {
	x, w, targets, loss tensor.ID
}

// buildAttention assembles one masked self-attention head followed by a
// layer norm, a GELU projection and a cross-entropy loss.
func buildAttention(t *testing.T, g *graph.Graph) attention {
	t.Helper()
	call := func(op ops.Operator, ins ...tensor.ID) tensor.ID {
		id, err := g.Call(op, ins...)
		require.NoError(t, err)
		return id
	}
	var a attention
	var err error
	a.x, err = g.Alloc(tensor.Shape{2, 5, 8})
	require.NoError(t, err)
	a.w, err = g.AllocParam("w", tensor.Shape{8, 8})
	require.NoError(t, err)
	a.targets, err = g.Alloc(tensor.Shape{2, 5})
	require.NoError(t, err)

	q := call(ops.NewMatMul(), a.x, a.w)
	scores := call(ops.NewCoeff(0.35), call(ops.NewMatMul(), q, call(ops.NewTranspose(), a.x)))
	attn := call(ops.NewSoftmax(), call(ops.NewTrilMask(), scores))
	h := call(ops.NewLayerNorm(), call(ops.NewAdd(), call(ops.NewMatMul(), attn, q), a.x))
	logits := call(ops.NewGelu(), call(ops.NewCat(), h, call(ops.NewMul(), h, a.x)))
	a.loss = call(ops.NewCrossEntropy(), logits, a.targets)
	return a
}

func run(t *testing.T, backend graph.Backend) (loss, grad []float32) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	g := graph.New(backend)
	a := buildAttention(t, g)

	x := make([]float32, 80)
	for i := range x {
		x[i] = float32(rng.NormFloat64())
	}
	w := make([]float32, 64)
	for i := range w {
		w[i] = float32(rng.NormFloat64()) * 0.3
	}
	targets := make([]float32, 10)
	for i := range targets {
		targets[i] = float32(rng.Intn(16))
	}
	require.NoError(t, g.Load(a.x, x))
	require.NoError(t, g.Load(a.w, w))
	require.NoError(t, g.Load(a.targets, targets))

	require.NoError(t, g.ZeroGrad())
	require.NoError(t, g.Forward())
	require.NoError(t, g.Backward(a.loss, 0))

	loss, err := g.Fetch(a.loss)
	require.NoError(t, err)
	grad, err = g.FetchGrad(a.w)
	require.NoError(t, err)
	return loss, grad
}

func TestDeviceMatchesCPU(t *testing.T) {
	device := newDevice(t)

	wantLoss, wantGrad := run(t, cpu.New(cpu.DefaultConfig()))
	gotLoss, gotGrad := run(t, device)

	assert.InDelta(t, wantLoss[0], gotLoss[0], 1e-3)
	require.Len(t, gotGrad, len(wantGrad))
	for i := range wantGrad {
		assert.InDelta(t, wantGrad[i], gotGrad[i], 1e-3, "w grad %d", i)
	}
}

func TestDeviceEmbeddingAndDropout(t *testing.T) {
	device := newDevice(t)
	g := graph.New(device)

	table, err := g.AllocParam("table", tensor.Shape{4, 3})
	require.NoError(t, err)
	idx, err := g.Alloc(tensor.Shape{3})
	require.NoError(t, err)
	require.NoError(t, g.Load(table, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}))
	require.NoError(t, g.Load(idx, []float32{2, 0, 9}))

	emb, err := g.Call(ops.NewEmbedding(), idx, table)
	require.NoError(t, err)
	drop, err := ops.NewDropout(0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	out, err := g.Call(drop, emb)
	require.NoError(t, err)

	require.NoError(t, g.Forward())
	got, err := g.Fetch(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 7, 8, 0, 1, 2, 0, 0, 0}, got)

	require.NoError(t, g.ZeroGrad())
	require.NoError(t, g.BackwardFrom(out, []float32{1, 1, 1, 1, 1, 1, 1, 1, 1}, 0))
	grad, err := g.FetchGrad(table)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 0, 0, 0, 1, 1, 1, 0, 0, 0}, grad)
}

func TestDeviceZeroGrad(t *testing.T) {
	device := newDevice(t)
	g := graph.New(device)

	x, err := g.AllocParam("x", tensor.Shape{3})
	require.NoError(t, err)
	y, err := g.Call(ops.NewCoeff(2), x)
	require.NoError(t, err)
	require.NoError(t, g.Forward())

	require.NoError(t, g.BackwardFrom(y, []float32{1, 1, 1}, 0))
	require.NoError(t, g.BackwardFrom(y, []float32{1, 1, 1}, 0))
	grad, err := g.FetchGrad(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 4, 4}, grad)

	require.NoError(t, g.ZeroGrad())
	grad, err = g.FetchGrad(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, grad)
}
