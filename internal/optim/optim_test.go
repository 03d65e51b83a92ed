package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/femtogpt/internal/optim"
)

func bind(name string, value, grad []float32) (optim.Param, *optim.ParamState) {
	aux := &optim.ParamState{}
	return optim.Param{Name: name, Value: value, Grad: grad, Aux: aux}, aux
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	opt, err := optim.NewSGD(optim.SGDConfig{})
	require.NoError(t, err)
	p, aux := bind("x", []float32{2.0}, []float32{1.0})
	var state optim.State

	require.NoError(t, opt.Step(&state, []optim.Param{p}, 0.1))

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	assert.InDelta(t, 1.9, p.Value[0], 1e-6)
	assert.Equal(t, 1, state.Step)
	assert.Empty(t, aux.Moments)
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	opt, err := optim.NewSGD(optim.SGDConfig{Momentum: 0.9})
	require.NoError(t, err)
	assert.Equal(t, 1, opt.Moments())
	p, aux := bind("x", []float32{1.0}, []float32{1.0})
	var state optim.State

	require.NoError(t, opt.Step(&state, []optim.Param{p}, 0.1))
	// v = 1, x = 1 - 0.1
	assert.InDelta(t, 0.9, p.Value[0], 1e-6)
	require.NoError(t, opt.Step(&state, []optim.Param{p}, 0.1))
	// v = 0.9 + 1 = 1.9, x = 0.9 - 0.19
	assert.InDelta(t, 0.71, p.Value[0], 1e-6)
	assert.InDelta(t, 1.9, aux.Moments[0][0], 1e-6)
}

func TestNewSGD_InvalidMomentum(t *testing.T) {
	_, err := optim.NewSGD(optim.SGDConfig{Momentum: 1})
	assert.Error(t, err)
}

// TestAdamW_FirstStep checks the bias-corrected first update: with zero
// weight decay the step is -lr * sign(grad).
func TestAdamW_FirstStep(t *testing.T) {
	opt := optim.NewAdamW(optim.AdamWConfig{})
	p, aux := bind("w", []float32{1, -1}, []float32{0.5, -2})
	var state optim.State

	require.NoError(t, opt.Step(&state, []optim.Param{p}, 0.01))
	assert.InDelta(t, 0.99, p.Value[0], 1e-5)
	assert.InDelta(t, -0.99, p.Value[1], 1e-5)
	require.Len(t, aux.Moments, 2)
	assert.InDelta(t, 0.05, aux.Moments[0][0], 1e-6)
	assert.InDelta(t, 0.001*0.25, aux.Moments[1][0], 1e-7)
}

func TestAdamW_WeightDecay(t *testing.T) {
	cfg := optim.DefaultAdamWConfig()
	require.NoError(t, cfg.Validate())
	opt := optim.NewAdamW(cfg)
	p, _ := bind("w", []float32{2}, []float32{0})
	var state optim.State

	require.NoError(t, opt.Step(&state, []optim.Param{p}, 0.1))
	// zero gradient: only decay applies, 2 - 0.1 * 0.01 * 2
	assert.InDelta(t, 2-0.002, p.Value[0], 1e-6)
}

// TestAdamW_Resume checks that continuing from a cloned state matches an
// uninterrupted run exactly.
func TestAdamW_Resume(t *testing.T) {
	opt := optim.NewAdamW(optim.DefaultAdamWConfig())
	grads := [][]float32{{0.3, -0.1}, {0.2, 0.4}, {-0.5, 0.1}, {0.05, 0.05}}

	run := func(steps [][]float32, value []float32, state *optim.State) []float32 {
		for _, g := range steps {
			p := optim.Param{Name: "w", Value: value, Grad: g, Aux: &state.Params[0]}
			require.NoError(t, opt.Step(state, []optim.Param{p}, 0.01))
		}
		return value
	}

	full := optim.State{Params: make([]optim.ParamState, 1)}
	want := run(grads, []float32{1, 1}, &full)

	first := optim.State{Params: make([]optim.ParamState, 1)}
	value := run(grads[:2], []float32{1, 1}, &first)
	resumed := first.Clone()
	got := run(grads[2:], append([]float32(nil), value...), &resumed)

	assert.Equal(t, want, got)
	assert.Equal(t, 4, resumed.Step)
	assert.Equal(t, 2, first.Step, "clone must not alias the step counter")
}

func TestAdamW_StateMismatch(t *testing.T) {
	opt := optim.NewAdamW(optim.DefaultAdamWConfig())
	aux := &optim.ParamState{Moments: [][]float32{{0}, {0}}}
	p := optim.Param{Name: "w", Value: []float32{1, 2}, Grad: []float32{1, 1}, Aux: aux}
	err := opt.Step(&optim.State{}, []optim.Param{p}, 0.1)
	assert.ErrorIs(t, err, optim.ErrStateMismatch)

	err = opt.Step(&optim.State{}, []optim.Param{{Name: "n", Value: []float32{1}, Grad: []float32{1}}}, 0.1)
	assert.ErrorIs(t, err, optim.ErrStateMismatch)
}

func TestStepMismatchLeavesStateUntouched(t *testing.T) {
	sgd, err := optim.NewSGD(optim.SGDConfig{Momentum: 0.9})
	require.NoError(t, err)

	for _, opt := range []optim.Optimizer{optim.NewAdamW(optim.DefaultAdamWConfig()), sgd} {
		t.Run(opt.Name(), func(t *testing.T) {
			fresh := &optim.ParamState{}
			first := optim.Param{Name: "a", Value: []float32{1, 2}, Grad: []float32{1, 1}, Aux: fresh}
			// Three moment buffers fit neither optimizer.
			bad := optim.Param{Name: "b", Value: []float32{3}, Grad: []float32{1},
				Aux: &optim.ParamState{Moments: [][]float32{{0}, {0}, {0}}}}
			state := &optim.State{Step: 7}

			err := opt.Step(state, []optim.Param{first, bad}, 0.1)
			require.ErrorIs(t, err, optim.ErrStateMismatch)
			assert.Equal(t, 7, state.Step)
			assert.Equal(t, []float32{1, 2}, first.Value)
			assert.Empty(t, fresh.Moments)
		})
	}
}

func TestAdamWConfig_Validate(t *testing.T) {
	assert.Error(t, optim.AdamWConfig{Betas: [2]float32{1, 0.9}, Eps: 1e-8}.Validate())
	assert.Error(t, optim.AdamWConfig{Betas: [2]float32{0.9, 0.9}}.Validate())
	assert.NoError(t, optim.DefaultAdamWConfig().Validate())
}
