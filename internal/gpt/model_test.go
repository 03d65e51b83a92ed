package gpt_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/femtogpt/internal/backend/cpu"
	"github.com/born-ml/femtogpt/internal/gpt"
	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/optim"
)

func tinyConfig() gpt.Config {
	return gpt.Config{
		VocabSize:       2,
		NumTokens:       4,
		EmbeddingDegree: 8,
		NumLayers:       1,
		NumHeads:        2,
		HeadSize:        4,
		BatchSize:       4,
	}
}

func newModel(t *testing.T, cfg gpt.Config, seed int64) *gpt.Model {
	t.Helper()
	g := graph.New(cpu.New(cpu.DefaultConfig()))
	m, err := gpt.New(g, rand.New(rand.NewSource(seed)), cfg)
	require.NoError(t, err)
	return m
}

func alternating(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i % 2
	}
	return out
}

func constantLR(lr float32) func(int) float32 {
	return func(int) float32 { return lr }
}

// train runs steps and returns the loss of every step.
func train(t *testing.T, m *gpt.Model, seed int64, steps int) []float32 {
	t.Helper()
	var losses []float32
	opts := gpt.TrainOptions{Steps: steps, CallbackEvery: 1}
	err := m.Train(context.Background(), rand.New(rand.NewSource(seed)), alternating(64), opts,
		optim.NewAdamW(optim.AdamWConfig{}), constantLR(0.01),
		func(_ *gpt.Model, info gpt.StepInfo) error {
			losses = append(losses, info.Loss)
			return nil
		})
	require.NoError(t, err)
	require.Len(t, losses, steps)
	return losses
}

func TestNewModel(t *testing.T) {
	m := newModel(t, tinyConfig(), 1)

	// 2 embeddings, 2 heads × 3 projections, proj, 2 norms, 2 ffn, final norm, head
	want := 2*8 + 4*8 +
		2*3*8*4 +
		8*8 + 8 +
		2*(8+8) +
		8*32 + 32 + 32*8 + 8 +
		8 + 8 +
		8*2 + 2
	assert.Equal(t, want, m.NumParams())
	assert.Contains(t, m.Graph().Params(), "layer_0.head_1.query")
	assert.Contains(t, m.Graph().Params(), "head.weight")
	assert.Equal(t, tinyConfig(), m.Config())
}

func TestNewModelInvalidConfig(t *testing.T) {
	cfg := tinyConfig()
	cfg.HeadSize = 3
	_, err := gpt.New(graph.New(cpu.New(cpu.DefaultConfig())), rand.New(rand.NewSource(1)), cfg)
	assert.Error(t, err)
}

func TestTrainReducesLoss(t *testing.T) {
	m := newModel(t, tinyConfig(), 1)
	losses := train(t, m, 2, 200)

	first, last := losses[0], losses[len(losses)-1]
	t.Logf("loss %.4f -> %.4f", first, last)
	assert.Greater(t, first, float32(0.3))
	assert.Less(t, last, float32(0.1))

	batch, err := gpt.SampleBatch(rand.New(rand.NewSource(9)), alternating(64), 4, 4)
	require.NoError(t, err)
	loss, err := m.Loss(batch)
	require.NoError(t, err)
	assert.Less(t, loss, float32(0.1))

	// The next token is fully determined by the current one.
	out, err := m.Infer(rand.New(rand.NewSource(3)), []int{0}, 7, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1, 0, 1}, out)
}

func TestLossDisablesDropout(t *testing.T) {
	cfg := tinyConfig()
	cfg.VocabSize = 5
	cfg.Dropout = 0.5
	m := newModel(t, cfg, 4)

	batch, err := gpt.SampleBatch(rand.New(rand.NewSource(1)), []int{0, 1, 2, 3, 4, 0, 1, 2, 3, 4, 0, 1}, 4, 4)
	require.NoError(t, err)
	a, err := m.Loss(batch)
	require.NoError(t, err)
	b, err := m.Loss(batch)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, m.Graph().Training())

	m.Graph().SetTraining(false)
	c, err := m.Loss(batch)
	require.NoError(t, err)
	assert.Equal(t, a, c)
	assert.False(t, m.Graph().Training())
}

func TestTrainDeterministic(t *testing.T) {
	a := train(t, newModel(t, tinyConfig(), 5), 6, 10)
	b := train(t, newModel(t, tinyConfig(), 5), 6, 10)
	assert.Equal(t, a, b)
}

func TestTrainResume(t *testing.T) {
	m := newModel(t, tinyConfig(), 1)
	train(t, m, 2, 10)
	ts, err := m.TrainingState()
	require.NoError(t, err)
	want := train(t, m, 3, 5)

	resumed := newModel(t, tinyConfig(), 99)
	require.NoError(t, resumed.SetTrainingState(ts, true))
	assert.Equal(t, 10, resumed.Graph().OptimizerStep())
	got := train(t, resumed, 3, 5)

	assert.Equal(t, want, got)
	assert.Equal(t, 15, resumed.Graph().OptimizerStep())
}

func TestTrainCallbackSchedule(t *testing.T) {
	m := newModel(t, tinyConfig(), 1)
	var steps []int
	opts := gpt.TrainOptions{Steps: 7, CallbackEvery: 3}
	err := m.Train(context.Background(), rand.New(rand.NewSource(1)), alternating(32), opts,
		optim.NewAdamW(optim.AdamWConfig{}), gpt.DefaultLearningRate().At,
		func(_ *gpt.Model, info gpt.StepInfo) error {
			steps = append(steps, info.Step)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 6, 7}, steps)
}

func TestTrainCanceled(t *testing.T) {
	m := newModel(t, tinyConfig(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Train(ctx, rand.New(rand.NewSource(1)), alternating(32), gpt.TrainOptions{Steps: 5},
		optim.NewAdamW(optim.AdamWConfig{}), gpt.DefaultLearningRate().At, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Graph().OptimizerStep())
}

func TestTrainRejectsBadDataset(t *testing.T) {
	m := newModel(t, tinyConfig(), 1)
	opt := optim.NewAdamW(optim.AdamWConfig{})
	lr := gpt.DefaultLearningRate().At

	err := m.Train(context.Background(), rand.New(rand.NewSource(1)), []int{0, 1, 0}, gpt.TrainOptions{Steps: 1}, opt, lr, nil)
	assert.Error(t, err)

	err = m.Train(context.Background(), rand.New(rand.NewSource(1)), []int{0, 1, 0, 1, 2, 0}, gpt.TrainOptions{Steps: 1}, opt, lr, nil)
	assert.ErrorIs(t, err, gpt.ErrTokenRange)
}

func TestInferGreedyReproducible(t *testing.T) {
	cfg := tinyConfig()
	cfg.VocabSize = 5
	cfg.Dropout = 0.2
	m := newModel(t, cfg, 4)

	var streamed []int
	a, err := m.Infer(rand.New(rand.NewSource(1)), []int{1, 2}, 9, 0, func(tok int) { streamed = append(streamed, tok) })
	require.NoError(t, err)
	b, err := m.Infer(rand.New(rand.NewSource(2)), []int{1, 2}, 9, 0, nil)
	require.NoError(t, err)

	assert.Len(t, a, 11)
	assert.Equal(t, []int{1, 2}, a[:2])
	assert.Equal(t, a, b)
	assert.Equal(t, a[2:], streamed)
	assert.True(t, m.Graph().Training(), "previous mode restored")

	m.Graph().SetTraining(false)
	c, err := m.Infer(rand.New(rand.NewSource(3)), []int{1, 2}, 9, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, a, c)
	assert.False(t, m.Graph().Training())
}

func TestInferSampledSeeded(t *testing.T) {
	cfg := tinyConfig()
	cfg.VocabSize = 7
	m := newModel(t, cfg, 4)

	a, err := m.Infer(rand.New(rand.NewSource(8)), []int{3}, 12, 1, nil)
	require.NoError(t, err)
	b, err := m.Infer(rand.New(rand.NewSource(8)), []int{3}, 12, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	for _, tok := range a {
		assert.True(t, tok >= 0 && tok < 7)
	}
}

func TestInferErrors(t *testing.T) {
	m := newModel(t, tinyConfig(), 1)
	rng := rand.New(rand.NewSource(1))

	_, err := m.Infer(rng, nil, 3, 0, nil)
	assert.ErrorIs(t, err, gpt.ErrEmptyPrompt)

	_, err = m.Infer(rng, []int{0, 2}, 3, 0, nil)
	assert.ErrorIs(t, err, gpt.ErrTokenRange)

	_, err = m.Infer(rng, []int{0}, 3, -1, nil)
	assert.Error(t, err)

	out, err := m.Infer(rng, []int{1}, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, out)
}
