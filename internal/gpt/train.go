package gpt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"k8s.io/klog/v2"

	"github.com/born-ml/femtogpt/internal/optim"
)

// TrainOptions controls a training run.
type TrainOptions struct {
	Steps         int // optimizer steps to run in this call
	BackwardLimit int // max backward rule invocations per step, 0 = unlimited
	CallbackEvery int // 0 = only after the final step
}

// StepInfo describes a finished training step.
type StepInfo struct {
	Step     int // optimizer steps completed, including restored ones
	Loss     float32
	LR       float32
	Duration time.Duration
}

// Train runs opts.Steps optimizer steps over random windows of dataset.
// The learning rate for each step is lr(completed steps), so a run resumed
// from a training state continues the schedule where it stopped. cb, if not
// nil, runs every opts.CallbackEvery steps and after the last one; an error
// from cb stops training.
func (m *Model) Train(ctx context.Context, rng *rand.Rand, dataset []int, opts TrainOptions,
	opt optim.Optimizer, lr func(step int) float32, cb func(*Model, StepInfo) error) error {
	if opts.Steps < 0 {
		return fmt.Errorf("steps must be >= 0, got %d", opts.Steps)
	}
	if opt == nil || lr == nil {
		return errors.New("optimizer and learning rate schedule are required")
	}
	if len(dataset) <= m.cfg.NumTokens {
		return fmt.Errorf("dataset of %d tokens is too short for %d-token windows", len(dataset), m.cfg.NumTokens)
	}
	for i, tok := range dataset {
		if tok < 0 || tok >= m.cfg.VocabSize {
			return fmt.Errorf("dataset token %d at %d: %w", tok, i, ErrTokenRange)
		}
	}

	logger := klog.FromContext(ctx)
	wasTraining := m.g.Training()
	m.g.SetTraining(true)
	defer m.g.SetTraining(wasTraining)

	for i := 0; i < opts.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()

		batch, err := SampleBatch(rng, dataset, m.cfg.BatchSize, m.cfg.NumTokens)
		if err != nil {
			return err
		}
		loss, rate, err := m.step(batch, opt, lr, opts.BackwardLimit)
		if err != nil {
			return fmt.Errorf("step %d: %w", m.g.OptimizerStep()+1, err)
		}

		info := StepInfo{Step: m.g.OptimizerStep(), Loss: loss, LR: rate, Duration: time.Since(start)}
		logger.V(1).Info("Training step", "step", info.Step, "loss", info.Loss, "lr", info.LR, "duration", info.Duration)

		last := i == opts.Steps-1
		if cb != nil && (last || (opts.CallbackEvery > 0 && info.Step%opts.CallbackEvery == 0)) {
			if err := cb(m, info); err != nil {
				return fmt.Errorf("callback at step %d: %w", info.Step, err)
			}
		}
	}
	return nil
}

// step runs one forward/backward/update cycle on batch.
func (m *Model) step(batch Batch, opt optim.Optimizer, lr func(int) float32, limit int) (loss, rate float32, err error) {
	if err := m.g.Load(m.tokens, toFloats(batch.Inputs)); err != nil {
		return 0, 0, err
	}
	if err := m.g.Load(m.targets, toFloats(batch.Targets)); err != nil {
		return 0, 0, err
	}
	if err := m.g.ZeroGrad(); err != nil {
		return 0, 0, err
	}
	if err := m.g.Forward(); err != nil {
		return 0, 0, err
	}
	out, err := m.g.Fetch(m.loss)
	if err != nil {
		return 0, 0, err
	}
	if err := m.g.Backward(m.loss, limit); err != nil {
		return 0, 0, err
	}
	rate = lr(m.g.OptimizerStep())
	if err := m.g.Optimize(opt, rate); err != nil {
		return 0, 0, err
	}
	return out[0], rate, nil
}

// Loss evaluates the mean cross-entropy of batch without updating anything.
// Dropout is disabled for the evaluation and the previous mode restored.
func (m *Model) Loss(batch Batch) (float32, error) {
	wasTraining := m.g.Training()
	m.g.SetTraining(false)
	defer m.g.SetTraining(wasTraining)

	if err := m.g.Load(m.tokens, toFloats(batch.Inputs)); err != nil {
		return 0, err
	}
	if err := m.g.Load(m.targets, toFloats(batch.Targets)); err != nil {
		return 0, err
	}
	if err := m.g.Forward(); err != nil {
		return 0, err
	}
	out, err := m.g.Fetch(m.loss)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func toFloats(ids []int) []float32 {
	out := make([]float32, len(ids))
	for i, id := range ids {
		out[i] = float32(id)
	}
	return out
}
