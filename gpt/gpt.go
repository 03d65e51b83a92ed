// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gpt provides a decoder-only transformer language model with its
// training loop and text generation.
//
// Example:
//
//	import (
//	    "context"
//	    "math/rand"
//
//	    "github.com/born-ml/femtogpt/backend/cpu"
//	    "github.com/born-ml/femtogpt/gpt"
//	    "github.com/born-ml/femtogpt/graph"
//	    "github.com/born-ml/femtogpt/optim"
//	)
//
//	func main() {
//	    rng := rand.New(rand.NewSource(1))
//	    g := graph.New(cpu.New(cpu.DefaultConfig()))
//	    model, err := gpt.New(g, rng, gpt.DefaultConfig(tok.VocabSize()))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    opts := gpt.TrainOptions{Steps: 1000, CallbackEvery: 100}
//	    err = model.Train(context.Background(), rng, dataset, opts,
//	        optim.NewAdamW(optim.DefaultAdamWConfig()), gpt.DefaultLearningRate().At, nil)
//
//	    out, err := model.Infer(rng, prompt, 100, 0.5, nil)
//	}
package gpt

import (
	"math/rand"

	"github.com/born-ml/femtogpt/graph"
	"github.com/born-ml/femtogpt/internal/gpt"
)

// Model is a transformer language model bound to a graph.
type Model = gpt.Model

// Config defines the shape of the model.
type Config = gpt.Config

// TrainOptions controls a training run.
type TrainOptions = gpt.TrainOptions

// StepInfo describes a finished training step.
type StepInfo = gpt.StepInfo

// Batch holds input windows and their shifted targets.
type Batch = gpt.Batch

// LearningRate is a linear warmup followed by a linear decay to a floor.
type LearningRate = gpt.LearningRate

// Errors returned by training and inference.
var (
	ErrEmptyPrompt = gpt.ErrEmptyPrompt
	ErrTokenRange  = gpt.ErrTokenRange
)

// New builds a model on g with freshly initialised parameters drawn from rng.
func New(g *graph.Graph, rng *rand.Rand, cfg Config) (*Model, error) {
	return gpt.New(g, rng, cfg)
}

// DefaultConfig returns the stock 4-layer model for a vocabulary.
func DefaultConfig(vocabSize int) Config {
	return gpt.DefaultConfig(vocabSize)
}

// LoadConfig reads a JSON model config; missing fields keep the defaults.
func LoadConfig(path string, vocabSize int) (Config, error) {
	return gpt.LoadConfig(path, vocabSize)
}

// ConfigFromMetadata decodes a config stored in checkpoint metadata.
func ConfigFromMetadata(meta map[string]string) (Config, bool, error) {
	return gpt.ConfigFromMetadata(meta)
}

// DefaultLearningRate returns warmup over 100 steps to 1e-3, then linear
// decay to 1e-5 over 50000 steps.
func DefaultLearningRate() LearningRate {
	return gpt.DefaultLearningRate()
}

// SampleBatch draws batchSize windows of numTokens tokens from dataset.
func SampleBatch(rng *rand.Rand, dataset []int, batchSize, numTokens int) (Batch, error) {
	return gpt.SampleBatch(rng, dataset, batchSize, numTokens)
}
