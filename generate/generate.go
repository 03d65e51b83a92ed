// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package generate provides next-token sampling for text generation.
//
// Components:
//   - SamplingConfig: temperature, top-k, top-p, min-p and repetition control
//   - Sampler: draws a token from logits with an injected random source
//
// Example usage:
//
//	import (
//	    "math/rand"
//
//	    "github.com/born-ml/femtogpt/generate"
//	)
//
//	config := generate.DefaultSamplingConfig()
//	config.Temperature = 0.7
//	config.TopP = 0.9
//	sampler, err := generate.NewSampler(config, rand.New(rand.NewSource(42)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	token := sampler.Sample(logits, previousTokens)
package generate

import (
	"math/rand"

	"github.com/born-ml/femtogpt/internal/generate"
)

// SamplingConfig configures the sampling strategy for text generation.
//
// Parameters:
//   - Temperature: Controls randomness (0 = greedy, 1 = normal, >1 = more random)
//   - TopK: Limits sampling to top K tokens (0 = disabled)
//   - TopP: Nucleus sampling, keeps the smallest set above P (1.0 = disabled)
//   - MinP: Filters tokens with prob < max_prob * MinP (0 = disabled)
//   - RepeatPenalty: Penalty for repeated tokens (1.0 = no penalty)
//   - FrequencyPenalty: Penalty based on token frequency (0 = disabled)
//   - PresencePenalty: Penalty for token presence (0 = disabled)
//   - RepeatWindow: Number of tokens to consider for penalties (0 = all)
type SamplingConfig = generate.SamplingConfig

// DefaultSamplingConfig returns plain temperature sampling.
//
// Defaults:
//   - Temperature: 0.5
//   - TopK: 0 (disabled)
//   - TopP: 1.0 (disabled)
//   - MinP: 0.0 (disabled)
//   - RepeatPenalty: 1.0 (no penalty)
func DefaultSamplingConfig() SamplingConfig {
	return generate.DefaultSamplingConfig()
}

// Sampler samples tokens from logits using configurable strategies.
type Sampler = generate.Sampler

// NewSampler creates a sampler drawing from rng. The same rng state and
// logits always give the same token.
func NewSampler(config SamplingConfig, rng *rand.Rand) (*Sampler, error) {
	return generate.NewSampler(config, rng)
}
