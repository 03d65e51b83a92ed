package gpt

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/femtogpt/internal/generate"
)

var (
	// ErrEmptyPrompt is returned when inference has no context to start from.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrTokenRange is returned for token IDs outside the vocabulary.
	ErrTokenRange = errors.New("token out of vocabulary range")
)

// Infer generates count tokens after prompt with plain temperature sampling
// and returns prompt followed by the generated tokens. Temperature 0 is
// greedy decoding. onToken, if not nil, sees each token as it is sampled.
func (m *Model) Infer(rng *rand.Rand, prompt []int, count int, temperature float32, onToken func(int)) ([]int, error) {
	cfg := generate.DefaultSamplingConfig()
	cfg.Temperature = temperature
	return m.InferWith(rng, prompt, count, cfg, onToken)
}

// InferWith is Infer with full control over sampling.
//
// The context is the last NumTokens tokens, placed in the first batch row and
// padded with zeros on the right; the causal mask keeps the padding from
// influencing the logits that are read.
func (m *Model) InferWith(rng *rand.Rand, prompt []int, count int, sampling generate.SamplingConfig, onToken func(int)) ([]int, error) {
	if len(prompt) == 0 {
		return nil, ErrEmptyPrompt
	}
	if count < 0 {
		return nil, fmt.Errorf("count must be >= 0, got %d", count)
	}
	for i, tok := range prompt {
		if tok < 0 || tok >= m.cfg.VocabSize {
			return nil, fmt.Errorf("prompt token %d at %d: %w", tok, i, ErrTokenRange)
		}
	}
	sampler, err := generate.NewSampler(sampling, rng)
	if err != nil {
		return nil, err
	}

	wasTraining := m.g.Training()
	m.g.SetTraining(false)
	defer m.g.SetTraining(wasTraining)

	T, V := m.cfg.NumTokens, m.cfg.VocabSize
	out := append(make([]int, 0, len(prompt)+count), prompt...)
	input := make([]float32, m.cfg.BatchSize*T)

	for range count {
		window := out[max(0, len(out)-T):]
		clear(input)
		for i, tok := range window {
			input[i] = float32(tok)
		}
		if err := m.g.Load(m.tokens, input); err != nil {
			return nil, err
		}
		if err := m.g.Forward(); err != nil {
			return nil, err
		}
		logits, err := m.g.Fetch(m.logits)
		if err != nil {
			return nil, err
		}

		pos := len(window) - 1
		next := sampler.Sample(logits[pos*V:(pos+1)*V], out)
		out = append(out, next)
		if onToken != nil {
			onToken(next)
		}
	}
	return out, nil
}
