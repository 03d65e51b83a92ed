// Package generate samples next tokens from model logits.
package generate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// SamplingConfig configures the sampling strategy for text generation.
type SamplingConfig struct {
	// Temperature controls randomness. 0 = greedy, 1 = normal, >1 = more random.
	Temperature float32

	// TopK limits sampling to top K tokens. 0 = disabled.
	TopK int

	// TopP (nucleus sampling) limits to tokens with cumulative prob < P. 1.0 = disabled.
	TopP float32

	// MinP filters tokens with prob < max_prob * MinP. 0 = disabled.
	MinP float32

	// Repetition control
	RepeatPenalty    float32 // Penalty for repeated tokens. 1.0 = no penalty.
	FrequencyPenalty float32 // Penalty based on frequency. 0 = disabled.
	PresencePenalty  float32 // Penalty for presence. 0 = disabled.
	RepeatWindow     int     // Number of tokens to consider. 0 = all.
}

// DefaultSamplingConfig returns plain temperature sampling at 0.5.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Temperature:   0.5,
		TopP:          1.0,
		RepeatPenalty: 1.0,
		RepeatWindow:  64,
	}
}

// Validate checks the configuration.
func (c SamplingConfig) Validate() error {
	switch {
	case c.Temperature < 0 || math.IsNaN(float64(c.Temperature)):
		return fmt.Errorf("temperature must be >= 0, got %v", c.Temperature)
	case c.TopK < 0:
		return fmt.Errorf("top-k must be >= 0, got %d", c.TopK)
	case c.TopP <= 0 || c.TopP > 1:
		return fmt.Errorf("top-p must be in (0, 1], got %v", c.TopP)
	case c.MinP < 0 || c.MinP >= 1:
		return fmt.Errorf("min-p must be in [0, 1), got %v", c.MinP)
	case c.RepeatPenalty <= 0:
		return fmt.Errorf("repeat penalty must be > 0, got %v", c.RepeatPenalty)
	case c.RepeatWindow < 0:
		return fmt.Errorf("repeat window must be >= 0, got %d", c.RepeatWindow)
	}
	return nil
}

// Sampler samples tokens from logits using configurable strategies.
// All randomness comes from the injected generator.
type Sampler struct {
	config SamplingConfig
	rng    *rand.Rand
}

// NewSampler creates a sampler drawing from rng.
func NewSampler(config SamplingConfig, rng *rand.Rand) (*Sampler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("nil random source")
	}
	return &Sampler{config: config, rng: rng}, nil
}

// Sample returns the next token ID from logits.
//
// The sampling process:
//  1. Apply repetition penalties over previousTokens
//  2. Apply temperature scaling
//  3. Apply Top-K filtering
//  4. Apply Top-P (nucleus) filtering
//  5. Apply Min-P filtering
//  6. Sample from distribution (or argmax if temperature=0)
func (s *Sampler) Sample(logits []float32, previousTokens []int) int {
	logits = append([]float32{}, logits...)

	if s.config.RepeatPenalty != 1.0 && len(previousTokens) > 0 {
		s.applyRepetitionPenalty(logits, previousTokens)
	}
	if s.config.FrequencyPenalty != 0 || s.config.PresencePenalty != 0 {
		s.applyFrequencyPenalty(logits, previousTokens)
	}

	// Greedy decoding (temperature = 0)
	if s.config.Temperature == 0 {
		return argmax(logits)
	}
	if s.config.Temperature != 1.0 {
		for i, v := range logits {
			scaled := v / s.config.Temperature
			// Temperatures small enough to overflow behave as the greedy limit.
			if math.IsInf(float64(scaled), 0) && !math.IsInf(float64(v), 0) {
				return argmax(logits)
			}
			logits[i] = scaled
		}
	}

	if s.config.TopK > 0 && s.config.TopK < len(logits) {
		logits = s.topKFilter(logits)
	}
	if s.config.TopP < 1.0 {
		logits = s.topPFilter(logits)
	}
	if s.config.MinP > 0 {
		logits = s.minPFilter(logits)
	}

	return s.multinomial(softmax(logits))
}

// argmax returns the index of the maximum value; ties go to the lowest index.
func argmax(logits []float32) int {
	maxIdx := 0
	maxVal := logits[0]
	for i, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = i + 1
		}
	}
	return maxIdx
}

func (s *Sampler) window(prev []int) []int {
	if w := s.config.RepeatWindow; w > 0 && len(prev) > w {
		return prev[len(prev)-w:]
	}
	return prev
}

// applyRepetitionPenalty penalizes tokens that appeared recently.
func (s *Sampler) applyRepetitionPenalty(logits []float32, prev []int) {
	penalty := s.config.RepeatPenalty
	seen := make(map[int]bool)
	for _, tok := range s.window(prev) {
		if tok < 0 || tok >= len(logits) || seen[tok] {
			continue
		}
		seen[tok] = true
		if logits[tok] > 0 {
			logits[tok] /= penalty
		} else {
			logits[tok] *= penalty
		}
	}
}

// applyFrequencyPenalty penalizes based on token frequency.
func (s *Sampler) applyFrequencyPenalty(logits []float32, prev []int) {
	freq := make(map[int]int)
	for _, tok := range s.window(prev) {
		freq[tok]++
	}
	for tok, count := range freq {
		if tok < 0 || tok >= len(logits) {
			continue
		}
		logits[tok] -= s.config.FrequencyPenalty * float32(count)
		logits[tok] -= s.config.PresencePenalty
	}
}

// topKFilter keeps only top K logits, sets rest to -inf.
func (s *Sampler) topKFilter(logits []float32) []float32 {
	sorted := append([]float32{}, logits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	threshold := sorted[s.config.TopK-1]

	for i := range logits {
		if logits[i] < threshold {
			logits[i] = float32(math.Inf(-1))
		}
	}
	return logits
}

// topPFilter keeps the smallest set of most likely tokens whose cumulative
// probability exceeds TopP.
func (s *Sampler) topPFilter(logits []float32) []float32 {
	probs := softmax(logits)

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return probs[order[i]] > probs[order[j]] })

	cumSum := float32(0)
	cutoff := len(order) - 1
	for i, idx := range order {
		cumSum += probs[idx]
		if cumSum > s.config.TopP {
			cutoff = i
			break
		}
	}

	keep := make([]bool, len(logits))
	for _, idx := range order[:cutoff+1] {
		keep[idx] = true
	}
	for i := range logits {
		if !keep[i] {
			logits[i] = float32(math.Inf(-1))
		}
	}
	return logits
}

// minPFilter keeps tokens with prob >= max_prob * minP.
func (s *Sampler) minPFilter(logits []float32) []float32 {
	probs := softmax(logits)

	maxProb := float32(0)
	for _, p := range probs {
		maxProb = max(maxProb, p)
	}
	threshold := maxProb * s.config.MinP

	for i := range logits {
		if probs[i] < threshold {
			logits[i] = float32(math.Inf(-1))
		}
	}
	return logits
}

// multinomial samples from a categorical distribution.
func (s *Sampler) multinomial(probs []float32) int {
	r := s.rng.Float32()

	cumSum := float32(0)
	for i, p := range probs {
		cumSum += p
		if r < cumSum {
			return i
		}
	}

	// Rounding: return the last token with non-zero probability.
	for i := len(probs) - 1; i > 0; i-- {
		if probs[i] > 0 {
			return i
		}
	}
	return 0
}

// softmax converts logits to probabilities.
func softmax(logits []float32) []float32 {
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	probs := make([]float32, len(logits))
	sum := float32(0)
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			continue
		}
		probs[i] = float32(math.Exp(float64(v - maxVal)))
		sum += probs[i]
	}

	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}
