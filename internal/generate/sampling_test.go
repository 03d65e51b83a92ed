package generate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSampler(t testing.TB, mutate func(*SamplingConfig), seed int64) *Sampler {
	t.Helper()
	config := DefaultSamplingConfig()
	mutate(&config)
	s, err := NewSampler(config, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return s
}

func counts(s *Sampler, logits []float32, n int) map[int]int {
	out := make(map[int]int)
	for i := 0; i < n; i++ {
		out[s.Sample(logits, nil)]++
	}
	return out
}

func TestGreedySampling(t *testing.T) {
	sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 0 }, 1)

	logits := []float32{-1, 0, 1}
	for i := 0; i < 10; i++ {
		assert.Equal(t, 2, sampler.Sample(logits, nil), "Greedy should always pick max")
	}

	logits = make([]float32, 50000)
	for i := range logits {
		logits[i] = float32(i) * 0.001
	}
	logits[12345] = 100.0
	assert.Equal(t, 12345, sampler.Sample(logits, nil))

	assert.Equal(t, 1, sampler.Sample([]float32{0, 3, 3}, nil), "ties go to the lowest index")
}

func TestTopKSampling(t *testing.T) {
	sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 1; c.TopK = 2 }, 42)

	got := counts(sampler, []float32{1, 2, 3, 4, 5}, 100)
	assert.Equal(t, 0, got[0]+got[1]+got[2], "Should not sample from filtered tokens")
	assert.Equal(t, 100, got[3]+got[4])
}

func TestTopPSampling(t *testing.T) {
	sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 1; c.TopP = 0.5 }, 42)

	got := counts(sampler, []float32{-10, -10, -10, 0, 5}, 100)
	assert.Equal(t, 100, got[4], "the top token alone exceeds p")
}

func TestMinPSampling(t *testing.T) {
	sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 1; c.MinP = 0.5 }, 42)

	got := counts(sampler, []float32{0, 0, 0, 0, 10}, 100)
	assert.Equal(t, 100, got[4])
}

func TestTemperatureSampling(t *testing.T) {
	t.Run("low temperature", func(t *testing.T) {
		sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 0.1 }, 42)
		got := counts(sampler, []float32{1, 2, 3}, 100)
		assert.Greater(t, got[2], 90, "Low temp should favor max")
	})

	t.Run("high temperature", func(t *testing.T) {
		sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 2 }, 42)
		got := counts(sampler, []float32{1, 2, 3}, 100)
		assert.Greater(t, got[0]+got[1], 5, "High temp should distribute samples")
	})

	t.Run("subnormal temperature", func(t *testing.T) {
		sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 1e-39 }, 42)
		got := counts(sampler, []float32{0.1, 5, 0.2}, 20)
		assert.Equal(t, 20, got[1], "Vanishing temp should approach argmax")
	})
}

func TestRepetitionPenalty(t *testing.T) {
	sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 0; c.RepeatPenalty = 2 }, 1)

	token := sampler.Sample([]float32{1.0, 1.0, 1.0}, []int{0, 0, 0})
	assert.NotEqual(t, 0, token, "Penalized token should not be chosen")
}

func TestFrequencyPenalty(t *testing.T) {
	sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 0; c.FrequencyPenalty = 2 }, 1)

	// 1.5 - 2*5 = -8.5
	token := sampler.Sample([]float32{1.5, 1.0, 0.5}, []int{0, 0, 0, 0, 0})
	assert.Equal(t, 1, token)
}

func TestPresencePenalty(t *testing.T) {
	sampler := newSampler(t, func(c *SamplingConfig) { c.Temperature = 0; c.PresencePenalty = 5 }, 1)

	token := sampler.Sample([]float32{2.0, 1.9, 1.0}, []int{0})
	assert.Equal(t, 1, token)
}

func TestRepeatWindow(t *testing.T) {
	sampler := newSampler(t, func(c *SamplingConfig) {
		c.Temperature = 0
		c.RepeatPenalty = 10
		c.RepeatWindow = 3
	}, 1)

	// Token 0 appeared outside the window.
	token := sampler.Sample([]float32{5.0, 1.0, 1.0}, []int{0, 1, 2, 1, 2})
	assert.Equal(t, 0, token)
}

func TestDeterministicWithSameSource(t *testing.T) {
	logits := make([]float32, 1000)
	for i := range logits {
		logits[i] = float32(i) * 0.01
	}
	mutate := func(c *SamplingConfig) { c.Temperature = 1; c.TopK = 10 }
	sampler1 := newSampler(t, mutate, 12345)
	sampler2 := newSampler(t, mutate, 12345)

	for i := 0; i < 10; i++ {
		assert.Equal(t, sampler1.Sample(logits, nil), sampler2.Sample(logits, nil))
	}
}

func TestSoftmax(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		for _, p := range softmax([]float32{0, 0, 0}) {
			assert.InDelta(t, 1.0/3.0, p, 0.001)
		}
	})

	t.Run("numerical stability", func(t *testing.T) {
		sum := float32(0)
		for _, p := range softmax([]float32{1000, 1001, 1002}) {
			assert.False(t, math.IsNaN(float64(p)))
			assert.False(t, math.IsInf(float64(p), 0))
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 0.001)
	})

	t.Run("with negative infinity", func(t *testing.T) {
		probs := softmax([]float32{0, float32(math.Inf(-1)), 0})
		assert.InDelta(t, 0.5, probs[0], 0.001)
		assert.Equal(t, float32(0), probs[1])
		assert.InDelta(t, 0.5, probs[2], 0.001)
	})
}

func TestSamplingConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultSamplingConfig().Validate())

	for name, mutate := range map[string]func(*SamplingConfig){
		"negative temperature": func(c *SamplingConfig) { c.Temperature = -1 },
		"negative top-k":       func(c *SamplingConfig) { c.TopK = -1 },
		"zero top-p":           func(c *SamplingConfig) { c.TopP = 0 },
		"min-p one":            func(c *SamplingConfig) { c.MinP = 1 },
		"zero penalty":         func(c *SamplingConfig) { c.RepeatPenalty = 0 },
		"negative window":      func(c *SamplingConfig) { c.RepeatWindow = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			c := DefaultSamplingConfig()
			mutate(&c)
			assert.Error(t, c.Validate())
			_, err := NewSampler(c, rand.New(rand.NewSource(1)))
			assert.Error(t, err)
		})
	}

	_, err := NewSampler(DefaultSamplingConfig(), nil)
	assert.Error(t, err)
}

func TestCombinedSampling(t *testing.T) {
	sampler := newSampler(t, func(c *SamplingConfig) {
		c.Temperature = 0.8
		c.TopK = 5
		c.TopP = 0.9
		c.RepeatPenalty = 1.1
	}, 42)

	logits := make([]float32, 100)
	for i := range logits {
		logits[i] = float32(i) * 0.1
	}
	token := sampler.Sample(logits, []int{95, 96, 97, 98, 99})
	assert.GreaterOrEqual(t, token, 90, "only the five largest penalised logits survive")
	assert.Less(t, token, 100)
}

func BenchmarkSampling(b *testing.B) {
	sampler := newSampler(b, func(c *SamplingConfig) {
		c.Temperature = 1
		c.TopK = 50
		c.TopP = 0.9
		c.RepeatPenalty = 1.1
	}, 42)

	logits := make([]float32, 50000)
	for i := range logits {
		logits[i] = float32(i) * 0.0001
	}
	prev := make([]int, 100)
	for i := range prev {
		prev[i] = i * 500
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sampler.Sample(logits, prev)
	}
}
