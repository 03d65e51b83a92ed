// Package gpt assembles a decoder-only transformer on the static graph and
// drives its training and inference.
//
// Architecture (pre-norm):
//
//	tokens → embedding + position embedding
//	  → N × [ x + Proj(Cat(heads(Norm(x)))) → x + FFN(Norm(x)) ]
//	  → Norm → logits → cross-entropy
//
// Each head is softmax(mask(q·kᵀ/√h))·v; FFN is Linear(4d) → GELU → Linear(d).
package gpt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/ops"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// Model is a transformer language model bound to a graph.
type Model struct {
	cfg Config
	g   *graph.Graph
	rng *rand.Rand // parameter init and dropout masks

	tokens    tensor.ID // [batch, tokens]
	positions tensor.ID // [tokens]
	targets   tensor.ID // [batch, tokens]
	logits    tensor.ID // [batch, tokens, vocab]
	loss      tensor.ID // [1]
}

// New builds the model on g with freshly initialised parameters.
func New(g *graph.Graph, rng *rand.Rand, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Model{cfg: cfg, g: g, rng: rng}
	b := &builder{g: g, rng: rng}
	m.build(b)
	if b.err != nil {
		return nil, fmt.Errorf("build model: %w", b.err)
	}

	pos := make([]float32, cfg.NumTokens)
	for i := range pos {
		pos[i] = float32(i)
	}
	if err := g.Load(m.positions, pos); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) build(b *builder) {
	cfg := m.cfg
	d := cfg.EmbeddingDegree

	m.tokens = b.input(tensor.Shape{cfg.BatchSize, cfg.NumTokens})
	m.positions = b.input(tensor.Shape{cfg.NumTokens})
	m.targets = b.input(tensor.Shape{cfg.BatchSize, cfg.NumTokens})

	tokenTable := b.normal("token_embedding", tensor.Shape{cfg.VocabSize, d}, 0.02)
	posTable := b.normal("position_embedding", tensor.Shape{cfg.NumTokens, d}, 0.02)
	x := b.call(ops.NewAdd(),
		b.call(ops.NewEmbedding(), m.tokens, tokenTable),
		b.call(ops.NewEmbedding(), m.positions, posTable))

	for l := 0; l < cfg.NumLayers; l++ {
		prefix := fmt.Sprintf("layer_%d", l)

		norm := b.layerNorm(prefix+".norm_1", x, d)
		heads := make([]tensor.ID, cfg.NumHeads)
		for h := range heads {
			heads[h] = m.head(b, fmt.Sprintf("%s.head_%d", prefix, h), norm)
		}
		attn := b.call(ops.NewCat(), heads...)
		proj := b.dropout(b.linear(prefix+".proj", attn, d, d), cfg.Dropout)
		x = b.call(ops.NewAdd(), x, proj)

		norm = b.layerNorm(prefix+".norm_2", x, d)
		hidden := b.call(ops.NewGelu(), b.linear(prefix+".ffn_1", norm, d, 4*d))
		ffn := b.dropout(b.linear(prefix+".ffn_2", hidden, 4*d, d), cfg.Dropout)
		x = b.call(ops.NewAdd(), x, ffn)
	}

	m.logits = b.linear("head", b.layerNorm("norm", x, d), d, cfg.VocabSize)
	m.loss = b.call(ops.NewCrossEntropy(), m.logits, m.targets)
}

// head is one causal self-attention head over x [batch, tokens, d].
func (m *Model) head(b *builder, prefix string, x tensor.ID) tensor.ID {
	d, h := m.cfg.EmbeddingDegree, m.cfg.HeadSize
	k := b.call(ops.NewMatMul(), x, b.xavier(prefix+".key", tensor.Shape{d, h}))
	q := b.call(ops.NewMatMul(), x, b.xavier(prefix+".query", tensor.Shape{d, h}))
	v := b.call(ops.NewMatMul(), x, b.xavier(prefix+".value", tensor.Shape{d, h}))

	scores := b.call(ops.NewCoeff(float32(1/math.Sqrt(float64(h)))),
		b.call(ops.NewMatMul(), q, b.call(ops.NewTranspose(), k)))
	weights := b.dropout(b.call(ops.NewSoftmax(), b.call(ops.NewTrilMask(), scores)), m.cfg.Dropout)
	return b.call(ops.NewMatMul(), weights, v)
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

// Graph returns the underlying graph.
func (m *Model) Graph() *graph.Graph { return m.g }

// NumParams returns the number of trainable scalars.
func (m *Model) NumParams() int { return m.g.NumParams() }

// TrainingState snapshots parameters and optimizer state.
func (m *Model) TrainingState() (*graph.TrainingState, error) { return m.g.TrainingState() }

// SetTrainingState restores a snapshot; see graph.Graph.SetTrainingState.
func (m *Model) SetTrainingState(ts *graph.TrainingState, strict bool) error {
	return m.g.SetTrainingState(ts, strict)
}

// Sync waits for pending backend work.
func (m *Model) Sync() error { return m.g.Sync() }

// builder assembles graph nodes, keeping the first error.
type builder struct {
	g   *graph.Graph
	rng *rand.Rand
	err error
}

func (b *builder) input(shape tensor.Shape) tensor.ID {
	if b.err != nil {
		return 0
	}
	id, err := b.g.Alloc(shape)
	b.err = err
	return id
}

func (b *builder) call(op ops.Operator, ins ...tensor.ID) tensor.ID {
	if b.err != nil {
		return 0
	}
	id, err := b.g.Call(op, ins...)
	b.err = err
	return id
}

// param allocates a parameter filled by init(i).
func (b *builder) param(name string, shape tensor.Shape, init func(i int) float32) tensor.ID {
	if b.err != nil {
		return 0
	}
	id, err := b.g.AllocParam(name, shape)
	if err != nil {
		b.err = err
		return 0
	}
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = init(i)
	}
	b.err = b.g.Load(id, data)
	return id
}

func (b *builder) constant(name string, shape tensor.Shape, v float32) tensor.ID {
	return b.param(name, shape, func(int) float32 { return v })
}

func (b *builder) normal(name string, shape tensor.Shape, std float64) tensor.ID {
	return b.param(name, shape, func(int) float32 { return float32(b.rng.NormFloat64() * std) })
}

// xavier draws from U(-sqrt(6/(fan_in+fan_out)), sqrt(6/(fan_in+fan_out))).
func (b *builder) xavier(name string, shape tensor.Shape) tensor.ID {
	bound := math.Sqrt(6.0 / float64(shape[0]+shape[1]))
	return b.param(name, shape, func(int) float32 { return float32((b.rng.Float64()*2 - 1) * bound) })
}

// linear is x·W + bias.
func (b *builder) linear(prefix string, x tensor.ID, in, out int) tensor.ID {
	w := b.xavier(prefix+".weight", tensor.Shape{in, out})
	bias := b.constant(prefix+".bias", tensor.Shape{out}, 0)
	return b.call(ops.NewAdd(), b.call(ops.NewMatMul(), x, w), bias)
}

// layerNorm normalises the last dimension and applies a learned scale and shift.
func (b *builder) layerNorm(prefix string, x tensor.ID, d int) tensor.ID {
	coeff := b.constant(prefix+".coeff", tensor.Shape{d}, 1)
	bias := b.constant(prefix+".bias", tensor.Shape{d}, 0)
	return b.call(ops.NewAdd(), b.call(ops.NewMul(), b.call(ops.NewLayerNorm(), x), coeff), bias)
}

func (b *builder) dropout(x tensor.ID, rate float32) tensor.ID {
	if b.err != nil {
		return 0
	}
	op, err := ops.NewDropout(rate, b.rng)
	if err != nil {
		b.err = err
		return 0
	}
	return b.call(op, x)
}
