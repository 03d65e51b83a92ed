package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/born-ml/femtogpt/internal/backend/cpu"
	"github.com/born-ml/femtogpt/internal/backend/webgpu"
	"github.com/born-ml/femtogpt/internal/gpt"
	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/parallel"
	"github.com/born-ml/femtogpt/internal/tokenizer"
)

// commonFlags are shared by train and infer.
type commonFlags struct {
	vocab     string
	tokenizer string
	model     string
	device    string
	workers   int
	seed      int64
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.vocab, "vocab", "vocab_file.vocab", "SentencePiece vocabulary file")
	fs.StringVar(&c.tokenizer, "tokenizer", "vocab", `tokenizer: "vocab" (SentencePiece from --vocab), "char" (characters of the tokenizer dataset), or a tiktoken encoding such as cl100k_base`)
	fs.StringVar(&c.model, "model", "training_state.dat", "checkpoint path or gs://bucket/object")
	fs.StringVar(&c.device, "device", "cpu", `execution backend: "cpu" or "webgpu"`)
	fs.IntVar(&c.workers, "workers", 0, "CPU worker goroutines, 0 = one per CPU")
	fs.Int64Var(&c.seed, "seed", 0, "random seed, 0 = time based")
	klog.InitFlags(fs)
}

func (c *commonFlags) rng() *rand.Rand {
	seed := c.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// openTokenizer builds the tokenizer selected by name. charCorpus is read
// only for the "char" tokenizer.
func openTokenizer(name, vocab, charCorpus string) (tokenizer.Tokenizer, error) {
	switch name {
	case "vocab":
		return tokenizer.LoadSentencePiece(vocab)
	case "char":
		data, err := os.ReadFile(charCorpus)
		if err != nil {
			return nil, fmt.Errorf("failed to read tokenizer dataset: %w", err)
		}
		return tokenizer.NewChar(string(data)), nil
	default:
		return tokenizer.NewTikToken(name)
	}
}

// openBackend returns the named backend. A WebGPU request falls back to the
// CPU when no adapter is available.
func openBackend(ctx context.Context, name string, workers int) (graph.Backend, error) {
	logger := klog.FromContext(ctx)
	cpuBackend := func() graph.Backend {
		cfg := cpu.DefaultConfig()
		if workers > 0 {
			cfg.Parallel = parallel.Config{Enabled: workers > 1, NumWorkers: workers, MinChunkSize: 1}
		}
		return cpu.New(cfg)
	}

	switch name {
	case "cpu":
		return cpuBackend(), nil
	case "webgpu":
		b, err := webgpu.New()
		if errors.Is(err, webgpu.ErrUnavailable) {
			logger.Info("WebGPU unavailable, falling back to CPU", "err", err)
			return cpuBackend(), nil
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown device %q, want cpu or webgpu", name)
	}
}

// newModel builds a model for cfg on the selected backend.
func newModel(ctx context.Context, flags *commonFlags, rng *rand.Rand, cfg gpt.Config) (*gpt.Model, func(), error) {
	backend, err := openBackend(ctx, flags.device, flags.workers)
	if err != nil {
		return nil, nil, err
	}
	m, err := gpt.New(graph.New(backend), rng, cfg)
	if err != nil {
		backend.Release()
		return nil, nil, err
	}
	klog.FromContext(ctx).Info("Model ready", "backend", backend.Name(), "params", m.NumParams(), "nodes", m.Graph().NumNodes())
	return m, backend.Release, nil
}
