package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"k8s.io/klog/v2"

	"github.com/born-ml/femtogpt/internal/checkpoint"
	"github.com/born-ml/femtogpt/internal/generate"
	"github.com/born-ml/femtogpt/internal/gpt"
)

func runInfer(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		common           commonFlags
		tokenizerDataset string
		prompt           string
		count            int
		temperature      float64
		topK             int
		topP             float64
		repeatPenalty    float64
	)
	fs := flag.NewFlagSet("infer", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&tokenizerDataset, "tokenizer-dataset", "dataset.txt", `text the "char" tokenizer is built from`)
	fs.StringVar(&prompt, "prompt", "", "text to continue")
	fs.IntVar(&count, "count", 100, "tokens to generate")
	fs.Float64Var(&temperature, "temperature", 0.5, "sampling temperature, 0 = greedy")
	fs.IntVar(&topK, "top-k", 0, "sample from the K most likely tokens, 0 = disabled")
	fs.Float64Var(&topP, "top-p", 1, "nucleus sampling threshold, 1 = disabled")
	fs.Float64Var(&repeatPenalty, "repeat-penalty", 1, "penalty for recently generated tokens, 1 = disabled")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := klog.FromContext(ctx)

	tok, err := openTokenizer(common.tokenizer, common.vocab, tokenizerDataset)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Vocab-size: %d unique tokens\n", tok.VocabSize())

	ids, err := tok.Encode(prompt)
	if err != nil {
		return fmt.Errorf("failed to tokenize prompt: %w", err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("prompt %q: %w", prompt, gpt.ErrEmptyPrompt)
	}

	store, err := checkpoint.Open(ctx, common.model)
	if err != nil {
		return err
	}
	ts, meta, err := store.Load(ctx)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return fmt.Errorf("no trained model at %s, run femtogpt train first: %w", store, err)
	}
	if err != nil {
		return err
	}

	cfg, found, err := gpt.ConfigFromMetadata(meta)
	if err != nil {
		return err
	}
	if !found {
		cfg = gpt.DefaultConfig(tok.VocabSize())
	}
	if cfg.VocabSize != tok.VocabSize() {
		return fmt.Errorf("model vocabulary has %d tokens, tokenizer has %d", cfg.VocabSize, tok.VocabSize())
	}
	// One sequence is enough for generation.
	cfg.BatchSize = 1

	m, release, err := newModel(ctx, &common, common.rng(), cfg)
	if err != nil {
		return err
	}
	defer release()
	if err := m.SetTrainingState(ts, true); err != nil {
		return fmt.Errorf("failed to restore %s: %w", store, err)
	}
	logger.V(1).Info("Loaded model", "checkpoint", store.String(), "step", m.Graph().OptimizerStep())

	sampling := generate.DefaultSamplingConfig()
	sampling.Temperature = float32(temperature)
	sampling.TopK = topK
	sampling.TopP = float32(topP)
	sampling.RepeatPenalty = float32(repeatPenalty)

	out, err := m.InferWith(common.rng(), ids, count, sampling, nil)
	if err != nil {
		return err
	}
	text, err := tok.Decode(out)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, text)
	return nil
}
