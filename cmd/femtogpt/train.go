package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"k8s.io/klog/v2"

	"github.com/born-ml/femtogpt/internal/checkpoint"
	"github.com/born-ml/femtogpt/internal/gpt"
	"github.com/born-ml/femtogpt/internal/optim"
)

func runTrain(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		common        commonFlags
		dataset       string
		configPath    string
		steps         int
		batchSize     int
		backwardLimit int
		every         int
		sampleCount   int
		temperature   float64
		weightDecay   float64
	)
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&dataset, "dataset", "dataset.txt", "training text")
	fs.StringVar(&configPath, "config", "", "JSON model config, defaults apply to missing fields")
	fs.IntVar(&steps, "steps", 100000, "optimizer steps to run")
	fs.IntVar(&batchSize, "batch-size", 0, "sequences per step, 0 = from the model config")
	fs.IntVar(&backwardLimit, "backward-limit", 0, "max backward rule invocations per step, 0 = full backprop")
	fs.IntVar(&every, "callback-every", 50, "sample and save every N steps")
	fs.IntVar(&sampleCount, "sample-count", 100, "tokens generated at each callback")
	fs.Float64Var(&temperature, "temperature", 0.5, "sampling temperature at each callback")
	fs.Float64Var(&weightDecay, "weight-decay", float64(optim.DefaultAdamWConfig().WeightDecay), "AdamW weight decay")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := klog.FromContext(ctx)
	rng := common.rng()

	text, err := os.ReadFile(dataset)
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	tok, err := openTokenizer(common.tokenizer, common.vocab, dataset)
	if err != nil {
		return err
	}
	tokens, err := tok.Encode(string(text))
	if err != nil {
		return fmt.Errorf("failed to tokenize dataset: %w", err)
	}
	fmt.Fprintf(stdout, "Vocab-size: %d unique tokens\n", tok.VocabSize())

	cfg := gpt.DefaultConfig(tok.VocabSize())
	if configPath != "" {
		if cfg, err = gpt.LoadConfig(configPath, tok.VocabSize()); err != nil {
			return err
		}
	}
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}

	store, err := checkpoint.Open(ctx, common.model)
	if err != nil {
		return err
	}
	m, release, err := newModel(ctx, &common, rng, cfg)
	if err != nil {
		return err
	}
	defer release()
	if err := m.Sync(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Number of parameters: %d\n", m.NumParams())

	if err := resume(ctx, store, m); err != nil {
		return err
	}

	adamCfg := optim.DefaultAdamWConfig()
	adamCfg.WeightDecay = float32(weightDecay)
	if err := adamCfg.Validate(); err != nil {
		return err
	}
	// Samples start from a newline, or the first dataset token when the
	// vocabulary has no newline.
	prompt, err := tok.Encode("\n")
	if err != nil || len(prompt) == 0 {
		prompt = tokens[:min(1, len(tokens))]
	}

	callback := func(m *gpt.Model, info gpt.StepInfo) error {
		logger.Info("Checkpoint", "step", info.Step, "loss", info.Loss, "lr", info.LR)
		if len(prompt) > 0 && sampleCount > 0 {
			out, err := m.Infer(rng, prompt, sampleCount, float32(temperature), nil)
			if err != nil {
				return err
			}
			text, err := tok.Decode(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Generating text:\n%s\n", text)
		}
		return save(ctx, store, m)
	}

	opts := gpt.TrainOptions{Steps: steps, BackwardLimit: backwardLimit, CallbackEvery: every}
	logger.Info("Starting the training loop", "steps", steps, "batchSize", cfg.BatchSize, "model", store.String())
	return m.Train(ctx, rng, tokens, opts, optim.NewAdamW(adamCfg), gpt.DefaultLearningRate().At, callback)
}

// resume loads the checkpoint in store, if there is one, into m. The stored
// model config must match.
func resume(ctx context.Context, store checkpoint.Store, m *gpt.Model) error {
	ok, err := store.Exists(ctx)
	if err != nil || !ok {
		return err
	}
	ts, meta, err := store.Load(ctx)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if stored, found, err := gpt.ConfigFromMetadata(meta); err != nil {
		return err
	} else if found && !sameShape(stored, m.Config()) {
		return fmt.Errorf("checkpoint %s was trained with %+v, model is %+v", store, stored, m.Config())
	}
	if err := m.SetTrainingState(ts, true); err != nil {
		return fmt.Errorf("failed to restore %s: %w", store, err)
	}
	klog.FromContext(ctx).Info("Resumed training state", "checkpoint", store.String(), "step", m.Graph().OptimizerStep())
	return nil
}

func save(ctx context.Context, store checkpoint.Store, m *gpt.Model) error {
	ts, err := m.TrainingState()
	if err != nil {
		return err
	}
	return store.Save(ctx, ts, m.Config().Metadata())
}

// sameShape reports whether two configs have interchangeable parameters.
// Batch size and dropout only affect training.
func sameShape(a, b gpt.Config) bool {
	a.BatchSize, a.Dropout = b.BatchSize, b.Dropout
	return a == b
}
