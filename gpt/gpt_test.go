// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gpt_test

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/femtogpt/backend/cpu"
	"github.com/born-ml/femtogpt/checkpoint"
	"github.com/born-ml/femtogpt/gpt"
	"github.com/born-ml/femtogpt/graph"
	"github.com/born-ml/femtogpt/optim"
	"github.com/born-ml/femtogpt/tokenizer"
)

func newModel(t *testing.T, cfg gpt.Config, seed int64) *gpt.Model {
	t.Helper()
	m, err := gpt.New(graph.New(cpu.New(cpu.DefaultConfig())), rand.New(rand.NewSource(seed)), cfg)
	require.NoError(t, err)
	return m
}

func TestTrainSaveRestoreInfer(t *testing.T) {
	tok := tokenizer.NewChar("hello world\n")
	dataset, err := tok.Encode(strings.Repeat("hello world\n", 20))
	require.NoError(t, err)

	cfg := gpt.DefaultConfig(tok.VocabSize())
	cfg.NumTokens = 8
	cfg.EmbeddingDegree = 16
	cfg.NumLayers = 1
	cfg.NumHeads = 2
	cfg.HeadSize = 8
	cfg.BatchSize = 2

	m := newModel(t, cfg, 1)
	opts := gpt.TrainOptions{Steps: 5}
	err = m.Train(context.Background(), rand.New(rand.NewSource(2)), dataset, opts,
		optim.NewAdamW(optim.DefaultAdamWConfig()), gpt.DefaultLearningRate().At, nil)
	require.NoError(t, err)

	ts, err := m.TrainingState()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, checkpoint.Encode(&buf, ts, cfg.Metadata()))

	restoredTS, meta, err := checkpoint.Decode(&buf)
	require.NoError(t, err)
	restoredCfg, ok, err := gpt.ConfigFromMetadata(meta)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cfg, restoredCfg)

	restored := newModel(t, restoredCfg, 7)
	require.NoError(t, restored.SetTrainingState(restoredTS, true))

	prompt, err := tok.Encode("he")
	require.NoError(t, err)
	want, err := m.Infer(rand.New(rand.NewSource(3)), prompt, 10, 0, nil)
	require.NoError(t, err)
	got, err := restored.Infer(rand.New(rand.NewSource(3)), prompt, 10, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	text, err := tok.Decode(got)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "he"))
}
