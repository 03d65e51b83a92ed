package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/optim"
	"github.com/born-ml/femtogpt/internal/tensor"
)

func state(step int, v float32) *graph.TrainingState {
	return &graph.TrainingState{
		Params: []graph.NamedTensor{{Name: "w", Shape: tensor.Shape{2}, Data: []float32{v, -v}}},
		Optimizer: optim.State{
			Step:   step,
			Params: []optim.ParamState{{Moments: [][]float32{{1, 2}}}},
		},
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "training_state.dat")
	require.NoError(t, err)
	assert.Equal(t, &FileStore{Path: "training_state.dat"}, s)

	s, err = Open(ctx, "gs://models/runs/femto.dat")
	require.NoError(t, err)
	assert.Equal(t, &GCSStore{Bucket: "models", Object: "runs/femto.dat"}, s)
	assert.Equal(t, "gs://models/runs/femto.dat", s.String())

	for _, bad := range []string{"", "gs://", "gs://bucket", "gs://bucket/", "gs:///object"} {
		_, err := Open(ctx, bad)
		assert.Error(t, err, bad)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := &FileStore{Path: filepath.Join(t.TempDir(), "state.dat")}

	ok, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, state(3, 1.5), map[string]string{"k": "v"}))
	ok, err = s.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ts, meta, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state(3, 1.5), ts)
	assert.Equal(t, "v", meta["k"])

	require.NoError(t, s.Save(ctx, state(4, 2.5), nil))
	ts, _, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, ts.Optimizer.Step)
}

func TestFileStoreFailedSaveKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := &FileStore{Path: filepath.Join(dir, "state.dat")}
	require.NoError(t, s.Save(ctx, state(1, 1), nil))

	bad := state(2, 2)
	bad.Params[0].Data = bad.Params[0].Data[:1]
	assert.Error(t, s.Save(ctx, bad, nil))

	ts, _, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state(1, 1), ts)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestFileStoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.dat")
	require.NoError(t, os.WriteFile(path, []byte("not a checkpoint at all, definitely not 64 bytes long enough......"), 0o600))

	_, _, err := (&FileStore{Path: path}).Load(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
