package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"

	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/serialization"
)

// FileStore keeps the checkpoint in a local file. Saves write a temp file
// in the same directory and rename it over the target.
type FileStore struct {
	Path string
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) String() string { return s.Path }

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, ts *graph.TrainingState, metadata map[string]string) error {
	log := klog.FromContext(ctx)
	startedAt := time.Now()

	tempFile, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	shouldDeleteTempFile := true
	defer func() {
		if shouldDeleteTempFile {
			if err := os.Remove(tempFile.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Error(err, "removing temp file", "path", tempFile.Name())
			}
		}
	}()

	if err := serialization.Encode(tempFile, ts, metadata); err != nil {
		tempFile.Close()
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempFile.Name(), s.Path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	shouldDeleteTempFile = false

	log.V(2).Info("saved checkpoint", "path", s.Path, "step", ts.Optimizer.Step, "duration", time.Since(startedAt))
	return nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (*graph.TrainingState, map[string]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%s: %w", s.Path, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()

	ts, meta, err := serialization.Decode(f)
	if err != nil {
		return nil, nil, fmt.Errorf("reading checkpoint %s: %w", s.Path, err)
	}
	klog.FromContext(ctx).V(2).Info("loaded checkpoint", "path", s.Path, "step", ts.Optimizer.Step)
	return ts, meta, nil
}

// Exists implements Store.
func (s *FileStore) Exists(context.Context) (bool, error) {
	_, err := os.Stat(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
