package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"k8s.io/klog/v2"

	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/serialization"
)

// GCSStore keeps the checkpoint in a Cloud Storage object. Objects become
// visible only when the upload completes, so a failed save leaves the
// previous generation in place.
type GCSStore struct {
	Bucket string
	Object string
}

var _ Store = (*GCSStore)(nil)

func (s *GCSStore) String() string { return gcsScheme + s.Bucket + "/" + s.Object }

func (s *GCSStore) object(ctx context.Context) (*storage.Client, *storage.ObjectHandle, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	return client, client.Bucket(s.Bucket).Object(s.Object), nil
}

// Save implements Store.
func (s *GCSStore) Save(ctx context.Context, ts *graph.TrainingState, metadata map[string]string) error {
	log := klog.FromContext(ctx)

	client, obj, err := s.object(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	startedAt := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if err := serialization.Encode(w, ts, metadata); err != nil {
		cancel() // abandons the upload
		w.Close()
		return fmt.Errorf("uploading checkpoint to %s: %w", s, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing GCS writer: %w", err)
	}

	log.Info("uploaded checkpoint to GCS", "url", s.String(), "step", ts.Optimizer.Step, "duration", time.Since(startedAt))
	return nil
}

// Load implements Store.
func (s *GCSStore) Load(ctx context.Context) (*graph.TrainingState, map[string]string, error) {
	log := klog.FromContext(ctx)

	client, obj, err := s.object(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, fmt.Errorf("%s: %w", s, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("opening object from GCS %q: %w", s.String(), err)
	}
	defer r.Close()

	ts, meta, err := serialization.Decode(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading checkpoint %s: %w", s, err)
	}
	log.Info("downloaded checkpoint from GCS", "url", s.String(), "step", ts.Optimizer.Step)
	return ts, meta, nil
}

// Exists implements Store.
func (s *GCSStore) Exists(ctx context.Context) (bool, error) {
	client, obj, err := s.object(ctx)
	if err != nil {
		return false, err
	}
	defer client.Close()

	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("getting object attributes for %q: %w", s.String(), err)
	}
	return true, nil
}
