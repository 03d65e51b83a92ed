// Package checkpoint persists training states to local files or Google
// Cloud Storage in the serialization format.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/femtogpt/internal/graph"
)

// ErrNotFound is returned by Load when no checkpoint exists at the location.
var ErrNotFound = errors.New("checkpoint not found")

// Store saves and loads one checkpoint.
type Store interface {
	// Save encodes ts and metadata and replaces the stored checkpoint.
	// A failed save leaves the previous checkpoint intact.
	Save(ctx context.Context, ts *graph.TrainingState, metadata map[string]string) error

	// Load decodes the stored checkpoint.
	Load(ctx context.Context) (*graph.TrainingState, map[string]string, error)

	// Exists reports whether a checkpoint is stored.
	Exists(ctx context.Context) (bool, error)

	// String returns the location.
	String() string
}

const gcsScheme = "gs://"

// Open returns the store for location: gs://bucket/object for Cloud
// Storage, anything else is a local path.
func Open(ctx context.Context, location string) (Store, error) {
	if location == "" {
		return nil, fmt.Errorf("empty checkpoint location")
	}
	if !strings.HasPrefix(location, gcsScheme) {
		return &FileStore{Path: location}, nil
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(location, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return nil, fmt.Errorf("invalid GCS location %q, want gs://bucket/object", location)
	}
	return &GCSStore{Bucket: bucket, Object: object}, nil
}
