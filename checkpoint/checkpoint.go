// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint saves and restores training states on local disk or
// Google Cloud Storage.
//
// Example:
//
//	store, err := checkpoint.Open(ctx, "gs://my-bucket/runs/state.dat")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ts, err := model.TrainingState()
//	err = store.Save(ctx, ts, model.Config().Metadata())
//
//	ts, meta, err := store.Load(ctx)
//	err = model.SetTrainingState(ts, true)
package checkpoint

import (
	"context"
	"io"

	"github.com/born-ml/femtogpt/graph"
	"github.com/born-ml/femtogpt/internal/checkpoint"
	"github.com/born-ml/femtogpt/internal/serialization"
)

// Store persists a single training state.
type Store = checkpoint.Store

// FileStore is a Store on the local filesystem. Saves are atomic.
type FileStore = checkpoint.FileStore

// GCSStore is a Store on a Cloud Storage object.
type GCSStore = checkpoint.GCSStore

// ErrNotFound is returned by Load when no checkpoint exists.
var ErrNotFound = checkpoint.ErrNotFound

// Format errors returned by Decode.
var (
	ErrChecksumMismatch   = serialization.ErrChecksumMismatch
	ErrInvalidMagic       = serialization.ErrInvalidMagic
	ErrUnsupportedVersion = serialization.ErrUnsupportedVersion
)

// Open returns the store for location: gs://bucket/object or a local path.
func Open(ctx context.Context, location string) (Store, error) {
	return checkpoint.Open(ctx, location)
}

// Encode writes a training state and metadata in the checkpoint format.
func Encode(w io.Writer, ts *graph.TrainingState, metadata map[string]string) error {
	return serialization.Encode(w, ts, metadata)
}

// Decode reads a training state written by Encode, verifying its checksum.
func Decode(r io.Reader) (*graph.TrainingState, map[string]string, error) {
	return serialization.Decode(r)
}
