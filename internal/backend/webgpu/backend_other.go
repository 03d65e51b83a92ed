//go:build !windows

package webgpu

import (
	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// Backend is unavailable on this platform.
type Backend struct{}

var _ graph.Backend = (*Backend)(nil)

// New always fails with ErrUnavailable on this platform.
func New() (*Backend, error) { return nil, ErrUnavailable }

// IsAvailable reports false on this platform.
func IsAvailable() bool { return false }

func (b *Backend) Name() string                        { return "WebGPU" }
func (b *Backend) Register(*tensor.Tensor) error       { return ErrUnavailable }
func (b *Backend) Compile(*graph.Node) error           { return ErrUnavailable }
func (b *Backend) Forward(*graph.Node) error           { return ErrUnavailable }
func (b *Backend) Backward(*graph.Node) error          { return ErrUnavailable }
func (b *Backend) Upload(*tensor.Tensor) error         { return ErrUnavailable }
func (b *Backend) Download(*tensor.Tensor, bool) error { return ErrUnavailable }
func (b *Backend) ZeroGrad([]*tensor.Tensor) error     { return ErrUnavailable }
func (b *Backend) SeedGrad(*tensor.Tensor) error       { return ErrUnavailable }
func (b *Backend) Sync() error                         { return ErrUnavailable }
func (b *Backend) Release()                            {}
