package graph

import (
	"errors"
	"fmt"

	"github.com/born-ml/femtogpt/internal/ops"
)

var (
	// ErrShapeMismatch is returned when an operator rejects its input shapes
	// or loaded data does not fit a tensor.
	ErrShapeMismatch = ops.ErrShapeMismatch

	// ErrUnknownTensor is returned for IDs not allocated by this graph.
	ErrUnknownTensor = errors.New("unknown tensor")

	// ErrNotScalar is returned when backward is seeded from a tensor with
	// more than one element.
	ErrNotScalar = errors.New("loss tensor is not a scalar")

	// ErrCheckpointMismatch is returned when a training state does not match
	// the graph's parameter set. Nothing is written when it is returned.
	ErrCheckpointMismatch = errors.New("training state does not match graph parameters")

	// ErrDevice classifies device compile and dispatch failures.
	ErrDevice = errors.New("device error")
)

// DeviceError reports a failed device operation. It wraps ErrDevice and the
// underlying cause.
type DeviceError struct {
	Op     string // compile, dispatch, upload, readback, ...
	Kernel string // kernel name, if any
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Kernel != "" {
		return fmt.Sprintf("device %s %s: %v", e.Op, e.Kernel, e.Err)
	}
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

// Unwrap returns ErrDevice and the cause, so errors.Is matches both.
func (e *DeviceError) Unwrap() []error {
	return []error{ErrDevice, e.Err}
}
