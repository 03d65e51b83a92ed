// Package tensor holds the storage for graph tensors: a shape, a float32
// value buffer, a float32 gradient buffer of the same length and a version
// counter bumped on every content write.
package tensor

import "fmt"

// ID identifies a tensor inside one graph. IDs are assigned in creation
// order, so comparing two IDs compares their creation order.
type ID int

// Tensor is a host-side tensor: a value buffer and a gradient buffer.
//
// The host buffers are authoritative for the direct backend; device backends
// mirror them and synchronise on upload/readback.
type Tensor struct {
	id      ID
	shape   Shape
	data    []float32
	grad    []float32
	version uint64
}

// New allocates a zero-filled tensor.
func New(id ID, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %d: %w", id, err)
	}
	n := shape.NumElements()
	return &Tensor{
		id:    id,
		shape: shape.Clone(),
		data:  make([]float32, n),
		grad:  make([]float32, n),
	}, nil
}

// ID returns the tensor handle.
func (t *Tensor) ID() ID { return t.id }

// Shape returns the tensor shape. Callers must not modify it.
func (t *Tensor) Shape() Shape { return t.shape }

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Data returns the value buffer.
func (t *Tensor) Data() []float32 { return t.data }

// Grad returns the gradient buffer.
func (t *Tensor) Grad() []float32 { return t.grad }

// Version returns the content version. It increases on every Touch.
func (t *Tensor) Version() uint64 { return t.version }

// Touch marks the value buffer as modified.
func (t *Tensor) Touch() { t.version++ }

// Load copies data into the value buffer and marks it modified.
func (t *Tensor) Load(data []float32) error {
	if len(data) != len(t.data) {
		return fmt.Errorf("tensor %d: load %d values into shape %v", t.id, len(data), t.shape)
	}
	copy(t.data, data)
	t.Touch()
	return nil
}

// ZeroGrad clears the gradient buffer.
func (t *Tensor) ZeroGrad() {
	clear(t.grad)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("tensor(%d, %v)", t.id, t.shape)
}
