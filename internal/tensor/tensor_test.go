package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeHelpers(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, 4, s.Last())
	assert.Equal(t, 6, s.Rows())
	assert.True(t, s.HasSuffix(Shape{3, 4}))
	assert.True(t, s.HasSuffix(Shape{}))
	assert.False(t, s.HasSuffix(Shape{2, 4}))
	assert.False(t, Shape{4}.HasSuffix(Shape{3, 4}))
	assert.Equal(t, Shape{2, 3, 7}, s.WithLast(7))
	assert.Equal(t, Shape{2, 3, 4}, s, "WithLast must not mutate")
	assert.Equal(t, 1, Shape{}.NumElements())
}

func TestShapeValidate(t *testing.T) {
	assert.NoError(t, Shape{1, 2}.Validate())
	assert.Error(t, Shape{1, 0}.Validate())
	assert.Error(t, Shape{-3}.Validate())
}

func TestTensorLoadBumpsVersion(t *testing.T) {
	x, err := New(3, Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, ID(3), x.ID())
	assert.Equal(t, uint64(0), x.Version())

	require.NoError(t, x.Load([]float32{1, 2, 3, 4}))
	assert.Equal(t, uint64(1), x.Version())
	assert.Equal(t, []float32{1, 2, 3, 4}, x.Data())

	assert.Error(t, x.Load([]float32{1}))
	assert.Equal(t, uint64(1), x.Version(), "failed load must not bump version")
}

func TestTensorZeroGrad(t *testing.T) {
	x, err := New(0, Shape{3})
	require.NoError(t, err)
	copy(x.Grad(), []float32{1, 2, 3})
	x.ZeroGrad()
	assert.Equal(t, []float32{0, 0, 0}, x.Grad())
}

func TestNewRejectsInvalidShape(t *testing.T) {
	_, err := New(0, Shape{2, 0})
	assert.Error(t, err)
}
