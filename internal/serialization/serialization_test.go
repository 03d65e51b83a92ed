package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/optim"
	"github.com/born-ml/femtogpt/internal/tensor"
)

func sampleState() *graph.TrainingState {
	return &graph.TrainingState{
		Params: []graph.NamedTensor{
			{Name: "token_embedding", Shape: tensor.Shape{3, 2}, Data: []float32{0.5, -1, 2, 3.25, -0.125, 7}},
			{Name: "head.bias", Shape: tensor.Shape{2}, Data: []float32{1e-7, -3e8}},
		},
		Optimizer: optim.State{
			Step: 42,
			Params: []optim.ParamState{
				{Moments: [][]float32{{1, 2, 3, 4, 5, 6}, {0.1, 0.2, 0.3, 0.4, 0.5, 0.6}}},
				{Moments: [][]float32{{9, 8}, {7, 6}}},
			},
		},
	}
}

func encode(t *testing.T, ts *graph.TrainingState, meta map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, ts, meta))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	ts := sampleState()
	raw := encode(t, ts, map[string]string{"num_layers": "4"})

	assert.Equal(t, MagicBytes, string(raw[:4]))
	assert.Equal(t, uint32(FormatVersion), binary.LittleEndian.Uint32(raw[4:8]))
	flags := binary.LittleEndian.Uint32(raw[8:12])
	assert.NotZero(t, flags&FlagHasOptimizer)
	assert.NotZero(t, flags&FlagHasMetadata)

	headerSize := int64(binary.LittleEndian.Uint64(raw[16:24]))
	dataSize := int64(binary.LittleEndian.Uint64(raw[24:32]))
	dataStart := alignedOffset(FixedHeaderSize + headerSize)
	assert.Zero(t, dataStart%HeaderAlignment)
	assert.Equal(t, dataStart+dataSize, int64(len(raw)))

	got, meta, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, ts, got)
	assert.Equal(t, map[string]string{"num_layers": "4"}, meta)
}

func TestRoundTripWithoutMoments(t *testing.T) {
	ts := sampleState()
	ts.Optimizer = optim.State{}
	raw := encode(t, ts, nil)
	assert.Zero(t, binary.LittleEndian.Uint32(raw[8:12])&FlagHasOptimizer)

	got, _, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, ts.Params, got.Params)
	assert.Zero(t, got.Optimizer.Step)
	require.Len(t, got.Optimizer.Params, 2)
	assert.Empty(t, got.Optimizer.Params[0].Moments)
}

func TestEncodeIsDeterministic(t *testing.T) {
	a := encode(t, sampleState(), map[string]string{"k": "v"})
	b := encode(t, sampleState(), map[string]string{"k": "v"})
	assert.Equal(t, a, b)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	raw := encode(t, sampleState(), nil)

	t.Run("checksum", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[len(bad)-1] ^= 0xff
		_, _, err := Decode(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("magic", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		copy(bad, "BORN")
		_, _, err := Decode(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		binary.LittleEndian.PutUint32(bad[4:8], 9)
		_, _, err := Decode(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		_, _, err := Decode(bytes.NewReader(raw[:len(raw)-4]))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("header too large", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		binary.LittleEndian.PutUint64(bad[16:24], MaxHeaderSize+1)
		_, _, err := Decode(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrHeaderTooLarge)
	})

	t.Run("data size too small", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		binary.LittleEndian.PutUint64(bad[24:32], 8)
		_, _, err := Decode(bytes.NewReader(bad))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)
		assert.Equal(t, "out_of_bounds", verr.Type)
	})
}

func TestEncodeRejectsMalformedState(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*graph.TrainingState)
	}{
		{"duplicate name", func(ts *graph.TrainingState) { ts.Params[1].Name = ts.Params[0].Name }},
		{"path name", func(ts *graph.TrainingState) { ts.Params[0].Name = "../weights" }},
		{"short data", func(ts *graph.TrainingState) { ts.Params[1].Data = ts.Params[1].Data[:1] }},
		{"short moment", func(ts *graph.TrainingState) { ts.Optimizer.Params[0].Moments[1] = []float32{1} }},
		{"optimizer count", func(ts *graph.TrainingState) { ts.Optimizer.Params = ts.Optimizer.Params[:1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := sampleState()
			tt.mutate(ts)
			var buf bytes.Buffer
			assert.Error(t, Encode(&buf, ts, nil))
			assert.Zero(t, buf.Len())
		})
	}
}

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name     string
		tensors  []TensorMeta
		dataSize int64
		wantType string
	}{
		{
			name:     "exact boundary",
			tensors:  []TensorMeta{{Name: "a", Offset: 0, Size: 100}, {Name: "b", Offset: 100, Size: 100}},
			dataSize: 200,
		},
		{
			name:     "overlap",
			tensors:  []TensorMeta{{Name: "a", Offset: 0, Size: 100}, {Name: "b", Offset: 99, Size: 100}},
			dataSize: 200,
			wantType: "offset_overlap",
		},
		{
			name:     "out of bounds",
			tensors:  []TensorMeta{{Name: "a", Offset: 150, Size: 100}},
			dataSize: 200,
			wantType: "out_of_bounds",
		},
		{
			name:     "negative",
			tensors:  []TensorMeta{{Name: "a", Offset: -4, Size: 4}},
			dataSize: 200,
			wantType: "negative_offset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, tt.dataSize)
			if tt.wantType == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.wantType, verr.Type)
		})
	}
}

func TestValidateTensorName(t *testing.T) {
	assert.NoError(t, ValidateTensorName("layer_0.attn.head_1.query"))
	for _, bad := range []string{"", "a/b", `a\b`, "..", "a\x00b", string(make([]byte, MaxTensorNameLen+1))} {
		assert.Error(t, ValidateTensorName(bad), "%q", bad)
	}
}
