package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/optim"
	"github.com/born-ml/femtogpt/internal/tensor"
)

// Decode reads a checkpoint written by Encode. The data section is
// verified against its checksum before anything is returned.
func Decode(r io.Reader) (*graph.TrainingState, map[string]string, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidMagic, fixed[0:4])
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var stored [32]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, nil, ErrHeaderTooLarge
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("failed to read header JSON: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if header.FormatVersion != FormatVersion {
		return nil, nil, fmt.Errorf("%w: header says %d", ErrUnsupportedVersion, header.FormatVersion)
	}
	if dataSize > math.MaxInt64 {
		return nil, nil, &ValidationError{Type: "out_of_bounds", Details: fmt.Sprintf("data size %d", dataSize)}
	}
	if err := ValidateHeader(&header, int64(dataSize)); err != nil {
		return nil, nil, err
	}

	pos := int64(FixedHeaderSize) + int64(headerSize)
	if _, err := io.CopyN(io.Discard, r, alignedOffset(pos)-pos); err != nil {
		return nil, nil, fmt.Errorf("failed to skip padding: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(dataSize)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if uint64(len(data)) != dataSize {
		return nil, nil, fmt.Errorf("tensor data truncated: %d of %d bytes: %w", len(data), dataSize, io.ErrUnexpectedEOF)
	}
	if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
		return nil, nil, err
	}

	ts := &graph.TrainingState{
		Params:    make([]graph.NamedTensor, len(header.Params)),
		Optimizer: optim.State{Step: header.Step, Params: make([]optim.ParamState, len(header.Params))},
	}
	for i, p := range header.Params {
		ts.Params[i] = graph.NamedTensor{
			Name:  p.Name,
			Shape: tensor.Shape(append([]int(nil), p.Shape...)),
			Data:  floats(data, p.TensorMeta),
		}
		for _, m := range p.Moments {
			ts.Optimizer.Params[i].Moments = append(ts.Optimizer.Params[i].Moments, floats(data, m))
		}
	}
	return ts, header.Metadata, nil
}

func floats(data []byte, t TensorMeta) []float32 {
	block := data[t.Offset : t.Offset+t.Size]
	out := make([]float32, len(block)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(block[i*4:]))
	}
	return out
}
