package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/born-ml/femtogpt/internal/graph"
)

// Encode writes ts and metadata to w. Nothing is written if the state is
// malformed.
func Encode(w io.Writer, ts *graph.TrainingState, metadata map[string]string) error {
	if ts == nil {
		return fmt.Errorf("encode: nil training state")
	}
	if n := len(ts.Optimizer.Params); n != 0 && n != len(ts.Params) {
		return fmt.Errorf("encode: %d optimizer entries for %d parameters", n, len(ts.Params))
	}

	header := Header{
		FormatVersion: FormatVersion,
		Step:          ts.Optimizer.Step,
		Params:        make([]ParamMeta, len(ts.Params)),
		Metadata:      metadata,
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	var blocks [][]float32
	var offset int64
	add := func(name string, shape []int, data []float32) TensorMeta {
		meta := TensorMeta{
			Name:   name,
			DType:  DTypeFloat32,
			Shape:  shape,
			Offset: offset,
			Size:   int64(len(data)) * 4,
		}
		offset += meta.Size
		blocks = append(blocks, data)
		return meta
	}

	hasMoments := false
	for i, p := range ts.Params {
		shape := []int(p.Shape)
		pm := ParamMeta{TensorMeta: add(p.Name, shape, p.Data)}
		if i < len(ts.Optimizer.Params) {
			for k, m := range ts.Optimizer.Params[i].Moments {
				pm.Moments = append(pm.Moments, add(momentName(p.Name, k), shape, m))
				hasMoments = true
			}
		}
		header.Params[i] = pm
	}
	if err := ValidateHeader(&header, offset); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	data := make([]byte, offset)
	pos := 0
	for _, b := range blocks {
		for _, v := range b {
			binary.LittleEndian.PutUint32(data[pos:], math.Float32bits(v))
			pos += 4
		}
	}
	checksum := ComputeChecksum(data)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	flags := uint32(0)
	if hasMoments {
		flags |= FlagHasOptimizer
	}
	if len(metadata) > 0 {
		flags |= FlagHasMetadata
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	pos64 := int64(FixedHeaderSize) + int64(len(headerJSON))
	padding := make([]byte, alignedOffset(pos64)-pos64)

	for _, part := range [][]byte{fixed, headerJSON, padding, data} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("failed to write checkpoint: %w", err)
		}
	}
	return nil
}

func momentName(param string, k int) string {
	return fmt.Sprintf("%s:moment%d", param, k)
}
