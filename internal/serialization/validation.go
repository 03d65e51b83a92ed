package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidateTensorOffsets checks for overlapping blocks and out-of-bounds access.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size),
			}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}

// ValidateTensorName rejects empty, oversized and path-like names.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\\x00") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains a path separator, '..' or a null byte",
		}
	}
	return nil
}

// validateBlock checks that a block holds exactly its shape's float32 values.
func validateBlock(t TensorMeta) error {
	if t.DType != DTypeFloat32 {
		return &ValidationError{Type: "invalid_dtype", Tensor: t.Name, Details: fmt.Sprintf("dtype %q", t.DType)}
	}
	n := int64(1)
	for _, d := range t.Shape {
		if d <= 0 {
			return &ValidationError{Type: "invalid_shape", Tensor: t.Name, Details: fmt.Sprintf("shape %v", t.Shape)}
		}
		n *= int64(d)
	}
	if len(t.Shape) == 0 || t.Size != 4*n {
		return &ValidationError{
			Type:    "size_mismatch",
			Tensor:  t.Name,
			Details: fmt.Sprintf("shape %v needs %d bytes, header says %d", t.Shape, 4*n, t.Size),
		}
	}
	return nil
}

// ValidateHeader checks names, block sizes and offsets against dataSize.
func ValidateHeader(h *Header, dataSize int64) error {
	seen := make(map[string]bool, len(h.Params))
	for _, p := range h.Params {
		if err := ValidateTensorName(p.Name); err != nil {
			return err
		}
		if seen[p.Name] {
			return &ValidationError{Type: "duplicate_name", Tensor: p.Name, Details: "listed twice"}
		}
		seen[p.Name] = true
		if err := validateBlock(p.TensorMeta); err != nil {
			return err
		}
		for _, m := range p.Moments {
			if err := validateBlock(m); err != nil {
				return err
			}
			if m.Size != p.Size {
				return &ValidationError{Type: "size_mismatch", Tensor: m.Name, Tensor2: p.Name, Details: "moment and parameter sizes differ"}
			}
		}
	}
	return ValidateTensorOffsets(h.blocks(), dataSize)
}
