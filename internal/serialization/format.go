package serialization

// Format constants.
const (
	MagicBytes      = "FGPT"
	FormatVersion   = 1
	HeaderAlignment = 64   // tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64   // 0x40 bytes
	ChecksumSize    = 32   // SHA-256
	ChecksumOffset  = 0x20 // checksum offset in the fixed header
)

// DTypeFloat32 is the only element type stored.
const DTypeFloat32 = "float32"

// Flags for the checkpoint format.
const (
	FlagHasOptimizer uint32 = 1 << 1 // bit 1: moments included
	FlagHasMetadata  uint32 = 1 << 2 // bit 2: custom metadata included
)

// Header is the JSON header of a checkpoint.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Step          int               `json:"step"`     // completed optimizer steps
	Params        []ParamMeta       `json:"params"`   // in graph creation order
	Metadata      map[string]string `json:"metadata"` // e.g. model configuration
}

// ParamMeta describes one parameter and its optimizer moments.
type ParamMeta struct {
	TensorMeta
	Moments []TensorMeta `json:"moments,omitempty"`
}

// TensorMeta describes one float32 block in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`   // in bytes
}

// blocks lists every data block in the header.
func (h *Header) blocks() []TensorMeta {
	var out []TensorMeta
	for _, p := range h.Params {
		out = append(out, p.TensorMeta)
		out = append(out, p.Moments...)
	}
	return out
}

func alignedOffset(pos int64) int64 {
	return pos + (HeaderAlignment-pos%HeaderAlignment)%HeaderAlignment
}
