// Package serialization implements the checkpoint format for training states.
//
// A checkpoint holds every parameter of a graph, in creation order, plus the
// optimizer step counter and per-parameter moments:
//
//	Format Structure:
//	  [0x00-0x03: Magic "FGPT"]
//	  [0x04-0x07: Version (uint32 LE)]
//	  [0x08-0x0B: Flags (uint32 LE)]
//	  [0x0C-0x0F: Reserved]
//	  [0x10-0x17: Header Size (uint64 LE)]
//	  [0x18-0x1F: Data Size (uint64 LE)]
//	  [0x20-0x3F: SHA-256 of the data section]
//	  [Header: JSON metadata]
//	  [Tensor data: little-endian float32, section 64-byte aligned]
//
// Example usage:
//
//	ts, _ := g.TrainingState()
//	if err := serialization.Encode(w, ts, map[string]string{"model": "gpt"}); err != nil {
//	    return err
//	}
//
//	ts, meta, err := serialization.Decode(r)
//	if err != nil {
//	    return err
//	}
//	err = g.SetTrainingState(ts, true)
package serialization
