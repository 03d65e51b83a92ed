package ops

import (
	"fmt"

	"github.com/born-ml/femtogpt/internal/tensor"
)

// Embedding looks up rows of a [V, D] table by index. Indices are stored as
// float32 token ids; the output has shape [..., D] for indices of shape [...].
// Out-of-range indices produce zero rows and receive no gradient.
//
// Only the table receives gradients.
type Embedding struct{}

// NewEmbedding creates an embedding lookup operator.
func NewEmbedding() *Embedding { return &Embedding{} }

// Name returns the operator name.
func (*Embedding) Name() string { return "embedding" }

// OutputShape returns the index shape extended by D.
func (op *Embedding) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 2); err != nil {
		return nil, err
	}
	if len(ins[1]) != 2 {
		return nil, fmt.Errorf("embedding: table must be 2-D, got %v: %w", ins[1], ErrShapeMismatch)
	}
	out := append(ins[0].Clone(), ins[1][1])
	return out, nil
}

func tokenIndex(v float32, vocab int) (int, bool) {
	t := int(v)
	return t, v >= 0 && t < vocab
}

// Forward copies one table row per index.
func (*Embedding) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	idx, table, o := ins[0].Data(), ins[1].Data(), out.Data()
	vocab, d := ins[1].Shape()[0], ins[1].Shape()[1]
	for p, v := range idx {
		row := o[p*d : (p+1)*d]
		if t, ok := tokenIndex(v, vocab); ok {
			copy(row, table[t*d:(t+1)*d])
		} else {
			clear(row)
		}
	}
}

// Backward accumulates output gradients into the looked-up rows, in
// position order.
func (*Embedding) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	idx, g, tg := ins[0].Data(), out.Grad(), ins[1].Grad()
	vocab, d := ins[1].Shape()[0], ins[1].Shape()[1]
	for p, v := range idx {
		t, ok := tokenIndex(v, vocab)
		if !ok {
			continue
		}
		for c := 0; c < d; c++ {
			tg[t*d+c] += g[p*d+c]
		}
	}
}

// Kernels generates one forward thread per output element. The backward
// kernel runs one thread per table column and walks positions in order, so
// repeated indices never race.
func (*Embedding) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	positions := ins[0].NumElements()
	vocab, d := ins[1][0], ins[1][1]
	vars := map[string]string{"D": u32(d), "V": u32(vocab), "P": u32(positions), "VF": f32(float32(vocab))}
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), positions*d, wgsl(`let c = id % {D};
let v = a[id / {D}];
if (v >= 0.0 && v < {VF}) {
    result[id] = b[u32(v) * {D} + c];
} else {
    result[id] = 0.0;
}`, vars),
				input(0), input(1), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, -1), d, wgsl(`for (var p: u32 = 0u; p < {P}; p = p + 1u) {
    let v = a[p];
    if (v >= 0.0 && v < {VF}) {
        b_grad[u32(v) * {D} + id] += result_grad[p * {D} + id];
    }
}`, vars),
				input(0), inputGrad(1), resultGrad()),
		},
	}
}
