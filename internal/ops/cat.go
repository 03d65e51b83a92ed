package ops

import (
	"fmt"
	"strings"

	"github.com/born-ml/femtogpt/internal/tensor"
)

// Cat concatenates its inputs along the last dimension. All inputs must
// agree on the leading dimensions.
type Cat struct{}

// NewCat creates a concatenation operator.
func NewCat() *Cat { return &Cat{} }

// Name returns the operator name.
func (*Cat) Name() string { return "cat" }

// OutputShape returns [..., Σ D_i].
func (op *Cat) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if len(ins) == 0 || len(ins[0]) == 0 {
		return nil, fmt.Errorf("cat: need at least one input with a dimension: %w", ErrShapeMismatch)
	}
	lead := ins[0][:len(ins[0])-1]
	total := 0
	for i, s := range ins {
		if len(s) == 0 || !s[:len(s)-1].Equal(lead) {
			return nil, fmt.Errorf("cat: input %d shape %v does not match %v: %w", i, s, ins[0], ErrShapeMismatch)
		}
		total += s.Last()
	}
	return ins[0].WithLast(total), nil
}

func catWidths(ins []*tensor.Tensor) (widths []int, total int) {
	widths = make([]int, len(ins))
	for i, t := range ins {
		widths[i] = t.Shape().Last()
		total += widths[i]
	}
	return widths, total
}

// Forward copies each input's rows into its column range of the output.
func (*Cat) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	widths, total := catWidths(ins)
	o := out.Data()
	rows := len(o) / total
	off := 0
	for i, in := range ins {
		w, a := widths[i], in.Data()
		for r := 0; r < rows; r++ {
			copy(o[r*total+off:r*total+off+w], a[r*w:(r+1)*w])
		}
		off += w
	}
}

// Backward splits the output gradient back into the inputs.
func (*Cat) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	widths, total := catWidths(ins)
	g := out.Grad()
	rows := len(g) / total
	off := 0
	for i, in := range ins {
		w, ag := widths[i], in.Grad()
		for r := 0; r < rows; r++ {
			for c := 0; c < w; c++ {
				ag[r*w+c] += g[r*total+off+c]
			}
		}
		off += w
	}
}

// Kernels generates a single forward kernel that selects the source input
// per column, and one backward kernel per input.
func (*Cat) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	total := 0
	for _, s := range ins {
		total += s.Last()
	}
	rows := ins[0].Rows()

	var fwd strings.Builder
	fmt.Fprintf(&fwd, "let col = id %% %s;\nlet row = id / %s;\n", u32(total), u32(total))
	bufs := make([]binding, 0, len(ins)+1)
	backward := make([]Kernel, len(ins))
	off := 0
	for i, s := range ins {
		w := s.Last()
		vars := map[string]string{
			"IN": inputName(i), "W": u32(w), "OFF": u32(off), "END": u32(off + w), "T": u32(total),
		}
		if i > 0 {
			fwd.WriteString(" else ")
		}
		fwd.WriteString(wgsl(`if (col < {END}) {
    result[id] = {IN}[row * {W} + col - {OFF}];
}`, vars))
		bufs = append(bufs, input(i))
		backward[i] = kernel(KernelName("grad", out, i), s.NumElements(),
			wgsl("{IN}_grad[id] += result_grad[(id / {W}) * {T} + {OFF} + id % {W}];", vars),
			inputGrad(i), resultGrad())
		off += w
	}
	bufs = append(bufs, result())

	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), rows*total, fwd.String(), bufs...),
		},
		Backward: backward,
	}
}
