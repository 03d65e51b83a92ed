package ops

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/femtogpt/internal/tensor"
)

// Dropout zeroes each element with probability rate during training and
// scales the survivors by 1/(1-rate). The mask is sampled on the host from an
// injected random source and shared with the device through a buffer.
//
// At rate 0, or outside training, the operator is an identity copy; its
// output never aliases the input.
type Dropout struct {
	rate float32
	rng  *rand.Rand
	mask []float32
}

// NewDropout creates a dropout operator drawing masks from rng.
func NewDropout(rate float32, rng *rand.Rand) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropout: rate must be in [0, 1), got %v", rate)
	}
	if rate > 0 && rng == nil {
		return nil, fmt.Errorf("dropout: rate %v requires a random source", rate)
	}
	return &Dropout{rate: rate, rng: rng}, nil
}

// Name returns the operator name.
func (*Dropout) Name() string { return "dropout" }

// Rate returns the drop probability.
func (op *Dropout) Rate() float32 { return op.rate }

// OutputShape returns the input shape.
func (op *Dropout) OutputShape(ins []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(op.Name(), ins, 1); err != nil {
		return nil, err
	}
	return ins[0].Clone(), nil
}

// Resample draws a new mask. Outside training the mask is all ones.
func (op *Dropout) Resample(ins []*tensor.Tensor, training bool) {
	if op.rate == 0 {
		return
	}
	n := ins[0].Len()
	if len(op.mask) != n {
		op.mask = make([]float32, n)
	}
	if !training {
		for i := range op.mask {
			op.mask[i] = 1
		}
		return
	}
	keep := 1 / (1 - op.rate)
	for i := range op.mask {
		if op.rng.Float32() < op.rate {
			op.mask[i] = 0
		} else {
			op.mask[i] = keep
		}
	}
}

// SharedData returns the current mask.
func (op *Dropout) SharedData(int) []float32 {
	return op.mask
}

func (op *Dropout) identity() bool {
	return op.rate == 0 || op.mask == nil
}

// Forward applies the mask, or copies when the operator is an identity.
func (op *Dropout) Forward(ins []*tensor.Tensor, out *tensor.Tensor) {
	a, o := ins[0].Data(), out.Data()
	if op.identity() {
		copy(o, a)
		return
	}
	for i := range o {
		o[i] = a[i] * op.mask[i]
	}
}

// Backward routes gradients through kept elements.
func (op *Dropout) Backward(ins []*tensor.Tensor, out *tensor.Tensor) {
	g, ag := out.Grad(), ins[0].Grad()
	if op.identity() {
		for i := range ag {
			ag[i] += g[i]
		}
		return
	}
	for i := range ag {
		ag[i] += g[i] * op.mask[i]
	}
}

// Kernels generates copy kernels at rate 0 and masked kernels otherwise.
func (op *Dropout) Kernels(out tensor.ID, ins []tensor.Shape) KernelGroup {
	n := ins[0].NumElements()
	if op.rate == 0 {
		return KernelGroup{
			Forward: []Kernel{
				kernel(KernelName("calc", out, -1), n, "result[id] = a[id];",
					input(0), result()),
			},
			Backward: []Kernel{
				kernel(KernelName("grad", out, -1), n, "a_grad[id] += result_grad[id];",
					inputGrad(0), resultGrad()),
			},
		}
	}
	return KernelGroup{
		Forward: []Kernel{
			kernel(KernelName("calc", out, -1), n, "result[id] = a[id] * mask[id];",
				input(0), shared(0, "mask"), result()),
		},
		Backward: []Kernel{
			kernel(KernelName("grad", out, -1), n, "a_grad[id] += result_grad[id] * mask[id];",
				shared(0, "mask"), inputGrad(0), resultGrad()),
		},
		Shared: []Shared{{Name: "mask", Size: n}},
	}
}
