package ops

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/femtogpt/internal/tensor"
)

// WorkgroupSize is the workgroup size of generated kernels.
const WorkgroupSize = 32

// MaxWorkgroupsPerDim is the WebGPU limit on workgroups per dispatch dimension.
const MaxWorkgroupsPerDim = 65535

// maskValue stands in for -inf in masked attention scores.
const maskValue = -1e30

// BufferKind selects which buffer a kernel binding refers to.
type BufferKind int

// Buffer kinds.
const (
	ValueBuffer BufferKind = iota
	GradBuffer
	SharedBuffer
)

// Output is the BufferRef index addressing the operator's output tensor.
const Output = -1

// BufferRef identifies one kernel binding. Index is an input position or
// Output for Value/Grad buffers, and a KernelGroup.Shared index for shared
// buffers.
type BufferRef struct {
	Kind  BufferKind
	Index int
}

// Kernel is one generated compute shader.
type Kernel struct {
	Name          string      // entry point, calc_<id>[_k] or grad_<id>[_k]
	Source        string      // WGSL source
	Bindings      []BufferRef // binding i of group 0
	WorkgroupSize int
	Works         int // number of invocations that do work
}

// Dispatch returns the workgroup grid. Grids wider than MaxWorkgroupsPerDim
// wrap into a second dimension; kernels linearise the id with the same stride.
func (k Kernel) Dispatch() (x, y uint32) {
	return dispatchDims(k.Works, k.WorkgroupSize)
}

// Shared describes a device buffer owned by one operator instance.
type Shared struct {
	Name string
	Size int // in float32 elements
}

// KernelGroup is the device program of one operator instance.
type KernelGroup struct {
	Forward  []Kernel
	Backward []Kernel
	Shared   []Shared
}

func dispatchDims(works, wg int) (x, y uint32) {
	groups := max((works+wg-1)/wg, 1)
	if groups <= MaxWorkgroupsPerDim {
		return uint32(groups), 1
	}
	rows := (groups + MaxWorkgroupsPerDim - 1) / MaxWorkgroupsPerDim
	return MaxWorkgroupsPerDim, uint32(rows)
}

// KernelName derives a kernel entry point from the owning node's output ID.
// part numbers kernels of a multi-kernel group and is ignored when < 0.
func KernelName(prefix string, id tensor.ID, part int) string {
	if part < 0 {
		return fmt.Sprintf("%s_%d", prefix, id)
	}
	return fmt.Sprintf("%s_%d_%d", prefix, id, part)
}

// binding pairs a WGSL variable name with the buffer it binds.
type binding struct {
	name string
	ref  BufferRef
}

func result() binding     { return binding{"result", BufferRef{ValueBuffer, Output}} }
func resultGrad() binding { return binding{"result_grad", BufferRef{GradBuffer, Output}} }

func input(i int) binding {
	return binding{inputName(i), BufferRef{ValueBuffer, i}}
}

func inputGrad(i int) binding {
	return binding{inputName(i) + "_grad", BufferRef{GradBuffer, i}}
}

func shared(i int, name string) binding {
	return binding{name, BufferRef{SharedBuffer, i}}
}

func inputName(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return "in" + strconv.Itoa(i)
}

// kernel emits a compute shader whose body runs once per id < works.
// Every storage buffer is declared read_write: auto-derived layouts must
// agree between kernels sharing a buffer.
func kernel(name string, works int, body string, bufs ...binding) Kernel {
	x, _ := dispatchDims(works, WorkgroupSize)

	var sb strings.Builder
	refs := make([]BufferRef, len(bufs))
	for i, b := range bufs {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read_write> %s: array<f32>;\n", i, b.name)
		refs[i] = b.ref
	}
	fmt.Fprintf(&sb, "\n@compute @workgroup_size(%d)\n", WorkgroupSize)
	fmt.Fprintf(&sb, "fn %s(@builtin(global_invocation_id) gid: vec3<u32>) {\n", name)
	fmt.Fprintf(&sb, "    let id = gid.x + gid.y * %du;\n", int(x)*WorkgroupSize)
	fmt.Fprintf(&sb, "    if (id < %du) {\n", works)
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		if line == "" {
			sb.WriteString("\n")
			continue
		}
		sb.WriteString("        ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("    }\n}\n")

	return Kernel{
		Name:          name,
		Source:        sb.String(),
		Bindings:      refs,
		WorkgroupSize: WorkgroupSize,
		Works:         works,
	}
}

// f32 formats a WGSL float literal.
func f32(v float32) string {
	return strconv.FormatFloat(float64(v), 'e', -1, 32)
}

// u32 formats a WGSL unsigned literal.
func u32(v int) string {
	return strconv.Itoa(v) + "u"
}

// wgsl expands {name} placeholders in a kernel body template.
func wgsl(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
