//go:build windows

package webgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/ops"
)

// pipeline returns the cached pipeline of k, compiling its shader on first use.
func (b *Backend) pipeline(k ops.Kernel) (*wgpu.ComputePipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pipelines[k.Name]; ok {
		return p, nil
	}
	shader := b.device.CreateShaderModuleWGSL(k.Source)
	if shader == nil {
		return nil, &graph.DeviceError{Op: "compile", Kernel: k.Name, Err: errors.New("shader module rejected")}
	}
	b.shaders[k.Name] = shader

	p := b.device.CreateComputePipelineSimple(nil, shader, k.Name)
	if p == nil {
		return nil, &graph.DeviceError{Op: "compile", Kernel: k.Name, Err: errors.New("pipeline creation failed")}
	}
	b.pipelines[k.Name] = p
	return p, nil
}

// bindGroup returns the cached bind group of k on node n.
func (b *Backend) bindGroup(n *graph.Node, st *nodeState, k ops.Kernel, p *wgpu.ComputePipeline) (*wgpu.BindGroup, error) {
	if bg, ok := st.bindGroups[k.Name]; ok {
		return bg, nil
	}
	entries := make([]wgpu.BindGroupEntry, len(k.Bindings))
	for i, ref := range k.Bindings {
		buf, size, err := b.resolve(n, st, ref)
		if err != nil {
			return nil, &graph.DeviceError{Op: "bind", Kernel: k.Name, Err: err}
		}
		entries[i] = wgpu.BufferBindingEntry(uint32(i), buf, 0, size)
	}
	bg := b.device.CreateBindGroupSimple(p.GetBindGroupLayout(0), entries)
	st.bindGroups[k.Name] = bg
	return bg, nil
}

func (b *Backend) resolve(n *graph.Node, st *nodeState, ref ops.BufferRef) (*wgpu.Buffer, uint64, error) {
	if ref.Kind == ops.SharedBuffer {
		if ref.Index < 0 || ref.Index >= len(st.shared) {
			return nil, 0, fmt.Errorf("shared buffer %d out of range", ref.Index)
		}
		return st.shared[ref.Index], byteSize(st.group.Shared[ref.Index].Size), nil
	}
	t := n.Output
	if ref.Index != ops.Output {
		if ref.Index < 0 || ref.Index >= len(n.Inputs) {
			return nil, 0, fmt.Errorf("input %d out of range", ref.Index)
		}
		t = n.Inputs[ref.Index]
	}
	bufs := b.values
	if ref.Kind == ops.GradBuffer {
		bufs = b.grads
	}
	return bufs[t.ID()], byteSize(t.Len()), nil
}

// dispatch encodes one compute pass per kernel into a single command buffer
// and queues it.
func (b *Backend) dispatch(n *graph.Node, st *nodeState, kernels []ops.Kernel) (err error) {
	if len(kernels) == 0 {
		return nil
	}
	current := ""
	defer func() {
		if err == nil {
			b.guard("dispatch", current, &err)
		}
	}()

	encoder := b.device.CreateCommandEncoder(nil)
	for _, k := range kernels {
		current = k.Name
		p, err := b.pipeline(k)
		if err != nil {
			return err
		}
		bg, err := b.bindGroup(n, st, k, p)
		if err != nil {
			return err
		}
		x, y := k.Dispatch()
		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(p)
		pass.SetBindGroup(0, bg, nil)
		pass.DispatchWorkgroups(x, y, 1)
		pass.End()
	}
	b.queueCommand(encoder.Finish(nil))
	return nil
}

// write queues a copy of data into dst through a mapped staging buffer.
func (b *Backend) write(dst *wgpu.Buffer, data []float32) (err error) {
	defer b.guard("upload", "", &err)
	raw := make([]byte, byteSize(len(data)))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	staging := b.createBuffer(raw, wgpu.BufferUsageCopySrc)

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, dst, 0, uint64(len(raw)))

	b.pendingMu.Lock()
	b.pendingStaging = append(b.pendingStaging, staging)
	b.pendingMu.Unlock()
	b.queueCommand(encoder.Finish(nil))
	return nil
}

// read copies src into dst through a pooled staging buffer and blocks
// until the copy completes. Pending commands must already be flushed.
func (b *Backend) read(src *wgpu.Buffer, dst []float32) (err error) {
	defer b.guard("readback", "", &err)
	size := byteSize(len(dst))
	staging := b.pool.Acquire(size)
	defer b.pool.Release(staging, size)

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return &graph.DeviceError{Op: "readback", Err: err}
	}
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size)
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(mapped[i*4:]))
	}
	staging.Unmap()
	return nil
}

// createBuffer creates a GPU buffer initialised with data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size), data)
	buffer.Unmap()
	return buffer
}

// queueCommand adds a command buffer to the pending queue, flushing when
// the batch limit is reached.
func (b *Backend) queueCommand(cmd *wgpu.CommandBuffer) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	b.pendingCommands = append(b.pendingCommands, cmd)
	if b.maxBatchSize > 0 && len(b.pendingCommands) >= b.maxBatchSize {
		b.flushCommandsLocked()
	}
}

func (b *Backend) flushCommands() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.flushCommandsLocked()
}

// flushCommandsLocked submits pending commands in order and drops the
// staging buffers they reference (must hold pendingMu).
func (b *Backend) flushCommandsLocked() {
	if len(b.pendingCommands) > 0 {
		b.queue.Submit(b.pendingCommands...)
		b.pendingCommands = b.pendingCommands[:0]
	}
	for _, s := range b.pendingStaging {
		s.Release()
	}
	b.pendingStaging = b.pendingStaging[:0]
}
