//go:build windows

package webgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"k8s.io/klog/v2"

	"github.com/born-ml/femtogpt/internal/graph"
	"github.com/born-ml/femtogpt/internal/ops"
	"github.com/born-ml/femtogpt/internal/tensor"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// nodeState is the device program of one graph node.
type nodeState struct {
	group      ops.KernelGroup
	shared     []*wgpu.Buffer
	bindGroups map[string]*wgpu.BindGroup
}

// Backend runs graph nodes as WGSL compute kernels. Tensor values and
// gradients live in device buffers; host buffers are refreshed on Download.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache, keyed by kernel name
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.Mutex

	adapterInfo *wgpu.AdapterInfoGo

	values map[tensor.ID]*wgpu.Buffer
	grads  map[tensor.ID]*wgpu.Buffer
	nodes  map[tensor.ID]*nodeState

	// zero is a zero-filled copy source for ZeroGrad, grown on demand.
	zero     *wgpu.Buffer
	zeroSize uint64

	pool *StagingPool

	// Command batching: commands are submitted together on flush.
	pendingCommands []*wgpu.CommandBuffer
	pendingStaging  []*wgpu.Buffer
	pendingMu       sync.Mutex
	maxBatchSize    int
}

var _ graph.Backend = (*Backend)(nil)

// New creates a new WebGPU backend on the high-performance adapter.
// Returns an error wrapping ErrUnavailable if WebGPU cannot be initialised.
func New() (backend *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrUnavailable, instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrUnavailable, adapterErr)
	}

	adapterInfo, infoErr := adapter.GetInfo()
	if infoErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: adapter info: %w", ErrUnavailable, infoErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrUnavailable, deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", ErrUnavailable)
	}

	klog.V(2).Info("WebGPU adapter selected", "device", adapterInfo.Device, "vendor", adapterInfo.Vendor)

	return &Backend{
		instance:     instance,
		adapter:      adapter,
		device:       device,
		queue:        queue,
		shaders:      make(map[string]*wgpu.ShaderModule),
		pipelines:    make(map[string]*wgpu.ComputePipeline),
		adapterInfo:  adapterInfo,
		values:       make(map[tensor.ID]*wgpu.Buffer),
		grads:        make(map[tensor.ID]*wgpu.Buffer),
		nodes:        make(map[tensor.ID]*nodeState),
		pool:         NewStagingPool(device),
		maxBatchSize: 64,
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// Name returns the backend name.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", b.adapterInfo.Device, b.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// AdapterInfo returns information about the GPU adapter.
func (b *Backend) AdapterInfo() *wgpu.AdapterInfoGo {
	return b.adapterInfo
}

// SetMaxBatchSize sets the number of queued commands that triggers a flush.
// 0 disables the limit.
func (b *Backend) SetMaxBatchSize(size int) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.maxBatchSize = size
}

// PoolStats returns readback staging pool hits and misses.
func (b *Backend) PoolStats() (hits, misses uint64) {
	return b.pool.Stats()
}

// Register allocates the value and gradient buffers of t.
func (b *Backend) Register(t *tensor.Tensor) (err error) {
	defer b.guard("allocate", "", &err)
	size := byteSize(t.Len())
	b.values[t.ID()] = b.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: storageUsage, Size: size})
	b.grads[t.ID()] = b.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: storageUsage, Size: size})
	return nil
}

// Compile generates the node's kernels and allocates its shared buffers.
// Pipelines are built on first dispatch.
func (b *Backend) Compile(n *graph.Node) (err error) {
	defer b.guard("compile", "", &err)
	id := n.Output.ID()
	seen := make(map[tensor.ID]bool, len(n.Inputs))
	for _, in := range n.Inputs {
		if seen[in.ID()] {
			return &graph.DeviceError{
				Op:     "compile",
				Kernel: ops.KernelName("calc", id, -1),
				Err:    fmt.Errorf("tensor %d: %w", in.ID(), ErrAliasedInput),
			}
		}
		seen[in.ID()] = true
	}
	group := n.Op.Kernels(id, n.InputShapes())
	st := &nodeState{group: group, bindGroups: make(map[string]*wgpu.BindGroup)}
	for _, s := range group.Shared {
		st.shared = append(st.shared, b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: storageUsage,
			Size:  byteSize(s.Size),
		}))
	}
	b.nodes[id] = st
	return nil
}

// Forward publishes host-sampled shared data, then queues the node's
// forward kernels.
func (b *Backend) Forward(n *graph.Node) error {
	st, err := b.state(n)
	if err != nil {
		return err
	}
	if src, ok := n.Op.(ops.SharedSource); ok {
		for i, buf := range st.shared {
			data := src.SharedData(i)
			if data == nil {
				continue
			}
			if err := b.write(buf, data); err != nil {
				return err
			}
		}
	}
	return b.dispatch(n, st, st.group.Forward)
}

// Backward queues the node's backward kernels.
func (b *Backend) Backward(n *graph.Node) error {
	st, err := b.state(n)
	if err != nil {
		return err
	}
	return b.dispatch(n, st, st.group.Backward)
}

// Upload copies the host value buffer of t to the device.
func (b *Backend) Upload(t *tensor.Tensor) error {
	return b.write(b.values[t.ID()], t.Data())
}

// SeedGrad copies the host gradient buffer of t to the device.
func (b *Backend) SeedGrad(t *tensor.Tensor) error {
	return b.write(b.grads[t.ID()], t.Grad())
}

// Download flushes pending work and reads the value or gradient of t back
// into its host buffer.
func (b *Backend) Download(t *tensor.Tensor, grad bool) error {
	src, dst := b.values[t.ID()], t.Data()
	if grad {
		src, dst = b.grads[t.ID()], t.Grad()
	}
	b.flushCommands()
	return b.read(src, dst)
}

// ZeroGrad queues copies from a zero buffer into every gradient buffer.
func (b *Backend) ZeroGrad(ts []*tensor.Tensor) (err error) {
	defer b.guard("zero", "", &err)
	var need uint64
	for _, t := range ts {
		need = max(need, byteSize(t.Len()))
	}
	if need == 0 {
		return nil
	}
	b.ensureZero(need)

	encoder := b.device.CreateCommandEncoder(nil)
	for _, t := range ts {
		encoder.CopyBufferToBuffer(b.zero, 0, b.grads[t.ID()], 0, byteSize(t.Len()))
	}
	b.queueCommand(encoder.Finish(nil))
	return nil
}

// Sync submits pending work and waits for the device to drain it.
func (b *Backend) Sync() (err error) {
	defer b.guard("sync", "", &err)
	b.flushCommands()
	b.ensureZero(4)
	return b.read(b.zero, make([]float32, 1))
}

// Release releases all WebGPU resources.
func (b *Backend) Release() {
	b.flushCommands()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pool != nil {
		b.pool.Clear()
		b.pool = nil
	}
	for _, st := range b.nodes {
		for _, bg := range st.bindGroups {
			bg.Release()
		}
		for _, buf := range st.shared {
			buf.Release()
		}
	}
	b.nodes = nil
	for _, buf := range b.values {
		buf.Release()
	}
	for _, buf := range b.grads {
		buf.Release()
	}
	b.values, b.grads = nil, nil
	if b.zero != nil {
		b.zero.Release()
		b.zero = nil
	}

	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil
	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

func (b *Backend) state(n *graph.Node) (*nodeState, error) {
	st, ok := b.nodes[n.Output.ID()]
	if !ok {
		return nil, &graph.DeviceError{Op: "dispatch", Err: fmt.Errorf("node %d was not compiled", n.Output.ID())}
	}
	return st, nil
}

func (b *Backend) ensureZero(size uint64) {
	if b.zeroSize >= size {
		return
	}
	if b.zero != nil {
		b.zero.Release()
	}
	b.zero = b.createBuffer(make([]byte, size), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	b.zeroSize = size
}

// guard converts a panic raised inside the native bindings into a
// DeviceError stored in *err.
func (b *Backend) guard(op, kernel string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	cause, ok := r.(error)
	if !ok {
		cause = errors.New(fmt.Sprint(r))
	}
	*err = &graph.DeviceError{Op: op, Kernel: kernel, Err: cause}
}

func byteSize(n int) uint64 {
	return uint64(max(n, 1)) * 4
}
