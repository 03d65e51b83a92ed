//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

const (
	stagingUsage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	maxPoolSize  = 16 // max idle buffers per size
)

// StagingPool reuses readback staging buffers. Training reads the same
// tensors every step, so buffers are keyed by exact size.
type StagingPool struct {
	device *wgpu.Device
	idle   map[uint64][]*wgpu.Buffer
	mu     sync.Mutex

	// Statistics
	hits   uint64
	misses uint64
}

// NewStagingPool creates a pool for the given device.
func NewStagingPool(device *wgpu.Device) *StagingPool {
	return &StagingPool{device: device, idle: make(map[uint64][]*wgpu.Buffer)}
}

// Acquire returns an unmapped MapRead|CopyDst buffer of size bytes.
func (p *StagingPool) Acquire(size uint64) *wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if free := p.idle[size]; len(free) > 0 {
		buf := free[len(free)-1]
		p.idle[size] = free[:len(free)-1]
		p.hits++
		return buf
	}
	p.misses++
	return p.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: stagingUsage, Size: size})
}

// Release returns a buffer to the pool, or frees it when the pool is full.
func (p *StagingPool) Release(buf *wgpu.Buffer, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle[size]) >= maxPoolSize {
		buf.Release()
		return
	}
	p.idle[size] = append(p.idle[size], buf)
}

// Clear frees all idle buffers.
func (p *StagingPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for size, free := range p.idle {
		for _, buf := range free {
			buf.Release()
		}
		delete(p.idle, size)
	}
}

// Stats returns pool hit and miss counts.
func (p *StagingPool) Stats() (hits, misses uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}
