// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package mock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/dmaengine/hal"
)

// Device is an in-memory hal.Device. Buffers are plain byte slices keyed by
// a monotonically increasing handle.
type Device struct {
	mu           sync.Mutex
	nextHandle   uint64
	buffers      map[hal.BufferHandle][]byte
	cmdBuffers   []*CommandBuffer
	jamAllFences atomic.Bool
}

// NewDevice returns a ready-to-use in-memory device.
func NewDevice() *Device {
	return &Device{buffers: make(map[hal.BufferHandle][]byte)}
}

// CreateBuffer allocates a Go byte slice standing in for device memory.
// When desc.Mapped is set the returned slice aliases the buffer's storage,
// matching how a real host-coherent staging allocation would behave.
func (d *Device) CreateBuffer(desc hal.BufferDescriptor) (hal.BufferHandle, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextHandle++
	h := hal.BufferHandle(d.nextHandle)
	data := make([]byte, desc.Size)
	d.buffers[h] = data
	if desc.Mapped {
		return h, data, nil
	}
	return h, nil, nil
}

// DestroyBuffer drops the buffer's backing storage.
func (d *Device) DestroyBuffer(h hal.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, h)
}

// Data returns the current backing storage for h, or nil if unknown.
// Exported for tests that need to inspect buffer contents directly.
func (d *Device) Data(h hal.BufferHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers[h]
}

// CreateCommandPool returns a pool that allocates mock command buffers.
// queueFamily is accepted but unused — the mock has no concept of queue
// families beyond bookkeeping performed by the caller.
func (d *Device) CreateCommandPool(_ int) (hal.CommandPool, error) {
	return &CommandPool{device: d}, nil
}

// CreateFence returns an unsignaled mock fence. If JamAllFences has been
// called, the returned fence is pre-jammed so it never signals.
func (d *Device) CreateFence() (hal.Fence, error) {
	f := &Fence{}
	if d.jamAllFences.Load() {
		f.Jam()
	}
	return f, nil
}

// JamAllFences makes every fence this device creates from now on behave
// as if the GPU never completes its submission, so Wait always times out.
// Exists for tests exercising the fatal-timeout path at the engine level,
// where the fence is created internally and not otherwise reachable.
func (d *Device) JamAllFences() {
	d.jamAllFences.Store(true)
}

// CommandPool is an in-memory hal.CommandPool.
type CommandPool struct {
	device *Device
}

// AllocatePrimary returns a fresh mock command buffer.
func (p *CommandPool) AllocatePrimary() (hal.CommandBuffer, error) {
	cb := &CommandBuffer{device: p.device}
	p.device.mu.Lock()
	p.device.cmdBuffers = append(p.device.cmdBuffers, cb)
	p.device.mu.Unlock()
	return cb, nil
}

// CommandBuffers returns every mock command buffer allocated from any pool
// on this device, in allocation order. Exported for tests that need to
// inspect recorded barrier counts on the buffer the engine is actually
// submitting.
func (d *Device) CommandBuffers() []*CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandBuffer(nil), d.cmdBuffers...)
}

// Reset is a no-op; mock command buffers are cheap to discard and reallocate.
func (p *CommandPool) Reset() error { return nil }

// Destroy is a no-op.
func (p *CommandPool) Destroy() {}

// recordedOp is a deferred command, replayed against the device at Submit
// time so that buffer-copy side effects are visible once the mock fence
// signals, matching real submission semantics.
type recordedOp func(*Device)

// CommandBuffer is an in-memory hal.CommandBuffer. Instead of encoding
// commands into a driver-specific format, it accumulates closures that are
// executed in order when the buffer is submitted.
type CommandBuffer struct {
	device *Device
	ops    []recordedOp

	// BarrierCount counts CmdPipelineBarrier calls, for tests asserting on
	// barrier-elision behavior.
	BarrierCount int
}

// Begin discards any previously recorded ops, mirroring a real command
// buffer reset on begin.
func (c *CommandBuffer) Begin(_ bool) error {
	c.ops = c.ops[:0]
	c.BarrierCount = 0
	return nil
}

// End is a no-op; the mock has no binary encoding to finalize.
func (c *CommandBuffer) End() error { return nil }

// CmdCopyBuffer records a deferred byte-slice copy.
func (c *CommandBuffer) CmdCopyBuffer(src, dst hal.BufferHandle, regions []hal.BufferCopyRegion) {
	regionsCopy := append([]hal.BufferCopyRegion(nil), regions...)
	c.ops = append(c.ops, func(d *Device) {
		d.mu.Lock()
		defer d.mu.Unlock()
		srcData, dstData := d.buffers[src], d.buffers[dst]
		for _, r := range regionsCopy {
			copy(dstData[r.DstOffset:r.DstOffset+r.Size], srcData[r.SrcOffset:r.SrcOffset+r.Size])
		}
	})
}

// CmdPipelineBarrier records the barrier for counting purposes only; the
// mock device has no actual memory ordering to enforce.
func (c *CommandBuffer) CmdPipelineBarrier(_, _ hal.Stage, _ []hal.MemoryBarrier, _ []hal.BufferMemoryBarrier) {
	c.BarrierCount++
}

// Queue is an in-memory hal.Queue. Submit executes every command buffer's
// recorded ops synchronously and signals the fence before returning.
type Queue struct {
	device *Device
}

// NewQueue returns a queue that executes submissions against device.
func NewQueue(device *Device) *Queue {
	return &Queue{device: device}
}

// Submit runs every command buffer's recorded operations in order, then
// signals submission.Fence if one was given.
func (q *Queue) Submit(submission hal.Submission) error {
	for _, cb := range submission.CommandBuffers {
		mock, ok := cb.(*CommandBuffer)
		if !ok {
			continue
		}
		for _, op := range mock.ops {
			op(q.device)
		}
	}
	if submission.Fence != nil {
		if f, ok := submission.Fence.(*Fence); ok {
			f.signal()
		}
	}
	return nil
}

// WaitIdle is a no-op: Submit already runs synchronously.
func (q *Queue) WaitIdle() error { return nil }

// Fence is an in-memory hal.Fence. Submit signals it synchronously, so Wait
// normally returns immediately; tests exercising the timeout path call
// Jam to force every Wait to time out instead.
type Fence struct {
	signaled atomic.Bool
	jammed   atomic.Bool
}

func (f *Fence) signal() {
	if !f.jammed.Load() {
		f.signaled.Store(true)
	}
}

// Jam makes the fence simulate a GPU that never completes its submission,
// so Wait always returns hal.ErrTimeout regardless of elapsed time.
func (f *Fence) Jam() { f.jammed.Store(true) }

// Wait returns nil immediately if the fence is signaled. A jammed fence
// sleeps for timeout and then returns hal.ErrTimeout; an unsignaled fence
// that is not jammed returns hal.ErrTimeout at once, without sleeping.
func (f *Fence) Wait(timeout time.Duration) error {
	if f.signaled.Load() {
		return nil
	}
	if f.jammed.Load() {
		time.Sleep(timeout)
		return hal.ErrTimeout
	}
	return hal.ErrTimeout
}

// Reset returns the fence to the unsignaled state.
func (f *Fence) Reset() error {
	f.signaled.Store(false)
	return nil
}

// Destroy is a no-op.
func (f *Fence) Destroy() {}
