// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package hal defines the abstract hardware-access-layer contract the DMA
// engine records commands against: devices, queues, command pools/buffers,
// fences, and the pipeline-barrier vocabulary (stages, access masks, ownership
// transfers). It holds no concrete backend — a real Vulkan/DX12/Metal binding
// is supplied by the embedding application, exactly as the engine's staging
// buffer and command pool are described only by the operations it performs on
// them (create/destroy/submit/wait), never by a specific driver.
package hal

import "time"

// Stage is a pipeline stage bitmask used in barrier source/destination masks.
type Stage uint32

// Pipeline stages the engine records barriers against.
const (
	StageTopOfPipe Stage = 1 << iota
	StageTransfer
	StageHost
)

// Access is a memory access bitmask used in barrier source/destination masks.
type Access uint32

// Memory access types the engine records barriers against.
const (
	AccessMemoryRead Access = 1 << iota
	AccessMemoryWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
)

// BufferHandle is an opaque, non-owning reference to a caller-managed device
// buffer. The engine never creates or destroys the buffers it operates on;
// it only tracks ownership state keyed by this handle.
type BufferHandle uint64

// SemaphoreHandle is an opaque, non-owning reference to a caller-managed
// binary semaphore. Its lifetime is the caller's responsibility.
type SemaphoreHandle uint64

// MemoryBarrier is a global memory dependency with no buffer scoping.
type MemoryBarrier struct {
	SrcStage  Stage
	DstStage  Stage
	SrcAccess Access
	DstAccess Access
}

// BufferMemoryBarrier scopes a memory dependency to one buffer, optionally
// transferring ownership between queue families (SrcQueueFamily !=
// DstQueueFamily). A family value of QueueFamilyIgnored means no ownership
// transfer is requested on that side of the barrier.
type BufferMemoryBarrier struct {
	Buffer         BufferHandle
	SrcStage       Stage
	DstStage       Stage
	SrcAccess      Access
	DstAccess      Access
	SrcQueueFamily int
	DstQueueFamily int
}

// QueueFamilyIgnored marks a barrier side that performs no ownership
// transfer.
const QueueFamilyIgnored = -1

// BufferCopyRegion describes one contiguous range to copy within a single
// CopyBuffer command.
type BufferCopyRegion struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// CommandPool allocates and recycles primary command buffers on one queue
// family. The engine owns exactly one pool for its transfer queue and only
// the worker thread touches it.
type CommandPool interface {
	// AllocatePrimary returns a new primary command buffer from the pool.
	AllocatePrimary() (CommandBuffer, error)

	// Reset recycles all command buffers allocated from the pool, allowing
	// AllocatePrimary to reuse their storage.
	Reset() error

	// Destroy releases the pool. All command buffers allocated from it
	// become invalid.
	Destroy()
}

// CommandBuffer records a single submission's worth of commands.
type CommandBuffer interface {
	// Begin resets the command buffer for recording. oneTimeSubmit hints
	// that the buffer will be submitted exactly once.
	Begin(oneTimeSubmit bool) error

	// End finishes recording. No further Cmd* calls are valid afterward.
	End() error

	// CmdCopyBuffer records a buffer-to-buffer copy over one or more
	// disjoint regions.
	CmdCopyBuffer(src, dst BufferHandle, regions []BufferCopyRegion)

	// CmdPipelineBarrier records a single pipeline-barrier command.
	CmdPipelineBarrier(srcStage, dstStage Stage, memoryBarriers []MemoryBarrier, bufferBarriers []BufferMemoryBarrier)
}

// Fence is a CPU-observable GPU synchronization primitive, exclusively owned
// and reused by the worker thread across submissions.
type Fence interface {
	// Wait blocks until the fence is signaled or timeout elapses.
	// Returns ErrTimeout on expiry and ErrDeviceLost if the device died
	// while waiting.
	Wait(timeout time.Duration) error

	// Reset returns the fence to the unsignaled state. Must only be called
	// after Wait has returned successfully.
	Reset() error

	// Destroy releases the fence.
	Destroy()
}

// SemaphoreWait pairs a semaphore to wait on with the pipeline stage at
// which the wait applies.
type SemaphoreWait struct {
	Semaphore SemaphoreHandle
	StageMask Stage
}

// Submission bundles everything passed to Queue.Submit for one batch.
type Submission struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []SemaphoreWait
	SignalSemaphores []SemaphoreHandle
	Fence            Fence
}

// Queue is the transfer queue the engine submits command buffers on.
type Queue interface {
	// Submit submits one batch. The call is non-blocking; completion is
	// observed by waiting on submission.Fence.
	Submit(submission Submission) error

	// WaitIdle blocks until all work submitted to the queue has completed.
	// The engine itself never calls it; its worker waits on each batch's
	// fence instead.
	WaitIdle() error
}

// BufferUsage is a bitmask describing how a staging buffer may be used.
type BufferUsage uint32

// Usage flags relevant to a host-visible staging buffer.
const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
)

// BufferDescriptor requests a device buffer from Device.CreateBuffer.
type BufferDescriptor struct {
	Size      uint64
	Usage     BufferUsage
	Mapped    bool
	Exclusive bool
}

// Device creates the resources the engine needs and owns across its
// lifetime: the staging buffer, the command pool, and the fence.
type Device interface {
	// CreateBuffer allocates a device buffer. When desc.Mapped is true and
	// the allocation is host-visible, the returned byte slice aliases the
	// buffer's mapped memory; otherwise it is nil.
	CreateBuffer(desc BufferDescriptor) (BufferHandle, []byte, error)

	// DestroyBuffer releases a buffer created by CreateBuffer.
	DestroyBuffer(buffer BufferHandle)

	// CreateCommandPool creates a command pool bound to the given queue
	// family, capable of resetting individual command buffers.
	CreateCommandPool(queueFamily int) (CommandPool, error)

	// CreateFence creates an unsignaled fence.
	CreateFence() (Fence, error)
}
