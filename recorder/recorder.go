// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package recorder implements the DMA engine's per-batch scratchpad: it
// holds the command buffer being recorded for the current submission, the
// accumulated wait/signal semaphore sets, the post-submission callback
// list, and the read/write buffer hazard sets task Scan methods probe
// against.
package recorder

import "github.com/gogpu/dmaengine/hal"

// Recorder is reset before each batch and discarded (logically emptied)
// once the batch's command buffer has been ended. It is owned exclusively
// by the worker thread — no locking is required.
type Recorder struct {
	cmdBuf hal.CommandBuffer

	waitSemaphores   []hal.SemaphoreWait
	signalSemaphores []hal.SemaphoreHandle
	callbacks        []func()

	readBuffers     map[hal.BufferHandle]struct{}
	writeBuffers    map[hal.BufferHandle]struct{}
	releasedBuffers map[hal.BufferHandle]struct{}

	pending *pendingBarrier
}

// pendingBarrier accumulates consecutive PipelineBarrierTask records that
// share identical src/dst stage masks, so they reach the command buffer as
// one merged command instead of one per task. It is flushed (emitted to
// cmdBuf) as soon as any other kind of command is recorded, or a barrier
// with different stage masks arrives, which preserves command order
// relative to everything else in the batch.
type pendingBarrier struct {
	srcStage       hal.Stage
	dstStage       hal.Stage
	memoryBarriers []hal.MemoryBarrier
	bufferBarriers []hal.BufferMemoryBarrier
}

// New returns an empty recorder.
func New() *Recorder {
	return &Recorder{
		readBuffers:     make(map[hal.BufferHandle]struct{}),
		writeBuffers:    make(map[hal.BufferHandle]struct{}),
		releasedBuffers: make(map[hal.BufferHandle]struct{}),
	}
}

// Begin resets cmd for recording and records a one-time-submit begin.
func (r *Recorder) Begin(cmd hal.CommandBuffer) error {
	if err := cmd.Begin(true); err != nil {
		return err
	}
	r.cmdBuf = cmd
	return nil
}

// End flushes any pending merged barrier and finishes recording the
// current command buffer.
func (r *Recorder) End() error {
	r.flushBarrier()
	return r.cmdBuf.End()
}

// CommandBuffer returns the command buffer being recorded for this batch.
func (r *Recorder) CommandBuffer() hal.CommandBuffer { return r.cmdBuf }

// RecordBufferCopy emits one copy command and returns no value; hazard
// bookkeeping (read/write sets) is the caller task's responsibility via
// MarkRead/MarkWrite, since scan must consult the sets before record runs.
func (r *Recorder) RecordBufferCopy(src, dst hal.BufferHandle, regions []hal.BufferCopyRegion) {
	r.flushBarrier()
	r.cmdBuf.CmdCopyBuffer(src, dst, regions)
}

// RecordPipelineBarrier emits a pipeline-barrier command, merging into an
// already-pending barrier of identical src/dst stage masks (union of
// memory and buffer barrier sets) instead of a second command, per the
// PipelineBarrierTask merge rule. A barrier with different stage masks
// flushes whatever is pending first, so relative ordering is preserved.
func (r *Recorder) RecordPipelineBarrier(srcStage, dstStage hal.Stage, memoryBarriers []hal.MemoryBarrier, bufferBarriers []hal.BufferMemoryBarrier) {
	if r.pending != nil && r.pending.srcStage == srcStage && r.pending.dstStage == dstStage {
		r.pending.memoryBarriers = append(r.pending.memoryBarriers, memoryBarriers...)
		r.pending.bufferBarriers = append(r.pending.bufferBarriers, bufferBarriers...)
		return
	}
	r.flushBarrier()
	r.pending = &pendingBarrier{
		srcStage:       srcStage,
		dstStage:       dstStage,
		memoryBarriers: memoryBarriers,
		bufferBarriers: bufferBarriers,
	}
}

// flushBarrier emits any pending merged barrier to the command buffer. It
// is a no-op if nothing is pending.
func (r *Recorder) flushBarrier() {
	if r.pending == nil {
		return
	}
	p := r.pending
	r.pending = nil
	r.cmdBuf.CmdPipelineBarrier(p.srcStage, p.dstStage, p.memoryBarriers, p.bufferBarriers)
}

// AddWaitSemaphores merges set into the recorder's accumulated wait set.
func (r *Recorder) AddWaitSemaphores(set []hal.SemaphoreWait) {
	r.flushBarrier()
	r.waitSemaphores = append(r.waitSemaphores, set...)
}

// AddSignalSemaphores merges set into the recorder's accumulated signal set.
func (r *Recorder) AddSignalSemaphores(set []hal.SemaphoreHandle) {
	r.flushBarrier()
	r.signalSemaphores = append(r.signalSemaphores, set...)
}

// AddCallback appends fn to the list run once the batch's fence signals.
func (r *Recorder) AddCallback(fn func()) {
	r.flushBarrier()
	r.callbacks = append(r.callbacks, fn)
}

// WaitSemaphores returns the batch's accumulated wait set.
func (r *Recorder) WaitSemaphores() []hal.SemaphoreWait { return r.waitSemaphores }

// SignalSemaphores returns the batch's accumulated signal set.
func (r *Recorder) SignalSemaphores() []hal.SemaphoreHandle { return r.signalSemaphores }

// Callbacks returns the batch's post-submission callback list, in the
// order they were added.
func (r *Recorder) Callbacks() []func() { return r.callbacks }

// HasSignalSemaphores reports whether any signal semaphores have been
// accumulated this batch. Used by WaitSemaphoreTask.Scan: a wait after a
// signal must go in the next submission.
func (r *Recorder) HasSignalSemaphores() bool { return len(r.signalSemaphores) > 0 }

// HasWrittenBuffer reports whether h is in the batch's write set.
func (r *Recorder) HasWrittenBuffer(h hal.BufferHandle) bool {
	_, ok := r.writeBuffers[h]
	return ok
}

// HasReadBuffer reports whether h is in the batch's read set.
func (r *Recorder) HasReadBuffer(h hal.BufferHandle) bool {
	_, ok := r.readBuffers[h]
	return ok
}

// MarkRead adds h to the batch's read set.
func (r *Recorder) MarkRead(h hal.BufferHandle) { r.readBuffers[h] = struct{}{} }

// MarkWrite adds h to the batch's write set.
func (r *Recorder) MarkWrite(h hal.BufferHandle) { r.writeBuffers[h] = struct{}{} }

// HasReleased reports whether a release for h has already been recorded
// this batch. Used by AcquireBufferTask.Scan and ReleaseBufferTask.Scan.
func (r *Recorder) HasReleased(h hal.BufferHandle) bool {
	_, ok := r.releasedBuffers[h]
	return ok
}

// MarkReleased adds h to the batch's released-buffer set.
func (r *Recorder) MarkReleased(h hal.BufferHandle) { r.releasedBuffers[h] = struct{}{} }

// Reset clears all accumulated state, returning the recorder to the state
// of a freshly constructed one (the "idempotent reset" property: Reset
// followed by Begin must be indistinguishable from New followed by Begin).
func (r *Recorder) Reset() {
	r.cmdBuf = nil
	r.pending = nil
	r.waitSemaphores = nil
	r.signalSemaphores = nil
	r.callbacks = nil
	for h := range r.readBuffers {
		delete(r.readBuffers, h)
	}
	for h := range r.writeBuffers {
		delete(r.writeBuffers, h)
	}
	for h := range r.releasedBuffers {
		delete(r.releasedBuffers, h)
	}
}
