// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package task implements the DMA engine's tagged task variants:
// AcquireBuffer, ReleaseBuffer, BufferCopy, PipelineBarrier, WaitSemaphore,
// SignalSemaphore, and Callback. Each variant implements Scan (a conflict
// probe run while the worker is building a batch), Record (emit commands
// and side effects into the recorder), and OnCompleted (run once the
// batch's fence signals).
package task

import "github.com/gogpu/dmaengine/hal"

// Task is one unit of work the worker pulls off the queue. Implementations
// are boxed tagged variants, not a mutable shared base class — each method
// dispatches over the concrete type.
type Task interface {
	// Scan probes whether this task can be appended to the batch given the
	// recorder's currently accumulated state. Returning false ends the
	// batch before this task; the task is left at the head of the queue
	// for the next batch.
	Scan(rec Recorder) bool

	// Record appends this task's commands and side effects into the
	// recorder. Only called immediately after a successful Scan.
	Record(rec Recorder)

	// OnCompleted runs once the batch's fence has signaled, in FIFO order
	// with the other tasks consumed in the same batch, before the
	// recorder's own callback list runs.
	OnCompleted()
}

// Recorder is the subset of recorder.Recorder that task variants need.
// Defining it here (rather than importing the recorder package directly)
// keeps task free of a dependency cycle, since recorder has no reason to
// know about task.
type Recorder interface {
	RecordBufferCopy(src, dst hal.BufferHandle, regions []hal.BufferCopyRegion)
	RecordPipelineBarrier(srcStage, dstStage hal.Stage, memoryBarriers []hal.MemoryBarrier, bufferBarriers []hal.BufferMemoryBarrier)
	AddWaitSemaphores(set []hal.SemaphoreWait)
	AddSignalSemaphores(set []hal.SemaphoreHandle)
	AddCallback(fn func())
	HasWrittenBuffer(h hal.BufferHandle) bool
	HasReadBuffer(h hal.BufferHandle) bool
	MarkRead(h hal.BufferHandle)
	MarkWrite(h hal.BufferHandle)
	HasReleased(h hal.BufferHandle) bool
	MarkReleased(h hal.BufferHandle)
	HasSignalSemaphores() bool
}

// AcquireBufferTask records the ownership-acquisition half of a cross-queue
// buffer transfer: it waits on semaphores signaled by the releasing queue
// and, when SrcQueueFamily differs from DstQueueFamily, emits the matching
// half of the ownership-transfer barrier.
type AcquireBufferTask struct {
	Buffer         hal.BufferHandle
	SrcQueueFamily int
	DstQueueFamily int
	WaitSemaphores *Handle[[]hal.SemaphoreWait]
	Callback       func()
}

// Scan always succeeds unless its wait-semaphore handle is not yet armed or
// a release for the same buffer is already recorded in this batch.
func (t *AcquireBufferTask) Scan(rec Recorder) bool {
	if t.WaitSemaphores != nil && !t.WaitSemaphores.Ready() {
		return false
	}
	return !rec.HasReleased(t.Buffer)
}

// Record adds any wait semaphores and, on a cross-queue acquire, the
// TOP_OF_PIPE→TRANSFER / MEMORY_*→TRANSFER_* ownership-transfer barrier.
func (t *AcquireBufferTask) Record(rec Recorder) {
	if t.WaitSemaphores != nil {
		rec.AddWaitSemaphores(t.WaitSemaphores.Get())
	}
	if t.SrcQueueFamily != t.DstQueueFamily {
		rec.RecordPipelineBarrier(
			hal.StageTopOfPipe, hal.StageTransfer,
			nil,
			[]hal.BufferMemoryBarrier{{
				Buffer:         t.Buffer,
				SrcStage:       hal.StageTopOfPipe,
				DstStage:       hal.StageTransfer,
				SrcAccess:      hal.AccessMemoryRead | hal.AccessMemoryWrite,
				DstAccess:      hal.AccessTransferRead | hal.AccessTransferWrite,
				SrcQueueFamily: t.SrcQueueFamily,
				DstQueueFamily: t.DstQueueFamily,
			}},
		)
	}
}

// OnCompleted invokes the caller-supplied callback, if any.
func (t *AcquireBufferTask) OnCompleted() {
	if t.Callback != nil {
		t.Callback()
	}
}

// ReleaseBufferTask records the ownership-release half of a cross-queue
// buffer transfer: the inverse barrier plus any signal semaphores the
// acquiring queue will wait on.
//
// This fused form is the single-task release described above. The engine's
// public ReleaseBuffer operation does not use it fused: it enqueues a
// signal-less, callback-less ReleaseBufferTask for the barrier (cross-queue
// only), followed by separate SignalSemaphore and Callback tasks (see
// engine.go). The fused form with signals and a callback remains available
// as a general-purpose building block.
type ReleaseBufferTask struct {
	Buffer           hal.BufferHandle
	SrcQueueFamily   int
	DstQueueFamily   int
	SignalSemaphores *Handle[[]hal.SemaphoreHandle]
	Callback         func()
}

// Scan refuses to run in a batch that has already recorded both a release
// and a subsequent write for the same buffer (a write-after-release hazard).
func (t *ReleaseBufferTask) Scan(rec Recorder) bool {
	if t.SignalSemaphores != nil && !t.SignalSemaphores.Ready() {
		return false
	}
	return !(rec.HasReleased(t.Buffer) && rec.HasWrittenBuffer(t.Buffer))
}

// Record emits the inverse ownership-transfer barrier (TRANSFER→TOP_OF_PIPE,
// TRANSFER_*→MEMORY_*) and adds any signal semaphores.
func (t *ReleaseBufferTask) Record(rec Recorder) {
	if t.SrcQueueFamily != t.DstQueueFamily {
		rec.RecordPipelineBarrier(
			hal.StageTransfer, hal.StageTopOfPipe,
			nil,
			[]hal.BufferMemoryBarrier{{
				Buffer:         t.Buffer,
				SrcStage:       hal.StageTransfer,
				DstStage:       hal.StageTopOfPipe,
				SrcAccess:      hal.AccessTransferRead | hal.AccessTransferWrite,
				DstAccess:      hal.AccessMemoryRead | hal.AccessMemoryWrite,
				SrcQueueFamily: t.SrcQueueFamily,
				DstQueueFamily: t.DstQueueFamily,
			}},
		)
	}
	if t.SignalSemaphores != nil {
		rec.AddSignalSemaphores(t.SignalSemaphores.Get())
	}
	rec.MarkReleased(t.Buffer)
}

// OnCompleted invokes the caller-supplied callback, if any.
func (t *ReleaseBufferTask) OnCompleted() {
	if t.Callback != nil {
		t.Callback()
	}
}

// BufferCopyTask copies one or more disjoint regions from src to dst.
type BufferCopyTask struct {
	Src, Dst hal.BufferHandle
	Regions  []hal.BufferCopyRegion
}

// Scan fails on a WAR/RAW hazard: dst already in the batch's read set, or
// src already in the batch's write set.
func (t *BufferCopyTask) Scan(rec Recorder) bool {
	return !(rec.HasReadBuffer(t.Dst) || rec.HasWrittenBuffer(t.Src))
}

// Record emits the copy command and marks src read, dst written.
func (t *BufferCopyTask) Record(rec Recorder) {
	rec.RecordBufferCopy(t.Src, t.Dst, t.Regions)
	rec.MarkRead(t.Src)
	rec.MarkWrite(t.Dst)
}

// OnCompleted is a no-op; BufferCopyTask has no per-task callback.
func (t *BufferCopyTask) OnCompleted() {}

// PipelineBarrierTask records a standalone pipeline barrier, used by the
// engine's TransferBufferFromHost, TransferBufferToHost and TransferBuffer
// to order memory access without an ownership transfer.
type PipelineBarrierTask struct {
	SrcStage       hal.Stage
	DstStage       hal.Stage
	MemoryBarriers []hal.MemoryBarrier
	BufferBarriers []hal.BufferMemoryBarrier
}

// Scan always succeeds.
func (t *PipelineBarrierTask) Scan(Recorder) bool { return true }

// Record emits one pipeline-barrier command.
func (t *PipelineBarrierTask) Record(rec Recorder) {
	rec.RecordPipelineBarrier(t.SrcStage, t.DstStage, t.MemoryBarriers, t.BufferBarriers)
}

// OnCompleted is a no-op.
func (t *PipelineBarrierTask) OnCompleted() {}

// WaitSemaphoreTask merges a set of semaphore waits into the batch.
type WaitSemaphoreTask struct {
	Set *Handle[[]hal.SemaphoreWait]
}

// Scan fails if the handle is not yet armed, or if the recorder already has
// any signal semaphores accumulated — a wait after a signal must go in the
// next submission. This stays coarse on purpose: any prior signal blocks
// the wait, not only one targeting the same semaphore.
func (t *WaitSemaphoreTask) Scan(rec Recorder) bool {
	if !t.Set.Ready() {
		return false
	}
	return !rec.HasSignalSemaphores()
}

// Record merges the armed wait set into the recorder.
func (t *WaitSemaphoreTask) Record(rec Recorder) {
	rec.AddWaitSemaphores(t.Set.Get())
}

// OnCompleted is a no-op.
func (t *WaitSemaphoreTask) OnCompleted() {}

// SignalSemaphoreTask merges a set of semaphores to signal into the batch.
type SignalSemaphoreTask struct {
	Set *Handle[[]hal.SemaphoreHandle]
}

// Scan fails only if the handle is not yet armed; otherwise always
// recordable.
func (t *SignalSemaphoreTask) Scan(rec Recorder) bool {
	return t.Set.Ready()
}

// Record merges the armed signal set into the recorder.
func (t *SignalSemaphoreTask) Record(rec Recorder) {
	rec.AddSignalSemaphores(t.Set.Get())
}

// OnCompleted is a no-op.
func (t *SignalSemaphoreTask) OnCompleted() {}

// CallbackTask appends a user function to the recorder's post-submission
// callback list. Used for non-task-specific completion notifications, such
// as freeing a staging allocation once its copy has completed.
type CallbackTask struct {
	Fn func()
}

// Scan always succeeds.
func (t *CallbackTask) Scan(Recorder) bool { return true }

// Record appends Fn to the recorder's callback list.
func (t *CallbackTask) Record(rec Recorder) {
	rec.AddCallback(t.Fn)
}

// OnCompleted is a no-op; Fn runs via the recorder's callback list, not
// here.
func (t *CallbackTask) OnCompleted() {}
