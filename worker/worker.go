// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gogpu/dmaengine/hal"
	"github.com/gogpu/dmaengine/internal/thread"
	"github.com/gogpu/dmaengine/recorder"
	"github.com/gogpu/dmaengine/task"
	"github.com/gogpu/dmaengine/taskqueue"
)

const (
	DefaultBatchCap     = 40
	DefaultFenceTimeout = 10 * time.Millisecond
	DefaultIdlePoll     = 1 * time.Millisecond
)

// Config controls batching and timing behavior. New replaces any zero or
// negative BatchCap, FenceTimeout or IdlePoll, and a nil Logger, with the
// package defaults that DefaultConfig also returns.
type Config struct {
	// BatchCap bounds the number of tasks recorded into one submission.
	BatchCap int

	// FenceTimeout bounds how long the worker blocks waiting for a
	// batch's fence to signal before surfacing ErrTransferTimeout.
	FenceTimeout time.Duration

	// IdlePoll bounds how long the worker blocks on the task queue's
	// notification channel when it finds nothing to run.
	IdlePoll time.Duration

	// Logger receives batch lifecycle and fatal-path diagnostics. A nil
	// Logger is replaced with zap.NewNop() by New.
	Logger *zap.Logger

	// Metrics receives batch/timeout instrumentation. A nil Metrics is
	// valid: every Metrics method no-ops on a nil receiver.
	Metrics *Metrics
}

// DefaultConfig returns the package's default batch cap, fence timeout, and
// idle poll interval, with a no-op logger and no metrics.
func DefaultConfig() Config {
	return Config{
		BatchCap:     DefaultBatchCap,
		FenceTimeout: DefaultFenceTimeout,
		IdlePoll:     DefaultIdlePoll,
		Logger:       zap.NewNop(),
	}
}

// Worker is the engine's single dedicated consumer: the sole user of its
// command pool, command buffer, fence, and transfer queue submission.
type Worker struct {
	queue    *taskqueue.Queue
	gpuQueue hal.Queue
	pool     hal.CommandPool
	cmdBuf   hal.CommandBuffer
	fence    hal.Fence
	rec      *recorder.Recorder
	cfg      Config

	thread   *thread.Thread
	shutdown atomic.Bool
	stopped  chan struct{}
	stopOnce sync.Once

	fatal atomic.Pointer[error]
}

// New constructs a worker. cmdBuf must have been allocated from pool and
// fence must be unsignaled; both are owned exclusively by the worker from
// this point on.
func New(q *taskqueue.Queue, gpuQueue hal.Queue, pool hal.CommandPool, cmdBuf hal.CommandBuffer, fence hal.Fence, cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.BatchCap <= 0 {
		cfg.BatchCap = DefaultBatchCap
	}
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = DefaultFenceTimeout
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = DefaultIdlePoll
	}
	return &Worker{
		queue:    q,
		gpuQueue: gpuQueue,
		pool:     pool,
		cmdBuf:   cmdBuf,
		fence:    fence,
		rec:      recorder.New(),
		cfg:      cfg,
		stopped:  make(chan struct{}),
	}
}

// Start pins the worker loop to a dedicated OS thread and begins pulling
// tasks. Start must be called exactly once.
func (w *Worker) Start() {
	w.thread = thread.New()
	w.thread.CallAsync(w.run)
}

// Shutdown cooperatively stops the worker: it finishes any batch already
// in progress, then exits without starting another. Pending un-submitted
// tasks remain in the queue with their callbacks never fired. Shutdown
// does not block; call Wait to block until the worker thread has exited.
func (w *Worker) Shutdown() {
	w.shutdown.Store(true)
}

// Wait blocks until the worker loop has exited, following a Shutdown or a
// fatal error.
func (w *Worker) Wait() {
	<-w.stopped
}

// FatalErr returns the error that terminated the worker, or nil if it is
// still running or exited via cooperative Shutdown.
func (w *Worker) FatalErr() error {
	if p := w.fatal.Load(); p != nil {
		return *p
	}
	return nil
}

func (w *Worker) setFatal(err error) {
	w.fatal.CompareAndSwap(nil, &err)
	w.shutdown.Store(true)
}

// run is the worker's main loop, executed on the dedicated OS thread.
func (w *Worker) run() {
	defer w.stopOnce.Do(func() { close(w.stopped) })
	defer w.thread.Stop()
	for !w.shutdown.Load() {
		ran, err := w.tryRunBatch()
		if err != nil {
			w.cfg.Logger.Error("dma worker: fatal batch error", zap.Error(err))
			w.setFatal(err)
			return
		}
		if !ran {
			w.queue.Wait(w.cfg.IdlePoll)
		}
	}
}

// tryRunBatch attempts to build and submit one batch from the queue's
// current head run. It returns (false, nil) if there is nothing scannable
// to run right now, (true, nil) on a successfully completed batch, and
// (_, err) on a fatal driver or timeout error.
func (w *Worker) tryRunBatch() (bool, error) {
	head := w.queue.Head()
	if head == nil {
		return false, nil
	}

	w.rec.Reset()
	if err := w.rec.Begin(w.cmdBuf); err != nil {
		return false, &DriverError{Op: "command buffer begin", Err: err}
	}

	var tasks []task.Task
	cur := head
	for cur != nil && len(tasks) < w.cfg.BatchCap {
		if !cur.Task.Scan(w.rec) {
			break
		}
		cur.Task.Record(w.rec)
		tasks = append(tasks, cur.Task)
		cur = cur.Next()
	}
	if len(tasks) == 0 {
		return false, nil
	}

	if err := w.rec.End(); err != nil {
		return false, &DriverError{Op: "command buffer end", Err: err}
	}

	w.cfg.Logger.Debug("dma worker: submitting batch", zap.Int("tasks", len(tasks)))

	submission := hal.Submission{
		CommandBuffers:   []hal.CommandBuffer{w.cmdBuf},
		WaitSemaphores:   w.rec.WaitSemaphores(),
		SignalSemaphores: w.rec.SignalSemaphores(),
		Fence:            w.fence,
	}
	if err := w.gpuQueue.Submit(submission); err != nil {
		return false, &DriverError{Op: "queue submit", Err: err}
	}

	waitStart := time.Now()
	err := w.fence.Wait(w.cfg.FenceTimeout)
	fenceWait := time.Since(waitStart)
	if err != nil {
		if errors.Is(err, hal.ErrTimeout) {
			w.cfg.Metrics.observeTimeout()
			return false, ErrTransferTimeout
		}
		return false, &DriverError{Op: "fence wait", Err: err}
	}

	w.queue.Advance(len(tasks))
	for _, t := range tasks {
		t.OnCompleted()
	}
	for _, cb := range w.rec.Callbacks() {
		cb()
	}

	if err := w.fence.Reset(); err != nil {
		return false, &DriverError{Op: "fence reset", Err: err}
	}

	w.cfg.Metrics.observeBatch(len(tasks), fenceWait.Seconds())
	w.cfg.Logger.Debug("dma worker: batch completed", zap.Int("tasks", len(tasks)), zap.Duration("fence_wait", fenceWait))
	return true, nil
}
