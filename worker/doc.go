// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package worker implements the DMA engine's dedicated submission thread.
// It owns one transient command pool, one primary command buffer, and one
// fence; it pulls tasks off a taskqueue.Queue, scans and records them into
// a recorder.Recorder, submits the resulting command buffer on the
// transfer queue, waits on the fence, and dispatches completion callbacks
// in FIFO order before looping.
//
// The worker runs pinned to one OS thread via internal/thread, keeping
// GPU-owning operations off arbitrary goroutines.
package worker
