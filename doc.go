// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package dmaengine implements an asynchronous DMA transfer engine for a
// rendering pipeline built on a low-level graphics API with explicit
// command queues, ownership transfers across queue families, binary
// semaphores, fences, pipeline barriers, and command buffers.
//
// Callers (renderers, material loaders, texture uploaders) submit
// asynchronous buffer-copy requests through Engine; the engine batches
// them into command submissions on a dedicated transfer queue and signals
// completion through caller-supplied callbacks and/or semaphores.
//
// # Architecture
//
// Engine ties together six subpackages, each independently testable
// against hal/mock:
//
//   - ring — an unbacked virtual ring allocator
//   - staging — a host-visible staging pool built on ring
//   - task — the tagged task variants (AcquireBuffer, ReleaseBuffer,
//     BufferCopy, PipelineBarrier, WaitSemaphore, SignalSemaphore, Callback)
//   - recorder — the per-batch command-recording scratchpad
//   - taskqueue — the producer/consumer task FIFO
//   - worker — the dedicated submission thread that drains taskqueue,
//     records into recorder, and submits on the hal.Queue
//
// Engine itself owns buffer-ownership-state tracking and the public,
// thread-safe operations described in its doc comments: AcquireBuffer,
// AcquireSharedBuffer, ReleaseBuffer, ReleaseSharedBuffer,
// TransferBufferFromHost, TransferBufferToHost, and TransferBuffer.
//
// # Scope
//
// Only buffer transfers are implemented. Image transfers, multi-queue
// staging, and submission coalescing beyond the configured batch cap are
// out of scope; the image-domain entry point (Engine.TransferImage) fails
// with ErrUnsupported, matching how the HAL models only the
// buffer-transfer surface this engine drives.
//
// # Thread safety
//
// Every exported Engine method is safe to call from multiple goroutines
// concurrently. Callbacks passed to Engine methods run on the worker's
// dedicated thread and must be brief and non-blocking; dispatch longer
// work to your own executor.
package dmaengine
