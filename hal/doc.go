// Package hal provides the hardware abstraction layer the DMA transfer
// engine records and submits work against.
//
// # Architecture
//
// The contract is intentionally narrow — a transfer engine only needs to
// create a staging buffer, build command buffers on one queue family, submit
// them, and wait on a fence:
//
//  1. Device - creates buffers, command pools, and fences
//  2. CommandPool / CommandBuffer - recording of copy and barrier commands
//  3. Queue - submission of recorded command buffers
//  4. Fence - CPU-observable completion signal
//
// # Design Principles
//
// The HAL prioritizes portability over safety, delegating validation to the
// engine layer:
//
//   - Most methods are unsafe in terms of GPU state validation
//   - Validation is the caller's responsibility
//   - Only unrecoverable errors are returned (out of memory, device lost, timeout)
//
// # Backends
//
// This package ships no concrete backend. A production build supplies one
// (Vulkan, DX12, Metal) that implements Device/Queue/CommandPool/CommandBuffer/
// Fence against the real driver; the hal/mock package supplies an in-memory
// implementation for tests.
//
// # Thread Safety
//
// Unless explicitly stated, HAL interfaces are not thread-safe. The DMA
// engine's worker is the sole caller of CommandPool, CommandBuffer, and
// Fence; Queue.Submit is expected to be safe to call from that single
// worker thread only.
package hal
