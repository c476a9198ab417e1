// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hal

import "errors"

// Sentinel errors returned by Device, Queue, CommandPool and Fence
// implementations. The worker maps ErrTimeout from a fence wait onto
// worker.ErrTransferTimeout and wraps any other hal error in a
// worker.DriverError; callers of the engine never see hal errors unwrapped.
var (
	// ErrDeviceOutOfMemory indicates the allocator backing Device.CreateBuffer
	// has exhausted its memory.
	ErrDeviceOutOfMemory = errors.New("hal: device out of memory")

	// ErrDeviceLost indicates the GPU device has been lost (driver crash,
	// hardware disconnection, or driver timeout). Unrecoverable.
	ErrDeviceLost = errors.New("hal: device lost")

	// ErrTimeout indicates Fence.Wait exceeded its timeout.
	ErrTimeout = errors.New("hal: timeout")
)
