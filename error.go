// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package dmaengine

import (
	"errors"

	"github.com/gogpu/dmaengine/worker"
)

// Public API sentinel errors, surfaced synchronously from validation
// failures.
var (
	// ErrAlreadyOwned is returned by AcquireBuffer/AcquireSharedBuffer when
	// the buffer is already owned and not pending release.
	ErrAlreadyOwned = errors.New("dmaengine: buffer already owned")

	// ErrNotOwned is returned by Release*/Transfer* operations on a buffer
	// absent from the owned-buffer map.
	ErrNotOwned = errors.New("dmaengine: buffer not owned")

	// ErrSyncRequired is returned by AcquireBuffer/AcquireSharedBuffer when
	// the buffer is pending release and no wait semaphores were given.
	ErrSyncRequired = errors.New("dmaengine: acquire after queued release requires wait semaphores")

	// ErrInvalidArgument is returned for a non-positive transfer size or an
	// invalid staging pool configuration.
	ErrInvalidArgument = errors.New("dmaengine: invalid argument")

	// ErrUnsupported is returned by any image-domain operation; only
	// buffer transfers are implemented.
	ErrUnsupported = errors.New("dmaengine: unsupported operation")
)

// ErrTransferTimeout re-exports worker.ErrTransferTimeout: a batch's fence
// wait exceeded its configured timeout. It is fatal — the engine's worker
// has stopped, and every subsequent call returns a *DriverError wrapping
// this engine's last fatal error.
var ErrTransferTimeout = worker.ErrTransferTimeout

// DriverError re-exports worker.DriverError: any non-success return from
// the underlying hal implementation. Always fatal.
type DriverError = worker.DriverError
