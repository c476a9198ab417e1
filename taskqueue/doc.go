// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package taskqueue implements the DMA engine's task FIFO: a singly linked
// list guarded by a mutex and signaled through a one-slot notify channel
// on every append. Producers (client goroutines calling the public API) append in
// O(1) under the lock; the worker is the sole consumer, snapshotting the
// head and walking the list without holding the lock.
package taskqueue
