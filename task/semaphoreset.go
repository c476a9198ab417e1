// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package task

import "sync"

// Handle is a two-stage builder→armed value, used in place of a boolean
// "ready" flag for producers that enqueue a task
// before its dependency — typically a semaphore set — has been created.
// A Handle is unarmed until Arm is called; Scan implementations must check
// Ready before reading Get, so an unready task cannot be scanned by
// accident.
//
// Handle is safe for concurrent use: Arm may run on a producer goroutine
// while the worker polls Ready/Get from its own thread.
type Handle[T any] struct {
	mu    sync.Mutex
	armed bool
	value T
}

// NewHandle returns an unarmed handle.
func NewHandle[T any]() *Handle[T] {
	return &Handle[T]{}
}

// Armed returns a handle that is already armed with value, for the common
// case where the dependency is available at enqueue time.
func Armed[T any](value T) *Handle[T] {
	return &Handle[T]{armed: true, value: value}
}

// Arm supplies the value and marks the handle ready. Safe to call exactly
// once; subsequent calls overwrite the value.
func (h *Handle[T]) Arm(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = value
	h.armed = true
}

// Ready reports whether Arm has been called.
func (h *Handle[T]) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.armed
}

// Get returns the armed value. Callers must check Ready first; Get on an
// unarmed handle returns the zero value.
func (h *Handle[T]) Get() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}
