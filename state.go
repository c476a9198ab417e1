// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package dmaengine

import "github.com/gogpu/dmaengine/hal"

// bufferState is an owned-buffer entry's state machine: acquireQueued
// immediately on a successful Acquire* call, acquired once that acquire's
// task(s) complete, releaseQueued immediately on a successful Release*
// call until its tasks complete and remove the entry.
type bufferState int

const (
	stateAcquireQueued bufferState = iota
	stateAcquired
	stateReleaseQueued
)

// isOwned reports whether buf currently has an entry in the owned-buffer
// map, regardless of which state it is in.
func (e *Engine) isOwned(buf hal.BufferHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.owned[buf]
	return ok
}

// markAcquired transitions buf from ACQUIRE_QUEUED to ACQUIRED. Called from
// the completion callback of the task(s) enqueued by Acquire*, never at call
// time. An entry a Release* call has already moved to releaseQueued is left
// as it is, so that release's completion still removes it.
func (e *Engine) markAcquired(buf hal.BufferHandle) {
	e.mu.Lock()
	if st, ok := e.owned[buf]; ok && st == stateAcquireQueued {
		e.owned[buf] = stateAcquired
	}
	e.mu.Unlock()
}

// forgetBuffer removes buf's owned-buffer entry. Called from the
// completion callback of the task(s) enqueued by Release*, so ownership
// stays monotonic against call-time acceptance, not task completion, for
// AlreadyOwned/SyncRequired checks made by a racing Acquire* call in
// between. An entry no longer in releaseQueued belongs to an acquire
// accepted after the release was queued and must be left alone.
func (e *Engine) forgetBuffer(buf hal.BufferHandle) {
	e.mu.Lock()
	if st, ok := e.owned[buf]; ok && st == stateReleaseQueued {
		delete(e.owned, buf)
	}
	e.mu.Unlock()
}
