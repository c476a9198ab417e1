// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package thread provides a dedicated-OS-thread abstraction for operations
// that must run pinned off arbitrary goroutines — such as a submission
// loop that records and submits command buffers against a driver that
// assumes single-threaded access.
//
// CallVoid runs f on the thread and blocks until it returns; CallAsync
// enqueues f without waiting, falling back to a synchronous call if the
// queue is full so a slow consumer can't deadlock a fire-and-forget caller.
package thread

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Thread serializes function calls onto one OS-locked thread
// (runtime.LockOSThread). Once stopped, further calls are dropped.
type Thread struct {
	funcs   chan func()
	done    chan struct{}
	running atomic.Bool
}

// New creates the thread and blocks until it is pinned and ready.
func New() *Thread {
	t := &Thread{
		funcs: make(chan func(), 16),
		done:  make(chan struct{}),
	}
	t.running.Store(true)

	var ready sync.WaitGroup
	ready.Add(1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		ready.Done()
		for {
			select {
			case f := <-t.funcs:
				f()
			case <-t.done:
				return
			}
		}
	}()
	ready.Wait()
	return t
}

// CallVoid executes f on the thread and waits for it to return.
func (t *Thread) CallVoid(f func()) {
	if !t.running.Load() {
		return
	}
	done := make(chan struct{})
	t.funcs <- func() {
		f()
		close(done)
	}
	<-done
}

// CallAsync executes f on the thread without waiting. If the call queue is
// full it degrades to a blocking CallVoid rather than dropping f.
func (t *Thread) CallAsync(f func()) {
	if !t.running.Load() {
		return
	}
	select {
	case t.funcs <- f:
	default:
		t.CallVoid(f)
	}
}

// Stop shuts the thread down after it finishes the call it is executing.
// Safe to call from the thread itself and idempotent.
func (t *Thread) Stop() {
	if t.running.Swap(false) {
		close(t.done)
	}
}
