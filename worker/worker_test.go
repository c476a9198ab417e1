// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package worker_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dmaengine/hal"
	"github.com/gogpu/dmaengine/hal/mock"
	"github.com/gogpu/dmaengine/task"
	"github.com/gogpu/dmaengine/taskqueue"
	"github.com/gogpu/dmaengine/worker"
)

func newWorker(t *testing.T, cfg worker.Config) (*worker.Worker, *taskqueue.Queue, *mock.Device) {
	t.Helper()
	device := mock.NewDevice()
	pool, err := device.CreateCommandPool(0)
	require.NoError(t, err)
	cmdBuf, err := pool.AllocatePrimary()
	require.NoError(t, err)
	fence, err := device.CreateFence()
	require.NoError(t, err)
	q := taskqueue.New()
	w := worker.New(q, mock.NewQueue(device), pool, cmdBuf, fence, cfg)
	return w, q, device
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBatchRunsCallbacksInFIFOOrder(t *testing.T) {
	cfg := worker.DefaultConfig()
	w, q, _ := newWorker(t, cfg)
	w.Start()
	defer func() { w.Shutdown(); w.Wait() }()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.Append(&task.CallbackTask{Fn: func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}})
	}

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBatchCapSplitsLargeRuns(t *testing.T) {
	cfg := worker.DefaultConfig()
	cfg.BatchCap = 2
	w, q, _ := newWorker(t, cfg)
	w.Start()
	defer func() { w.Shutdown(); w.Wait() }()

	done := make(chan struct{})
	count := 0
	for i := 0; i < 5; i++ {
		last := i == 4
		q.Append(&task.CallbackTask{Fn: func() {
			count++
			if last {
				close(done)
			}
		}})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks never completed")
	}
	assert.Equal(t, 5, count)
}

func TestScanFailureDefersRemainderToNextBatch(t *testing.T) {
	cfg := worker.DefaultConfig()
	w, q, device := newWorker(t, cfg)
	w.Start()
	defer func() { w.Shutdown(); w.Wait() }()

	src, _, err := device.CreateBuffer(hal.BufferDescriptor{Size: 16})
	require.NoError(t, err)
	mid, _, err := device.CreateBuffer(hal.BufferDescriptor{Size: 16})
	require.NoError(t, err)
	dst, _, err := device.CreateBuffer(hal.BufferDescriptor{Size: 16})
	require.NoError(t, err)

	region := []hal.BufferCopyRegion{{Size: 16}}
	done := make(chan struct{})
	// copy(mid -> dst) has a RAW hazard against copy(src -> mid) within the
	// same batch (mid is written by the first, read by the second), so the
	// second copy's Scan must refuse and start a new batch.
	q.Append(&task.BufferCopyTask{Src: src, Dst: mid, Regions: region})
	q.Append(&task.BufferCopyTask{Src: mid, Dst: dst, Regions: region})
	q.Append(&task.CallbackTask{Fn: func() { close(done) }})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks never completed")
	}
}

func TestFenceTimeoutIsFatal(t *testing.T) {
	cfg := worker.DefaultConfig()
	cfg.FenceTimeout = 5 * time.Millisecond
	w, q, device := newWorker(t, cfg)

	fence, err := device.CreateFence()
	require.NoError(t, err)
	mf, ok := fence.(*mock.Fence)
	require.True(t, ok)
	mf.Jam()

	// Replace the worker's fence with a jammed one by constructing a fresh
	// worker against it directly.
	pool, err := device.CreateCommandPool(0)
	require.NoError(t, err)
	cmdBuf, err := pool.AllocatePrimary()
	require.NoError(t, err)
	w = worker.New(q, mock.NewQueue(device), pool, cmdBuf, fence, cfg)

	w.Start()
	q.Append(&task.CallbackTask{Fn: func() {}})

	waitUntil(t, time.Second, func() bool { return w.FatalErr() != nil })
	assert.ErrorIs(t, w.FatalErr(), worker.ErrTransferTimeout)
	w.Wait()
}

func TestShutdownDrainsCurrentBatchButDropsPending(t *testing.T) {
	cfg := worker.DefaultConfig()
	w, q, _ := newWorker(t, cfg)
	w.Start()

	ran := make(chan struct{})
	q.Append(&task.CallbackTask{Fn: func() { close(ran) }})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("first batch never ran")
	}

	w.Shutdown()
	w.Wait()

	fired := false
	q.Append(&task.CallbackTask{Fn: func() { fired = true }})
	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired, "callback enqueued after shutdown must not fire")
}
