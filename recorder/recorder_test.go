// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package recorder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dmaengine/hal"
	"github.com/gogpu/dmaengine/hal/mock"
	"github.com/gogpu/dmaengine/recorder"
)

func newCommandBuffer(t *testing.T) hal.CommandBuffer {
	t.Helper()
	device := mock.NewDevice()
	pool, err := device.CreateCommandPool(0)
	require.NoError(t, err)
	cb, err := pool.AllocatePrimary()
	require.NoError(t, err)
	return cb
}

func TestBeginEndRoundTrip(t *testing.T) {
	r := recorder.New()
	cb := newCommandBuffer(t)

	require.NoError(t, r.Begin(cb))
	assert.Equal(t, cb, r.CommandBuffer())
	require.NoError(t, r.End())
}

func TestHazardSets(t *testing.T) {
	r := recorder.New()
	var a, b hal.BufferHandle = 1, 2

	assert.False(t, r.HasReadBuffer(a))
	r.MarkRead(a)
	assert.True(t, r.HasReadBuffer(a))
	assert.False(t, r.HasWrittenBuffer(a))

	r.MarkWrite(b)
	assert.True(t, r.HasWrittenBuffer(b))
}

func TestSignalGatesWait(t *testing.T) {
	r := recorder.New()
	assert.False(t, r.HasSignalSemaphores())

	r.AddSignalSemaphores([]hal.SemaphoreHandle{42})
	assert.True(t, r.HasSignalSemaphores())
}

func TestCallbacksPreserveOrder(t *testing.T) {
	r := recorder.New()
	var order []int
	r.AddCallback(func() { order = append(order, 1) })
	r.AddCallback(func() { order = append(order, 2) })

	for _, cb := range r.Callbacks() {
		cb()
	}
	assert.Equal(t, []int{1, 2}, order)
}

// TestMergesAdjacentBarriersWithIdenticalStageMasks exercises the
// PipelineBarrierTask merge rule: two barriers recorded back-to-back with
// identical src/dst stage masks collapse into one command-buffer call with
// the union of their buffer barriers.
func TestMergesAdjacentBarriersWithIdenticalStageMasks(t *testing.T) {
	r := recorder.New()
	cb := newCommandBuffer(t)
	require.NoError(t, r.Begin(cb))

	r.RecordPipelineBarrier(hal.StageTransfer, hal.StageHost, nil, []hal.BufferMemoryBarrier{{Buffer: 1}})
	r.RecordPipelineBarrier(hal.StageTransfer, hal.StageHost, nil, []hal.BufferMemoryBarrier{{Buffer: 2}})
	require.NoError(t, r.End())

	mcb := cb.(*mock.CommandBuffer)
	assert.Equal(t, 1, mcb.BarrierCount, "identical-stage-mask barriers must merge into one command")
}

// TestDoesNotMergeBarriersWithDifferentStageMasks exercises the negative
// case: a barrier with different stage masks flushes whatever preceded it
// instead of merging, preserving both as separate commands.
func TestDoesNotMergeBarriersWithDifferentStageMasks(t *testing.T) {
	r := recorder.New()
	cb := newCommandBuffer(t)
	require.NoError(t, r.Begin(cb))

	r.RecordPipelineBarrier(hal.StageTransfer, hal.StageHost, nil, nil)
	r.RecordPipelineBarrier(hal.StageTopOfPipe, hal.StageTransfer, nil, nil)
	require.NoError(t, r.End())

	mcb := cb.(*mock.CommandBuffer)
	assert.Equal(t, 2, mcb.BarrierCount)
}

// TestResetIsIdempotent exercises idempotent reset: Reset then Begin must
// produce a state identical to a freshly constructed recorder.
func TestResetIsIdempotent(t *testing.T) {
	used := recorder.New()
	cb := newCommandBuffer(t)
	require.NoError(t, used.Begin(cb))
	used.MarkRead(1)
	used.MarkWrite(2)
	used.AddWaitSemaphores([]hal.SemaphoreWait{{Semaphore: 7}})
	used.AddSignalSemaphores([]hal.SemaphoreHandle{9})
	used.AddCallback(func() {})
	used.Reset()

	fresh := recorder.New()

	assert.Equal(t, fresh.HasReadBuffer(1), used.HasReadBuffer(1))
	assert.Equal(t, fresh.HasWrittenBuffer(2), used.HasWrittenBuffer(2))
	assert.Equal(t, fresh.HasSignalSemaphores(), used.HasSignalSemaphores())
	assert.Equal(t, len(fresh.WaitSemaphores()), len(used.WaitSemaphores()))
	assert.Equal(t, len(fresh.Callbacks()), len(used.Callbacks()))
	assert.Nil(t, used.CommandBuffer())
}
