// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dmaengine/ring"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	_, err := ring.New(100)
	assert.ErrorIs(t, err, ring.ErrInvalidArgument)

	r, err := ring.New(128)
	require.NoError(t, err)
	assert.EqualValues(t, 128, r.Capacity())
}

func TestAllocateRejectsZeroSize(t *testing.T) {
	r, err := ring.New(128)
	require.NoError(t, err)

	_, err = r.Allocate(0)
	assert.ErrorIs(t, err, ring.ErrInvalidArgument)
}

func TestAllocateAlignsTo8Bytes(t *testing.T) {
	r, err := ring.New(128)
	require.NoError(t, err)

	addr, err := r.Allocate(3)
	require.NoError(t, err)
	assert.EqualValues(t, 0, addr)

	addr2, err := r.Allocate(1)
	require.NoError(t, err)
	assert.EqualValues(t, 8, addr2) // first allocation rounds up to 8
}

func TestAllocateFreeSimpleRoundTrip(t *testing.T) {
	r, err := ring.New(128)
	require.NoError(t, err)

	a, err := r.Allocate(48)
	require.NoError(t, err)
	assert.EqualValues(t, 0, a)

	require.NoError(t, r.Free(a))
	assert.EqualValues(t, 0, r.Outstanding())
}

// TestRingWrapAround: pool size 128, allocate 48, allocate 48, free the
// first, allocate 48 again. The third allocation must land at physical
// offset 0 after a filler node covers the tail gap.
func TestRingWrapAround(t *testing.T) {
	r, err := ring.New(128)
	require.NoError(t, err)

	a1, err := r.Allocate(48)
	require.NoError(t, err)
	assert.EqualValues(t, 0, a1)

	a2, err := r.Allocate(48)
	require.NoError(t, err)
	assert.EqualValues(t, 48, a2)

	require.NoError(t, r.Free(a1))

	a3, err := r.Allocate(48)
	require.NoError(t, err)
	assert.EqualValues(t, 0, a3, "third allocation should wrap to physical offset 0 via a filler node")

	require.NoError(t, r.Free(a2))
	require.NoError(t, r.Free(a3))
	assert.EqualValues(t, 0, r.Outstanding())
}

func TestFreeUnknownAddressFails(t *testing.T) {
	r, err := ring.New(128)
	require.NoError(t, err)

	err = r.Free(64)
	assert.ErrorIs(t, err, ring.ErrInvalidAddress)
}

// TestReclamationAllowsFullCapacityReuse exercises the "Ring reclamation"
// invariant: after freeing every outstanding allocation, head == tail and a
// subsequent allocate(capacity) succeeds.
func TestReclamationAllowsFullCapacityReuse(t *testing.T) {
	r, err := ring.New(128)
	require.NoError(t, err)

	a, err := r.Allocate(128)
	require.NoError(t, err)
	require.NoError(t, r.Free(a))

	_, err = r.Allocate(128)
	assert.NoError(t, err)
}

// TestAllocateNoOverlap exercises the ring invariant: allocated regions
// never overlap while outstanding bytes stay within capacity.
func TestAllocateNoOverlap(t *testing.T) {
	r, err := ring.New(256)
	require.NoError(t, err)

	type outstanding struct {
		addr, size uint64
	}
	var live []outstanding

	overlaps := func(a, b outstanding) bool {
		return a.addr < b.addr+b.size && b.addr < a.addr+a.size
	}

	sizes := []uint64{32, 64, 16, 32, 48, 24}
	for _, s := range sizes {
		addr, err := r.Allocate(s)
		require.NoError(t, err)
		n := outstanding{addr: addr, size: (s + 7) &^ 7}
		for _, other := range live {
			assert.False(t, overlaps(n, other), "new allocation at %d overlaps existing at %d", n.addr, other.addr)
		}
		live = append(live, n)
	}
}

func TestAllocateFullFails(t *testing.T) {
	r, err := ring.New(64)
	require.NoError(t, err)

	_, err = r.Allocate(64)
	require.NoError(t, err)

	_, err = r.Allocate(8)
	assert.ErrorIs(t, err, ring.ErrNoFit)
}
