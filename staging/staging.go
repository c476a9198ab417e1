// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package staging implements the host-visible staging pool a DMA engine
// uses to relay bytes between host memory and device-local buffers. It
// wraps a single device buffer with a ring package allocator, handing out
// (device buffer, offset, host slice) triples for each allocation.
package staging

import (
	"errors"
	"sync"

	"github.com/gogpu/dmaengine/hal"
	"github.com/gogpu/dmaengine/ring"
)

// DefaultSize is the staging buffer size used by convention absent an
// explicit override: 128 MiB.
const DefaultSize = 128 * 1024 * 1024

// Sentinel errors returned by Pool operations.
var (
	// ErrInvalidArgument is returned for a non-positive allocation size or
	// an invalid pool size at construction.
	ErrInvalidArgument = errors.New("staging: invalid argument")

	// ErrInvalidAddress is returned by Free for an offset that does not
	// correspond to a currently outstanding allocation.
	ErrInvalidAddress = errors.New("staging: invalid address")

	// ErrInvalidState is returned when operating on a pool that has
	// already been destroyed.
	ErrInvalidState = errors.New("staging: pool already destroyed")

	// ErrOutOfSpace is returned by Allocate when the pool cannot currently
	// satisfy the request; the caller should retry after outstanding
	// allocations free up space.
	ErrOutOfSpace = errors.New("staging: allocation does not fit")
)

// Allocation is a staging region reserved for exactly one in-flight host
// transfer. Host aliases the device buffer's mapped memory at [Offset,
// Offset+len(Host)) and remains valid until the allocation is freed.
type Allocation struct {
	Buffer hal.BufferHandle
	Offset uint64
	Host   []byte
}

// Pool is a ring-allocated staging buffer. It is safe for concurrent use:
// Allocate and Free serialize on an internal mutex, matching the "staging
// pool has its own internal mutex" resource policy.
type Pool struct {
	mu        sync.Mutex
	device    hal.Device
	buffer    hal.BufferHandle
	host      []byte
	ring      *ring.Ring
	destroyed bool
}

// New creates a staging pool of the given size backed by one host-coherent,
// host-visible device buffer with transfer source and destination usage.
// size must be a power of two.
func New(device hal.Device, size uint64) (*Pool, error) {
	r, err := ring.New(size)
	if err != nil {
		return nil, ErrInvalidArgument
	}
	buffer, host, err := device.CreateBuffer(hal.BufferDescriptor{
		Size:      size,
		Usage:     hal.BufferUsageTransferSrc | hal.BufferUsageTransferDst,
		Mapped:    true,
		Exclusive: true,
	})
	if err != nil {
		return nil, err
	}
	return &Pool{device: device, buffer: buffer, host: host, ring: r}, nil
}

// Allocate reserves size bytes of staging space and returns the device
// buffer, byte offset, and an aliased host slice of that length.
func (p *Pool) Allocate(size uint64) (Allocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return Allocation{}, ErrInvalidState
	}
	offset, err := p.ring.Allocate(size)
	switch {
	case errors.Is(err, ring.ErrInvalidArgument):
		return Allocation{}, ErrInvalidArgument
	case errors.Is(err, ring.ErrNoFit):
		return Allocation{}, ErrOutOfSpace
	case err != nil:
		return Allocation{}, err
	}
	return Allocation{
		Buffer: p.buffer,
		Offset: offset,
		Host:   p.host[offset : offset+size],
	}, nil
}

// Free returns a previously allocated region to the pool.
func (p *Pool) Free(offset uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return ErrInvalidState
	}
	if err := p.ring.Free(offset); err != nil {
		if errors.Is(err, ring.ErrInvalidAddress) {
			return ErrInvalidAddress
		}
		return err
	}
	return nil
}

// Destroy releases the underlying device buffer. Destroying an already
// destroyed pool fails with ErrInvalidState.
func (p *Pool) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return ErrInvalidState
	}
	p.destroyed = true
	p.device.DestroyBuffer(p.buffer)
	return nil
}
