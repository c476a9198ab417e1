// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package ring implements an unbacked ring allocator: a bookkeeping-only
// allocator over a virtual, power-of-two byte address space. It tracks
// occupancy and wrap-around without owning any backing storage — callers
// pair each returned offset with their own buffer or slice.
package ring
