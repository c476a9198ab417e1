// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package mock implements the hal interfaces entirely in memory, with no
// real GPU or driver underneath. It exists for tests: buffers are backed by
// Go byte slices, command buffers record their calls instead of encoding
// them, and fences signal synchronously on Submit. It is the in-memory
// stand-in the engine's own test suite runs against, playing the same role
// the wgpu-hal "noop" backend plays for that project's own tests.
package mock
