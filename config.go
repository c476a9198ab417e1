// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package dmaengine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gogpu/dmaengine/staging"
	"github.com/gogpu/dmaengine/worker"
)

// Config configures one Engine at construction: a single value handed to
// New, not a mutable runtime surface.
type Config struct {
	// TransferQueueFamily is the queue family the engine records and
	// submits copies on. It may differ from the graphics/compute families.
	TransferQueueFamily int

	// StagingSize is the byte size of the single host-visible staging
	// buffer. Must be a power of two. Defaults to staging.DefaultSize
	// (128 MiB) if zero.
	StagingSize uint64

	// BatchCap bounds the number of tasks recorded into one submission.
	// Defaults to worker.DefaultBatchCap (40) if zero.
	BatchCap int

	// FenceTimeout bounds how long the worker waits for a batch's fence.
	// Defaults to worker.DefaultFenceTimeout (10ms) if zero.
	FenceTimeout time.Duration

	// IdlePoll bounds how long the worker blocks when the task queue is
	// empty. Defaults to worker.DefaultIdlePoll (1ms) if zero.
	IdlePoll time.Duration

	// Logger receives batch lifecycle and fatal-path diagnostics. Defaults
	// to zap.NewNop() if nil.
	Logger *zap.Logger

	// Registerer receives the worker's Prometheus metrics if non-nil. Left
	// nil, metrics are still collected internally but never exposed.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a Config with every default applied except
// TransferQueueFamily, which the caller must always specify.
func DefaultConfig(transferQueueFamily int) Config {
	return Config{
		TransferQueueFamily: transferQueueFamily,
		StagingSize:         staging.DefaultSize,
		BatchCap:            worker.DefaultBatchCap,
		FenceTimeout:        worker.DefaultFenceTimeout,
		IdlePoll:            worker.DefaultIdlePoll,
		Logger:              zap.NewNop(),
	}
}

func (c *Config) applyDefaults() {
	if c.StagingSize == 0 {
		c.StagingSize = staging.DefaultSize
	}
	if c.BatchCap <= 0 {
		c.BatchCap = worker.DefaultBatchCap
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = worker.DefaultFenceTimeout
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = worker.DefaultIdlePoll
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
