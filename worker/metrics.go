// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package worker

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the worker's Prometheus instrumentation: batch throughput,
// batch size distribution, fence-wait latency, and fatal-timeout count.
// A nil *Metrics is valid everywhere a Metrics is accepted — every method
// is a no-op on a nil receiver, so instrumentation stays opt-in.
type Metrics struct {
	batchesTotal     prometheus.Counter
	tasksPerBatch    prometheus.Histogram
	fenceWaitSeconds prometheus.Histogram
	timeoutsTotal    prometheus.Counter
}

// NewMetrics builds the worker's metric vectors and, if reg is non-nil,
// registers them with it. Pass nil to build unregistered metrics (useful
// for per-test engines that would otherwise collide on a shared default
// registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmaengine",
			Subsystem: "worker",
			Name:      "batches_total",
			Help:      "Number of batches submitted to the transfer queue.",
		}),
		tasksPerBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dmaengine",
			Subsystem: "worker",
			Name:      "tasks_per_batch",
			Help:      "Number of tasks recorded into each submitted batch.",
			Buckets:   prometheus.LinearBuckets(1, 4, 10),
		}),
		fenceWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dmaengine",
			Subsystem: "worker",
			Name:      "fence_wait_seconds",
			Help:      "Time spent blocked on the batch fence.",
			Buckets:   prometheus.DefBuckets,
		}),
		timeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmaengine",
			Subsystem: "worker",
			Name:      "fence_timeouts_total",
			Help:      "Number of fatal fence-wait timeouts encountered.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.batchesTotal, m.tasksPerBatch, m.fenceWaitSeconds, m.timeoutsTotal)
	}
	return m
}

func (m *Metrics) observeBatch(taskCount int, fenceWaitSeconds float64) {
	if m == nil {
		return
	}
	m.batchesTotal.Inc()
	m.tasksPerBatch.Observe(float64(taskCount))
	m.fenceWaitSeconds.Observe(fenceWaitSeconds)
}

func (m *Metrics) observeTimeout() {
	if m == nil {
		return
	}
	m.timeoutsTotal.Inc()
}
