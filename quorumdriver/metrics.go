// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quorumdriver

import (
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts outcomes of one named MapThenReduceWithTimeout call site
// (e.g. "process_transaction", "get_object_by_id"), the way the teacher's
// metrics/metrics.go registers a handful of named counters per subsystem
// rather than one flat global. A nil *Metrics is always safe to use.
type Metrics struct {
	requests prometheus.Counter
	errors   prometheus.Counter
	ends     prometheus.Counter
	timeouts prometheus.Counter
}

// NewMetrics registers request/error/end/timeout counters for name on reg.
func NewMetrics(reg prometheus.Registerer, name string) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: name + "_map_requests_total",
			Help: "Total per-validator map invocations dispatched for " + name,
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: name + "_map_errors_total",
			Help: "Total per-validator map invocations that returned an error for " + name,
		}),
		ends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: name + "_reduce_end_total",
			Help: "Total folds that terminated via ReduceOutput.End for " + name,
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: name + "_timeouts_total",
			Help: "Total folds that terminated by timeout elapsing for " + name,
		}),
	}
	reg.MustRegister(m.requests, m.errors, m.ends, m.timeouts)
	return m
}

// NewMultiGathererMetrics is NewMetrics backed by a fresh *prometheus.Registry
// that is itself registered with mg under name, mirroring
// concurrency.WithMultiGatherer's per-subsystem registry pattern. Returns nil
// if mg is nil.
func NewMultiGathererMetrics(mg metric.MultiGatherer, name string) *Metrics {
	if mg == nil {
		return nil
	}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, name)
	_ = mg.Register(name, reg)
	return m
}

func (m *Metrics) observeRequest() {
	if m == nil {
		return
	}
	m.requests.Inc()
}

func (m *Metrics) observeError() {
	if m == nil {
		return
	}
	m.errors.Inc()
}

func (m *Metrics) observeEnd() {
	if m == nil {
		return
	}
	m.ends.Inc()
}

func (m *Metrics) observeTimeout() {
	if m == nil {
		return
	}
	m.timeouts.Inc()
}
