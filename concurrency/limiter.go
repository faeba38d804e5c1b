// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package concurrency

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Limiter is a single adaptive in-flight bound shared by many concurrent
// request sites. Inflight counting is lock-free (two atomics: inflight,
// gauge); algorithmic limit adjustment runs under a short-held mutex. See
// package doc and spec.md §4.2.
type Limiter struct {
	algo  algorithm
	clock Clock

	gauge    atomic.Uint64
	inflight atomic.Int64

	peakInflight atomic.Int64
	peakLimit    atomic.Uint64

	mu sync.Mutex // guards algo.sample and the on-change callback

	onLimitChange func(oldLimit, newLimit uint64)

	metrics *limiterMetrics
}

// Option configures a Limiter at construction.
type Option func(*Limiter)

// WithClock overrides the limiter's clock (default RealClock), for
// deterministic tests or replay.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithOnLimitChange registers a callback invoked synchronously, with the
// limiter's internal mutex held, whenever record_sample changes the gauge.
func WithOnLimitChange(f func(oldLimit, newLimit uint64)) Option {
	return func(l *Limiter) { l.onLimitChange = f }
}

// WithRegisterer registers gauges for the inflight and limit values. A nil
// registerer (the default) disables metrics entirely.
func WithRegisterer(reg prometheus.Registerer, name string) Option {
	return func(l *Limiter) {
		if reg == nil {
			return
		}
		l.metrics = newLimiterMetrics(reg, name)
	}
}

// WithMultiGatherer registers this limiter's inflight/limit gauges under
// name with a shared metric.MultiGatherer, the way the teacher's
// core/runtime.Metrics (runtime/runtime.go) aggregates per-subsystem
// prometheus registries rather than sharing one flat registerer across the
// whole process. A fresh *prometheus.Registry is created to back the
// gauges and is itself what gets handed to mg.Register — mirroring
// api/metrics.MultiGatherer's Register(name string, gatherer
// prometheus.Gatherer) signature. A nil mg is a no-op.
func WithMultiGatherer(mg metric.MultiGatherer, name string) Option {
	return func(l *Limiter) {
		if mg == nil {
			return
		}
		reg := prometheus.NewRegistry()
		l.metrics = newLimiterMetrics(reg, name)
		_ = mg.Register(name, reg)
	}
}

func newLimiter(algo algorithm, opts ...Option) *Limiter {
	l := &Limiter{algo: algo, clock: RealClock{}}
	l.gauge.Store(algo.initial())
	l.peakLimit.Store(algo.initial())
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewFixed returns a Limiter running the Fixed algorithm.
func NewFixed(cfg FixedConfig, opts ...Option) *Limiter {
	return newLimiter(newFixed(cfg), opts...)
}

// NewAIMD returns a Limiter running the AIMD algorithm. Panics if cfg
// fails Validate — configuration invariants are a programmer error, not a
// runtime condition.
func NewAIMD(cfg AimdConfig, opts ...Option) *Limiter {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return newLimiter(newAIMD(cfg), opts...)
}

// NewGradient returns a Limiter running the Gradient algorithm. Panics if
// cfg fails Validate.
func NewGradient(cfg GradientConfig, opts ...Option) *Limiter {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return newLimiter(newGradient(cfg), opts...)
}

// New builds a Limiter from a Config sum type.
func New(cfg Config, opts ...Option) *Limiter {
	switch cfg.Kind {
	case KindAIMD:
		return NewAIMD(cfg.AIMD, opts...)
	case KindGradient:
		return NewGradient(cfg.Gradient, opts...)
	default:
		return NewFixed(cfg.Fixed, opts...)
	}
}

// Current returns the current gauge value (the adaptive limit).
func (l *Limiter) Current() uint64 { return l.gauge.Load() }

// Inflight returns the current outstanding token count.
func (l *Limiter) Inflight() uint64 {
	return uint64(l.inflight.Load())
}

// TakePeakInflight atomically swaps out the peak-inflight-since-last-call
// observation, reseeding the next interval's max at the current inflight
// count so the next window's peak starts from a truthful floor rather than
// zero.
func (l *Limiter) TakePeakInflight() uint64 {
	cur := l.inflight.Load()
	prev := l.peakInflight.Swap(cur)
	if prev < 0 {
		prev = 0
	}
	return uint64(prev)
}

// TakePeakLimit atomically swaps out the peak-limit-since-last-call
// observation, reseeding at the current gauge.
func (l *Limiter) TakePeakLimit() uint64 {
	cur := l.gauge.Load()
	return l.peakLimit.Swap(cur)
}

// Acquire atomically increments inflight and returns a Token. It never
// blocks — callers poll Current()/Inflight() themselves to decide whether
// to enqueue rather than acquire.
func (l *Limiter) Acquire() *Token {
	inflight := l.inflight.Add(1)
	for {
		peak := l.peakInflight.Load()
		if inflight <= peak {
			break
		}
		if l.peakInflight.CompareAndSwap(peak, inflight) {
			break
		}
	}
	if l.metrics != nil {
		l.metrics.inflight.Set(float64(inflight))
	}
	return &Token{
		limiter:  l,
		start:    l.clock.Now(),
		inflight: uint64(inflight),
	}
}

// updateLimit runs the algorithm under the mutex, clamps, stores the new
// gauge with release semantics, updates peakLimit, and fires the
// on-limit-change callback iff the value actually changed.
func (l *Limiter) updateLimit(rtt time.Duration, inflightAtAcquire uint64, outcome Outcome) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.gauge.Load()
	raw := l.algo.sample(rtt, inflightAtAcquire, outcome)
	min, max := l.algo.bounds()
	next := clampUint64(raw, min, max)

	l.gauge.Store(next)
	for {
		peak := l.peakLimit.Load()
		if next <= peak {
			break
		}
		if l.peakLimit.CompareAndSwap(peak, next) {
			break
		}
	}
	if l.metrics != nil {
		l.metrics.limit.Set(float64(next))
	}
	if next != old && l.onLimitChange != nil {
		l.onLimitChange(old, next)
	}
	return next
}

// Token is an RAII-style handle returned by Acquire. It owns the limiter's
// inflight slot it was issued for and must be consumed exactly once, either
// via RecordSample or Drop — typically via `defer token.Drop()` immediately
// followed by a conditional RecordSample, so abandonment (panic, early
// return) still releases the slot.
type Token struct {
	limiter  *Limiter
	start    time.Time
	inflight uint64
	done     atomic.Bool
}

// RecordSample consumes the token: on Ignore it only decrements inflight
// and returns the unchanged gauge; otherwise it computes rtt from the
// limiter's clock, decrements inflight, runs the algorithm, and returns the
// (possibly new) gauge. Calling RecordSample more than once on the same
// token is a no-op after the first call — it returns the current gauge
// without decrementing inflight again.
func (t *Token) RecordSample(outcome Outcome) uint64 {
	if !t.done.CompareAndSwap(false, true) {
		return t.limiter.Current()
	}
	newInflight := t.limiter.inflight.Add(-1)
	if t.limiter.metrics != nil {
		t.limiter.metrics.inflight.Set(float64(newInflight))
	}
	if outcome == Ignore {
		return t.limiter.Current()
	}
	rtt := t.limiter.clock.Now().Sub(t.start)
	return t.limiter.updateLimit(rtt, t.inflight, outcome)
}

// Drop decrements inflight iff RecordSample has not already consumed the
// token; otherwise it is a no-op. Safe to call unconditionally (e.g. via
// defer) regardless of whether RecordSample ran.
func (t *Token) Drop() {
	if t.done.CompareAndSwap(false, true) {
		newInflight := t.limiter.inflight.Add(-1)
		if t.limiter.metrics != nil {
			t.limiter.metrics.inflight.Set(float64(newInflight))
		}
	}
}

type limiterMetrics struct {
	inflight prometheus.Gauge
	limit    prometheus.Gauge
}

func newLimiterMetrics(reg prometheus.Registerer, name string) *limiterMetrics {
	m := &limiterMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name + "_inflight",
			Help: "Current outstanding concurrency-limiter tokens for " + name,
		}),
		limit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name + "_limit",
			Help: "Current adaptive concurrency limit for " + name,
		}),
	}
	reg.MustRegister(m.inflight, m.limit)
	return m
}
