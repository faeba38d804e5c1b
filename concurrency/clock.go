// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package concurrency implements a process-wide adaptive in-flight bound
// shared across many concurrent request sites: a single ConcurrencyLimiter
// that separates fast-path inflight counting (atomic) from slow-path
// algorithmic limit adjustment (mutex-protected). See Limiter.
package concurrency

import "time"

// Clock abstracts time.Now for deterministic replay in tests, mirroring the
// teacher's pkg/go/utils/timer/mockable.Clock: production code uses
// RealClock, tests substitute a clock they advance by hand.
type Clock interface {
	Now() time.Time
}

// RealClock is the default Clock, backed by time.Now.
type RealClock struct{}

// Now returns the current wall-clock time.
func (RealClock) Now() time.Time { return time.Now() }

// MockClock is a manually-advanced Clock for tests and replay, modeled on
// the teacher's mockable.Clock (time + Set/Advance).
type MockClock struct {
	t time.Time
}

// NewMockClock returns a MockClock initialized to t0.
func NewMockClock(t0 time.Time) *MockClock {
	return &MockClock{t: t0}
}

// Now returns the mocked time.
func (c *MockClock) Now() time.Time { return c.t }

// Set pins the mocked time to t.
func (c *MockClock) Set(t time.Time) { c.t = t }

// Advance moves the mocked time forward by d (d may be negative).
func (c *MockClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
