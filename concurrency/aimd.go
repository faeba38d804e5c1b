// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package concurrency

import (
	"errors"
	"math"
	"time"
)

// AimdConfig configures the loss-based additive-increase /
// multiplicative-decrease algorithm.
type AimdConfig struct {
	InitialLimit uint64
	MinLimit     uint64
	MaxLimit     uint64
	BackoffRatio float64
	// Timeout, if non-nil, makes a Success sample whose rtt exceeds it
	// count as a drop. Nil means no timeout-based drop detection.
	Timeout *time.Duration
}

// DefaultAimdConfig returns the spec defaults: initial=20, min=20, max=200,
// backoff-ratio=0.9, timeout=5s.
func DefaultAimdConfig() AimdConfig {
	d := 5 * time.Second
	return AimdConfig{
		InitialLimit: 20,
		MinLimit:     20,
		MaxLimit:     200,
		BackoffRatio: 0.9,
		Timeout:      &d,
	}
}

// Validate checks the AIMD configuration invariants: 0.5 <= backoff-ratio <
// 1.0, and timeout (if set) is strictly positive.
func (c AimdConfig) Validate() error {
	if c.BackoffRatio < 0.5 || c.BackoffRatio >= 1.0 {
		return errors.New("concurrency: aimd backoff-ratio must be in [0.5, 1.0)")
	}
	if c.Timeout != nil && *c.Timeout <= 0 {
		return errors.New("concurrency: aimd timeout must be strictly positive when set")
	}
	if c.MinLimit == 0 || c.MinLimit > c.MaxLimit {
		return errors.New("concurrency: aimd min-limit/max-limit out of order")
	}
	return nil
}

type aimdAlgorithm struct {
	limit        float64
	min, max     uint64
	backoffRatio float64
	timeout      *time.Duration
}

func newAIMD(cfg AimdConfig) *aimdAlgorithm {
	initial := clampUint64(cfg.InitialLimit, cfg.MinLimit, cfg.MaxLimit)
	return &aimdAlgorithm{
		limit:        float64(initial),
		min:          cfg.MinLimit,
		max:          cfg.MaxLimit,
		backoffRatio: cfg.BackoffRatio,
		timeout:      cfg.Timeout,
	}
}

func (a *aimdAlgorithm) initial() uint64          { return uint64(a.limit) }
func (a *aimdAlgorithm) bounds() (uint64, uint64) { return a.min, a.max }

func (a *aimdAlgorithm) sample(rtt time.Duration, inflight uint64, outcome Outcome) uint64 {
	isDrop := outcome == Dropped || (outcome == Success && a.timeout != nil && rtt > *a.timeout)

	current := uint64(a.limit)
	switch {
	case isDrop:
		a.limit = math.Floor(a.limit * a.backoffRatio)
	case outcome == Success && inflight >= ceilHalf(current):
		a.limit++
	}
	a.limit = clampFloat(a.limit, float64(a.min), float64(a.max))
	return uint64(a.limit)
}
