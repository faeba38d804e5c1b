// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package concurrency

import (
	"errors"
	"math"
	"time"
)

// GradientConfig configures the latency-based gradient algorithm.
type GradientConfig struct {
	InitialLimit uint64
	MinLimit     uint64
	MaxLimit     uint64
	Smoothing    float64
	Tolerance    float64
	LongWindow   int
	// QueueSize is the queue_size(estimated_limit) term. Nil selects the
	// dynamic default sqrt(estimated_limit) (floor, minimum 1) carried
	// over from the original implementation (see SPEC_FULL.md §11); a
	// non-nil value pins a constant queue size.
	QueueSize *uint64
}

// DefaultGradientConfig returns the spec defaults: initial=20, min=20,
// max=200, smoothing=0.2, tolerance=1.5, long-window=600, dynamic queue
// size.
func DefaultGradientConfig() GradientConfig {
	return GradientConfig{
		InitialLimit: 20,
		MinLimit:     20,
		MaxLimit:     200,
		Smoothing:    0.2,
		Tolerance:    1.5,
		LongWindow:   600,
	}
}

// Validate checks the Gradient configuration invariants: tolerance >= 1.0.
func (c GradientConfig) Validate() error {
	if c.Tolerance < 1.0 {
		return errors.New("concurrency: gradient tolerance must be >= 1.0")
	}
	if c.MinLimit == 0 || c.MinLimit > c.MaxLimit {
		return errors.New("concurrency: gradient min-limit/max-limit out of order")
	}
	if c.LongWindow <= 0 {
		return errors.New("concurrency: gradient long-window must be positive")
	}
	return nil
}

func dynamicQueueSize(estimatedLimit float64) float64 {
	q := math.Sqrt(estimatedLimit)
	if q < 1 {
		q = 1
	}
	return math.Floor(q)
}

type gradientAlgorithm struct {
	estimatedLimit float64
	longRTT        float64 // nanoseconds
	sampleCount    int

	min, max   uint64
	smoothing  float64
	tolerance  float64
	longWindow int
	queueSize  func(estimatedLimit float64) float64
}

func newGradient(cfg GradientConfig) *gradientAlgorithm {
	initial := clampUint64(cfg.InitialLimit, cfg.MinLimit, cfg.MaxLimit)
	qs := dynamicQueueSize
	if cfg.QueueSize != nil {
		fixed := float64(*cfg.QueueSize)
		qs = func(float64) float64 { return fixed }
	}
	return &gradientAlgorithm{
		estimatedLimit: float64(initial),
		min:            cfg.MinLimit,
		max:            cfg.MaxLimit,
		smoothing:      cfg.Smoothing,
		tolerance:      cfg.Tolerance,
		longWindow:     cfg.LongWindow,
		queueSize:      qs,
	}
}

func (g *gradientAlgorithm) initial() uint64          { return uint64(math.Round(g.estimatedLimit)) }
func (g *gradientAlgorithm) bounds() (uint64, uint64) { return g.min, g.max }

func (g *gradientAlgorithm) sample(rtt time.Duration, inflight uint64, _ Outcome) uint64 {
	shortRTT := float64(rtt.Nanoseconds())
	if shortRTT <= 0 {
		return uint64(math.Round(g.estimatedLimit))
	}

	g.sampleCount++
	if g.sampleCount <= 10 {
		// Arithmetic-mean warmup over the first 10 samples.
		g.longRTT += (shortRTT - g.longRTT) / float64(g.sampleCount)
	} else {
		alpha := 2.0 / (float64(g.longWindow) + 1)
		g.longRTT = g.longRTT*(1-alpha) + shortRTT*alpha
	}

	// Drift decay: prevents a long-RTT EMA inflated by a past spike from
	// permanently suppressing the limit after latency recovers.
	if g.longRTT/shortRTT > 2 {
		g.longRTT *= 0.95
	}

	// App-limited guard: demand hasn't caught up to the current estimate,
	// so a latency improvement here is not evidence of more headroom.
	if float64(inflight) < g.estimatedLimit/2 {
		return uint64(math.Round(g.estimatedLimit))
	}

	gradient := clampFloat(g.tolerance*g.longRTT/shortRTT, 0.5, 1.0)
	newLimit := g.estimatedLimit*gradient + g.queueSize(g.estimatedLimit)
	g.estimatedLimit = clampFloat(
		(1-g.smoothing)*g.estimatedLimit+g.smoothing*newLimit,
		float64(g.min), float64(g.max),
	)
	return uint64(math.Round(g.estimatedLimit))
}
