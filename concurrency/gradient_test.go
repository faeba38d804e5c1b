// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGradientConfigValidate(t *testing.T) {
	ok := DefaultGradientConfig()
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Tolerance = 0.9
	require.Error(t, bad.Validate())

	bad = ok
	bad.MinLimit = 0
	require.Error(t, bad.Validate())

	bad = ok
	bad.LongWindow = 0
	require.Error(t, bad.Validate())
}

func TestDynamicQueueSizeFloorsAtOne(t *testing.T) {
	require.Equal(t, 1.0, dynamicQueueSize(0))
	require.Equal(t, 1.0, dynamicQueueSize(1))
	require.Equal(t, 4.0, dynamicQueueSize(20))
}

func TestGradientZeroRTTIsIdempotent(t *testing.T) {
	g := newGradient(DefaultGradientConfig())
	before := g.initial()
	require.Equal(t, before, g.sample(0, 100, Success))
	require.Equal(t, before, g.sample(-1, 100, Success))
}

func TestGradientAppLimitedGuardHoldsLimitSteady(t *testing.T) {
	g := newGradient(GradientConfig{
		InitialLimit: 20, MinLimit: 5, MaxLimit: 200,
		Smoothing: 0.2, Tolerance: 1.5, LongWindow: 600,
	})
	before := g.initial()
	// inflight well under estimatedLimit/2: demand hasn't caught up, so a
	// fast sample must not be read as headroom.
	for i := 0; i < 5; i++ {
		got := g.sample(5*time.Millisecond, 2, Success)
		require.Equal(t, before, got)
	}
}

// TestGradientSpikeThenRecover reproduces the documented shape: warm-up
// growth, a latency spike that forces the limit down, then recovery above
// the spiked value once RTT returns to baseline.
func TestGradientSpikeThenRecover(t *testing.T) {
	cfg := GradientConfig{
		InitialLimit: 20, MinLimit: 5, MaxLimit: 200,
		Smoothing: 0.2, Tolerance: 1.5, LongWindow: 600,
	}
	g := newGradient(cfg)

	limit := g.initial()
	for i := 0; i < 30; i++ {
		limit = g.sample(10*time.Millisecond, limit, Success)
	}
	limitBeforeSpike := limit

	limitAfterSpike := g.sample(300*time.Millisecond, limitBeforeSpike, Success)
	require.Less(t, limitAfterSpike, limitBeforeSpike)

	limit = limitAfterSpike
	for i := 0; i < 200; i++ {
		limit = g.sample(10*time.Millisecond, limit, Success)
	}
	limitRecovered := limit

	require.Greater(t, limitRecovered, limitAfterSpike)
}

func TestGradientRespectsFixedQueueSize(t *testing.T) {
	qs := uint64(3)
	g := newGradient(GradientConfig{
		InitialLimit: 20, MinLimit: 5, MaxLimit: 200,
		Smoothing: 1.0, Tolerance: 1.5, LongWindow: 600, QueueSize: &qs,
	})
	require.Equal(t, 3.0, g.queueSize(g.estimatedLimit))
}

func TestNewGradientPanicsOnInvalidConfig(t *testing.T) {
	require.Panics(t, func() {
		NewGradient(GradientConfig{Tolerance: 0})
	})
}
