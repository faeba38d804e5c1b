// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package concurrency

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestLimiterTokenRecordSampleIsSingleUse(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	l := NewAIMD(AimdConfig{InitialLimit: 10, MinLimit: 1, MaxLimit: 1000, BackoffRatio: 0.9}, WithClock(clock))

	tok := l.Acquire()
	clock.Advance(10 * time.Millisecond)

	first := tok.RecordSample(Dropped)
	require.Equal(t, uint64(9), first)
	require.Equal(t, uint64(0), l.Inflight())

	// A second RecordSample must not double-decrement inflight or re-run
	// the algorithm.
	second := tok.RecordSample(Dropped)
	require.Equal(t, first, second)
	require.Equal(t, uint64(9), l.Current())
}

func TestLimiterTokenDropAfterRecordSampleIsNoOp(t *testing.T) {
	l := NewFixed(FixedConfig{Limit: 5})
	tok := l.Acquire()
	tok.RecordSample(Success)
	require.Equal(t, uint64(0), l.Inflight())
	tok.Drop()
	require.Equal(t, uint64(0), l.Inflight())
}

func TestLimiterTokenDropWithoutRecordSampleReleasesSlot(t *testing.T) {
	l := NewFixed(FixedConfig{Limit: 5})
	tok := l.Acquire()
	require.Equal(t, uint64(1), l.Inflight())
	tok.Drop()
	require.Equal(t, uint64(0), l.Inflight())
}

func TestLimiterIgnoreOutcomeLeavesLimitUnchanged(t *testing.T) {
	l := NewAIMD(AimdConfig{InitialLimit: 10, MinLimit: 1, MaxLimit: 1000, BackoffRatio: 0.9})
	tok := l.Acquire()
	got := tok.RecordSample(Ignore)
	require.Equal(t, uint64(10), got)
	require.Equal(t, uint64(10), l.Current())
	require.Equal(t, uint64(0), l.Inflight())
}

func TestLimiterOnLimitChangeFiresOnlyOnActualChange(t *testing.T) {
	var calls int
	l := NewAIMD(AimdConfig{InitialLimit: 10, MinLimit: 1, MaxLimit: 1000, BackoffRatio: 0.9},
		WithOnLimitChange(func(old, next uint64) { calls++ }))

	tok := l.Acquire()
	tok.RecordSample(Success) // below half-inflight threshold -> no change
	require.Equal(t, 0, calls)

	tok2 := l.Acquire()
	tok2.RecordSample(Dropped)
	require.Equal(t, 1, calls)
}

func TestLimiterPeakInflightTracksAndResets(t *testing.T) {
	l := NewFixed(FixedConfig{Limit: 100})
	a := l.Acquire()
	b := l.Acquire()
	require.Equal(t, uint64(2), l.TakePeakInflight())
	// Next call should reflect the post-take floor, not zero.
	require.Equal(t, uint64(2), l.TakePeakInflight())
	a.Drop()
	b.Drop()
}

func TestLimiterPeakLimitTracksAndResets(t *testing.T) {
	l := NewAIMD(AimdConfig{InitialLimit: 10, MinLimit: 1, MaxLimit: 1000, BackoffRatio: 0.9})
	require.Equal(t, uint64(10), l.TakePeakLimit())

	tok := l.Acquire()
	tok.RecordSample(Dropped) // drops to 9, below peak
	require.Equal(t, uint64(10), l.TakePeakLimit())
	require.Equal(t, uint64(9), l.TakePeakLimit())
}

func TestNewSelectsAlgorithmByKind(t *testing.T) {
	fixed := New(Config{Kind: KindFixed, Fixed: FixedConfig{Limit: 7}})
	require.Equal(t, uint64(7), fixed.Current())

	aimd := New(Config{Kind: KindAIMD, AIMD: DefaultAimdConfig()})
	require.Equal(t, uint64(20), aimd.Current())

	gradient := New(Config{Kind: KindGradient, Gradient: DefaultGradientConfig()})
	require.Equal(t, uint64(20), gradient.Current())
}

func TestLimiterBoundsInvariantHoldsAcrossHistory(t *testing.T) {
	l := NewAIMD(AimdConfig{InitialLimit: 10, MinLimit: 5, MaxLimit: 15, BackoffRatio: 0.5})
	outcomes := []Outcome{Dropped, Dropped, Dropped, Dropped, Success, Success, Success, Dropped}
	for _, o := range outcomes {
		tok := l.Acquire()
		tok.RecordSample(o)
		cur := l.Current()
		require.GreaterOrEqual(t, cur, uint64(5))
		require.LessOrEqual(t, cur, uint64(15))
	}
}

func TestWithRegistererWiresPrometheusGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := NewFixed(FixedConfig{Limit: 3}, WithRegisterer(reg, "test_limiter"))
	tok := l.Acquire()
	tok.RecordSample(Success)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}

func TestWithRegistererNilDisablesMetrics(t *testing.T) {
	l := NewFixed(FixedConfig{Limit: 3}, WithRegisterer(nil, "test_limiter"))
	tok := l.Acquire()
	require.NotPanics(t, func() { tok.RecordSample(Success) })
}
