// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package concurrency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampUint64(t *testing.T) {
	require.Equal(t, uint64(5), clampUint64(1, 5, 10))
	require.Equal(t, uint64(10), clampUint64(20, 5, 10))
	require.Equal(t, uint64(7), clampUint64(7, 5, 10))
}

func TestClampFloat(t *testing.T) {
	require.InDelta(t, 0.5, clampFloat(0.1, 0.5, 1.0), 1e-9)
	require.InDelta(t, 1.0, clampFloat(1.5, 0.5, 1.0), 1e-9)
	require.InDelta(t, 0.8, clampFloat(0.8, 0.5, 1.0), 1e-9)
}

func TestCeilHalf(t *testing.T) {
	require.Equal(t, uint64(5), ceilHalf(10))
	require.Equal(t, uint64(5), ceilHalf(9))
	require.Equal(t, uint64(0), ceilHalf(0))
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "success", Success.String())
	require.Equal(t, "dropped", Dropped.String())
	require.Equal(t, "ignore", Ignore.String())
}
