// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package committee

import (
	"errors"
	"math"
	"math/rand"

	"github.com/luxfi/ids"
)

// Source is a source of randomness for SampleDistinct. Tests inject a
// seeded Source for reproducibility; production callers use NewRandSource.
type Source interface {
	Uint64() uint64
}

type randSource struct{ r *rand.Rand }

// NewRandSource returns a Source seeded from seed.
func NewRandSource(seed int64) Source {
	return randSource{r: rand.New(rand.NewSource(seed))}
}

func (s randSource) Uint64() uint64 { return s.r.Uint64() }

// ErrInsufficientMembers is returned by SampleDistinct when n exceeds the
// number of eligible (non-excluded) committee members.
var ErrInsufficientMembers = errors.New("committee: not enough members to sample")

// SampleDistinct draws n distinct members by weighted-without-replacement
// sampling over stake, skipping any member present in exclude. Used by the
// Sync Engine to pick up to `retries` candidate sources from a
// certificate's signer set, and more generally whenever the aggregator
// needs a stake-weighted pick of a validator (e.g. a repair source).
//
// The sampling algorithm mirrors the teacher's
// utils/sampler.weightedWithoutReplacement: repeatedly draw a uniform point
// in [0, totalWeight) among not-yet-picked weight-points and locate the
// member whose cumulative weight interval contains it.
func (c *Committee) SampleDistinct(src Source, n int, exclude map[ids.NodeID]struct{}) ([]ids.NodeID, error) {
	eligible := make([]ids.NodeID, 0, len(c.members))
	weights := make([]uint64, 0, len(c.members))
	var total uint64
	for _, id := range c.members {
		if _, skip := exclude[id]; skip {
			continue
		}
		w := c.Weight(id)
		eligible = append(eligible, id)
		weights = append(weights, w)
		total += w
	}

	if n == 0 {
		return []ids.NodeID{}, nil
	}
	if n > len(eligible) || total == 0 {
		return nil, ErrInsufficientMembers
	}

	picked := make([]ids.NodeID, n)
	used := make(map[int]bool, n)
	remainingWeight := total
	remainingWeights := make([]uint64, len(weights))
	copy(remainingWeights, weights)

	for i := 0; i < n; i++ {
		if remainingWeight == 0 || remainingWeight > math.MaxInt64 {
			return nil, ErrInsufficientMembers
		}
		point := src.Uint64() % remainingWeight
		var cum uint64
		idx := -1
		for j, w := range remainingWeights {
			if used[j] {
				continue
			}
			cum += w
			if point < cum {
				idx = j
				break
			}
		}
		if idx == -1 {
			return nil, ErrInsufficientMembers
		}
		used[idx] = true
		remainingWeight -= remainingWeights[idx]
		picked[i] = eligible[idx]
	}
	return picked, nil
}
