// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package concurrency

import "time"

// FixedConfig configures the Fixed algorithm: an unconditional constant
// limit, regardless of sample outcomes.
type FixedConfig struct {
	Limit uint64 `yaml:"limit" json:"limit"`
}

type fixedAlgorithm struct {
	limit uint64
}

func newFixed(cfg FixedConfig) *fixedAlgorithm {
	return &fixedAlgorithm{limit: cfg.Limit}
}

func (f *fixedAlgorithm) initial() uint64          { return f.limit }
func (f *fixedAlgorithm) bounds() (uint64, uint64) { return f.limit, f.limit }
func (f *fixedAlgorithm) sample(time.Duration, uint64, Outcome) uint64 {
	return f.limit
}
