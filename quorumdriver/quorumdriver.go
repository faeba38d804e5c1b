// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package quorumdriver implements the map-then-reduce-with-timeout
// primitive used to fan a request out to every committee member, fold
// responses into caller state as they arrive, and decide on the fly
// whether to keep waiting, shrink the remaining timeout, or return early.
// It mirrors the teacher's poll.Set/poll.Poll early-termination shape
// (map_each_authority/reduce_result generalized to Go generics instead of
// a fixed ids.ID ballot).
package quorumdriver

import (
	"context"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/authority/committee"
	"github.com/luxfi/authority/concurrency"
)

// Kind discriminates a ReduceOutput.
type Kind int

const (
	// KindContinue folds in the next response with the timeout unchanged.
	KindContinue Kind = iota
	// KindContinueWithTimeout folds in the next response and resets the
	// remaining wait to the given duration.
	KindContinueWithTimeout
	// KindEnd stops the fold immediately and returns the accumulated state.
	KindEnd
)

// ReduceOutput is returned by a Reduce callback after folding in one
// authority's response: Continue/ContinueWithTimeout/End, carrying the
// next accumulated state.
type ReduceOutput[S any] struct {
	Kind    Kind
	State   S
	Timeout time.Duration
}

// Continue folds state in and keeps the current timeout.
func Continue[S any](state S) ReduceOutput[S] {
	return ReduceOutput[S]{Kind: KindContinue, State: state}
}

// ContinueWithTimeout folds state in and resets the remaining wait to d.
func ContinueWithTimeout[S any](state S, d time.Duration) ReduceOutput[S] {
	return ReduceOutput[S]{Kind: KindContinueWithTimeout, State: state, Timeout: d}
}

// End stops the fold and returns state immediately.
func End[S any](state S) ReduceOutput[S] {
	return ReduceOutput[S]{Kind: KindEnd, State: state}
}

// response pairs a committee member's identity with its mapped result.
type response[V any] struct {
	name   ids.NodeID
	weight uint64
	value  V
	err    error
}

// MapFn is applied once per committee member, concurrently with every
// other member. Implementations should respect ctx cancellation.
type MapFn[V any] func(ctx context.Context, name ids.NodeID) (V, error)

// ReduceFn folds one member's mapped result into the running state.
type ReduceFn[S, V any] func(state S, name ids.NodeID, weight uint64, value V, err error) ReduceOutput[S]

// MapThenReduceWithTimeout runs mapFn concurrently against every member of
// c, then folds responses into initial via reduceFn as they arrive, in
// arrival order, honoring Continue/ContinueWithTimeout/End. If the
// deadline elapses before a KindEnd is produced, the accumulated state so
// far is returned. limiter, if non-nil, issues one token per map call:
// Acquire is called before the call (it never blocks, so every member is
// dispatched whatever the current limit) and RecordSample is invoked with
// Success/Dropped based on whether the call returned an error, feeding the
// limiter's adaptive limit. metrics,
// if non-nil, counts map requests/errors and the reduce loop's exit
// reason (end vs timeout), following the teacher's metrics/metrics.go
// register-then-update-on-the-hot-path convention; pass nil to opt out.
func MapThenReduceWithTimeout[S, V any](
	ctx context.Context,
	c *committee.Committee,
	limiter *concurrency.Limiter,
	initial S,
	mapFn MapFn[V],
	reduceFn ReduceFn[S, V],
	initialTimeout time.Duration,
	metrics *Metrics,
) S {
	members := c.Members()
	results := make(chan response[V], len(members))

	for _, name := range members {
		name := name
		go func() {
			var tok *concurrency.Token
			if limiter != nil {
				tok = limiter.Acquire()
			}
			metrics.observeRequest()
			v, err := mapFn(ctx, name)
			if err != nil {
				metrics.observeError()
			}
			if tok != nil {
				if err != nil {
					tok.RecordSample(concurrency.Dropped)
				} else {
					tok.RecordSample(concurrency.Success)
				}
			}
			results <- response[V]{name: name, weight: c.Weight(name), value: v, err: err}
		}()
	}

	timer := time.NewTimer(initialTimeout)
	defer timer.Stop()

	state := initial
	for range members {
		select {
		case r := <-results:
			out := reduceFn(state, r.name, r.weight, r.value, r.err)
			state = out.State
			switch out.Kind {
			case KindEnd:
				metrics.observeEnd()
				return state
			case KindContinueWithTimeout:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(out.Timeout)
			}
		case <-timer.C:
			metrics.observeTimeout()
			return state
		case <-ctx.Done():
			return state
		}
	}
	return state
}
