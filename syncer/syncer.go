// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package syncer implements the Sync Engine: bringing a destination
// validator's causal history up to date with a certificate it rejected
// for a missing dependency, by pulling the dependency chain from a
// sampled source validator and replaying it in causal order. Named syncer,
// not sync, to avoid shadowing the standard library package when imported
// alongside it.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/authority/committee"
	"github.com/luxfi/authority/ledger"
	"github.com/luxfi/authority/rpc"
)

// Errors returned by Engine.Sync.
var (
	// ErrUnavailable means neither the destination's rejection nor any
	// sampled source could supply the information needed to proceed —
	// the causal history is unavailable from every authority tried.
	ErrUnavailable = errors.New("syncer: causal history unavailable")
	// ErrAuthorityUpdateFailure means every sampled source authority's sync
	// attempt timed out or failed before the destination accepted the
	// target certificate. The last attempt's error is wrapped alongside it.
	ErrAuthorityUpdateFailure = errors.New("syncer: exhausted retry budget without updating authority")
)

// Engine repairs a destination validator's missing causal history for a
// certificate, sampling source validators from the certificate's own
// signer set (every signer attests to having processed it and its
// dependencies already).
type Engine struct {
	committee *committee.Committee
	clients   map[ids.NodeID]rpc.ValidatorClient
	source    committee.Source
	log       log.Logger
}

// New builds an Engine over a fixed client set. clients must contain an
// entry for every committee member that may be named as a sync source or
// destination.
func New(c *committee.Committee, clients map[ids.NodeID]rpc.ValidatorClient, src committee.Source, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Engine{committee: c, clients: clients, source: src, log: logger}
}

// Sync brings destination up to date with cert and its full causal
// history, trying up to retries distinct source authorities (stake-
// sampled from cert's signer set) in sequence, each bounded by timeout.
// It returns nil as soon as one source/destination pairing succeeds.
func (e *Engine) Sync(ctx context.Context, cert ledger.Certificate, destination ids.NodeID, timeout time.Duration, retries int) error {
	signers := cert.Signers()
	candidates := make(map[ids.NodeID]struct{}, len(signers))
	for _, s := range signers {
		if s != destination {
			candidates[s] = struct{}{}
		}
	}

	exclude := make(map[ids.NodeID]struct{}, e.committee.Len())
	for _, m := range e.committee.Members() {
		if _, ok := candidates[m]; !ok {
			exclude[m] = struct{}{}
		}
	}

	n := retries
	if n > len(candidates) {
		n = len(candidates)
	}
	if n == 0 {
		return ErrUnavailable
	}
	sources, err := e.committee.SampleDistinct(e.source, n, exclude)
	if err != nil {
		return ErrUnavailable
	}

	var lastErr error
	for _, src := range sources {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := e.syncFromSource(attemptCtx, cert, src, destination)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		e.log.Debug("sync attempt failed", "source", src, "destination", destination, "error", err)
	}
	if lastErr == nil {
		return ErrAuthorityUpdateFailure
	}
	return fmt.Errorf("%w: %w", ErrAuthorityUpdateFailure, lastErr)
}

// syncFromSource runs the causal-history repair loop against a single
// (source, destination) pair: a LIFO stack of certificates still to push,
// seeded with cert, with dependency discovery via the source whenever the
// destination reports it is missing input.
func (e *Engine) syncFromSource(ctx context.Context, cert ledger.Certificate, source, destination ids.NodeID) error {
	sourceClient, ok := e.clients[source]
	if !ok {
		return ErrUnavailable
	}
	destClient, ok := e.clients[destination]
	if !ok {
		return ErrUnavailable
	}

	digest := cert.Digest()
	stack := []ledger.Certificate{cert}
	candidateDigests := map[ledger.TransactionDigest]struct{}{digest: {}}
	attempted := map[ledger.TransactionDigest]struct{}{}

	for len(stack) > 0 {
		target := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		_, err := destClient.SubmitCertificate(ctx, target)
		if err == nil {
			continue
		}
		if !errors.Is(err, rpc.ErrLock) {
			return err
		}

		targetDigest := target.Digest()
		if _, seen := attempted[targetDigest]; seen {
			return ErrUnavailable
		}
		attempted[targetDigest] = struct{}{}

		var effects *ledger.SignedEffects
		if len(stack) == 0 {
			resp, err := sourceClient.SubmitCertificate(ctx, target)
			if err != nil {
				return err
			}
			effects = resp.Effects
		} else {
			resp, err := sourceClient.GetTransactionInfo(ctx, targetDigest)
			if err != nil {
				return err
			}
			effects = resp.Effects
		}
		if effects == nil {
			return ErrUnavailable
		}

		stack = append(stack, target)

		for _, dep := range effects.Effects.Dependencies {
			if _, seen := candidateDigests[dep]; seen {
				continue
			}
			candidateDigests[dep] = struct{}{}

			info, err := sourceClient.GetTransactionInfo(ctx, dep)
			if err != nil {
				return err
			}
			if info.Certificate == nil {
				return ErrUnavailable
			}
			stack = append(stack, *info.Certificate)
		}
	}
	return nil
}
