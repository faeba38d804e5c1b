// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package aggregator implements the AuthorityAggregator: the client-side
// quorum coordinator that turns a Transaction into a Certificate, a
// Certificate into Effects, and answers object/account queries by polling
// the committee and folding the results, repairing any validator found
// missing causal history along the way.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/authority/committee"
	"github.com/luxfi/authority/concurrency"
	"github.com/luxfi/authority/ledger"
	"github.com/luxfi/authority/quorumdriver"
	"github.com/luxfi/authority/rpc"
	"github.com/luxfi/authority/syncer"
)

// ErrQuorumNotReached is returned by ProcessTransaction/ProcessCertificate
// when bad-stake responses crossed the validity threshold before a
// quorum-worthy good result could be assembled. Errs holds one error per
// validator response that counted against the bad-stake tally, in arrival
// order.
type ErrQuorumNotReached struct {
	Errs []error
}

func (e *ErrQuorumNotReached) Error() string {
	return fmt.Sprintf("aggregator: quorum not reached after %d bad responses", len(e.Errs))
}

// ErrEffectsDivergence is returned by ProcessCertificate when quorum stake
// was reached but split across more than one distinct effects digest —
// a committee that disagrees about the result of an already-certified
// transaction is by definition more than f Byzantine, and no single
// digest can be trusted as "the" outcome.
var ErrEffectsDivergence = errors.New("aggregator: committee diverged on certificate effects")

// ErrNoCertificate is returned by ProcessTransaction when the map-reduce
// ended (quorum unreachable, timeout) without ever assembling a
// certificate, and no bad-stake threshold was crossed to explain why.
var ErrNoCertificate = errors.New("aggregator: no certificate could be formed")

// Deps is the aggregator's dependency bag, following the teacher's
// dependency-injection convention: every external capability arrives as an
// explicit field rather than being constructed internally, so tests can
// substitute fakes for every one of them.
type Deps struct {
	Committee *committee.Committee
	Clients   map[ids.NodeID]*committee.SafeClient
	Syncer    *syncer.Engine
	Limiter   *concurrency.Limiter
	Log       log.Logger
	Metrics   prometheus.Registerer

	// MultiGatherer, if set, additionally registers each operation's
	// metrics under its own sub-registry with a shared metric.MultiGatherer,
	// the way the teacher's core/runtime.Metrics aggregates per-subsystem
	// registries (runtime/runtime.go) instead of one flat registerer.
	// Takes precedence over Metrics when both are set.
	MultiGatherer metric.MultiGatherer
}

// Aggregator is the client-side quorum coordinator: it holds no consensus
// state of its own, only a view of the committee and how to reach it.
type Aggregator struct {
	deps Deps
	log  log.Logger

	qdMetrics map[string]*quorumdriver.Metrics
}

// operationNames lists every MapThenReduceWithTimeout call site that gets
// its own named Metrics when Deps.Metrics/MultiGatherer is configured.
var operationNames = []string{
	"process_transaction",
	"process_certificate",
	"get_object_by_id",
	"get_all_owned_objects",
}

// New validates deps and returns an Aggregator. Every committee member
// must have an entry in deps.Clients.
func New(deps Deps) (*Aggregator, error) {
	if deps.Committee == nil {
		return nil, errors.New("aggregator: nil committee")
	}
	for _, m := range deps.Committee.Members() {
		if _, ok := deps.Clients[m]; !ok {
			return nil, fmt.Errorf("aggregator: missing client for committee member %s", m)
		}
	}
	logger := deps.Log
	if logger == nil {
		logger = log.NewNoOpLogger()
	}

	qdMetrics := make(map[string]*quorumdriver.Metrics, len(operationNames))
	for _, op := range operationNames {
		switch {
		case deps.MultiGatherer != nil:
			qdMetrics[op] = quorumdriver.NewMultiGathererMetrics(deps.MultiGatherer, "authority_"+op)
		case deps.Metrics != nil:
			qdMetrics[op] = quorumdriver.NewMetrics(deps.Metrics, "authority_"+op)
		}
	}

	return &Aggregator{deps: deps, log: logger, qdMetrics: qdMetrics}, nil
}

func (a *Aggregator) client(name ids.NodeID) *committee.SafeClient {
	return a.deps.Clients[name]
}

type transactionState struct {
	signatures  map[ids.NodeID][]byte
	certificate *ledger.Certificate
	errs        []error
	goodStake   uint64
	badStake    uint64
}

// ProcessTransaction broadcasts tx to the committee, aggregating
// signatures (or adopting an already-formed certificate reported back by
// any validator) until quorum stake is reached, per spec.md §4.5. Before
// broadcasting, it syncs every input object ref across the committee so a
// validator lagging behind the transaction's inputs can still sign.
func (a *Aggregator) ProcessTransaction(ctx context.Context, tx ledger.Transaction, timeout time.Duration) (ledger.Certificate, error) {
	if a.deps.Syncer != nil {
		inputIDs := make([]ledger.ObjectID, 0, len(tx.Inputs))
		seen := map[ledger.ObjectID]struct{}{}
		for _, ref := range tx.Inputs {
			if _, ok := seen[ref.ID]; ok {
				continue
			}
			seen[ref.ID] = struct{}{}
			inputIDs = append(inputIDs, ref.ID)
		}
		if len(inputIDs) > 0 {
			if _, _, err := a.SyncAllGivenObjects(ctx, inputIDs, timeout); err != nil {
				a.log.Debug("sync of input objects before ProcessTransaction failed", "error", err)
			}
		}
	}

	quorum := a.deps.Committee.QuorumThreshold()
	validity := a.deps.Committee.ValidityThreshold()

	mapFn := func(ctx context.Context, name ids.NodeID) (rpc.TransactionResponse, error) {
		return a.client(name).SubmitTransaction(ctx, tx)
	}

	initial := transactionState{signatures: map[ids.NodeID][]byte{}}
	reduceFn := func(state transactionState, name ids.NodeID, weight uint64, resp rpc.TransactionResponse, err error) quorumdriver.ReduceOutput[transactionState] {
		switch {
		case err != nil:
			state.errs = append(state.errs, err)
			state.badStake += weight
		case resp.Certificate != nil:
			state.certificate = resp.Certificate
		case resp.SignedTx != nil:
			state.signatures[name] = resp.SignedTx.Signature
			state.goodStake += weight
			if state.goodStake >= quorum {
				state.certificate = &ledger.Certificate{Transaction: tx, Signatures: cloneSignatures(state.signatures)}
			}
		default:
			state.errs = append(state.errs, errors.New("aggregator: empty transaction response"))
			state.badStake += weight
		}

		if state.certificate != nil {
			return quorumdriver.End(state)
		}
		if state.badStake > validity {
			return quorumdriver.End(state)
		}
		return quorumdriver.Continue(state)
	}

	final := quorumdriver.MapThenReduceWithTimeout(ctx, a.deps.Committee, a.deps.Limiter, initial, mapFn, reduceFn, timeout, a.qdMetrics["process_transaction"])

	if final.certificate != nil {
		return *final.certificate, nil
	}
	if final.badStake > validity {
		return ledger.Certificate{}, &ErrQuorumNotReached{Errs: final.errs}
	}
	return ledger.Certificate{}, ErrNoCertificate
}

func cloneSignatures(m map[ids.NodeID][]byte) map[ids.NodeID][]byte {
	out := make(map[ids.NodeID][]byte, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type certificateState struct {
	effectsStake map[ledger.EffectsDigest]uint64
	effects      map[ledger.EffectsDigest]ledger.Effects
	errs         []error
	badStake     uint64
}

// ProcessCertificate submits cert to the committee, repairing any
// validator that rejects it for missing causal history via the Sync
// Engine before retrying once, and folds returned effects by content
// digest until one digest crosses quorum stake, per spec.md §4.5. Once a
// digest crosses quorum, the driver switches to the shorter
// timeoutAfterQuorum to gather late votes without waiting out the full
// initial timeout. If quorum stake splits across more than one distinct
// digest, ErrEffectsDivergence is returned — distinguishing genuine
// Byzantine divergence from an ordinary not-yet-converged poll.
func (a *Aggregator) ProcessCertificate(ctx context.Context, cert ledger.Certificate, timeout, timeoutAfterQuorum time.Duration) (ledger.Effects, error) {
	quorum := a.deps.Committee.QuorumThreshold()
	validity := a.deps.Committee.ValidityThreshold()

	mapFn := func(ctx context.Context, name ids.NodeID) (rpc.CertificateResponse, error) {
		resp, err := a.client(name).SubmitCertificate(ctx, cert)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, rpc.ErrLock) || a.deps.Syncer == nil {
			return resp, err
		}
		if syncErr := a.deps.Syncer.Sync(ctx, cert, name, timeout, 4); syncErr != nil {
			return resp, syncErr
		}
		return a.client(name).SubmitCertificate(ctx, cert)
	}

	initial := certificateState{
		effectsStake: map[ledger.EffectsDigest]uint64{},
		effects:      map[ledger.EffectsDigest]ledger.Effects{},
	}
	reduceFn := func(state certificateState, _ ids.NodeID, weight uint64, resp rpc.CertificateResponse, err error) quorumdriver.ReduceOutput[certificateState] {
		if err == nil && resp.Effects != nil {
			d := resp.Effects.Effects.Digest()
			state.effectsStake[d] += weight
			state.effects[d] = resp.Effects.Effects
			if state.effectsStake[d] >= quorum {
				return quorumdriver.ContinueWithTimeout(state, timeoutAfterQuorum)
			}
			return quorumdriver.Continue(state)
		}

		if err != nil {
			state.errs = append(state.errs, err)
		}
		state.badStake += weight
		if state.badStake > validity {
			return quorumdriver.End(state)
		}
		return quorumdriver.Continue(state)
	}

	final := quorumdriver.MapThenReduceWithTimeout(ctx, a.deps.Committee, a.deps.Limiter, initial, mapFn, reduceFn, timeout, a.qdMetrics["process_certificate"])

	var winners []ledger.EffectsDigest
	var effectsStake uint64
	for d, stake := range final.effectsStake {
		effectsStake += stake
		if stake >= quorum {
			winners = append(winners, d)
		}
	}
	switch {
	case len(winners) == 1:
		return final.effects[winners[0]], nil
	case len(winners) > 1, len(final.effectsStake) > 1 && effectsStake >= quorum:
		return ledger.Effects{}, ErrEffectsDivergence
	case final.badStake > validity:
		return ledger.Effects{}, &ErrQuorumNotReached{Errs: final.errs}
	default:
		return ledger.Effects{}, ErrNoCertificate
	}
}

// ExecuteTransaction is the common-case end-to-end call: form a
// certificate, then execute it, returning both.
func (a *Aggregator) ExecuteTransaction(ctx context.Context, tx ledger.Transaction, timeout, timeoutAfterQuorum time.Duration) (ledger.Certificate, ledger.Effects, error) {
	cert, err := a.ProcessTransaction(ctx, tx, timeout)
	if err != nil {
		return ledger.Certificate{}, ledger.Effects{}, err
	}
	effects, err := a.ProcessCertificate(ctx, cert, timeout, timeoutAfterQuorum)
	if err != nil {
		return cert, ledger.Effects{}, err
	}
	return cert, effects, nil
}
