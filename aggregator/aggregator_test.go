// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package aggregator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/authority/committee"
	"github.com/luxfi/authority/ledger"
	"github.com/luxfi/authority/rpc"
	"github.com/luxfi/authority/syncer"
)

func testTx(sender ids.NodeID) ledger.Transaction {
	return ledger.Transaction{Sender: sender, Nonce: 1, Kind: testKind{payload: []byte("payload")}}
}

func TestProcessTransactionReachesQuorumAndAssemblesCertificate(t *testing.T) {
	c, auths := fourAuthorityCommittee(t)
	tx := testTx(auths[0].node)

	clients := make(map[ids.NodeID]rpc.ValidatorClient, len(auths))
	for _, a := range auths {
		a := a
		clients[a.node] = &stubClient{
			submitTransaction: func(context.Context, ledger.Transaction) (rpc.TransactionResponse, error) {
				return rpc.TransactionResponse{SignedTx: a.signedTx(tx)}, nil
			},
		}
	}

	agg := newAggregator(t, c, clients)
	cert, err := agg.ProcessTransaction(context.Background(), tx, time.Second)
	require.NoError(t, err)
	require.True(t, c.HasQuorum(uint64(len(cert.Signatures))))
	require.NoError(t, c.AssembleCertificate(cert.Signatures))
}

func TestProcessTransactionShortCircuitsOnReportedCertificate(t *testing.T) {
	c, auths := fourAuthorityCommittee(t)
	tx := testTx(auths[0].node)

	digest := tx.Digest()
	already := ledger.Certificate{
		Transaction: tx,
		Signatures: map[ids.NodeID][]byte{
			auths[0].node: auths[0].sign(digest[:]),
			auths[1].node: auths[1].sign(digest[:]),
			auths[2].node: auths[2].sign(digest[:]),
		},
	}

	clients := make(map[ids.NodeID]rpc.ValidatorClient, len(auths))
	for i, a := range auths {
		a := a
		i := i
		clients[a.node] = &stubClient{
			submitTransaction: func(context.Context, ledger.Transaction) (rpc.TransactionResponse, error) {
				if i == 0 {
					return rpc.TransactionResponse{Certificate: &already}, nil
				}
				return rpc.TransactionResponse{SignedTx: a.signedTx(tx)}, nil
			},
		}
	}

	agg := newAggregator(t, c, clients)
	cert, err := agg.ProcessTransaction(context.Background(), tx, time.Second)
	require.NoError(t, err)
	require.Equal(t, already.Digest(), cert.Digest())
}

func TestProcessTransactionReturnsQuorumNotReached(t *testing.T) {
	c, auths := fourAuthorityCommittee(t)
	tx := testTx(auths[0].node)

	clients := make(map[ids.NodeID]rpc.ValidatorClient, len(auths))
	for _, a := range auths {
		clients[a.node] = &stubClient{
			submitTransaction: func(context.Context, ledger.Transaction) (rpc.TransactionResponse, error) {
				return rpc.TransactionResponse{}, rpc.ErrUnavailable
			},
		}
	}

	agg := newAggregator(t, c, clients)
	_, err := agg.ProcessTransaction(context.Background(), tx, time.Second)
	var quorumErr *ErrQuorumNotReached
	require.ErrorAs(t, err, &quorumErr)
	require.NotEmpty(t, quorumErr.Errs)
}

// TestProcessTransactionSyncsInputObjectsBeforeBroadcast covers spec.md
// §4.5 step 1: before broadcasting, ProcessTransaction must sync the tx's
// input object refs across the committee so a lagging validator can still
// sign. auths[3] is lagging behind latestRef (it reports an older version);
// the other three report latestRef plus its parent certificate. The test
// asserts that the transaction still certifies and that the Sync Engine
// invoked the lagging validator's SubmitCertificate exactly once.
func TestProcessTransactionSyncsInputObjectsBeforeBroadcast(t *testing.T) {
	c, auths := fourAuthorityCommittee(t)
	dest := auths[3]
	others := auths[:3]

	id := ids.GenerateTestID()
	latestRef := objRef(id, 2, 0x20)
	oldRef := objRef(id, 1, 0x21)

	depTx := testTx(others[0].node)
	depCert := ledger.Certificate{Transaction: depTx, Signatures: map[ids.NodeID][]byte{
		others[0].node: {1}, others[1].node: {1}, others[2].node: {1},
	}}

	tx := testTx(auths[0].node)
	tx.Inputs = []ledger.ObjectRef{latestRef}

	var destSyncCalls atomic.Int32
	rawClients := make(map[ids.NodeID]rpc.ValidatorClient, len(auths))
	for _, a := range others {
		a := a
		rawClients[a.node] = &stubClient{
			getObjectInfo: func(context.Context, ledger.ObjectID, rpc.ObjectLayout) (rpc.ObjectInfoResponse, error) {
				return rpc.ObjectInfoResponse{Ref: latestRef, Content: []byte("x"), ParentCert: &depCert}, nil
			},
			submitTransaction: func(context.Context, ledger.Transaction) (rpc.TransactionResponse, error) {
				return rpc.TransactionResponse{SignedTx: a.signedTx(tx)}, nil
			},
		}
	}
	rawClients[dest.node] = &stubClient{
		getObjectInfo: func(context.Context, ledger.ObjectID, rpc.ObjectLayout) (rpc.ObjectInfoResponse, error) {
			return rpc.ObjectInfoResponse{Ref: oldRef, Content: []byte("old")}, nil
		},
		submitCertificate: func(context.Context, ledger.Certificate) (rpc.CertificateResponse, error) {
			destSyncCalls.Add(1)
			return rpc.CertificateResponse{Effects: dest.signedEffects(testEffects(depCert.Digest()))}, nil
		},
		submitTransaction: func(context.Context, ledger.Transaction) (rpc.TransactionResponse, error) {
			return rpc.TransactionResponse{SignedTx: dest.signedTx(tx)}, nil
		},
	}

	syncEngine := syncer.New(c, rawClients, committee.NewRandSource(1), nil)
	agg := newAggregator(t, c, rawClients)
	agg.deps.Syncer = syncEngine

	cert, err := agg.ProcessTransaction(context.Background(), tx, time.Second)
	require.NoError(t, err)
	require.True(t, c.HasQuorum(uint64(len(cert.Signatures))))
	require.Equal(t, int32(1), destSyncCalls.Load())
}

func testEffects(digest ledger.TransactionDigest) ledger.Effects {
	return ledger.Effects{TransactionDigest: digest, Status: ledger.StatusSuccess}
}

func TestProcessCertificateReachesQuorum(t *testing.T) {
	c, auths := fourAuthorityCommittee(t)
	tx := testTx(auths[0].node)
	cert := ledger.Certificate{Transaction: tx, Signatures: map[ids.NodeID][]byte{
		auths[0].node: {1}, auths[1].node: {1}, auths[2].node: {1},
	}}
	effects := testEffects(cert.Digest())

	clients := make(map[ids.NodeID]rpc.ValidatorClient, len(auths))
	for _, a := range auths {
		a := a
		clients[a.node] = &stubClient{
			submitCertificate: func(context.Context, ledger.Certificate) (rpc.CertificateResponse, error) {
				return rpc.CertificateResponse{Effects: a.signedEffects(effects)}, nil
			},
		}
	}

	agg := newAggregator(t, c, clients)
	got, err := agg.ProcessCertificate(context.Background(), cert, time.Second, time.Second)
	require.NoError(t, err)
	require.Equal(t, effects.Digest(), got.Digest())
}

func TestProcessCertificateReturnsQuorumNotReached(t *testing.T) {
	c, auths := fourAuthorityCommittee(t)
	tx := testTx(auths[0].node)
	cert := ledger.Certificate{Transaction: tx, Signatures: map[ids.NodeID][]byte{
		auths[0].node: {1}, auths[1].node: {1}, auths[2].node: {1},
	}}

	clients := make(map[ids.NodeID]rpc.ValidatorClient, len(auths))
	for _, a := range auths {
		clients[a.node] = &stubClient{
			submitCertificate: func(context.Context, ledger.Certificate) (rpc.CertificateResponse, error) {
				return rpc.CertificateResponse{}, rpc.ErrInvalid
			},
		}
	}

	agg := newAggregator(t, c, clients)
	_, err := agg.ProcessCertificate(context.Background(), cert, time.Second, time.Second)
	var quorumErr *ErrQuorumNotReached
	require.ErrorAs(t, err, &quorumErr)
}

func TestProcessCertificateLockTriggersSyncThenRetry(t *testing.T) {
	c, auths := fourAuthorityCommittee(t)
	dest := auths[0]
	others := auths[1:]

	tx := testTx(dest.node)
	cert := ledger.Certificate{Transaction: tx, Signatures: map[ids.NodeID][]byte{
		others[0].node: {1}, others[1].node: {1}, others[2].node: {1},
	}}
	effects := testEffects(cert.Digest())

	var destCalls atomic.Int32
	destStub := &stubClient{
		submitCertificate: func(context.Context, ledger.Certificate) (rpc.CertificateResponse, error) {
			switch destCalls.Add(1) {
			case 1:
				return rpc.CertificateResponse{}, rpc.ErrLock
			case 2:
				// Hit directly by the Sync Engine's repair loop, not through
				// SafeClient — an unsigned stand-in is enough to let the
				// repair stack empty and Sync return.
				return rpc.CertificateResponse{Effects: &ledger.SignedEffects{Signer: dest.node, Effects: effects}}, nil
			default:
				return rpc.CertificateResponse{Effects: dest.signedEffects(effects)}, nil
			}
		},
	}

	rawClients := map[ids.NodeID]rpc.ValidatorClient{dest.node: destStub}
	clients := map[ids.NodeID]rpc.ValidatorClient{dest.node: destStub}
	for _, a := range others {
		a := a
		stub := &stubClient{
			submitCertificate: func(context.Context, ledger.Certificate) (rpc.CertificateResponse, error) {
				return rpc.CertificateResponse{Effects: a.signedEffects(effects)}, nil
			},
		}
		rawClients[a.node] = stub
		clients[a.node] = stub
	}

	syncEngine := syncer.New(c, rawClients, committee.NewRandSource(1), nil)
	agg := newAggregator(t, c, clients)
	agg.deps.Syncer = syncEngine

	got, err := agg.ProcessCertificate(context.Background(), cert, time.Second, time.Second)
	require.NoError(t, err)
	require.Equal(t, effects.Digest(), got.Digest())
	require.GreaterOrEqual(t, destCalls.Load(), int32(2))
}

func TestExecuteTransactionEndToEnd(t *testing.T) {
	c, auths := fourAuthorityCommittee(t)
	tx := testTx(auths[0].node)

	clients := make(map[ids.NodeID]rpc.ValidatorClient, len(auths))
	for _, a := range auths {
		a := a
		clients[a.node] = &stubClient{
			submitTransaction: func(context.Context, ledger.Transaction) (rpc.TransactionResponse, error) {
				return rpc.TransactionResponse{SignedTx: a.signedTx(tx)}, nil
			},
			submitCertificate: func(context.Context, ledger.Certificate) (rpc.CertificateResponse, error) {
				return rpc.CertificateResponse{Effects: a.signedEffects(testEffects(tx.Digest()))}, nil
			},
		}
	}

	agg := newAggregator(t, c, clients)
	cert, effects, err := agg.ExecuteTransaction(context.Background(), tx, time.Second, time.Second)
	require.NoError(t, err)
	require.Equal(t, tx.Digest(), cert.Digest())
	require.Equal(t, ledger.StatusSuccess, effects.Status)
}

func TestDepsMetricsCountsProcessTransactionRequests(t *testing.T) {
	c, auths := fourAuthorityCommittee(t)
	tx := testTx(auths[0].node)

	clients := make(map[ids.NodeID]rpc.ValidatorClient, len(auths))
	for _, a := range auths {
		a := a
		clients[a.node] = &stubClient{
			submitTransaction: func(context.Context, ledger.Transaction) (rpc.TransactionResponse, error) {
				return rpc.TransactionResponse{SignedTx: a.signedTx(tx)}, nil
			},
		}
	}
	safe := make(map[ids.NodeID]*committee.SafeClient, len(clients))
	for name, cl := range clients {
		sc, err := committee.NewSafeClient(name, c, cl, nil)
		require.NoError(t, err)
		safe[name] = sc
	}

	reg := prometheus.NewRegistry()
	agg, err := New(Deps{Committee: c, Clients: safe, Metrics: reg})
	require.NoError(t, err)

	_, err = agg.ProcessTransaction(context.Background(), tx, time.Second)
	require.NoError(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var requests float64
	for _, mf := range mfs {
		if mf.GetName() == "authority_process_transaction_map_requests_total" {
			requests = mf.Metric[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(len(auths)), requests)
}
