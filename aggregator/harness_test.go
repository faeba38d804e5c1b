// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package aggregator

import (
	"context"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"testing"

	"github.com/luxfi/authority/committee"
	"github.com/luxfi/authority/ledger"
	"github.com/luxfi/authority/rpc"
)

// testKind is a minimal TransactionKind for fixtures across this package's
// tests.
type testKind struct{ payload []byte }

func (k testKind) Digest() []byte { return k.payload }

// testAuthority bundles one committee member's identity and real BLS
// keypair, so tests can produce signatures SafeClient actually verifies
// rather than opaque placeholder bytes.
type testAuthority struct {
	node ids.NodeID
	sk   *bls.SecretKey
	pk   *bls.PublicKey
}

func newTestAuthority(t *testing.T) testAuthority {
	t.Helper()
	sk, err := bls.NewSecretKey()
	require.NoError(t, err)
	return testAuthority{node: ids.GenerateTestNodeID(), sk: sk, pk: sk.PublicKey()}
}

func (a testAuthority) sign(msg []byte) []byte {
	sig, err := a.sk.Sign(msg)
	if err != nil {
		panic(err)
	}
	return bls.SignatureToBytes(sig)
}

// signedTx returns a SignedTransaction countersigned by a over tx.
func (a testAuthority) signedTx(tx ledger.Transaction) *ledger.SignedTransaction {
	digest := tx.Digest()
	return &ledger.SignedTransaction{Transaction: tx, Signer: a.node, Signature: a.sign(digest[:])}
}

// signedEffects returns a SignedEffects countersigned by a over effects.
func (a testAuthority) signedEffects(effects ledger.Effects) *ledger.SignedEffects {
	digest := effects.Digest()
	return &ledger.SignedEffects{Effects: effects, Signer: a.node, Signature: a.sign(digest[:])}
}

// fourAuthorityCommittee builds a four-member, equal-weight committee with
// real BLS public keys, satisfying a quorum of 3 and a validity threshold
// of 2.
func fourAuthorityCommittee(t *testing.T) (*committee.Committee, []testAuthority) {
	t.Helper()
	auths := []testAuthority{newTestAuthority(t), newTestAuthority(t), newTestAuthority(t), newTestAuthority(t)}
	voters := make(map[ids.NodeID]committee.Voter, len(auths))
	for _, a := range auths {
		voters[a.node] = committee.Voter{Weight: 1, PublicKey: a.pk}
	}
	c, err := committee.New(voters)
	require.NoError(t, err)
	return c, auths
}

// stubClient is a hand-rolled ValidatorClient whose behavior is fully
// overridable per test, matching the teacher's hand-rolled-fake test style
// for narrow interfaces.
type stubClient struct {
	submitTransaction func(context.Context, ledger.Transaction) (rpc.TransactionResponse, error)
	submitCertificate func(context.Context, ledger.Certificate) (rpc.CertificateResponse, error)
	getTransactionInfo func(context.Context, ledger.TransactionDigest) (rpc.TransactionInfoResponse, error)
	getObjectInfo     func(context.Context, ledger.ObjectID, rpc.ObjectLayout) (rpc.ObjectInfoResponse, error)
	getAccountInfo    func(context.Context, ids.NodeID) (rpc.AccountInfoResponse, error)
}

func (s *stubClient) SubmitTransaction(ctx context.Context, tx ledger.Transaction) (rpc.TransactionResponse, error) {
	if s.submitTransaction == nil {
		return rpc.TransactionResponse{}, rpc.ErrUnavailable
	}
	return s.submitTransaction(ctx, tx)
}

func (s *stubClient) SubmitCertificate(ctx context.Context, cert ledger.Certificate) (rpc.CertificateResponse, error) {
	if s.submitCertificate == nil {
		return rpc.CertificateResponse{}, rpc.ErrUnavailable
	}
	return s.submitCertificate(ctx, cert)
}

func (s *stubClient) GetTransactionInfo(ctx context.Context, digest ledger.TransactionDigest) (rpc.TransactionInfoResponse, error) {
	if s.getTransactionInfo == nil {
		return rpc.TransactionInfoResponse{}, rpc.ErrUnavailable
	}
	return s.getTransactionInfo(ctx, digest)
}

func (s *stubClient) GetObjectInfo(ctx context.Context, id ledger.ObjectID, layout rpc.ObjectLayout) (rpc.ObjectInfoResponse, error) {
	if s.getObjectInfo == nil {
		return rpc.ObjectInfoResponse{}, rpc.ErrUnavailable
	}
	return s.getObjectInfo(ctx, id, layout)
}

func (s *stubClient) GetAccountInfo(ctx context.Context, address ids.NodeID) (rpc.AccountInfoResponse, error) {
	if s.getAccountInfo == nil {
		return rpc.AccountInfoResponse{}, rpc.ErrUnavailable
	}
	return s.getAccountInfo(ctx, address)
}

// newAggregator wraps raw stub clients in SafeClient and builds an
// Aggregator over them.
func newAggregator(t *testing.T, c *committee.Committee, clients map[ids.NodeID]rpc.ValidatorClient) *Aggregator {
	t.Helper()
	safe := make(map[ids.NodeID]*committee.SafeClient, len(clients))
	for name, cl := range clients {
		sc, err := committee.NewSafeClient(name, c, cl, nil)
		require.NoError(t, err)
		safe[name] = sc
	}
	agg, err := New(Deps{Committee: c, Clients: safe})
	require.NoError(t, err)
	return agg
}
