// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpc declares the SafeClient-facing RPC abstraction a single
// validator exposes. No transport is implemented here — wire encoding,
// connection pooling, and retries below the per-attempt-timeout level are
// the embedder's concern (out of scope for this module).
package rpc

import (
	"context"
	"errors"

	"github.com/luxfi/ids"

	"github.com/luxfi/authority/ledger"
)

// Error kinds returned by a ValidatorClient. Transport and retryable-lock
// errors are expected traffic the aggregator's reducers absorb; callers
// should use errors.Is against these sentinels, wrapping with additional
// context via fmt.Errorf("...: %w", ErrUnavailable).
var (
	// ErrUnavailable means the RPC failed to reach the validator at all
	// (connection refused, deadline exceeded in flight, ...). Counted
	// against bad stake; never retried automatically by the client.
	ErrUnavailable = errors.New("rpc: validator unavailable")

	// ErrLock means the validator lacks causal history for a submitted
	// certificate (missing input object, or the input version at the
	// validator is older than what the certificate demands). This is the
	// only retryable rejection kind — it triggers Sync Engine repair.
	ErrLock = errors.New("rpc: missing input or stale lock")

	// ErrInvalid means the request or a prior response was malformed in a
	// way no honest validator would produce. Terminal — not retried.
	ErrInvalid = errors.New("rpc: invalid request or response shape")
)

// TransactionResponse is returned by SubmitTransaction. At most one of
// SignedTx or Certificate is populated: a validator either countersigns a
// fresh transaction or reports that a certificate already formed (e.g. it
// heard about the transaction from a prior round).
type TransactionResponse struct {
	SignedTx    *ledger.SignedTransaction
	Certificate *ledger.Certificate
}

// CertificateResponse is returned by SubmitCertificate.
type CertificateResponse struct {
	Effects *ledger.SignedEffects
}

// TransactionInfoResponse is returned by GetTransactionInfo.
type TransactionInfoResponse struct {
	Certificate *ledger.Certificate
	Effects     *ledger.SignedEffects
}

// ObjectLayout selects which parts of an object a GetObjectInfo call wants
// returned, avoiding always shipping full object bytes.
type ObjectLayout struct {
	IncludeContent bool
	IncludeLayout  bool
}

// ObjectInfoResponse is returned by GetObjectInfo.
type ObjectInfoResponse struct {
	Ref         ledger.ObjectRef
	Content     []byte
	Layout      []byte
	ParentCert  *ledger.Certificate
	LockSig     []byte
}

// AccountInfoResponse is returned by GetAccountInfo.
type AccountInfoResponse struct {
	Owned []ledger.ObjectRef
}

// ValidatorClient is the per-validator RPC surface the SafeClient wraps.
// Every implementation must be safe for concurrent use by multiple
// goroutines — the QuorumDriver calls it from N parallel map invocations.
type ValidatorClient interface {
	SubmitTransaction(ctx context.Context, tx ledger.Transaction) (TransactionResponse, error)
	SubmitCertificate(ctx context.Context, cert ledger.Certificate) (CertificateResponse, error)
	GetTransactionInfo(ctx context.Context, digest ledger.TransactionDigest) (TransactionInfoResponse, error)
	GetObjectInfo(ctx context.Context, id ledger.ObjectID, layout ObjectLayout) (ObjectInfoResponse, error)
	GetAccountInfo(ctx context.Context, address ids.NodeID) (AccountInfoResponse, error)
}
