// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package committee

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/authority/ledger"
	"github.com/luxfi/authority/rpc"
)

// SafeClient wraps one validator's RPC surface and validates every response
// against the shared Committee before returning it. It never filters
// semantic disagreement (version skew, missing data, soft errors) — those
// are passed upstream untouched for the aggregator to interpret. Only
// Byzantine-shape violations (wrong signer, malformed bundle, an
// inconsistent certificate/effects pairing) are turned into a typed error.
type SafeClient struct {
	validator ids.NodeID
	committee *Committee
	client    rpc.ValidatorClient
	log       log.Logger

	violations atomic.Uint64
}

// NewSafeClient wraps client as the committee member validator. c must
// already contain validator as a member; log may be nil (a no-op logger is
// used in that case, matching callers who don't care about diagnostics).
func NewSafeClient(validator ids.NodeID, c *Committee, client rpc.ValidatorClient, logger log.Logger) (*SafeClient, error) {
	if !c.Has(validator) {
		return nil, fmt.Errorf("committee: %s is not a committee member", validator)
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &SafeClient{validator: validator, committee: c, client: client, log: logger}, nil
}

// Validator returns the identity of the wrapped validator.
func (s *SafeClient) Validator() ids.NodeID { return s.validator }

// ViolationCount returns the number of Byzantine-shape violations observed
// from this validator so far. The count is only reported: Sync Engine
// source selection does not consult it.
func (s *SafeClient) ViolationCount() uint64 { return s.violations.Load() }

func (s *SafeClient) reportViolation(reason string) error {
	s.violations.Add(1)
	err := &ErrByzantine{Validator: s.validator, Reason: reason}
	s.log.Warn("byzantine response", "validator", s.validator, "reason", reason)
	return err
}

// verifySignature checks that sig is a valid BLS signature by this
// validator's committee key over msg.
func (s *SafeClient) verifySignature(msg, sig []byte) bool {
	pk := s.committee.PublicKey(s.validator)
	if pk == nil || len(sig) == 0 {
		return false
	}
	parsed, err := bls.SignatureFromBytes(sig)
	if err != nil {
		return false
	}
	return bls.Verify(pk, parsed, msg)
}

// verifyObjectRef checks that ref's digest is consistent with accompanying
// content, when content is provided.
func verifyObjectRef(ref ledger.ObjectRef, content []byte) bool {
	if len(content) == 0 {
		return true // validator may legitimately omit content
	}
	// The content digest is opaque to this module (execution-engine
	// defined); a validator that returns content must at least return a
	// non-zero digest alongside it.
	return ref.Digest != (ledger.ObjectDigest{})
}

func (s *SafeClient) verifyCertificate(cert *ledger.Certificate) error {
	if cert == nil {
		return nil
	}
	if err := s.committee.AssembleCertificate(cert.Signatures); err != nil {
		return s.reportViolation("certificate does not meet quorum: " + err.Error())
	}
	return nil
}

// SubmitTransaction forwards to the wrapped client and validates the
// response's signature and any embedded certificate.
func (s *SafeClient) SubmitTransaction(ctx context.Context, tx ledger.Transaction) (rpc.TransactionResponse, error) {
	resp, err := s.client.SubmitTransaction(ctx, tx)
	if err != nil {
		return resp, err
	}
	if resp.SignedTx == nil && resp.Certificate == nil {
		return resp, s.reportViolation("empty transaction response")
	}
	if resp.SignedTx != nil {
		if resp.SignedTx.Signer != s.validator {
			return resp, s.reportViolation("signed transaction from wrong signer")
		}
		digest := resp.SignedTx.Transaction.Digest()
		if !s.verifySignature(digest[:], resp.SignedTx.Signature) {
			return resp, s.reportViolation("transaction signature does not verify")
		}
	}
	if err := s.verifyCertificate(resp.Certificate); err != nil {
		return resp, err
	}
	return resp, nil
}

// SubmitCertificate forwards to the wrapped client and validates that the
// returned effects are for cert and carry this validator's signature.
func (s *SafeClient) SubmitCertificate(ctx context.Context, cert ledger.Certificate) (rpc.CertificateResponse, error) {
	resp, err := s.client.SubmitCertificate(ctx, cert)
	if err != nil {
		return resp, err
	}
	if resp.Effects == nil {
		return resp, s.reportViolation("empty certificate response")
	}
	if resp.Effects.Signer != s.validator {
		return resp, s.reportViolation("effects from wrong signer")
	}
	if resp.Effects.Effects.TransactionDigest != cert.Digest() {
		return resp, s.reportViolation("effects do not belong to the submitted certificate")
	}
	digest := resp.Effects.Effects.Digest()
	if !s.verifySignature(digest[:], resp.Effects.Signature) {
		return resp, s.reportViolation("effects signature does not verify")
	}
	return resp, nil
}

// GetTransactionInfo forwards to the wrapped client and validates any
// embedded certificate/effects.
func (s *SafeClient) GetTransactionInfo(ctx context.Context, digest ledger.TransactionDigest) (rpc.TransactionInfoResponse, error) {
	resp, err := s.client.GetTransactionInfo(ctx, digest)
	if err != nil {
		return resp, err
	}
	if err := s.verifyCertificate(resp.Certificate); err != nil {
		return resp, err
	}
	if resp.Effects != nil {
		if resp.Effects.Signer != s.validator {
			return resp, s.reportViolation("effects from wrong signer")
		}
		d := resp.Effects.Effects.Digest()
		if !s.verifySignature(d[:], resp.Effects.Signature) {
			return resp, s.reportViolation("effects signature does not verify")
		}
	}
	return resp, nil
}

// GetObjectInfo forwards to the wrapped client and validates self-
// consistency of the returned ObjectRef against any accompanying content,
// and any embedded parent certificate.
func (s *SafeClient) GetObjectInfo(ctx context.Context, id ledger.ObjectID, layout rpc.ObjectLayout) (rpc.ObjectInfoResponse, error) {
	resp, err := s.client.GetObjectInfo(ctx, id, layout)
	if err != nil {
		return resp, err
	}
	if resp.Ref.ID != (ledger.ObjectID{}) && resp.Ref.ID != id {
		return resp, s.reportViolation("object info response ref does not match requested id")
	}
	if !verifyObjectRef(resp.Ref, resp.Content) {
		return resp, s.reportViolation("object ref digest inconsistent with content")
	}
	if err := s.verifyCertificate(resp.ParentCert); err != nil {
		return resp, err
	}
	return resp, nil
}

// GetAccountInfo forwards to the wrapped client. Owned-object refs carry no
// accompanying content in this call, so there is nothing further to check
// beyond transport-level success.
func (s *SafeClient) GetAccountInfo(ctx context.Context, address ids.NodeID) (rpc.AccountInfoResponse, error) {
	return s.client.GetAccountInfo(ctx, address)
}
