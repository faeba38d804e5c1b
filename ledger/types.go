// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger defines the object-based ledger's data model: object
// references, transactions, certificates, and effects. It owns no
// execution semantics — TransactionKind is an opaque payload supplied by an
// embedder's execution engine (out of scope for this module).
package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/luxfi/ids"
)

// ObjectID identifies an on-chain object, independent of its version.
type ObjectID = ids.ID

// TransactionDigest identifies a Transaction by content hash.
type TransactionDigest = ids.ID

// EffectsDigest identifies an Effects bundle by content hash.
type EffectsDigest = ids.ID

// ObjectDigest is the content hash of a single object's value at a given
// version. It is a distinct namespace from TransactionDigest/EffectsDigest,
// so it is not aliased to ids.ID.
type ObjectDigest [32]byte

// String returns the hex encoding of the digest.
func (d ObjectDigest) String() string {
	return hex.EncodeToString(d[:])
}

// ObjectRef is the triple (id, version, content-digest). For a given ID,
// Version strictly increases, and a (ID, Version) pair binds exactly one
// Digest. This binding is not tracked across responses: SafeClient only
// checks that a ref returned with content has a non-zero digest and names
// the requested ID.
type ObjectRef struct {
	ID      ObjectID
	Version uint64
	Digest  ObjectDigest
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s@%d/%s", r.ID, r.Version, r.Digest)
}

// Equal reports whether two refs name the same id, version and digest.
func (r ObjectRef) Equal(o ObjectRef) bool {
	return r.ID == o.ID && r.Version == o.Version && r.Digest == o.Digest
}

// TransactionKind is the opaque, execution-engine-defined payload of a
// Transaction. Implementations live outside this module.
type TransactionKind interface {
	// Digest returns a stable content hash of the kind's payload, folded
	// into the owning Transaction's digest.
	Digest() []byte
}

// Transaction names the exact set of objects it reads and writes and
// carries an opaque execution payload.
type Transaction struct {
	Sender ids.NodeID
	Nonce  uint64
	Inputs []ObjectRef
	Kind   TransactionKind
}

// Digest computes the content hash of the transaction deterministically:
// sender, nonce, sorted input refs, then the kind's own digest.
func (t Transaction) Digest() TransactionDigest {
	h := sha256.New()
	h.Write(t.Sender[:])
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], t.Nonce)
	h.Write(nonceBuf[:])

	refs := make([]ObjectRef, len(t.Inputs))
	copy(refs, t.Inputs)
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ID != refs[j].ID {
			return refs[i].ID.String() < refs[j].ID.String()
		}
		return refs[i].Version < refs[j].Version
	})
	for _, r := range refs {
		h.Write(r.ID[:])
		var vbuf [8]byte
		binary.BigEndian.PutUint64(vbuf[:], r.Version)
		h.Write(vbuf[:])
		h.Write(r.Digest[:])
	}
	if t.Kind != nil {
		h.Write(t.Kind.Digest())
	}
	var out TransactionDigest
	copy(out[:], h.Sum(nil))
	return out
}

// SignedTransaction is a Transaction countersigned by one committee member.
type SignedTransaction struct {
	Transaction Transaction
	Signer      ids.NodeID
	Signature   []byte
}

// Certificate is a transaction plus a set of validator signatures whose
// cumulative weight meets or exceeds the committee's quorum threshold.
// Signers are distinct by construction (the map is keyed by signer);
// committee.AssembleCertificate checks membership and quorum weight, and
// SafeClient applies it to every certificate a validator returns.
type Certificate struct {
	Transaction Transaction
	Signatures  map[ids.NodeID][]byte
}

// Digest returns the digest of the underlying transaction.
func (c Certificate) Digest() TransactionDigest {
	return c.Transaction.Digest()
}

// Signers returns the certificate's signer set in deterministic order.
func (c Certificate) Signers() []ids.NodeID {
	out := make([]ids.NodeID, 0, len(c.Signatures))
	for n := range c.Signatures {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// EffectsStatus is the outcome of executing a certified transaction.
type EffectsStatus uint8

const (
	// StatusUnknown is the zero value; never a valid observed status.
	StatusUnknown EffectsStatus = iota
	// StatusSuccess means the transaction applied cleanly.
	StatusSuccess
	// StatusFailure means the transaction aborted; objects are unchanged
	// except for gas/version bumps an embedder's execution engine defines.
	StatusFailure
)

func (s EffectsStatus) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is a status an Effects bundle may legally carry.
func (s EffectsStatus) Valid() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Effects is the deterministic post-image of executing a transaction.
// Two Effects are "the same" iff Digest() matches.
type Effects struct {
	TransactionDigest TransactionDigest
	Status            EffectsStatus
	Created           []ObjectRef
	Mutated           []ObjectRef
	Deleted           []ObjectRef
	// Dependencies lists the digests of transactions whose certificates
	// must already be applied at the executing validator before this
	// transaction's effects are meaningful — the Sync Engine's frontier.
	Dependencies []TransactionDigest
}

// Digest computes the content hash of the effects bundle.
func (e Effects) Digest() EffectsDigest {
	h := sha256.New()
	h.Write(e.TransactionDigest[:])
	h.Write([]byte{byte(e.Status)})
	for _, group := range [][]ObjectRef{e.Created, e.Mutated, e.Deleted} {
		refs := make([]ObjectRef, len(group))
		copy(refs, group)
		sort.Slice(refs, func(i, j int) bool {
			if refs[i].ID != refs[j].ID {
				return refs[i].ID.String() < refs[j].ID.String()
			}
			return refs[i].Version < refs[j].Version
		})
		for _, r := range refs {
			h.Write(r.ID[:])
			var vbuf [8]byte
			binary.BigEndian.PutUint64(vbuf[:], r.Version)
			h.Write(vbuf[:])
			h.Write(r.Digest[:])
		}
	}
	deps := make([]TransactionDigest, len(e.Dependencies))
	copy(deps, e.Dependencies)
	sort.Slice(deps, func(i, j int) bool { return deps[i].String() < deps[j].String() })
	for _, d := range deps {
		h.Write(d[:])
	}
	var out EffectsDigest
	copy(out[:], h.Sum(nil))
	return out
}

// MutatesRef reports whether the effects mutate, delete or create the
// object with ref's ID, at any version, returning the ref the effects
// record for it. Used by the aggregator's parent-certificate re-execution
// check (GetObjectInfoExecute), which compares that ref with the claimed
// one.
func (e Effects) MutatesRef(ref ObjectRef) (ObjectRef, bool) {
	for _, group := range [][]ObjectRef{e.Mutated, e.Deleted, e.Created} {
		for _, r := range group {
			if r.ID == ref.ID {
				return r, true
			}
		}
	}
	return ObjectRef{}, false
}

// SignedEffects is an Effects bundle countersigned by one committee member.
type SignedEffects struct {
	Effects   Effects
	Signer    ids.NodeID
	Signature []byte
}
