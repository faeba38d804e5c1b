// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package committee holds the fixed validator-weight map an authority
// aggregator operates against, and the SafeClient wrapper that checks every
// validator response against it before the response reaches the aggregator.
package committee

import (
	"errors"
	"sort"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"golang.org/x/exp/maps"
)

// Errors returned by New.
var (
	ErrNoMembers     = errors.New("committee: no members")
	ErrZeroWeight    = errors.New("committee: member has zero weight")
	ErrDuplicateNode = errors.New("committee: duplicate member")
)

// Voter is one committee member's voting weight and signature-verification
// key.
type Voter struct {
	Weight    uint64
	PublicKey *bls.PublicKey
}

// Committee is a fixed map of validator identity to voting weight. It is
// immutable for the lifetime of an aggregator instance — there is no Add or
// Remove method; epoch transitions build a new Committee (spec: cross-
// committee continuity is out of scope for this core).
type Committee struct {
	voters       map[ids.NodeID]Voter
	members      []ids.NodeID // deterministic order, computed once
	totalStake   uint64
	quorumStake  uint64
	validStake   uint64
}

// New builds an immutable Committee from a weight map. It rejects an empty
// map, any zero-weight member, and (by construction, since the input is a
// map) duplicate members.
func New(voters map[ids.NodeID]Voter) (*Committee, error) {
	if len(voters) == 0 {
		return nil, ErrNoMembers
	}
	var total uint64
	for id, v := range voters {
		if v.Weight == 0 {
			return nil, ErrZeroWeight
		}
		if total+v.Weight < total {
			return nil, errors.New("committee: total stake overflows uint64")
		}
		total += v.Weight
		_ = id
	}

	members := maps.Keys(voters)
	sort.Slice(members, func(i, j int) bool { return members[i].String() < members[j].String() })

	c := &Committee{
		voters:     voters,
		members:    members,
		totalStake: total,
	}
	c.quorumStake = 2*total/3 + 1
	c.validStake = total/3 + 1
	return c, nil
}

// TotalStake returns the sum of all member weights.
func (c *Committee) TotalStake() uint64 { return c.totalStake }

// QuorumThreshold returns floor(2*total/3) + 1.
func (c *Committee) QuorumThreshold() uint64 { return c.quorumStake }

// ValidityThreshold returns floor(total/3) + 1.
func (c *Committee) ValidityThreshold() uint64 { return c.validStake }

// HasQuorum reports whether stake meets or exceeds the quorum threshold.
func (c *Committee) HasQuorum(stake uint64) bool { return stake >= c.quorumStake }

// HasValidity reports whether stake meets or exceeds the validity
// threshold — i.e. at least one honest validator must be among the set
// that produced it.
func (c *Committee) HasValidity(stake uint64) bool { return stake >= c.validStake }

// Weight returns the voting weight of a member, or 0 if it is not a member.
func (c *Committee) Weight(id ids.NodeID) uint64 { return c.voters[id].Weight }

// PublicKey returns the BLS public key of a member, or nil if it is not a
// member.
func (c *Committee) PublicKey(id ids.NodeID) *bls.PublicKey {
	return c.voters[id].PublicKey
}

// Has reports whether id is a committee member.
func (c *Committee) Has(id ids.NodeID) bool {
	_, ok := c.voters[id]
	return ok
}

// Len returns the number of committee members.
func (c *Committee) Len() int { return len(c.members) }

// Members returns the committee's members in deterministic order. The
// returned slice is shared and must not be mutated by callers.
func (c *Committee) Members() []ids.NodeID { return c.members }

// AssembleCertificate checks a Certificate's per-signer signature map:
// every signer must be a committee member and their cumulative weight must
// meet the quorum threshold. It returns an *ErrByzantine for a non-member
// signer and ErrQuorumNotMet when the weight falls short. It does not build
// the Certificate itself.
func (c *Committee) AssembleCertificate(txDigestSigs map[ids.NodeID][]byte) error {
	var stake uint64
	for id := range txDigestSigs {
		if !c.Has(id) {
			return errNotMember(id)
		}
		stake += c.Weight(id)
	}
	if !c.HasQuorum(stake) {
		return ErrQuorumNotMet
	}
	return nil
}

// ErrQuorumNotMet is returned by AssembleCertificate when the supplied
// signer set's cumulative weight falls short of the quorum threshold.
var ErrQuorumNotMet = errors.New("committee: signer set does not meet quorum")

func errNotMember(id ids.NodeID) error {
	return &ErrByzantine{Reason: "signature from non-member " + id.String()}
}

// ErrByzantine reports a Byzantine-shape violation observed from a specific
// validator: a malformed response, a signature that doesn't verify under
// its claimed signer's committee key, a certificate whose signers don't
// meet quorum, or an ObjectRef whose version/digest are inconsistent with
// accompanying content. It is never used for ordinary semantic disagreement
// (version skew, missing data) — those are passed upstream untyped for the
// aggregator to interpret.
type ErrByzantine struct {
	Validator ids.NodeID
	Reason    string
}

func (e *ErrByzantine) Error() string {
	if e.Validator == ids.EmptyNodeID {
		return "committee: byzantine response: " + e.Reason
	}
	return "committee: byzantine response from " + e.Validator.String() + ": " + e.Reason
}
