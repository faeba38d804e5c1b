// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package aggregator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/authority/ledger"
	"github.com/luxfi/authority/quorumdriver"
	"github.com/luxfi/authority/rpc"
)

// ObjectInfo is one unique (ref, parent transaction digest) pair reported
// by at least one validator, with the set of validators that reported it.
type ObjectInfo struct {
	Ref               ledger.ObjectRef
	TransactionDigest ledger.TransactionDigest
	Content           []byte
	Responders        map[ids.NodeID]struct{}
}

type objectKey struct {
	ref    ledger.ObjectRef
	digest ledger.TransactionDigest
}

type objectByIDState struct {
	totalStake uint64
	badStake   uint64
	entries    map[objectKey]*ObjectInfo
	certs      map[ledger.TransactionDigest]ledger.Certificate
	errs       []error
}

// GetObjectByID polls every validator for the latest state of id and folds
// the responses by (ref, parent-certificate-digest): validators agreeing
// on the same pair accumulate into one ObjectInfo entry with a growing
// Responders set, so an object with more than one live version across the
// committee surfaces as more than one entry. certs maps every distinct
// parent certificate digest observed back to the certificate itself, so
// callers (SyncAllGivenObjects, GetObjectInfoExecute) can act on it without
// a second round trip.
func (a *Aggregator) GetObjectByID(ctx context.Context, id ledger.ObjectID, timeout time.Duration) (map[objectKey]*ObjectInfo, map[ledger.TransactionDigest]ledger.Certificate, error) {
	quorum := a.deps.Committee.QuorumThreshold()
	validity := a.deps.Committee.ValidityThreshold()

	mapFn := func(ctx context.Context, name ids.NodeID) (rpc.ObjectInfoResponse, error) {
		return a.client(name).GetObjectInfo(ctx, id, rpc.ObjectLayout{IncludeContent: true})
	}

	initial := objectByIDState{
		entries: map[objectKey]*ObjectInfo{},
		certs:   map[ledger.TransactionDigest]ledger.Certificate{},
	}
	reduceFn := func(state objectByIDState, name ids.NodeID, weight uint64, resp rpc.ObjectInfoResponse, err error) quorumdriver.ReduceOutput[objectByIDState] {
		state.totalStake += weight
		if err != nil {
			state.errs = append(state.errs, err)
			state.badStake += weight
			if state.badStake > validity {
				return quorumdriver.End(state)
			}
			return quorumdriver.Continue(state)
		}

		var digest ledger.TransactionDigest
		if resp.ParentCert != nil {
			digest = resp.ParentCert.Digest()
			state.certs[digest] = *resp.ParentCert
		}
		key := objectKey{ref: resp.Ref, digest: digest}
		entry, ok := state.entries[key]
		if !ok {
			entry = &ObjectInfo{Ref: resp.Ref, TransactionDigest: digest, Content: resp.Content, Responders: map[ids.NodeID]struct{}{}}
			state.entries[key] = entry
		}
		entry.Responders[name] = struct{}{}

		if state.totalStake < quorum {
			return quorumdriver.Continue(state)
		}
		return quorumdriver.ContinueWithTimeout(state, timeout)
	}

	final := quorumdriver.MapThenReduceWithTimeout(ctx, a.deps.Committee, a.deps.Limiter, initial, mapFn, reduceFn, timeout, a.qdMetrics["get_object_by_id"])
	if final.badStake > validity {
		return nil, nil, &ErrQuorumNotReached{Errs: final.errs}
	}
	return final.entries, final.certs, nil
}

type ownedObjectsState struct {
	totalStake uint64
	badStake   uint64
	objects    map[ledger.ObjectRef][]ids.NodeID
	responders []ids.NodeID
	errs       []error
}

// GetAllOwnedObjects polls every validator for the set of object refs it
// believes owner holds and folds them into a map of ref to the validators
// that reported it, plus the list of validators that answered at all. The
// result is not sanitized — callers (SyncAllOwnedObjects) are expected to
// treat a single validator's claim with appropriate suspicion.
func (a *Aggregator) GetAllOwnedObjects(ctx context.Context, owner ids.NodeID, timeout time.Duration) (map[ledger.ObjectRef][]ids.NodeID, []ids.NodeID, error) {
	quorum := a.deps.Committee.QuorumThreshold()
	validity := a.deps.Committee.ValidityThreshold()

	mapFn := func(ctx context.Context, name ids.NodeID) (rpc.AccountInfoResponse, error) {
		return a.client(name).GetAccountInfo(ctx, owner)
	}

	initial := ownedObjectsState{objects: map[ledger.ObjectRef][]ids.NodeID{}}
	reduceFn := func(state ownedObjectsState, name ids.NodeID, weight uint64, resp rpc.AccountInfoResponse, err error) quorumdriver.ReduceOutput[ownedObjectsState] {
		state.totalStake += weight
		if err != nil {
			state.errs = append(state.errs, err)
			state.badStake += weight
			if state.badStake > validity {
				return quorumdriver.End(state)
			}
			return quorumdriver.Continue(state)
		}

		state.responders = append(state.responders, name)
		for _, ref := range resp.Owned {
			state.objects[ref] = append(state.objects[ref], name)
		}

		if state.totalStake < quorum {
			return quorumdriver.Continue(state)
		}
		return quorumdriver.ContinueWithTimeout(state, timeout)
	}

	final := quorumdriver.MapThenReduceWithTimeout(ctx, a.deps.Committee, a.deps.Limiter, initial, mapFn, reduceFn, timeout, a.qdMetrics["get_all_owned_objects"])
	if final.badStake > validity {
		return nil, nil, &ErrQuorumNotReached{Errs: final.errs}
	}
	return final.objects, final.responders, nil
}

// SyncAllGivenObjects downloads the latest known version of every object in
// ids from the committee, then repairs every validator found lagging the
// latest version via the Sync Engine. It returns the latest live object
// seen for each id and, separately, the refs of objects whose latest
// version was reported without content (deleted). Repair errors are
// not fatal to the call: a validator that cannot be brought up to date is
// simply left behind, matching the teacher's best-effort retry posture.
func (a *Aggregator) SyncAllGivenObjects(ctx context.Context, objectIDs []ledger.ObjectID, timeout time.Duration) ([]*ObjectInfo, []ledger.ObjectRef, error) {
	var active []*ObjectInfo
	var deleted []ledger.ObjectRef

	for _, id := range objectIDs {
		entries, certs, err := a.GetObjectByID(ctx, id, timeout)
		if err != nil {
			return active, deleted, err
		}

		latest := latestEntry(entries)
		if latest == nil {
			continue
		}
		if len(latest.Content) == 0 {
			deleted = append(deleted, latest.Ref)
		} else {
			active = append(active, latest)
		}

		cert, hasCert := certs[latest.TransactionDigest]
		if !hasCert || a.deps.Syncer == nil {
			continue
		}
		for _, member := range a.deps.Committee.Members() {
			if _, upToDate := latest.Responders[member]; upToDate {
				continue
			}
			if err := a.deps.Syncer.Sync(ctx, cert, member, timeout, 4); err != nil {
				a.log.Debug("sync during SyncAllGivenObjects failed", "member", member, "error", err)
			}
		}
	}
	return active, deleted, nil
}

func latestEntry(entries map[objectKey]*ObjectInfo) *ObjectInfo {
	var latest *ObjectInfo
	for _, e := range entries {
		if latest == nil || e.Ref.Version > latest.Ref.Version {
			latest = e
		}
	}
	return latest
}

// SyncAllOwnedObjects discovers every object owner's committee-reported
// account claims, then repairs the committee's view of each via
// SyncAllGivenObjects.
func (a *Aggregator) SyncAllOwnedObjects(ctx context.Context, owner ids.NodeID, timeout time.Duration) ([]*ObjectInfo, []ledger.ObjectRef, error) {
	objects, _, err := a.GetAllOwnedObjects(ctx, owner, timeout)
	if err != nil {
		return nil, nil, err
	}
	objectIDs := make([]ledger.ObjectID, 0, len(objects))
	seen := map[ledger.ObjectID]struct{}{}
	for ref := range objects {
		if _, ok := seen[ref.ID]; ok {
			continue
		}
		seen[ref.ID] = struct{}{}
		objectIDs = append(objectIDs, ref.ID)
	}
	return a.SyncAllGivenObjects(ctx, objectIDs, timeout)
}

// ObjectReadKind discriminates an ObjectRead outcome.
type ObjectReadKind int

const (
	// ObjectExists means a validated live copy of the object was found.
	ObjectExists ObjectReadKind = iota
	// ObjectDeleted means a validated deletion of the object was found.
	ObjectDeleted
	// ObjectNotExists means no response crossed the acceptance bar.
	ObjectNotExists
)

// ObjectRead is the result of GetObjectInfoExecute.
type ObjectRead struct {
	Kind    ObjectReadKind
	Ref     ledger.ObjectRef
	Content []byte
}

// GetObjectInfoExecute resolves the authoritative state of id by walking
// response groups from newest version to oldest: an entry is accepted
// outright if validity-threshold stake already reports it; short of that,
// if the entry's parent certificate is known, the certificate is
// re-executed against quorum and accepted only if the resulting effects
// actually mutate the claimed ref (guards against a single validator
// fabricating a ref that the certificate never touched). The first
// (highest-version) entry to clear either bar wins.
func (a *Aggregator) GetObjectInfoExecute(ctx context.Context, id ledger.ObjectID, timeout time.Duration) (ObjectRead, error) {
	entries, certs, err := a.GetObjectByID(ctx, id, timeout)
	if err != nil {
		return ObjectRead{}, err
	}

	ordered := make([]*ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ref.Version > ordered[j].Ref.Version })

	validity := a.deps.Committee.ValidityThreshold()
	for _, entry := range ordered {
		var stake uint64
		for responder := range entry.Responders {
			stake += a.deps.Committee.Weight(responder)
		}

		accepted := stake >= validity
		if !accepted {
			cert, ok := certs[entry.TransactionDigest]
			if !ok {
				continue
			}
			effects, err := a.ProcessCertificate(ctx, cert, timeout, timeout)
			if err != nil {
				continue
			}
			if got, mutated := effects.MutatesRef(entry.Ref); mutated && got == entry.Ref {
				accepted = true
			}
		}
		if !accepted {
			continue
		}
		if len(entry.Content) == 0 {
			return ObjectRead{Kind: ObjectDeleted, Ref: entry.Ref}, nil
		}
		return ObjectRead{Kind: ObjectExists, Ref: entry.Ref, Content: entry.Content}, nil
	}
	return ObjectRead{Kind: ObjectNotExists}, nil
}

// ObjectFetchResult is one element of the channel FetchObjectsFromAuthorities
// returns.
type ObjectFetchResult struct {
	Ref     ledger.ObjectRef
	Content []byte
	Err     error
}

// FetchObjectsFromAuthorities races every committee member for each ref in
// refs and sends back the first response per ref whose returned ref equals
// the requested one; responses with a different ref count as errors. The
// content itself is trusted once the ref matches — matching the original's
// documented assumption. The returned channel is closed once every ref has
// produced a result.
func (a *Aggregator) FetchObjectsFromAuthorities(ctx context.Context, refs []ledger.ObjectRef, timeout time.Duration) <-chan ObjectFetchResult {
	out := make(chan ObjectFetchResult, len(refs))

	var wg sync.WaitGroup
	for _, ref := range refs {
		ref := ref
		wg.Add(1)
		go func() {
			defer wg.Done()
			out <- a.fetchOneObject(ctx, ref, timeout)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (a *Aggregator) fetchOneObject(ctx context.Context, ref ledger.ObjectRef, timeout time.Duration) ObjectFetchResult {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type raced struct {
		content []byte
		err     error
	}
	results := make(chan raced, a.deps.Committee.Len())
	for _, name := range a.deps.Committee.Members() {
		name := name
		go func() {
			resp, err := a.client(name).GetObjectInfo(attemptCtx, ref.ID, rpc.ObjectLayout{IncludeContent: true})
			if err != nil {
				results <- raced{err: err}
				return
			}
			if resp.Ref != ref {
				results <- raced{err: errors.New("aggregator: authority returned mismatched ref")}
				return
			}
			results <- raced{content: resp.Content}
		}()
	}

	var lastErr error = errors.New("aggregator: no authority returned the requested object")
	for i := 0; i < a.deps.Committee.Len(); i++ {
		select {
		case r := <-results:
			if r.err == nil {
				return ObjectFetchResult{Ref: ref, Content: r.content}
			}
			lastErr = r.err
		case <-attemptCtx.Done():
			return ObjectFetchResult{Ref: ref, Err: attemptCtx.Err()}
		}
	}
	return ObjectFetchResult{Ref: ref, Err: lastErr}
}
