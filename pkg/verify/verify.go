// Package verify independently re-derives the validity of sealed ledger
// events: signature, snapshot hash and chain continuity.
//
// Trust model: the verifier trusts only the cryptographic primitives
// (HMAC-SHA256, SHA-256, the canonical encoding) and the organisation
// registry's key material. Each check is independent — partial results are
// valid and none blocks the others.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/orbitlabs/orbit/pkg/canonical"
	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/registry"
	"github.com/orbitlabs/orbit/pkg/signing"
	"github.com/orbitlabs/orbit/pkg/store"
)

// Check is the outcome of one verification sub-check, carrying the
// recomputed value so auditors can compare it against the stored one.
type Check struct {
	Valid      bool   `json:"valid"`
	Recomputed string `json:"recomputed,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Verdict aggregates the sub-checks that were performed. A nil field means
// the caller did not supply the inputs for that check; it was omitted, not
// failed.
type Verdict struct {
	EventSignature *Check    `json:"eventSignature,omitempty"`
	SnapshotHash   *Check    `json:"snapshotHash,omitempty"`
	HashChain      *Check    `json:"hashChain,omitempty"`
	Predecessor    *Check    `json:"predecessor,omitempty"`
	Verified       bool      `json:"verified"`
	CheckedAt      time.Time `json:"checkedAt"`
}

// Request describes what to verify.
type Request struct {
	Event *ledger.Event

	// Snapshot enables the snapshot-hash check. SnapshotPointer is an
	// alternative: the service fetches the stored payload itself when a
	// snapshot reader is configured. ClaimedSnapshotHash overrides the hash
	// recorded on the event; when both are empty the check falls back to the
	// event's own snapshotHash and is omitted if that is empty too.
	Snapshot            json.RawMessage
	SnapshotPointer     string
	ClaimedSnapshotHash string

	// SimulateTampering mutates a signed field before the signature check
	// to produce a deliberately failing demonstration. Opt-in only.
	SimulateTampering bool

	// WalkChain additionally confirms the predecessor's own eventHash
	// matches this event's previousEventHash. Requires a chain reader.
	WalkChain bool
}

// ChainReader is the read-only slice of the store the predecessor walk
// needs.
type ChainReader interface {
	EventsByChain(ctx context.Context, key ledger.ChainKey) ([]ledger.Event, error)
}

// SnapshotReader resolves SnapshotPointer requests against stored
// snapshots.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, pointer string) (*store.Snapshot, error)
}

// Service performs verification. The chain reader is optional; without it
// WalkChain requests report a failed predecessor check with a reason.
type Service struct {
	keys      registry.Resolver
	chain     ChainReader
	snapshots SnapshotReader
	clock     func() time.Time
}

// NewService creates a verification service.
func NewService(keys registry.Resolver, chain ChainReader) *Service {
	return &Service{keys: keys, chain: chain, clock: time.Now}
}

// WithSnapshots attaches a snapshot reader so requests can name a stored
// snapshot by pointer instead of carrying the payload.
func (s *Service) WithSnapshots(snapshots SnapshotReader) *Service {
	s.snapshots = snapshots
	return s
}

// WithClock overrides the clock for deterministic testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Verify performs all checks the request supplies inputs for and returns
// the structured verdict. It never mutates the supplied event.
func (s *Service) Verify(ctx context.Context, req Request) (*Verdict, error) {
	if req.Event == nil {
		return nil, fmt.Errorf("verify: event required")
	}

	verdict := &Verdict{CheckedAt: s.clock().UTC()}

	verdict.EventSignature = s.checkSignature(ctx, req)

	verdict.SnapshotHash = s.checkSnapshot(ctx, req)

	verdict.HashChain = checkEventHash(req.Event)

	if req.WalkChain {
		verdict.Predecessor = s.checkPredecessor(ctx, req.Event)
	}

	verdict.Verified = true
	for _, c := range []*Check{verdict.EventSignature, verdict.SnapshotHash, verdict.HashChain, verdict.Predecessor} {
		if c != nil && !c.Valid {
			verdict.Verified = false
		}
	}

	return verdict, nil
}

func (s *Service) checkSignature(ctx context.Context, req Request) *Check {
	event := *req.Event
	if req.SimulateTampering {
		// Deliberate mutation of a signed field for demonstrations.
		event.UserID = event.UserID + "__tampered"
	}

	res, err := s.keys.Resolve(ctx, event.OrgID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return &Check{Valid: false, Reason: "signing organisation not registered"}
		}
		return &Check{Valid: false, Reason: fmt.Sprintf("key resolution failed: %v", err)}
	}

	// Derive with the key ID the event was signed under, not the current
	// one: the root secret is immutable, so historical events stay
	// verifiable across key rotations.
	key, err := signing.DeriveKey(res.SigningSecret, event.SigningKeyID)
	if err != nil {
		return &Check{Valid: false, Reason: fmt.Sprintf("key derivation failed: %v", err)}
	}

	payload, err := canonical.EncodeForSigning(&event)
	if err != nil {
		return &Check{Valid: false, Reason: fmt.Sprintf("canonical encoding failed: %v", err)}
	}

	ok, err := signing.Verify(payload, event.Signature, key)
	if err != nil {
		return &Check{Valid: false, Reason: fmt.Sprintf("verification failed: %v", err)}
	}
	if !ok {
		return &Check{Valid: false, Reason: "signature does not match canonical event"}
	}
	return &Check{Valid: true}
}

// checkSnapshot returns nil when the request carries no snapshot, or
// carries one but no hash to compare it against.
func (s *Service) checkSnapshot(ctx context.Context, req Request) *Check {
	snapshot := req.Snapshot
	claimed := req.ClaimedSnapshotHash

	if snapshot == nil && req.SnapshotPointer != "" {
		if s.snapshots == nil {
			return &Check{Valid: false, Reason: "no snapshot reader configured"}
		}
		snap, err := s.snapshots.GetSnapshot(ctx, req.SnapshotPointer)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return &Check{Valid: false, Reason: fmt.Sprintf("snapshot %q not found", req.SnapshotPointer)}
			}
			return &Check{Valid: false, Reason: fmt.Sprintf("snapshot read failed: %v", err)}
		}
		snapshot = snap.Payload
		if claimed == "" {
			claimed = snap.SnapshotHash
		}
	}

	if snapshot == nil {
		return nil
	}
	if claimed == "" {
		// The sealing event records the hash of its own snapshot, so a
		// genuine payload verifies without the caller restating it.
		claimed = req.Event.SnapshotHash
	}
	if claimed == "" {
		return nil
	}

	transformed, err := canonical.Transform(snapshot)
	if err != nil {
		return &Check{Valid: false, Reason: fmt.Sprintf("snapshot not canonicalizable: %v", err)}
	}
	recomputed := canonical.HashBytes(transformed)
	return &Check{
		Valid:      recomputed == claimed,
		Recomputed: recomputed,
	}
}

func checkEventHash(event *ledger.Event) *Check {
	recomputed, err := canonical.Hash(event, canonical.HashingExclusions())
	if err != nil {
		return &Check{Valid: false, Reason: fmt.Sprintf("canonical encoding failed: %v", err)}
	}
	return &Check{
		Valid:      recomputed == event.EventHash,
		Recomputed: recomputed,
	}
}

func (s *Service) checkPredecessor(ctx context.Context, event *ledger.Event) *Check {
	if s.chain == nil {
		return &Check{Valid: false, Reason: "no chain reader configured"}
	}
	if event.BlockIndex <= 1 {
		if event.PreviousEventHash != "" {
			return &Check{Valid: false, Reason: "chain-first event carries a previousEventHash"}
		}
		return &Check{Valid: true}
	}

	events, err := s.chain.EventsByChain(ctx, event.Key())
	if err != nil {
		return &Check{Valid: false, Reason: fmt.Sprintf("chain read failed: %v", err)}
	}

	for i := range events {
		pred := &events[i]
		if pred.BlockIndex != event.BlockIndex-1 {
			continue
		}
		recomputed, err := canonical.Hash(pred, canonical.HashingExclusions())
		if err != nil {
			return &Check{Valid: false, Reason: fmt.Sprintf("predecessor encoding failed: %v", err)}
		}
		return &Check{
			Valid:      recomputed == pred.EventHash && event.PreviousEventHash == pred.EventHash,
			Recomputed: recomputed,
		}
	}

	return &Check{Valid: false, Reason: fmt.Sprintf("predecessor block %d not found", event.BlockIndex-1)}
}
