package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitlabs/orbit/pkg/canonical"
	"github.com/orbitlabs/orbit/pkg/registry"
	"github.com/orbitlabs/orbit/pkg/signing"
)

// EventStore is the append-only persistence the chain manager writes to.
// LatestEvent returns ErrNotFound when the chain has no events yet; any
// other error means the lookup itself failed.
type EventStore interface {
	AppendEvent(ctx context.Context, event *Event) error
	LatestEvent(ctx context.Context, key ChainKey) (*Event, error)
}

// Manager assigns block indices, signs events, links them to their chain
// predecessor and persists them. Appends to the same chain key are
// serialized by a per-key lock held across the read-latest/sign/write
// sequence; appends to different chain keys proceed concurrently.
type Manager struct {
	store EventStore
	keys  registry.Resolver
	clock func() time.Time

	mu    sync.Mutex
	locks map[ChainKey]*sync.Mutex
}

// NewManager creates a chain manager over the given store and key resolver.
func NewManager(store EventStore, keys registry.Resolver) *Manager {
	return &Manager{
		store: store,
		keys:  keys,
		clock: time.Now,
		locks: make(map[ChainKey]*sync.Mutex),
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

func (m *Manager) chainLock(key ChainKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Append seals a draft event onto its chain. The draft carries the event
// type, identity and payload fields; Append assigns everything else
// (eventId, timestamp, signingKeyId, signature, chain linkage, eventHash).
// On any failure nothing is persisted and the chain is unchanged.
func (m *Manager) Append(ctx context.Context, draft Event) (*Event, error) {
	if !draft.EventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, draft.EventType)
	}
	if draft.UserID == "" || draft.OrgID == "" {
		return nil, fmt.Errorf("%w: chain key requires userId and orgId", ErrInvalidEvent)
	}

	event := draft
	event.EventID = uuid.New().String()
	event.Timestamp = m.clock().UTC()
	event.Signature = ""
	event.EventHash = ""
	event.PreviousEventHash = ""
	event.BlockIndex = 0

	// 1. Resolve the organisation's current signing key.
	res, err := m.keys.Resolve(ctx, event.OrgID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, fmt.Errorf("%w: org %s", ErrKeyNotFound, event.OrgID)
		}
		return nil, fmt.Errorf("ledger: key resolution for org %s: %w", event.OrgID, err)
	}
	if m.clock().After(res.KeyExpiresAt) {
		return nil, fmt.Errorf("%w: org %s key %s expired %s", ErrKeyExpired,
			event.OrgID, res.SigningKeyID, res.KeyExpiresAt.UTC().Format(time.RFC3339))
	}
	event.SigningKeyID = res.SigningKeyID

	key, err := signing.DeriveKey(res.SigningSecret, res.SigningKeyID)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	// The lock covers the whole read-latest/sign/append sequence: two
	// concurrent appends reading the same head would otherwise both claim
	// the same blockIndex and fork the chain.
	lock := m.chainLock(event.Key())
	lock.Lock()
	defer lock.Unlock()

	// 2. Link to the chain head. A failed lookup is NOT an empty chain:
	// defaulting to blockIndex 1 here would silently fork the chain.
	latest, err := m.store.LatestEvent(ctx, event.Key())
	switch {
	case err == nil:
		event.PreviousEventHash = latest.EventHash
		event.BlockIndex = latest.BlockIndex + 1
	case errors.Is(err, ErrNotFound):
		event.BlockIndex = 1
	default:
		return nil, fmt.Errorf("%w: %v", ErrChainLookup, err)
	}

	// 3. Sign over the canonical form excluding {signature, eventHash}.
	// Chain linkage is assigned before signing so the signature covers it.
	signedBytes, err := canonical.EncodeForSigning(&event)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	event.Signature, err = signing.Sign(signedBytes, key)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	// 4. Hash over the canonical form including the signature.
	event.EventHash, err = canonical.Hash(&event, canonical.HashingExclusions())
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	// 5. Persist.
	if err := m.store.AppendEvent(ctx, &event); err != nil {
		return nil, fmt.Errorf("ledger: append: %w", err)
	}

	return &event, nil
}
