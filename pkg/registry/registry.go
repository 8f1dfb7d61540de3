package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Resolver resolves an organisation ID to its current signing material.
type Resolver interface {
	Resolve(ctx context.Context, orgID string) (Resolution, error)
}

// DefaultKeyTTL applies when a create request does not specify one.
const DefaultKeyTTL = 90 * 24 * time.Hour

// InMemory is a provisioning registry backed by process memory.
// Production deployments put the durable copy behind it; tests and the demo
// server use it directly.
type InMemory struct {
	mu    sync.RWMutex
	orgs  map[string]*Organisation
	clock func() time.Time
}

// NewInMemory creates an empty registry.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:  make(map[string]*Organisation),
		clock: time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *InMemory) WithClock(clock func() time.Time) *InMemory {
	r.clock = clock
	return r
}

// Create registers a new organisation with a freshly generated API key and
// signing secret. The secret is returned only through the Organisation value
// handed back here; it is never exposed again.
func (r *InMemory) Create(ctx context.Context, req CreateRequest) (*Organisation, error) {
	_ = ctx
	if req.DisplayName == "" {
		return nil, fmt.Errorf("registry: display name required")
	}

	orgID := req.OrgID
	if orgID == "" {
		orgID = "org-" + uuid.New().String()
	}

	ttl := req.KeyTTL
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("registry: secret generation failed: %w", err)
	}

	now := r.clock().UTC()
	org := &Organisation{
		OrgID:         orgID,
		DisplayName:   req.DisplayName,
		APIKey:        "orbit_" + hex.EncodeToString(randBytes(16)),
		SigningSecret: secret,
		SigningKeyID:  "key-" + uuid.New().String(),
		Scopes:        append([]string(nil), req.Scopes...),
		IsSandbox:     req.IsSandbox,
		KeyExpiresAt:  now.Add(ttl),
		CreatedAt:     now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orgs[orgID]; exists {
		return nil, fmt.Errorf("registry: organisation %q already exists", orgID)
	}
	r.orgs[orgID] = org

	out := *org
	return &out, nil
}

// Reissue rotates the organisation's signing key ID and expiry. The stored
// signing secret is never mutated; rotation changes which derived key is
// current, not the root material.
func (r *InMemory) Reissue(ctx context.Context, orgID string, ttl time.Duration) (string, error) {
	_ = ctx
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	org, ok := r.orgs[orgID]
	if !ok {
		return "", ErrNotFound
	}
	org.SigningKeyID = "key-" + uuid.New().String()
	org.KeyExpiresAt = r.clock().UTC().Add(ttl)
	return org.SigningKeyID, nil
}

// Resolve returns the current signing material for an organisation.
// Expiry is not checked here; the ledger decides whether an expired key is
// usable for the operation at hand (verification of old events needs
// expired keys).
func (r *InMemory) Resolve(ctx context.Context, orgID string) (Resolution, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	org, ok := r.orgs[orgID]
	if !ok {
		return Resolution{}, ErrNotFound
	}
	return Resolution{
		SigningSecret: org.SigningSecret,
		SigningKeyID:  org.SigningKeyID,
		KeyExpiresAt:  org.KeyExpiresAt,
		Scopes:        append([]string(nil), org.Scopes...),
	}, nil
}

// Get returns a copy of the organisation record without its secret.
func (r *InMemory) Get(ctx context.Context, orgID string) (*Organisation, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	org, ok := r.orgs[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *org
	out.SigningSecret = nil
	out.APIKey = ""
	return &out, nil
}

func randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
