// Package store provides the append-only persistence behind the ledger:
// events, ingested logs and sealed snapshots. Events are never updated or
// deleted; the chain manager owns ordering and linkage.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/lineage"
)

// ErrNotFound is the shared not-found sentinel. It aliases the ledger's so
// the chain manager can distinguish "chain is new" from a failed lookup
// without importing this package.
var ErrNotFound = ledger.ErrNotFound

// Snapshot is an immutable payload persisted alongside a sealing event,
// addressable by an opaque pointer.
type Snapshot struct {
	Pointer      string          `json:"pointer"`
	Payload      json.RawMessage `json:"payload"`
	SnapshotHash string          `json:"snapshot_hash"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store is the full persistence surface consumed by the Orbit service.
// The embedded ledger.EventStore is the narrow slice the chain manager
// needs.
type Store interface {
	ledger.EventStore

	// EventsByChain returns all events for a chain key ordered by block index.
	EventsByChain(ctx context.Context, key ledger.ChainKey) ([]ledger.Event, error)

	// EventsByOrg returns all events signed by an organisation.
	EventsByOrg(ctx context.Context, orgID string) ([]ledger.Event, error)

	// PutLog persists an ingested log record.
	PutLog(ctx context.Context, rec *lineage.LogRecord) error

	// LogsByUploader returns all logs uploaded by a user.
	LogsByUploader(ctx context.Context, userID string) ([]lineage.LogRecord, error)

	// PutSnapshot persists a sealed snapshot.
	PutSnapshot(ctx context.Context, snap *Snapshot) error

	// GetSnapshot returns the snapshot at pointer, or ErrNotFound.
	GetSnapshot(ctx context.Context, pointer string) (*Snapshot, error)
}
