package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/lineage"
)

// SQLStore implements Store using database/sql. It works against both
// Postgres and SQLite via standard drivers; placeholders use the $N form,
// which both accept.
//
// Events are stored as their full JSON document plus the indexed columns
// needed for chain lookups. Round-tripping the document rather than
// reassembling it from columns keeps the hashed byte form exact.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	org_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	block_index INTEGER NOT NULL,
	event_hash TEXT NOT NULL,
	previous_event_hash TEXT NOT NULL DEFAULT '',
	document TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_chain ON events (user_id, org_id, block_index);
CREATE INDEX IF NOT EXISTS idx_events_org ON events (org_id);

CREATE TABLE IF NOT EXISTS logs (
	log_id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	log_type TEXT NOT NULL,
	uploaded_by TEXT NOT NULL,
	uploaded_at TIMESTAMP NOT NULL,
	entries TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_uploader ON logs (uploaded_by);

CREATE TABLE IF NOT EXISTS snapshots (
	pointer TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	snapshot_hash TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// Init creates the schema.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("store: schema init: %w", err)
	}
	return nil
}

func (s *SQLStore) AppendEvent(ctx context.Context, event *ledger.Event) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}

	query := `
		INSERT INTO events (event_id, user_id, org_id, event_type, block_index, event_hash, previous_event_hash, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	// The unique chain index doubles as a guard: two writers racing for the
	// same block index fail here instead of forking the chain.
	_, err = s.db.ExecContext(ctx, query,
		event.EventID, event.UserID, event.OrgID, string(event.EventType),
		event.BlockIndex, event.EventHash, event.PreviousEventHash,
		string(doc), event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}
	return nil
}

func (s *SQLStore) LatestEvent(ctx context.Context, key ledger.ChainKey) (*ledger.Event, error) {
	query := `
		SELECT document FROM events
		WHERE user_id = $1 AND org_id = $2
		ORDER BY block_index DESC
		LIMIT 1
	`
	var doc string
	err := s.db.QueryRowContext(ctx, query, key.UserID, key.OrgID).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: latest event lookup: %w", err)
	}
	return unmarshalEvent(doc)
}

func (s *SQLStore) EventsByChain(ctx context.Context, key ledger.ChainKey) ([]ledger.Event, error) {
	query := `
		SELECT document FROM events
		WHERE user_id = $1 AND org_id = $2
		ORDER BY block_index ASC
	`
	return s.queryEvents(ctx, query, key.UserID, key.OrgID)
}

func (s *SQLStore) EventsByOrg(ctx context.Context, orgID string) ([]ledger.Event, error) {
	query := `
		SELECT document FROM events
		WHERE org_id = $1
		ORDER BY user_id ASC, block_index ASC
	`
	return s.queryEvents(ctx, query, orgID)
}

func (s *SQLStore) queryEvents(ctx context.Context, query string, args ...interface{}) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]ledger.Event, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e, err := unmarshalEvent(doc)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate events: %w", err)
	}
	return events, nil
}

func unmarshalEvent(doc string) (*ledger.Event, error) {
	var e ledger.Event
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return nil, fmt.Errorf("store: unmarshal event: %w", err)
	}
	return &e, nil
}

func (s *SQLStore) PutLog(ctx context.Context, rec *lineage.LogRecord) error {
	entries, err := json.Marshal(rec.Entries)
	if err != nil {
		return fmt.Errorf("store: marshal entries: %w", err)
	}

	query := `
		INSERT INTO logs (log_id, filename, log_type, uploaded_by, uploaded_at, entries)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.LogID, rec.Filename, string(rec.Type), rec.UploadedBy,
		rec.UploadedAt.UTC().Format(time.RFC3339Nano), string(entries),
	)
	if err != nil {
		return fmt.Errorf("store: insert log: %w", err)
	}
	return nil
}

func (s *SQLStore) LogsByUploader(ctx context.Context, userID string) ([]lineage.LogRecord, error) {
	query := `
		SELECT log_id, filename, log_type, uploaded_by, uploaded_at, entries
		FROM logs
		WHERE uploaded_by = $1
		ORDER BY uploaded_at ASC, log_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: query logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]lineage.LogRecord, 0)
	for rows.Next() {
		var rec lineage.LogRecord
		var logType, uploadedAt, entries string
		if err := rows.Scan(&rec.LogID, &rec.Filename, &logType, &rec.UploadedBy, &uploadedAt, &entries); err != nil {
			return nil, fmt.Errorf("store: scan log: %w", err)
		}
		rec.Type = lineage.LogType(logType)
		if rec.UploadedAt, err = time.Parse(time.RFC3339Nano, uploadedAt); err != nil {
			return nil, fmt.Errorf("store: parse uploaded_at: %w", err)
		}
		if err := json.Unmarshal([]byte(entries), &rec.Entries); err != nil {
			return nil, fmt.Errorf("store: unmarshal entries: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate logs: %w", err)
	}
	return records, nil
}

func (s *SQLStore) PutSnapshot(ctx context.Context, snap *Snapshot) error {
	query := `
		INSERT INTO snapshots (pointer, payload, snapshot_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query,
		snap.Pointer, string(snap.Payload), snap.SnapshotHash,
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: insert snapshot: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSnapshot(ctx context.Context, pointer string) (*Snapshot, error) {
	query := `SELECT pointer, payload, snapshot_hash, created_at FROM snapshots WHERE pointer = $1`
	var snap Snapshot
	var payload, createdAt string
	err := s.db.QueryRowContext(ctx, query, pointer).Scan(&snap.Pointer, &payload, &snap.SnapshotHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: snapshot lookup: %w", err)
	}
	snap.Payload = json.RawMessage(payload)
	if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("store: parse created_at: %w", err)
	}
	return &snap, nil
}
