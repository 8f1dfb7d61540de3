package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/lineage"
)

// MemoryStore is an in-process Store for tests and the demo server.
type MemoryStore struct {
	mu        sync.RWMutex
	chains    map[ledger.ChainKey][]ledger.Event
	logs      map[string][]lineage.LogRecord // keyed by uploader
	snapshots map[string]Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains:    make(map[ledger.ChainKey][]ledger.Event),
		logs:      make(map[string][]lineage.LogRecord),
		snapshots: make(map[string]Snapshot),
	}
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event *ledger.Event) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	key := event.Key()
	s.chains[key] = append(s.chains[key], *event)
	return nil
}

func (s *MemoryStore) LatestEvent(ctx context.Context, key ledger.ChainKey) (*ledger.Event, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[key]
	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	out := chain[len(chain)-1]
	return &out, nil
}

func (s *MemoryStore) EventsByChain(ctx context.Context, key ledger.ChainKey) ([]ledger.Event, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Event, len(s.chains[key]))
	copy(out, s.chains[key])
	sort.Slice(out, func(i, j int) bool { return out[i].BlockIndex < out[j].BlockIndex })
	return out, nil
}

func (s *MemoryStore) EventsByOrg(ctx context.Context, orgID string) ([]ledger.Event, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Event
	for key, chain := range s.chains {
		if key.OrgID != orgID {
			continue
		}
		out = append(out, chain...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].BlockIndex < out[j].BlockIndex
	})
	return out, nil
}

func (s *MemoryStore) PutLog(ctx context.Context, rec *lineage.LogRecord) error {
	_ = ctx
	if rec.LogID == "" {
		return fmt.Errorf("store: log record requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[rec.UploadedBy] = append(s.logs[rec.UploadedBy], *rec)
	return nil
}

func (s *MemoryStore) LogsByUploader(ctx context.Context, userID string) ([]lineage.LogRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lineage.LogRecord, len(s.logs[userID]))
	copy(out, s.logs[userID])
	return out, nil
}

func (s *MemoryStore) PutSnapshot(ctx context.Context, snap *Snapshot) error {
	_ = ctx
	if snap.Pointer == "" {
		return fmt.Errorf("store: snapshot requires a pointer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Pointer] = *snap
	return nil
}

func (s *MemoryStore) GetSnapshot(ctx context.Context, pointer string) (*Snapshot, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[pointer]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}
