package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/lineage"
	"github.com/orbitlabs/orbit/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreEvents(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	key := ledger.ChainKey{UserID: "user-1", OrgID: "org-1"}

	_, err := s.LatestEvent(ctx, key)
	assert.ErrorIs(t, err, store.ErrNotFound)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, &ledger.Event{
			EventID:    "evt-" + string(rune('0'+i)),
			EventType:  ledger.EventLogIngested,
			UserID:     "user-1",
			OrgID:      "org-1",
			BlockIndex: i,
			EventHash:  "hash-" + string(rune('0'+i)),
		}))
	}

	latest, err := s.LatestEvent(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), latest.BlockIndex)

	chain, err := s.EventsByChain(ctx, key)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, uint64(1), chain[0].BlockIndex)

	byOrg, err := s.EventsByOrg(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, byOrg, 3)

	byOther, err := s.EventsByOrg(ctx, "org-2")
	require.NoError(t, err)
	assert.Empty(t, byOther)
}

func TestMemoryStoreLogs(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutLog(ctx, &lineage.LogRecord{
		LogID:      "log-1",
		Filename:   "kyc.json",
		Type:       lineage.LogGeneric,
		UploadedBy: "user-1",
		UploadedAt: time.Now().UTC(),
	}))

	logs, err := s.LogsByUploader(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "kyc.json", logs[0].Filename)

	none, err := s.LogsByUploader(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Error(t, s.PutLog(ctx, &lineage.LogRecord{Filename: "no-id.json"}))
}

func TestMemoryStoreSnapshots(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.PutSnapshot(ctx, &store.Snapshot{
		Pointer:      "bundle-1",
		Payload:      []byte(`{"nodes":[]}`),
		SnapshotHash: "abc",
		CreatedAt:    time.Now().UTC(),
	}))

	snap, err := s.GetSnapshot(ctx, "bundle-1")
	require.NoError(t, err)
	assert.Equal(t, "abc", snap.SnapshotHash)
}
