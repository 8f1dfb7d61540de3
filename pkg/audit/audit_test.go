package audit_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitlabs/orbit/pkg/audit"
	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/registry"
	"github.com/orbitlabs/orbit/pkg/store"
)

func TestLogger_Record_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	err := logger.Record(context.Background(), "user-1", "org-1", audit.EventAccess, "logs.ingest", "/v1/logs", nil)
	require.NoError(t, err)

	output := buf.String()
	assert.True(t, strings.HasPrefix(output, "AUDIT: "))

	jsonPart := strings.TrimSpace(strings.TrimPrefix(output, "AUDIT: "))

	var event audit.Event
	require.NoError(t, json.Unmarshal([]byte(jsonPart), &event))

	assert.Equal(t, audit.EventAccess, event.Type)
	assert.Equal(t, "logs.ingest", event.Action)
	assert.Equal(t, "/v1/logs", event.Resource)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, "org-1", event.OrgID)
	assert.NotEmpty(t, event.ID)
	// UUID format: 8-4-4-4-12
	assert.Len(t, event.ID, 36)
}

func TestLogger_Record_MissingIdentityDefaultsToSystem(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	require.NoError(t, logger.Record(context.Background(), "", "", audit.EventSystem, "startup", "orbitd", nil))

	var event audit.Event
	jsonPart := strings.TrimSpace(strings.TrimPrefix(buf.String(), "AUDIT: "))
	require.NoError(t, json.Unmarshal([]byte(jsonPart), &event))
	assert.Equal(t, "system", event.UserID)
	assert.Equal(t, "system", event.OrgID)
}

func TestLogger_Record_WithMetadata(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	meta := map[string]interface{}{"files": 3, "ip": "10.0.0.1"}
	err := logger.Record(context.Background(), "user-1", "org-1", audit.EventMutation, "bundle.generate", "/v1/bundles", meta)
	require.NoError(t, err)

	jsonPart := strings.TrimSpace(strings.TrimPrefix(buf.String(), "AUDIT: "))
	var event audit.Event
	require.NoError(t, json.Unmarshal([]byte(jsonPart), &event))

	assert.Equal(t, "10.0.0.1", event.Metadata["ip"])
}

func exportFixture(t *testing.T) (*audit.Exporter, string) {
	t.Helper()
	reg := registry.NewInMemory()
	org, err := reg.Create(context.Background(), registry.CreateRequest{OrgID: "org-exp", DisplayName: "Export Org"})
	require.NoError(t, err)

	st := store.NewMemoryStore()
	chain := ledger.NewManager(st, reg)
	for i := 0; i < 3; i++ {
		_, err := chain.Append(context.Background(), ledger.Event{
			EventType: ledger.EventLogIngested,
			UserID:    "user-1",
			OrgID:     org.OrgID,
			LogID:     "log-" + string(rune('a'+i)),
		})
		require.NoError(t, err)
	}
	return audit.NewExporter(st), org.OrgID
}

func TestExporter_GeneratePack(t *testing.T) {
	exporter, orgID := exportFixture(t)

	zipBytes, checksum, err := exporter.GeneratePack(context.Background(), audit.ExportRequest{OrgID: orgID})
	require.NoError(t, err)
	assert.Len(t, checksum, 64)

	reader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range reader.File {
		names[f.Name] = true
	}
	assert.True(t, names["events.json"])
	assert.True(t, names["manifest.json"])
	assert.True(t, names["README.txt"])

	var events []ledger.Event
	rc, err := reader.Open("events.json")
	require.NoError(t, err)
	defer rc.Close()
	require.NoError(t, json.NewDecoder(rc).Decode(&events))
	assert.Len(t, events, 3)
}

func TestExporter_GeneratePack_TimeFilter(t *testing.T) {
	exporter, orgID := exportFixture(t)

	// A window entirely in the past excludes everything.
	past := time.Now().Add(-48 * time.Hour)
	zipBytes, _, err := exporter.GeneratePack(context.Background(), audit.ExportRequest{
		OrgID:     orgID,
		StartTime: past,
		EndTime:   past.Add(time.Hour),
	})
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	require.NoError(t, err)
	rc, err := reader.Open("events.json")
	require.NoError(t, err)
	defer rc.Close()
	var events []ledger.Event
	require.NoError(t, json.NewDecoder(rc).Decode(&events))
	assert.Empty(t, events)
}

func TestExporter_GeneratePack_Validation(t *testing.T) {
	exporter, _ := exportFixture(t)

	_, _, err := exporter.GeneratePack(context.Background(), audit.ExportRequest{})
	assert.ErrorIs(t, err, audit.ErrEmptyOrgID)

	now := time.Now()
	_, _, err = exporter.GeneratePack(context.Background(), audit.ExportRequest{
		OrgID:     "org-exp",
		StartTime: now,
		EndTime:   now.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, audit.ErrInvalidTimeRange)

	nilStore := audit.NewExporter(nil)
	_, _, err = nilStore.GeneratePack(context.Background(), audit.ExportRequest{OrgID: "org-exp"})
	assert.ErrorIs(t, err, audit.ErrStoreNotConfigured)
}
