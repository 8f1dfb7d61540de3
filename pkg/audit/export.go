package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/orbitlabs/orbit/pkg/store"
)

var (
	// ErrEmptyOrgID is returned when the org ID is empty.
	ErrEmptyOrgID = errors.New("audit: org_id must not be empty")
	// ErrInvalidTimeRange is returned when start time is after end time.
	ErrInvalidTimeRange = errors.New("audit: start_time must be before end_time")
	// ErrStoreNotConfigured is returned when export is invoked without a backing store.
	ErrStoreNotConfigured = errors.New("audit: store not configured (fail-closed)")
)

// ExportRequest defines what to export.
type ExportRequest struct {
	OrgID     string    `json:"org_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Exporter builds downloadable evidence packs: every ledger event an
// organisation signed in a period, zipped with a manifest, checksummed.
type Exporter struct {
	store store.Store
}

func NewExporter(s store.Store) *Exporter {
	return &Exporter{store: s}
}

// GeneratePack creates a zip containing the org's ledger events and a
// manifest. Returns the zip bytes and their SHA-256 checksum.
func (e *Exporter) GeneratePack(ctx context.Context, req ExportRequest) ([]byte, string, error) {
	if req.OrgID == "" {
		return nil, "", ErrEmptyOrgID
	}
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.StartTime.After(req.EndTime) {
		return nil, "", ErrInvalidTimeRange
	}
	if e.store == nil {
		return nil, "", ErrStoreNotConfigured
	}

	events, err := e.store.EventsByOrg(ctx, req.OrgID)
	if err != nil {
		return nil, "", fmt.Errorf("audit: query events: %w", err)
	}
	if !req.StartTime.IsZero() || !req.EndTime.IsZero() {
		filtered := events[:0]
		for _, ev := range events {
			if !req.StartTime.IsZero() && ev.Timestamp.Before(req.StartTime) {
				continue
			}
			if !req.EndTime.IsZero() && ev.Timestamp.After(req.EndTime) {
				continue
			}
			filtered = append(filtered, ev)
		}
		events = filtered
	}

	eventsJSON, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, "", err
	}

	manifest := map[string]interface{}{
		"org_id":       req.OrgID,
		"generated_at": time.Now().UTC(),
		"event_count":  len(events),
		"period": map[string]interface{}{
			"start": req.StartTime,
			"end":   req.EndTime,
		},
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: failed to marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	f, err := w.Create("events.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(eventsJSON)

	f, err = w.Create("manifest.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(manifestJSON)

	f, err = w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	_, _ = fmt.Fprintf(f, "Ledger evidence pack for organisation %s\nGenerated at %s\n", req.OrgID, time.Now().UTC())

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	hash := sha256.Sum256(zipBytes)
	checksum := hex.EncodeToString(hash[:])

	return zipBytes, checksum, nil
}
