package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/orbitlabs/orbit/pkg/audit"
	"github.com/orbitlabs/orbit/pkg/config"
	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/observability"
	"github.com/orbitlabs/orbit/pkg/orbit"
	"github.com/orbitlabs/orbit/pkg/store"
	"github.com/orbitlabs/orbit/pkg/verify"
)

type ctxKey int

const identityKey ctxKey = 0

// identity is the authenticated caller, extracted from the bearer token.
// The core trusts it as-is; authentication stops at this boundary.
type identity struct {
	UserID string
	OrgID  string
}

type server struct {
	svc       *orbit.Service
	exporter  *audit.Exporter
	jwtSecret []byte
	obs       *observability.Provider
	logger    *slog.Logger

	// retention bounds how far back exports reach, per organisation.
	retention map[string]config.RetentionConfig

	// uploadLimiter throttles ingestion; other endpoints are reads or
	// single appends and stay unthrottled.
	uploadLimiter *rate.Limiter
}

func newServer(svc *orbit.Service, st store.Store, jwtSecret []byte, obs *observability.Provider, logger *slog.Logger) *server {
	return &server{
		svc:           svc,
		exporter:      audit.NewExporter(st),
		jwtSecret:     jwtSecret,
		obs:           obs,
		logger:        logger.With("component", "http"),
		retention:     make(map[string]config.RetentionConfig),
		uploadLimiter: rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

// withRetention registers per-organisation retention policies from the seed
// profiles.
func (s *server) withRetention(policies map[string]config.RetentionConfig) *server {
	for orgID, rc := range policies {
		s.retention[orgID] = rc
	}
	return s
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("POST /v1/logs", s.auth(s.handleIngest))
	mux.Handle("GET /v1/lineage", s.auth(s.handleLineage))
	mux.Handle("POST /v1/bundles", s.auth(s.handleGenerateBundle))
	mux.Handle("POST /v1/verify", s.auth(s.handleVerify))
	mux.Handle("POST /v1/verification-requests", s.auth(s.handleRequestVerification))
	mux.Handle("GET /v1/export", s.auth(s.handleExport))
	return mux
}

// auth validates the bearer token and stashes the caller identity in the
// request context. Tokens are HMAC-signed with the shared server secret and
// must carry "sub" (user) and "org" claims.
func (s *server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.jwtSecret) == 0 {
			writeError(w, http.StatusServiceUnavailable, "authentication not configured")
			return
		}

		tokenStr := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(tokenStr) <= len(prefix) || tokenStr[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr[len(prefix):], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		sub, _ := claims["sub"].(string)
		org, _ := claims["org"].(string)
		if sub == "" || org == "" {
			writeError(w, http.StatusUnauthorized, "token missing sub or org claim")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity{UserID: sub, OrgID: org})
		next(w, r.WithContext(ctx))
	})
}

func callerOf(r *http.Request) identity {
	id, _ := r.Context().Value(identityKey).(identity)
	return id
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	Files []struct {
		Filename string          `json:"filename"`
		Content  json.RawMessage `json:"content"`
	} `json:"files"`
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !s.uploadLimiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "upload rate exceeded")
		return
	}
	caller := callerOf(r)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	files := make([]orbit.UploadFile, len(req.Files))
	for i, f := range req.Files {
		files[i] = orbit.UploadFile{Filename: f.Filename, Data: f.Content}
	}

	ctx, done := s.obs.TrackOperation(r.Context(), "logs.ingest",
		attribute.String("orbit.org_id", caller.OrgID))
	records, err := s.svc.IngestLogs(ctx, caller.UserID, caller.OrgID, files)
	done(err)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"logs": records})
}

func (s *server) handleLineage(w http.ResponseWriter, r *http.Request) {
	caller := callerOf(r)

	ctx, done := s.obs.TrackOperation(r.Context(), "lineage.reconstruct")
	graph, err := s.svc.ReconstructLineage(ctx, caller.UserID)
	done(err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (s *server) handleGenerateBundle(w http.ResponseWriter, r *http.Request) {
	caller := callerOf(r)

	ctx, done := s.obs.TrackOperation(r.Context(), "bundle.generate",
		attribute.String("orbit.org_id", caller.OrgID))
	b, err := s.svc.GenerateBundle(ctx, caller.UserID, caller.OrgID, nil)
	done(err)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ledger.ErrKeyNotFound) || errors.Is(err, ledger.ErrKeyExpired) {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

type verifyRequest struct {
	Event               *ledger.Event   `json:"event"`
	Snapshot            json.RawMessage `json:"snapshot,omitempty"`
	SnapshotPointer     string          `json:"snapshotPointer,omitempty"`
	ClaimedSnapshotHash string          `json:"claimedSnapshotHash,omitempty"`
	SimulateTampering   bool            `json:"simulateTampering,omitempty"`
	WalkChain           bool            `json:"walkChain,omitempty"`
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Event == nil {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}

	ctx, done := s.obs.TrackOperation(r.Context(), "verify")
	verdict, err := s.svc.Verify(ctx, verify.Request{
		Event:               req.Event,
		Snapshot:            req.Snapshot,
		SnapshotPointer:     req.SnapshotPointer,
		ClaimedSnapshotHash: req.ClaimedSnapshotHash,
		SimulateTampering:   req.SimulateTampering,
		WalkChain:           req.WalkChain,
	})
	done(err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type verificationRequest struct {
	VerifierOrgID string `json:"verifierOrgId"`
	ClaimID       string `json:"claimId"`
}

func (s *server) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	caller := callerOf(r)

	var req verificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VerifierOrgID == "" || req.ClaimID == "" {
		writeError(w, http.StatusBadRequest, "verifierOrgId and claimId are required")
		return
	}

	ctx, done := s.obs.TrackOperation(r.Context(), "verification.request")
	outcome, err := s.svc.RequestVerification(ctx, caller.UserID, caller.OrgID, req.VerifierOrgID, req.ClaimID)
	done(err)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ledger.ErrKeyNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	caller := callerOf(r)

	req := audit.ExportRequest{OrgID: caller.OrgID}
	// Retention bounds the export window: events older than the
	// organisation's audit-log retention (or its overall maximum) are not
	// packaged.
	if rc, ok := s.retention[caller.OrgID]; ok {
		days := rc.AuditLogDays
		if days == 0 {
			days = rc.MaxDays
		}
		if days > 0 {
			req.StartTime = time.Now().UTC().AddDate(0, 0, -days)
		}
	}

	zipBytes, checksum, err := s.exporter.GeneratePack(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="evidence-pack.zip"`)
	w.Header().Set("X-Checksum-SHA256", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zipBytes)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
