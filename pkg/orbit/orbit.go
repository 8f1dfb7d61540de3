// Package orbit is the service façade: it wires the classifier, lineage
// reconstructor, bundle generator, chain manager and verification service
// behind the operations callers actually invoke. Identity (userID, orgID)
// is supplied by the caller's session layer and trusted as-is.
package orbit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orbitlabs/orbit/pkg/audit"
	"github.com/orbitlabs/orbit/pkg/bundle"
	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/lineage"
	"github.com/orbitlabs/orbit/pkg/registry"
	"github.com/orbitlabs/orbit/pkg/store"
	"github.com/orbitlabs/orbit/pkg/verify"
)

// UploadFile is one raw log file submitted for ingestion.
type UploadFile struct {
	Filename string
	Data     []byte
}

// Verifier renders a verdict on a verification claim. Production deployments
// plug in a cross-org callout; StaticVerifier answers locally.
type Verifier interface {
	VerifyClaim(ctx context.Context, claimID string, events []ledger.Event) (string, error)
}

// StaticVerifier approves any claim against a non-empty, internally
// consistent chain and rejects otherwise.
type StaticVerifier struct{}

func (StaticVerifier) VerifyClaim(ctx context.Context, claimID string, events []ledger.Event) (string, error) {
	_ = ctx
	if len(events) == 0 {
		return "REJECTED: no ledger history for claim " + claimID, nil
	}
	if ok, reason := ledger.VerifyChain(events); !ok {
		return "REJECTED: " + reason, nil
	}
	return "CONFIRMED", nil
}

// VerificationOutcome is the result of a cross-organisation verification
// round trip.
type VerificationOutcome struct {
	Result          string `json:"result"`
	RequestEventID  string `json:"requestEventId"`
	ResponseEventID string `json:"responseEventId"`
}

// Service is the assembled Orbit engine.
type Service struct {
	store      store.Store
	chain      *ledger.Manager
	registry   registry.Resolver
	classifier lineage.Classifier
	rebuild    *lineage.Reconstructor
	bundles    *bundle.Generator
	verifier   Verifier
	checks     *verify.Service
	auditor    audit.Logger
	clock      func() time.Time
	logger     *slog.Logger
}

// Options configures optional collaborators; zero values get defaults.
type Options struct {
	Classifier lineage.Classifier
	Verifier   Verifier
	Auditor    audit.Logger
	Logger     *slog.Logger
	Rules      []bundle.CustomRule
}

// New assembles a Service over the given store and registry.
func New(st store.Store, reg registry.Resolver, opts Options) (*Service, error) {
	if opts.Classifier == nil {
		opts.Classifier = lineage.NewKeywordClassifier()
	}
	if opts.Verifier == nil {
		opts.Verifier = StaticVerifier{}
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.NewLogger()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	chain := ledger.NewManager(st, reg)
	gen := bundle.NewGenerator(chain, st, opts.Logger)
	if len(opts.Rules) > 0 {
		engine, err := bundle.NewRuleEngine()
		if err != nil {
			return nil, err
		}
		gen = gen.WithCustomRules(engine, opts.Rules)
	}

	return &Service{
		store:      st,
		chain:      chain,
		registry:   reg,
		classifier: opts.Classifier,
		rebuild:    lineage.NewReconstructor(opts.Classifier),
		bundles:    gen,
		verifier:   opts.Verifier,
		checks:     verify.NewService(reg, st).WithSnapshots(st),
		auditor:    opts.Auditor,
		clock:      time.Now,
		logger:     opts.Logger.With("component", "orbit"),
	}, nil
}

// Chain exposes the chain manager for callers that append events directly.
func (s *Service) Chain() *ledger.Manager { return s.chain }

// IngestLogs parses, classifies and persists each uploaded file, appending
// one LOG_INGESTED ledger event per file. A file that fails to parse aborts
// the whole ingest; files already persisted keep their ledger events (the
// ledger records what happened, not what was wished for). Zero files is a
// no-op returning no records and appending no events.
func (s *Service) IngestLogs(ctx context.Context, userID, orgID string, files []UploadFile) ([]lineage.LogRecord, error) {
	records := make([]lineage.LogRecord, 0, len(files))
	for _, f := range files {
		entries, declared, err := lineage.ParseUpload(f.Data)
		if err != nil {
			return records, fmt.Errorf("orbit: ingest %q: %w", f.Filename, err)
		}
		logType := declared
		if logType == "" || logType == lineage.LogGeneric {
			logType = lineage.DetectType(f.Filename, entries)
		}

		rec := lineage.LogRecord{
			LogID:      uuid.New().String(),
			Filename:   f.Filename,
			Type:       logType,
			Entries:    entries,
			UploadedBy: userID,
			UploadedAt: s.clock().UTC(),
		}
		if err := s.store.PutLog(ctx, &rec); err != nil {
			return records, fmt.Errorf("orbit: persist %q: %w", f.Filename, err)
		}

		if _, err := s.chain.Append(ctx, ledger.Event{
			EventType:  ledger.EventLogIngested,
			UserID:     userID,
			OrgID:      orgID,
			LogID:      rec.LogID,
			LogType:    string(rec.Type),
			EntryCount: len(rec.Entries),
		}); err != nil {
			return records, fmt.Errorf("orbit: ledger event for %q: %w", f.Filename, err)
		}

		records = append(records, rec)
	}

	_ = s.auditor.Record(ctx, userID, orgID, audit.EventMutation, "logs.ingest", "ledger",
		map[string]interface{}{"files": len(records)})
	s.logger.Info("logs ingested", "userId", userID, "orgId", orgID, "files", len(records))

	return records, nil
}

// ReconstructLineage rebuilds the decision lineage from everything the user
// has uploaded. With no logs it returns the flagged placeholder graph.
func (s *Service) ReconstructLineage(ctx context.Context, userID string) (*lineage.Graph, error) {
	logs, err := s.store.LogsByUploader(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orbit: load logs: %w", err)
	}
	graph := s.rebuild.Reconstruct(logs)

	_ = s.auditor.Record(ctx, userID, "", audit.EventAccess, "lineage.reconstruct", "logs",
		map[string]interface{}{"logs": len(logs), "placeholder": graph.Placeholder})

	return graph, nil
}

// GenerateBundle builds, scores and seals a documentation bundle over the
// supplied lineage and the user's ingested logs. When graph is nil the
// lineage is reconstructed first.
func (s *Service) GenerateBundle(ctx context.Context, userID, orgID string, graph *lineage.Graph) (*bundle.DocumentationBundle, error) {
	logs, err := s.store.LogsByUploader(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orbit: load logs: %w", err)
	}
	if graph == nil {
		graph = s.rebuild.Reconstruct(logs)
	}

	b, err := s.bundles.Generate(ctx, userID, orgID, graph, logs)
	if err != nil {
		return nil, err
	}

	_ = s.auditor.Record(ctx, userID, orgID, audit.EventMutation, "bundle.generate", "ledger",
		map[string]interface{}{"bundleId": b.BundleID, "score": b.CompletenessScore})

	return b, nil
}

// Verify runs the requested integrity checks against an event and optional
// snapshot. Pure read; see the verify package for verdict semantics.
func (s *Service) Verify(ctx context.Context, req verify.Request) (*verify.Verdict, error) {
	return s.checks.Verify(ctx, req)
}

// RequestVerification performs a cross-org verification round trip: a
// VERIFICATION_REQUESTED event signed by the requesting org, the verifier's
// judgement over the subject chain, then a VERIFICATION_RESPONDED event
// signed by the verifying org's own key. The two appends land on different
// chain keys when the orgs differ; a failure after the request event leaves
// that event in place.
func (s *Service) RequestVerification(ctx context.Context, userID, orgID, verifierOrgID, claimID string) (*VerificationOutcome, error) {
	reqEvent, err := s.chain.Append(ctx, ledger.Event{
		EventType:         ledger.EventVerificationRequested,
		UserID:            userID,
		OrgID:             orgID,
		RecipientOrgID:    verifierOrgID,
		VerificationClaim: claimID,
	})
	if err != nil {
		return nil, fmt.Errorf("orbit: verification request: %w", err)
	}

	subject, err := s.store.EventsByChain(ctx, ledger.ChainKey{UserID: userID, OrgID: orgID})
	if err != nil {
		return nil, fmt.Errorf("orbit: load subject chain: %w", err)
	}
	result, err := s.verifier.VerifyClaim(ctx, claimID, subject)
	if err != nil {
		return nil, fmt.Errorf("orbit: verifier: %w", err)
	}

	respEvent, err := s.chain.Append(ctx, ledger.Event{
		EventType:          ledger.EventVerificationResponded,
		UserID:             userID,
		OrgID:              verifierOrgID,
		RecipientOrgID:     orgID,
		VerificationClaim:  claimID,
		VerificationResult: result,
	})
	if err != nil {
		return nil, fmt.Errorf("orbit: verification response: %w", err)
	}

	_ = s.auditor.Record(ctx, userID, orgID, audit.EventMutation, "verification.request", "ledger",
		map[string]interface{}{"claimId": claimID, "verifierOrgId": verifierOrgID, "result": result})

	return &VerificationOutcome{
		Result:          result,
		RequestEventID:  reqEvent.EventID,
		ResponseEventID: respEvent.EventID,
	}, nil
}
