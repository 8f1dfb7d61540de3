package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orbitlabs/orbit/pkg/canonical"
	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/lineage"
	"github.com/orbitlabs/orbit/pkg/merkle"
	"github.com/orbitlabs/orbit/pkg/store"
)

// FieldSeal is the bundle field excluded when hashing a bundle, so the hash
// can be embedded in the seal that the hash itself anchors.
const FieldSeal = "cryptographicSeal"

// sealExclusions returns the exclusion set for bundle hashing.
func sealExclusions() map[string]bool {
	return map[string]bool{FieldSeal: true}
}

// Generator builds and seals documentation bundles. Scoring and deviation
// evaluation are pure reads; sealing performs exactly one ledger append.
type Generator struct {
	chain       *ledger.Manager
	store       store.Store
	rules       *RuleEngine
	customRules []CustomRule
	clock       func() time.Time
	logger      *slog.Logger
}

// NewGenerator creates a bundle generator. rules may be nil when no custom
// deviation rules are configured.
func NewGenerator(chain *ledger.Manager, st store.Store, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		chain:  chain,
		store:  st,
		clock:  time.Now,
		logger: logger.With("component", "bundle"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (g *Generator) WithClock(clock func() time.Time) *Generator {
	g.clock = clock
	return g
}

// WithCustomRules attaches operator-defined CEL deviation rules.
func (g *Generator) WithCustomRules(engine *RuleEngine, rules []CustomRule) *Generator {
	g.rules = engine
	g.customRules = rules
	return g
}

// Generate scores the lineage against the logs, assembles the bundle and
// seals it on the (userID, orgID) chain. On any failure nothing is persisted.
func (g *Generator) Generate(ctx context.Context, userID, orgID string, graph *lineage.Graph, logs []lineage.LogRecord) (*DocumentationBundle, error) {
	b := &DocumentationBundle{
		BundleID:          uuid.New().String(),
		UserID:            userID,
		OrgID:             orgID,
		GeneratedAt:       g.clock().UTC(),
		Lineage:           graph,
		ModelVersion:      normalizeModelVersion(modelVersionOf(graph)),
		Inputs:            inputsOf(logs),
		Outputs:           outputsOf(graph),
		ConsentBasis:      consentBasis(logs),
		OversightChain:    oversightChainOf(logs),
		CompletenessScore: Score(graph, logs),
		PolicyDeviations:  Deviations(graph, logs),
	}

	completeness, err := logCompleteness(logs)
	if err != nil {
		return nil, err
	}
	b.LogCompleteness = completeness

	if g.rules != nil && len(g.customRules) > 0 {
		extra, err := g.rules.Evaluate(g.customRules, graph, logs)
		if err != nil {
			return nil, err
		}
		b.PolicyDeviations = append(b.PolicyDeviations, extra...)
	}

	b.Attestations = []Attestation{
		{
			Kind:      "generation",
			Statement: fmt.Sprintf("bundle generated from %d log files", len(logs)),
			IssuedAt:  b.GeneratedAt,
		},
	}
	if graph != nil && graph.Placeholder {
		b.Attestations = append(b.Attestations, Attestation{
			Kind:      "placeholder-lineage",
			Statement: "lineage graph is a placeholder; no evidence logs were available",
			IssuedAt:  b.GeneratedAt,
		})
	}

	bundleHash, err := canonical.Hash(b, sealExclusions())
	if err != nil {
		return nil, fmt.Errorf("bundle: hash: %w", err)
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("bundle: snapshot payload: %w", err)
	}
	// The snapshot hash is taken over the canonical form of the stored
	// payload itself so an independent verifier can recompute it from the
	// snapshot alone.
	transformed, err := canonical.Transform(payload)
	if err != nil {
		return nil, fmt.Errorf("bundle: snapshot transform: %w", err)
	}
	snap := &store.Snapshot{
		Pointer:      "bundle/" + b.BundleID,
		Payload:      payload,
		SnapshotHash: canonical.HashBytes(transformed),
		CreatedAt:    b.GeneratedAt,
	}
	if err := g.store.PutSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("bundle: persist snapshot: %w", err)
	}

	event, err := g.chain.Append(ctx, ledger.Event{
		EventType:    ledger.EventBundleSealed,
		UserID:       userID,
		OrgID:        orgID,
		BundleHash:   bundleHash,
		SnapshotHash: snap.SnapshotHash,
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: seal: %w", err)
	}

	b.Seal = &CryptographicSeal{
		Signature:    event.Signature,
		BundleHash:   bundleHash,
		EventHash:    event.EventHash,
		EventID:      event.EventID,
		SigningKeyID: event.SigningKeyID,
		Timestamp:    event.Timestamp,
	}

	g.logger.Info("bundle sealed",
		"bundleId", b.BundleID,
		"userId", userID,
		"orgId", orgID,
		"score", b.CompletenessScore,
		"deviations", len(b.PolicyDeviations),
		"blockIndex", event.BlockIndex,
	)

	return b, nil
}

func logCompleteness(logs []lineage.LogRecord) (LogCompleteness, error) {
	lc := LogCompleteness{
		TotalLogs: len(logs),
		ByType:    make(map[string]int),
	}
	items := make(map[string]interface{}, len(logs))
	for _, l := range logs {
		lc.TotalEntries += len(l.Entries)
		lc.ByType[string(l.Type)]++
		items[l.Filename] = l.Entries
	}
	if len(items) > 0 {
		tree, err := merkle.Build(items)
		if err != nil {
			return LogCompleteness{}, fmt.Errorf("bundle: log merkle root: %w", err)
		}
		lc.MerkleRoot = tree.Root
	}
	return lc, nil
}

func modelVersionOf(graph *lineage.Graph) string {
	if graph == nil {
		return ""
	}
	for _, n := range graph.Nodes {
		if n.Type == lineage.NodeModel && n.Version != "" {
			return n.Version
		}
	}
	return ""
}

// inputsOf projects the evidence feeding the decision: the filenames of all
// non-inference logs, in upload order.
func inputsOf(logs []lineage.LogRecord) []string {
	inputs := []string{}
	for _, l := range logs {
		if l.Type == lineage.LogModelInference || l.Type == lineage.LogModelTraining {
			continue
		}
		inputs = append(inputs, l.Filename)
	}
	return inputs
}

// outputsOf projects the decision-stage node labels.
func outputsOf(graph *lineage.Graph) []string {
	outputs := []string{}
	if graph == nil {
		return outputs
	}
	for _, n := range graph.Nodes {
		if n.Type == lineage.NodeDecision {
			outputs = append(outputs, n.Label)
		}
	}
	return outputs
}

// Fields whose string values name a human reviewer or approver.
var oversightFields = []string{"approvedBy", "approved_by", "reviewer", "reviewedBy", "reviewed_by"}

func oversightChainOf(logs []lineage.LogRecord) []string {
	chain := []string{}
	seen := map[string]bool{}
	for _, l := range logs {
		for _, entry := range l.Entries {
			for _, f := range oversightFields {
				if v, ok := entry[f].(string); ok && v != "" && !seen[v] {
					seen[v] = true
					chain = append(chain, v)
				}
			}
		}
	}
	return chain
}
