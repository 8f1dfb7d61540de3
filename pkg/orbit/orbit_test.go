package orbit_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitlabs/orbit/pkg/ledger"
	"github.com/orbitlabs/orbit/pkg/lineage"
	"github.com/orbitlabs/orbit/pkg/orbit"
	"github.com/orbitlabs/orbit/pkg/registry"
	"github.com/orbitlabs/orbit/pkg/store"
	"github.com/orbitlabs/orbit/pkg/verify"
)

type fixture struct {
	svc   *orbit.Service
	st    *store.MemoryStore
	reg   *registry.InMemory
	orgID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.NewInMemory()
	org, err := reg.Create(context.Background(), registry.CreateRequest{
		OrgID:       "org-acme",
		DisplayName: "Acme Lending",
	})
	require.NoError(t, err)

	st := store.NewMemoryStore()
	svc, err := orbit.New(st, reg, orbit.Options{})
	require.NoError(t, err)

	return &fixture{svc: svc, st: st, reg: reg, orgID: org.OrgID}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func uploadSet(t *testing.T) []orbit.UploadFile {
	t.Helper()
	return []orbit.UploadFile{
		{
			Filename: "idp_auth.json",
			Data: mustJSON(t, []map[string]interface{}{
				{"userName": "alice", "loginTime": "2026-01-01T10:00:00Z", "consentBasis": "contract"},
			}),
		},
		{
			Filename: "cloudtrail.json",
			Data: mustJSON(t, []map[string]interface{}{
				{"eventSource": "kyc.amazonaws.com", "eventName": "RunVerification", "kycStatus": "passed"},
			}),
		},
		{
			Filename: "profile_snapshot.json",
			Data: mustJSON(t, []map[string]interface{}{
				{"profileId": "p-1", "featureVector": []float64{0.2, 0.9}, "snapshotTime": "2026-01-01T10:02:00Z"},
			}),
		},
		{
			Filename: "model_inference.json",
			Data: mustJSON(t, []map[string]interface{}{
				{"modelId": "credit-risk", "modelVersion": "2.1.0", "score": 0.82},
			}),
		},
		{
			Filename: "api_decision.json",
			Data: mustJSON(t, []map[string]interface{}{
				{"statusCode": 200, "decision": "approved", "outcome": "credit_granted"},
			}),
		},
	}
}

func TestIngestLogsAppendsEventPerFile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	records, err := fx.svc.IngestLogs(ctx, "user-1", fx.orgID, uploadSet(t))
	require.NoError(t, err)
	require.Len(t, records, 5)

	events, err := fx.st.EventsByChain(ctx, ledger.ChainKey{UserID: "user-1", OrgID: fx.orgID})
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, ledger.EventLogIngested, ev.EventType)
		assert.Equal(t, uint64(i+1), ev.BlockIndex)
		assert.NotEmpty(t, ev.LogID)
	}

	ok, reason := ledger.VerifyChain(events)
	assert.True(t, ok, reason)
}

func TestIngestLogsZeroFiles(t *testing.T) {
	fx := newFixture(t)
	records, err := fx.svc.IngestLogs(context.Background(), "user-1", fx.orgID, nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = fx.st.LatestEvent(context.Background(), ledger.ChainKey{UserID: "user-1", OrgID: fx.orgID})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestIngestLogsRejectsInvalidUpload(t *testing.T) {
	fx := newFixture(t)
	files := []orbit.UploadFile{
		{Filename: "good.json", Data: mustJSON(t, []map[string]interface{}{{"a": 1}})},
		{Filename: "bad.json", Data: []byte(`"just a string"`)},
	}

	records, err := fx.svc.IngestLogs(context.Background(), "user-1", fx.orgID, files)
	require.Error(t, err)
	// The first file was already persisted with its ledger event.
	assert.Len(t, records, 1)
	events, err := fx.st.EventsByChain(context.Background(), ledger.ChainKey{UserID: "user-1", OrgID: fx.orgID})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestReconstructLineageFullChain(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.IngestLogs(ctx, "user-1", fx.orgID, uploadSet(t))
	require.NoError(t, err)

	graph, err := fx.svc.ReconstructLineage(ctx, "user-1")
	require.NoError(t, err)

	assert.False(t, graph.Placeholder)
	assert.Len(t, graph.Nodes, 5)
	assert.Len(t, graph.Edges, 4)

	var hasDecision bool
	for _, n := range graph.Nodes {
		if n.Type == lineage.NodeDecision {
			hasDecision = true
		}
	}
	assert.True(t, hasDecision)
}

func TestReconstructLineagePlaceholder(t *testing.T) {
	fx := newFixture(t)
	graph, err := fx.svc.ReconstructLineage(context.Background(), "user-none")
	require.NoError(t, err)
	assert.True(t, graph.Placeholder)
	assert.Equal(t, "no logs found", graph.Note)
}

func TestGenerateBundleEndToEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.IngestLogs(ctx, "user-1", fx.orgID, uploadSet(t))
	require.NoError(t, err)

	b, err := fx.svc.GenerateBundle(ctx, "user-1", fx.orgID, nil)
	require.NoError(t, err)

	assert.Equal(t, 100, b.CompletenessScore)
	assert.Equal(t, "2.1.0", b.ModelVersion)
	assert.Equal(t, "contract", b.ConsentBasis)
	require.NotNil(t, b.Seal)

	// The sealing event is block 6: five ingestion events then the seal.
	head, err := fx.st.LatestEvent(ctx, ledger.ChainKey{UserID: "user-1", OrgID: fx.orgID})
	require.NoError(t, err)
	assert.Equal(t, ledger.EventBundleSealed, head.EventType)
	assert.Equal(t, uint64(6), head.BlockIndex)

	// The sealed event verifies on its own.
	verdict, err := fx.svc.Verify(ctx, verify.Request{Event: head, WalkChain: true})
	require.NoError(t, err)
	assert.True(t, verdict.Verified)
}

func TestVerifyDetectsTampering(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.IngestLogs(ctx, "user-1", fx.orgID, uploadSet(t)[:1])
	require.NoError(t, err)

	head, err := fx.st.LatestEvent(ctx, ledger.ChainKey{UserID: "user-1", OrgID: fx.orgID})
	require.NoError(t, err)

	verdict, err := fx.svc.Verify(ctx, verify.Request{Event: head, SimulateTampering: true})
	require.NoError(t, err)
	assert.False(t, verdict.Verified)
	assert.False(t, verdict.EventSignature.Valid)
}

func TestRequestVerificationCrossOrg(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	verifier, err := fx.reg.Create(ctx, registry.CreateRequest{
		OrgID:       "org-verifier",
		DisplayName: "Trusted Verifier",
	})
	require.NoError(t, err)

	_, err = fx.svc.IngestLogs(ctx, "user-1", fx.orgID, uploadSet(t)[:2])
	require.NoError(t, err)

	outcome, err := fx.svc.RequestVerification(ctx, "user-1", fx.orgID, verifier.OrgID, "claim-kyc-passed")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", outcome.Result)
	assert.NotEmpty(t, outcome.RequestEventID)
	assert.NotEmpty(t, outcome.ResponseEventID)

	// Request landed on the subject chain, response on the verifier's own
	// chain, each signed by its org's key.
	reqChain, err := fx.st.EventsByChain(ctx, ledger.ChainKey{UserID: "user-1", OrgID: fx.orgID})
	require.NoError(t, err)
	reqEvent := reqChain[len(reqChain)-1]
	assert.Equal(t, ledger.EventVerificationRequested, reqEvent.EventType)
	assert.Equal(t, verifier.OrgID, reqEvent.RecipientOrgID)

	respChain, err := fx.st.EventsByChain(ctx, ledger.ChainKey{UserID: "user-1", OrgID: verifier.OrgID})
	require.NoError(t, err)
	require.Len(t, respChain, 1)
	assert.Equal(t, ledger.EventVerificationResponded, respChain[0].EventType)
	assert.Equal(t, "CONFIRMED", respChain[0].VerificationResult)
	assert.Equal(t, uint64(1), respChain[0].BlockIndex)
	assert.NotEqual(t, reqEvent.SigningKeyID, respChain[0].SigningKeyID)
}

func TestRequestVerificationUnknownVerifier(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.IngestLogs(ctx, "user-1", fx.orgID, uploadSet(t)[:1])
	require.NoError(t, err)

	_, err = fx.svc.RequestVerification(ctx, "user-1", fx.orgID, "org-ghost", "claim-x")
	require.Error(t, err)

	// The request event was already appended before resolution failed; the
	// ledger keeps it.
	chain, err := fx.st.EventsByChain(ctx, ledger.ChainKey{UserID: "user-1", OrgID: fx.orgID})
	require.NoError(t, err)
	assert.Equal(t, ledger.EventVerificationRequested, chain[len(chain)-1].EventType)
}

func TestRequestVerificationNoHistory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	verifier, err := fx.reg.Create(ctx, registry.CreateRequest{
		OrgID:       "org-verifier",
		DisplayName: "Trusted Verifier",
	})
	require.NoError(t, err)

	// The request event itself becomes the subject chain's first entry, so
	// the verifier sees a one-event chain and confirms it.
	outcome, err := fx.svc.RequestVerification(ctx, "user-lonely", fx.orgID, verifier.OrgID, "claim-y")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", outcome.Result)
}

type denyAllVerifier struct{}

func (denyAllVerifier) VerifyClaim(ctx context.Context, claimID string, events []ledger.Event) (string, error) {
	return "REJECTED: manual review required", nil
}

func TestRequestVerificationCustomVerifier(t *testing.T) {
	reg := registry.NewInMemory()
	org, err := reg.Create(context.Background(), registry.CreateRequest{OrgID: "org-a", DisplayName: "A"})
	require.NoError(t, err)

	st := store.NewMemoryStore()
	svc, err := orbit.New(st, reg, orbit.Options{Verifier: denyAllVerifier{}})
	require.NoError(t, err)

	outcome, err := svc.RequestVerification(context.Background(), "user-1", org.OrgID, org.OrgID, "claim-z")
	require.NoError(t, err)
	assert.Contains(t, outcome.Result, "REJECTED")
}
