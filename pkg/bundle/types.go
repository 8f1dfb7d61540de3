// Package bundle assembles documentation bundles: it scores a lineage graph
// against its supporting logs, flags policy deviations, and seals the result
// as a ledger event so the bundle can later be verified independently.
package bundle

import (
	"time"

	"github.com/orbitlabs/orbit/pkg/lineage"
)

// Deviation severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// PolicyDeviation records one violated documentation rule.
type PolicyDeviation struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// LogCompleteness summarises the evidence set behind a bundle. The Merkle
// root commits to the exact bytes of every ingested log file.
type LogCompleteness struct {
	TotalLogs    int            `json:"totalLogs"`
	TotalEntries int            `json:"totalEntries"`
	ByType       map[string]int `json:"byType"`
	MerkleRoot   string         `json:"merkleRoot,omitempty"`
}

// Attestation is a free-form statement attached to a bundle at generation
// time, e.g. which classifier produced the lineage.
type Attestation struct {
	Kind      string    `json:"kind"`
	Statement string    `json:"statement"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// CryptographicSeal carries the ledger event material that finalises a
// bundle. Once present the bundle is immutable.
type CryptographicSeal struct {
	Signature    string    `json:"signature"`
	BundleHash   string    `json:"bundleHash"`
	EventHash    string    `json:"eventHash"`
	EventID      string    `json:"eventId"`
	SigningKeyID string    `json:"signingKeyId"`
	Timestamp    time.Time `json:"timestamp"`
}

// DocumentationBundle is the generated compliance artefact. Generation is
// always fresh per request; a changed lineage or log set yields a new bundle
// and a new seal event rather than mutating an existing one.
type DocumentationBundle struct {
	BundleID          string             `json:"bundleId"`
	UserID            string             `json:"userId"`
	OrgID             string             `json:"orgId"`
	GeneratedAt       time.Time          `json:"generatedAt"`
	Lineage           *lineage.Graph     `json:"lineage"`
	ModelVersion      string             `json:"modelVersion,omitempty"`
	Inputs            []string           `json:"inputs"`
	Outputs           []string           `json:"outputs"`
	ConsentBasis      string             `json:"consentBasis,omitempty"`
	OversightChain    []string           `json:"oversightChain"`
	LogCompleteness   LogCompleteness    `json:"logCompleteness"`
	Attestations      []Attestation      `json:"attestations"`
	CompletenessScore int                `json:"completenessScore"`
	PolicyDeviations  []PolicyDeviation  `json:"policyDeviations"`
	Seal              *CryptographicSeal `json:"cryptographicSeal,omitempty"`
}
