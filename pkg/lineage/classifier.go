package lineage

import (
	"strings"
)

// Classifier tags a log record with its evidentiary role. It is a pluggable
// strategy: the default implementation is a keyword/shape matcher, and
// stricter schema-based classifiers can replace it without touching the
// reconstruction or bundle logic.
type Classifier interface {
	Classify(rec *LogRecord) Role
}

// KeywordClassifier is the default best-effort pattern matcher. It scans
// filenames and entry field names for role-indicating markers. Roles are
// checked in reverse causal order (decision first) so that a log carrying
// both a model version and a decision outcome is treated as decision
// evidence; precedence is fixed to keep classification deterministic.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the default classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var (
	decisionFields = []string{"decision", "outcome", "verdict", "approved", "denied", "riskDecision"}
	modelFields    = []string{"modelVersion", "modelId", "inferenceId", "prediction", "confidence"}
	profileFields  = []string{"profileSnapshot", "profileId", "riskScore", "creditScore"}
	kycFields      = []string{"kycStatus", "documentType", "identityCheck", "amlResult"}
	userFields     = []string{"login", "session", "authMethod", "email"}
)

// Classify returns the record's role, or RoleGeneric when nothing matches.
func (c *KeywordClassifier) Classify(rec *LogRecord) Role {
	name := strings.ToLower(rec.Filename)

	switch {
	case strings.Contains(name, "decision") || c.anyField(rec, decisionFields):
		return RoleDecision
	case rec.Type == LogModelInference || rec.Type == LogModelTraining ||
		strings.Contains(name, "model") || strings.Contains(name, "inference") ||
		c.anyField(rec, modelFields):
		return RoleModel
	case strings.Contains(name, "profile") || strings.Contains(name, "snapshot") ||
		c.anyField(rec, profileFields):
		return RoleProfile
	case strings.Contains(name, "kyc") || strings.Contains(name, "identity") ||
		c.anyField(rec, kycFields):
		return RoleKYC
	case rec.Type == LogIDP || strings.Contains(name, "auth") ||
		strings.Contains(name, "login") || c.anyField(rec, userFields):
		return RoleUser
	default:
		return RoleGeneric
	}
}

func (c *KeywordClassifier) anyField(rec *LogRecord, fields []string) bool {
	for _, entry := range rec.Entries {
		for _, f := range fields {
			if _, ok := entry[f]; ok {
				return true
			}
		}
	}
	return false
}
