package bundle

import (
	"github.com/Masterminds/semver/v3"

	"github.com/orbitlabs/orbit/pkg/lineage"
)

// Each completeness check is worth the same fixed share of the score.
const checkWeight = 20

// Score computes the 0-100 completeness score: five independent boolean
// checks, 20 points each.
func Score(graph *lineage.Graph, logs []lineage.LogRecord) int {
	score := 0
	if graph != nil && len(graph.Nodes) > 0 {
		score += checkWeight
	}
	if graph != nil && len(graph.Edges) > 0 {
		score += checkWeight
	}
	if hasLogType(logs, lineage.LogAPI, lineage.LogCloudTrail) {
		score += checkWeight
	}
	if hasLogType(logs, lineage.LogModelInference, lineage.LogModelTraining) {
		score += checkWeight
	}
	if hasNodeType(graph, lineage.NodeDecision) {
		score += checkWeight
	}
	return score
}

// Deviations evaluates the built-in policy rules. Rules are independent and
// cumulative; none short-circuits another.
func Deviations(graph *lineage.Graph, logs []lineage.LogRecord) []PolicyDeviation {
	var out []PolicyDeviation

	if !hasConsentEvidence(logs) {
		out = append(out, PolicyDeviation{
			Type:        "Missing Consent Basis",
			Description: "no log entry evidences a lawful basis for processing",
			Severity:    SeverityHigh,
		})
	}
	if graph == nil || len(graph.Nodes) < 3 {
		out = append(out, PolicyDeviation{
			Type:        "Incomplete Lineage",
			Description: "lineage graph has fewer than 3 nodes",
			Severity:    SeverityMedium,
		})
	}
	if !hasVersionedModelNode(graph) {
		out = append(out, PolicyDeviation{
			Type:        "Unversioned Model",
			Description: "no model node carries a version identifier",
			Severity:    SeverityMedium,
		})
	}
	if hasNodeMissingTimestamp(graph) {
		out = append(out, PolicyDeviation{
			Type:        "Missing Timestamps",
			Description: "one or more lineage nodes lack a timestamp",
			Severity:    SeverityLow,
		})
	}
	return out
}

func hasLogType(logs []lineage.LogRecord, types ...lineage.LogType) bool {
	for _, log := range logs {
		for _, t := range types {
			if log.Type == t {
				return true
			}
		}
	}
	return false
}

func hasNodeType(graph *lineage.Graph, t lineage.NodeType) bool {
	if graph == nil {
		return false
	}
	for _, n := range graph.Nodes {
		if n.Type == t {
			return true
		}
	}
	return false
}

func hasVersionedModelNode(graph *lineage.Graph) bool {
	if graph == nil {
		return false
	}
	for _, n := range graph.Nodes {
		if n.Type == lineage.NodeModel && n.Version != "" {
			return true
		}
	}
	return false
}

func hasNodeMissingTimestamp(graph *lineage.Graph) bool {
	if graph == nil {
		return false
	}
	for _, n := range graph.Nodes {
		if n.Timestamp == nil {
			return true
		}
	}
	return false
}

// Fields whose presence in any log entry counts as consent evidence.
var consentFields = []string{"consentBasis", "consent_basis", "lawfulBasis", "lawful_basis", "consent"}

func hasConsentEvidence(logs []lineage.LogRecord) bool {
	for _, log := range logs {
		for _, entry := range log.Entries {
			for _, f := range consentFields {
				if v, ok := entry[f]; ok && v != nil && v != "" {
					return true
				}
			}
		}
	}
	return false
}

// consentBasis extracts the first consent-basis value found in the logs.
func consentBasis(logs []lineage.LogRecord) string {
	for _, log := range logs {
		for _, entry := range log.Entries {
			for _, f := range consentFields {
				if v, ok := entry[f].(string); ok && v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// normalizeModelVersion canonicalises a model node version to strict semver
// form when it parses; unparseable versions are kept verbatim so the bundle
// still reflects what the logs said.
func normalizeModelVersion(raw string) string {
	if raw == "" {
		return ""
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return raw
	}
	return v.String()
}
