// Package lineage classifies uploaded evidence logs by evidentiary role and
// reconstructs the causal lineage graph behind an automated decision:
// User → KYC → Profile snapshot → Model → Decision.
package lineage

import (
	"time"
)

// LogType is the closed set of recognised log formats.
type LogType string

const (
	LogCloudTrail     LogType = "cloudtrail"
	LogAPI            LogType = "api"
	LogModelInference LogType = "model_inference"
	LogModelTraining  LogType = "model_training"
	LogIDP            LogType = "idp"
	LogGeneric        LogType = "generic"
)

// Valid reports whether t is a known log type.
func (t LogType) Valid() bool {
	switch t {
	case LogCloudTrail, LogAPI, LogModelInference, LogModelTraining, LogIDP, LogGeneric:
		return true
	}
	return false
}

// Entry is one loosely-typed record within an uploaded log file.
type Entry map[string]interface{}

// LogRecord is an ingested log file. Immutable once ingested; entries are
// never edited.
type LogRecord struct {
	LogID      string    `json:"log_id"`
	Filename   string    `json:"filename"`
	Type       LogType   `json:"type"`
	Entries    []Entry   `json:"entries"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Role is the evidentiary role a log plays in the lineage.
type Role string

const (
	RoleUser     Role = "user"
	RoleKYC      Role = "kyc"
	RoleProfile  Role = "profile"
	RoleModel    Role = "model"
	RoleDecision Role = "decision"

	// RoleGeneric marks a log that matched no role. Kept, not an error.
	RoleGeneric Role = "generic"
)

// NodeType classifies lineage graph nodes.
type NodeType string

const (
	NodeUser     NodeType = "user"
	NodeProcess  NodeType = "process"
	NodeData     NodeType = "data"
	NodeModel    NodeType = "model"
	NodeDecision NodeType = "decision"
)

// Node is one causally-ordered processing stage.
type Node struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Type      NodeType   `json:"type"`
	Version   string     `json:"version,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Edge links two stages; Evidence points back at the filename of the log
// record that evidences the target stage.
type Edge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Type     string `json:"type"`
	Evidence string `json:"evidence,omitempty"`
}

// Graph is a directed lineage graph, acyclic by construction: nodes are
// appended in a fixed causal order and edges only link consecutive present
// stages.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Placeholder is set when the graph was produced without any logs.
	// A placeholder lineage must never be mistaken for evidenced lineage;
	// callers reject placeholder bundles for real compliance use.
	Placeholder bool   `json:"placeholder,omitempty"`
	Note        string `json:"note,omitempty"`
}
