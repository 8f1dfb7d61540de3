package lineage

import (
	"fmt"
	"sort"
	"time"
)

// stage describes one slot in the fixed five-stage causal chain.
type stage struct {
	role     Role
	nodeID   string
	label    string
	nodeType NodeType
}

// stages is the fixed causal order. Only stages with at least one matching
// record are instantiated.
var stages = []stage{
	{RoleUser, "user", "User", NodeUser},
	{RoleKYC, "kyc", "KYC Verification", NodeProcess},
	{RoleProfile, "profile", "Profile Snapshot", NodeData},
	{RoleModel, "model", "Model", NodeModel},
	{RoleDecision, "decision", "Decision", NodeDecision},
}

// Reconstructor builds lineage graphs from classified logs.
type Reconstructor struct {
	classifier Classifier
}

// NewReconstructor creates a reconstructor using the given classifier,
// defaulting to the keyword classifier.
func NewReconstructor(c Classifier) *Reconstructor {
	if c == nil {
		c = NewKeywordClassifier()
	}
	return &Reconstructor{classifier: c}
}

// Reconstruct builds the causal lineage for an immutable log set.
// The result is deterministic: records are ordered by filename before any
// stage assignment, so reconstructing twice from the same logs yields an
// identical graph.
func (r *Reconstructor) Reconstruct(logs []LogRecord) *Graph {
	if len(logs) == 0 {
		return placeholderGraph()
	}

	ordered := make([]*LogRecord, 0, len(logs))
	for i := range logs {
		ordered = append(ordered, &logs[i])
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Filename < ordered[j].Filename })

	// First record per role wins; later records are corroborating evidence.
	byRole := make(map[Role]*LogRecord)
	for _, rec := range ordered {
		role := r.classifier.Classify(rec)
		if role == RoleGeneric {
			continue
		}
		if _, seen := byRole[role]; !seen {
			byRole[role] = rec
		}
	}

	graph := &Graph{}
	var prev *stage
	for i := range stages {
		st := &stages[i]
		rec, present := byRole[st.role]
		if !present {
			continue
		}

		node := Node{
			ID:    st.nodeID,
			Label: st.label,
			Type:  st.nodeType,
		}
		if ts := recordTimestamp(rec); ts != nil {
			node.Timestamp = ts
		}
		if st.role == RoleModel {
			node.Version = modelVersion(rec)
		}
		graph.Nodes = append(graph.Nodes, node)

		if prev != nil {
			graph.Edges = append(graph.Edges, Edge{
				From:     prev.nodeID,
				To:       st.nodeID,
				Type:     edgeType(prev.role, st.role),
				Evidence: rec.Filename,
			})
		}
		prev = st
	}

	if len(graph.Nodes) == 0 {
		// Everything classified generic: no evidenced stages.
		return placeholderGraph()
	}

	return graph
}

// placeholderGraph is returned when no usable logs exist, so downstream
// scoring has something to operate on for demonstrations. It is explicitly
// flagged and carries no evidence.
func placeholderGraph() *Graph {
	g := &Graph{
		Placeholder: true,
		Note:        "no logs found",
	}
	for i := range stages {
		st := &stages[i]
		g.Nodes = append(g.Nodes, Node{
			ID:    st.nodeID,
			Label: st.label + " (unevidenced)",
			Type:  st.nodeType,
		})
		if i > 0 {
			g.Edges = append(g.Edges, Edge{
				From: stages[i-1].nodeID,
				To:   st.nodeID,
				Type: edgeType(stages[i-1].role, st.role),
			})
		}
	}
	return g
}

func edgeType(from, to Role) string {
	return fmt.Sprintf("%s_to_%s", from, to)
}

// recordTimestamp prefers an explicit timestamp field in the first entry,
// falling back to the upload time.
func recordTimestamp(rec *LogRecord) *time.Time {
	for _, entry := range rec.Entries {
		for _, field := range []string{"timestamp", "eventTime", "time", "ts"} {
			raw, ok := entry[field].(string)
			if !ok {
				continue
			}
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				utc := ts.UTC()
				return &utc
			}
		}
		break
	}
	if rec.UploadedAt.IsZero() {
		return nil
	}
	utc := rec.UploadedAt.UTC()
	return &utc
}

// modelVersion extracts the model version marker from the record's entries.
func modelVersion(rec *LogRecord) string {
	for _, entry := range rec.Entries {
		if v, ok := entry["modelVersion"].(string); ok && v != "" {
			return v
		}
		if v, ok := entry["model_version"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
