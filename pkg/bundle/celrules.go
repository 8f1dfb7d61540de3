package bundle

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/orbitlabs/orbit/pkg/lineage"
)

// CustomRule is an operator-supplied deviation rule expressed in CEL. The
// expression sees `lineage` (nodes/edges counts and type tallies) and `logs`
// (count and per-type tallies) and must evaluate to a bool: true means the
// rule fires and its deviation is appended. The built-in rules are always
// evaluated natively; custom rules only add to them.
type CustomRule struct {
	Name        string `yaml:"name" json:"name"`
	Expression  string `yaml:"expression" json:"expression"`
	Description string `yaml:"description" json:"description"`
	Severity    string `yaml:"severity" json:"severity"`
}

// RuleEngine compiles and evaluates custom deviation rules. Programs are
// cached per expression.
type RuleEngine struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewRuleEngine builds a CEL environment exposing lineage and log summaries.
func NewRuleEngine() (*RuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("lineage", cel.DynType),
		cel.Variable("logs", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("bundle: cel environment: %w", err)
	}
	return &RuleEngine{env: env, cache: make(map[string]cel.Program)}, nil
}

// Evaluate runs every rule against the graph and logs. A rule that fails to
// compile or evaluate is reported as an error; deviations found so far are
// still returned.
func (e *RuleEngine) Evaluate(rules []CustomRule, graph *lineage.Graph, logs []lineage.LogRecord) ([]PolicyDeviation, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	input := ruleInput(graph, logs)

	var out []PolicyDeviation
	for _, rule := range rules {
		fired, err := e.eval(rule.Expression, input)
		if err != nil {
			return out, fmt.Errorf("bundle: rule %q: %w", rule.Name, err)
		}
		if fired {
			sev := rule.Severity
			if sev == "" {
				sev = SeverityMedium
			}
			out = append(out, PolicyDeviation{
				Type:        rule.Name,
				Description: rule.Description,
				Severity:    sev,
			})
		}
	}
	return out, nil
}

func (e *RuleEngine) eval(expr string, input map[string]any) (bool, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		if prg, hit = e.cache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := e.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			e.cache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	fired, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return fired, nil
}

func ruleInput(graph *lineage.Graph, logs []lineage.LogRecord) map[string]any {
	nodeTypes := map[string]int{}
	nodeCount, edgeCount := 0, 0
	placeholder := false
	if graph != nil {
		nodeCount = len(graph.Nodes)
		edgeCount = len(graph.Edges)
		placeholder = graph.Placeholder
		for _, n := range graph.Nodes {
			nodeTypes[string(n.Type)]++
		}
	}

	logTypes := map[string]int{}
	entries := 0
	for _, l := range logs {
		logTypes[string(l.Type)]++
		entries += len(l.Entries)
	}

	return map[string]any{
		"lineage": map[string]any{
			"nodeCount":   nodeCount,
			"edgeCount":   edgeCount,
			"placeholder": placeholder,
			"nodeTypes":   nodeTypes,
		},
		"logs": map[string]any{
			"count":      len(logs),
			"entryCount": entries,
			"byType":     logTypes,
		},
	}
}
