package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// Gate evaluates policy rules against workflow steps.
type Gate struct {
	mu    sync.RWMutex
	rules map[string]*compiledRule
	log   *telemetry.Logger
}

type compiledRule struct {
	rule Rule
	pkg  string
}

// NewGate creates a gate loaded with the built-in rules.
func NewGate(log *telemetry.Logger) (*Gate, error) {
	g := &Gate{
		rules: make(map[string]*compiledRule),
		log:   log.NewComponentLogger("policy"),
	}
	for _, rule := range BuiltinRules() {
		if err := g.Load(rule); err != nil {
			return nil, fmt.Errorf("loading built-in rule %s: %w", rule.Name, err)
		}
	}
	return g, nil
}

// Load compiles and registers a rule, replacing any rule of the same name.
func (g *Gate) Load(rule Rule) error {
	module, err := ast.ParseModule(rule.Name+".rego", rule.Rego)
	if err != nil {
		return fmt.Errorf("parsing rule %s: %w", rule.Name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules[rule.Name] = &compiledRule{
		rule: rule,
		pkg:  module.Package.Path.String(),
	}
	return nil
}

// Names returns the loaded rule names.
func (g *Gate) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.rules))
	for name := range g.rules {
		names = append(names, name)
	}
	return names
}

// EvaluateStep runs every enabled rule against one step and aggregates the
// violations. A rule that fails to evaluate logs a warning and is skipped
// rather than blocking the run.
func (g *Gate) EvaluateStep(ctx context.Context, input StepInput) (*Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := &Result{Allowed: true}
	for _, cr := range g.rules {
		if !cr.rule.Enabled {
			continue
		}

		violations, err := g.evaluateRule(ctx, cr, input)
		if err != nil {
			g.log.WithError(err).Warnf("rule %s failed to evaluate, skipping", cr.rule.Name)
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == SeverityDeny {
			result.Allowed = false
			break
		}
	}
	return result, nil
}

func (g *Gate) evaluateRule(ctx context.Context, cr *compiledRule, input StepInput) ([]Violation, error) {
	// Package path renders as "data.fleetwright.policies.x"; querying its
	// deny set yields the violation objects.
	query := cr.pkg + ".deny"

	r := rego.New(
		rego.Module(cr.rule.Name, cr.rule.Rego),
		rego.Query(query),
		rego.Input(input),
	)
	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluating rule: %w", err)
	}

	var violations []Violation
	for _, res := range results {
		for _, expr := range res.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, g.toViolation(cr.rule.Name, d))
			}
		}
	}
	return violations, nil
}

func (g *Gate) toViolation(ruleName string, raw any) Violation {
	v := Violation{Rule: ruleName, Severity: SeverityDeny, Message: "policy violation"}
	obj, ok := raw.(map[string]any)
	if !ok {
		return v
	}
	if msg, ok := obj["message"].(string); ok {
		v.Message = msg
	}
	if sev, ok := obj["severity"].(string); ok && Severity(sev) == SeverityWarning {
		v.Severity = SeverityWarning
	}
	return v
}
