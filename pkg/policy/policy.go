// Package policy evaluates order acceptance policies before any remote
// interaction. Policies are Rego modules; builtin policies ship with the
// binary and deployments may load additional ones from a directory.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/orderpilot/orderpilot/pkg/engine"
	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

// Severity grades a violation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Policy is one named Rego policy.
type Policy struct {
	Name        string
	Description string
	Severity    Severity
	Enabled     bool
	Rego        string
}

// Violation is one policy violation against an order.
type Violation struct {
	Policy   string `json:"policy"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Item     string `json:"item,omitempty"`
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	// Allowed is false when any error-severity violation exists.
	Allowed     bool        `json:"allowed"`
	Violations  []Violation `json:"violations,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// compiledPolicy is a policy with its prepared query.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// Engine evaluates order policies.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   *telemetry.Logger
}

// NewEngine creates a policy engine with the builtin policies loaded.
func NewEngine(logger *telemetry.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.NewComponentLogger("policy"),
	}
	for _, p := range BuiltinPolicies() {
		p := p
		if err := e.compileAndStore(context.Background(), &p); err != nil {
			return nil, fmt.Errorf("failed to compile builtin policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// LoadDir loads additional .rego policies from dir. Each file becomes one
// error-severity policy named after the file.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read policy directory %s: %w", dir, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read policy %s: %w", entry.Name(), err)
		}
		p := Policy{
			Name:     strings.TrimSuffix(entry.Name(), ".rego"),
			Severity: SeverityError,
			Enabled:  true,
			Rego:     string(content),
		}
		if err := e.compileAndStore(ctx, &p); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		loaded++
	}

	e.logger.WithField("count", loaded).Info("policies loaded")
	return nil
}

// Evaluate evaluates every enabled policy against the order.
func (e *Engine) Evaluate(ctx context.Context, order *engine.OrderData) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedAt: time.Now()}

	input := map[string]interface{}{
		"order": orderInput(order),
	}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		violations, err := e.evaluateOne(ctx, cp, input)
		if err != nil {
			e.logger.WithError(err).
				WithField("policy", cp.policy.Name).
				Error("policy evaluation failed")
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	for i := range result.Violations {
		if result.Violations[i].Severity == string(SeverityError) {
			result.Allowed = false
			break
		}
	}
	return result, nil
}

func (e *Engine) compileAndStore(ctx context.Context, p *Policy) error {
	query := fmt.Sprintf("data.%s.deny", extractPackageName(p.Rego))
	prepared, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}
	e.policies[p.Name] = &compiledPolicy{policy: p, query: prepared}
	return nil
}

func (e *Engine) evaluateOne(ctx context.Context, cp *compiledPolicy, input interface{}) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, toViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

func toViolation(p *Policy, raw interface{}) Violation {
	v := Violation{
		Policy:   p.Name,
		Severity: string(p.Severity),
		Message:  fmt.Sprintf("%v", raw),
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return v
	}
	if msg, ok := m["message"].(string); ok {
		v.Message = msg
	}
	if sev, ok := m["severity"].(string); ok {
		v.Severity = sev
	}
	if item, ok := m["item"].(string); ok {
		v.Item = item
	}
	return v
}

// orderInput flattens the order into plain JSON types for Rego.
func orderInput(order *engine.OrderData) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(order.Items))
	for _, item := range order.Items {
		entry := map[string]interface{}{
			"code":     item.ArticleCode,
			"quantity": item.RequestedQuantity,
		}
		if item.DiscountPercent != nil {
			entry["discount"] = *item.DiscountPercent
		}
		items = append(items, entry)
	}
	return map[string]interface{}{
		"customer": order.CustomerName,
		"discount": order.DiscountPercent,
		"items":    items,
	}
}

func extractPackageName(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "orderpilot.policies"
}
