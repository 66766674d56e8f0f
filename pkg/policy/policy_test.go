package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/orderpilot/orderpilot/pkg/engine"
	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level: "error", Format: "console", Output: "stderr",
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	e, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	return e
}

func simpleOrder(items ...engine.OrderLineItem) *engine.OrderData {
	return &engine.OrderData{
		CustomerName: "ACME SRL",
		Items:        items,
	}
}

func TestEvaluateCleanOrderIsAllowed(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), simpleOrder(
		engine.OrderLineItem{ArticleCode: "10839.314.016", RequestedQuantity: 5},
	))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("clean order denied: %+v", result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Errorf("unexpected violations: %+v", result.Violations)
	}
}

func TestEvaluateDeniesOrderDiscountOverLimit(t *testing.T) {
	e := newTestEngine(t)

	order := simpleOrder(engine.OrderLineItem{ArticleCode: "10839.314.016", RequestedQuantity: 5})
	order.DiscountPercent = 60

	result, err := e.Evaluate(context.Background(), order)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("60% order discount must be denied")
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "max-discount" && v.Severity == string(SeverityError) {
			found = true
		}
	}
	if !found {
		t.Errorf("max-discount violation missing: %+v", result.Violations)
	}
}

func TestEvaluateDeniesItemDiscountOverLimit(t *testing.T) {
	e := newTestEngine(t)

	discount := 75.0
	result, err := e.Evaluate(context.Background(), simpleOrder(
		engine.OrderLineItem{ArticleCode: "10839.314.016", RequestedQuantity: 5, DiscountPercent: &discount},
	))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("75% item discount must be denied")
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "max-discount" && v.Item == "10839.314.016" {
			found = true
		}
	}
	if !found {
		t.Errorf("violation must name the offending item: %+v", result.Violations)
	}
}

func TestEvaluateDeniesInsaneQuantity(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), simpleOrder(
		engine.OrderLineItem{ArticleCode: "10839.314.016", RequestedQuantity: 50000},
	))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("50000 units must be denied")
	}
}

func TestEvaluateDeniesOversizedOrder(t *testing.T) {
	e := newTestEngine(t)

	items := make([]engine.OrderLineItem, 201)
	for i := range items {
		items[i] = engine.OrderLineItem{ArticleCode: "10839.314.016", RequestedQuantity: 1}
	}

	result, err := e.Evaluate(context.Background(), simpleOrder(items...))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("201-item order must be denied")
	}
}

func TestEvaluateDuplicateItemsWarnsWithoutDenying(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), simpleOrder(
		engine.OrderLineItem{ArticleCode: "10839.314.016", RequestedQuantity: 5},
		engine.OrderLineItem{ArticleCode: "10839.314.016", RequestedQuantity: 10},
	))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Error("a warning-severity violation must not deny the order")
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "duplicate-items" && v.Severity == string(SeverityWarning) {
			found = true
		}
	}
	if !found {
		t.Errorf("duplicate warning missing: %+v", result.Violations)
	}
}

func TestLoadDirAddsPolicies(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()

	custom := `package custom.blocklist

import rego.v1

deny contains violation if {
	some item in input.order.items
	item.code == "66666.666.666"
	violation := {
		"message": sprintf("article %s is blocked", [item.code]),
		"severity": "error",
		"item": item.code,
	}
}
`
	if err := os.WriteFile(filepath.Join(dir, "blocklist.rego"), []byte(custom), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := e.LoadDir(context.Background(), dir); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	result, err := e.Evaluate(context.Background(), simpleOrder(
		engine.OrderLineItem{ArticleCode: "66666.666.666", RequestedQuantity: 1},
	))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("blocklisted article must be denied")
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "blocklist" {
			found = true
		}
	}
	if !found {
		t.Errorf("blocklist violation missing: %+v", result.Violations)
	}
}

func TestLoadDirRejectsBrokenPolicy(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("not rego at all {"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := e.LoadDir(context.Background(), dir); err == nil {
		t.Fatal("expected broken policy to be rejected")
	}
}

func TestExtractPackageName(t *testing.T) {
	if got := extractPackageName("package foo.bar\n\ndeny contains x if { true }"); got != "foo.bar" {
		t.Errorf("extractPackageName = %q", got)
	}
	if got := extractPackageName("deny contains x if { true }"); got != "orderpilot.policies" {
		t.Errorf("fallback package = %q", got)
	}
}
