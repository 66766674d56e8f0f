package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orderpilot.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
remote:
  orders_url: https://erp.example/orders
  driver_path: /usr/local/bin/op-driver
builder:
  step_timeout: 45s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Remote.OrdersURL != "https://erp.example/orders" {
		t.Errorf("orders_url lost: %q", cfg.Remote.OrdersURL)
	}
	if cfg.Builder.StepTimeout != 45*time.Second {
		t.Errorf("step_timeout override lost: %v", cfg.Builder.StepTimeout)
	}
	// Untouched fields keep their defaults.
	if cfg.Remote.PoolSize != 4 {
		t.Errorf("pool_size default lost: %d", cfg.Remote.PoolSize)
	}
	if cfg.Builder.MaxSearchPages != 10 {
		t.Errorf("max_search_pages default lost: %d", cfg.Builder.MaxSearchPages)
	}
	if cfg.Policy.Mode != "enforcing" {
		t.Errorf("policy mode default lost: %q", cfg.Policy.Mode)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
catalog:
  path: /tmp/catalog.db
`)
	if _, err := Load(path); err == nil {
		t.Fatal("config without remote settings must be rejected")
	}
}

func TestLoadRejectsBadURL(t *testing.T) {
	path := writeConfig(t, `
remote:
  orders_url: not-a-url
  driver_path: /usr/local/bin/op-driver
`)
	if _, err := Load(path); err == nil {
		t.Fatal("malformed orders_url must be rejected")
	}
}

func TestLoadRejectsBadPolicyMode(t *testing.T) {
	path := writeConfig(t, `
remote:
  orders_url: https://erp.example/orders
  driver_path: /usr/local/bin/op-driver
policy:
  mode: lenient
`)
	if _, err := Load(path); err == nil {
		t.Fatal("unknown policy mode must be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing config file must be reported")
	}
}

func TestDefaultConfigIsInternallyConsistent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote.OrdersURL = "https://erp.example/orders"
	cfg.Remote.DriverPath = "/usr/local/bin/op-driver"
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate once the remote is set: %v", err)
	}
}
