// Package config loads OrderPilot's application configuration and parses
// CUE order files into engine inputs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

// Config is the application configuration.
type Config struct {
	// Remote configures the target system and the driver subprocess.
	Remote RemoteConfig `yaml:"remote" validate:"required"`

	// Catalog configures the local article catalog.
	Catalog CatalogConfig `yaml:"catalog"`

	// Credentials configures the authentication state cache.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Reports configures run artifact output.
	Reports ReportsConfig `yaml:"reports"`

	// Builder tunes the order-construction state machine.
	Builder BuilderConfig `yaml:"builder"`

	// Policy configures order acceptance policies.
	Policy PolicyConfig `yaml:"policy"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// RemoteConfig describes the remote surface and its driver.
type RemoteConfig struct {
	// OrdersURL is the order-entry view.
	OrdersURL string `yaml:"orders_url" validate:"required,url"`

	// DriverPath is the driver subprocess binary.
	DriverPath string `yaml:"driver_path" validate:"required"`

	// DriverArgs are extra arguments passed to the driver.
	DriverArgs []string `yaml:"driver_args"`

	// PoolSize bounds concurrent remote sessions.
	PoolSize int `yaml:"pool_size" validate:"omitempty,min=1,max=32"`

	// SessionMaxIdle evicts idle sessions older than this.
	SessionMaxIdle time.Duration `yaml:"session_max_idle"`
}

// CatalogConfig locates the article catalog database.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// CredentialsConfig locates the authentication state cache.
type CredentialsConfig struct {
	Path   string        `yaml:"path"`
	MaxAge time.Duration `yaml:"max_age"`
}

// ReportsConfig locates run artifact output.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// BuilderConfig tunes the state machine.
type BuilderConfig struct {
	StepTimeout      time.Duration `yaml:"step_timeout"`
	StablePolls      int           `yaml:"stable_polls" validate:"omitempty,min=1"`
	MaxSearchPages   int           `yaml:"max_search_pages" validate:"omitempty,min=1"`
	QuantityAttempts int           `yaml:"quantity_attempts" validate:"omitempty,min=1"`
	DiscountAttempts int           `yaml:"discount_attempts" validate:"omitempty,min=1"`
}

// PolicyConfig configures order acceptance policies.
type PolicyConfig struct {
	// Mode is "enforcing" (violations abort) or "advisory" (violations
	// warn). Empty means enforcing.
	Mode string `yaml:"mode" validate:"omitempty,oneof=enforcing advisory"`

	// Dir holds additional rego policy files loaded next to the builtin
	// policies.
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			PoolSize:       4,
			SessionMaxIdle: 15 * time.Minute,
		},
		Catalog: CatalogConfig{
			Path: "orderpilot.db",
		},
		Credentials: CredentialsConfig{
			Path: ".orderpilot/session.json",
		},
		Reports: ReportsConfig{
			Dir: "reports",
		},
		Builder: BuilderConfig{
			StepTimeout:      30 * time.Second,
			StablePolls:      3,
			MaxSearchPages:   10,
			QuantityAttempts: 2,
			DiscountAttempts: 3,
		},
		Policy: PolicyConfig{
			Mode: "enforcing",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads, merges over defaults, and validates a YAML config file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration's structural constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
