package commands

import (
	"context"
	"fmt"

	"github.com/orderpilot/orderpilot/pkg/catalog"
	"github.com/orderpilot/orderpilot/pkg/config"
	"github.com/orderpilot/orderpilot/pkg/creds"
	"github.com/orderpilot/orderpilot/pkg/engine"
	"github.com/orderpilot/orderpilot/pkg/policy"
	"github.com/orderpilot/orderpilot/pkg/remote"
	"github.com/orderpilot/orderpilot/pkg/remote/driver"
	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

// app bundles the wired application components shared by subcommands.
type app struct {
	cfg     *config.Config
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	store   *catalog.Store
	pool    *remote.Pool
	builder *engine.Builder
	policy  *policy.Engine
}

// newApp loads configuration and wires every component. Callers must call
// close when done.
func newApp(ctx context.Context, version string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	metrics, err := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	if err := metrics.StartMetricsServer(logger); err != nil {
		return nil, err
	}
	tracer, err := telemetry.NewTracer(cfg.Telemetry.Tracing, "orderpilot", version)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	store, err := catalog.NewStore(catalog.Config{Path: cfg.Catalog.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	cache := creds.NewFileCache(cfg.Credentials.Path, cfg.Credentials.MaxAge)

	factory := func(ctx context.Context) (remote.Conn, error) {
		return driver.Start(ctx, driver.Config{
			Path:           cfg.Remote.DriverPath,
			Args:           append([]string{cfg.Remote.OrdersURL}, cfg.Remote.DriverArgs...),
			CommandTimeout: cfg.Builder.StepTimeout,
		}, logger)
	}
	pool := remote.NewPool(factory, logger, remote.PoolConfig{
		MaxSize:    cfg.Remote.PoolSize,
		MaxIdleAge: cfg.Remote.SessionMaxIdle,
	})

	policyEngine, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	if cfg.Policy.Dir != "" {
		if err := policyEngine.LoadDir(ctx, cfg.Policy.Dir); err != nil {
			return nil, err
		}
	}

	builder := engine.NewBuilder(pool, store, cache, logger, metrics, tracer, engine.BuilderConfig{
		OrdersURL:        cfg.Remote.OrdersURL,
		StepTimeout:      cfg.Builder.StepTimeout,
		StablePolls:      cfg.Builder.StablePolls,
		MaxSearchPages:   cfg.Builder.MaxSearchPages,
		QuantityAttempts: cfg.Builder.QuantityAttempts,
		DiscountAttempts: cfg.Builder.DiscountAttempts,
		ReportDir:        cfg.Reports.Dir,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		store:   store,
		pool:    pool,
		builder: builder,
		policy:  policyEngine,
	}, nil
}

func (a *app) close(ctx context.Context) {
	a.pool.Close()
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close catalog store")
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("failed to shut down tracer")
	}
}

// checkPolicies evaluates the order against acceptance policies, applying
// the configured mode.
func (a *app) checkPolicies(ctx context.Context, order *engine.OrderData) error {
	result, err := a.policy.Evaluate(ctx, order)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	for _, v := range result.Violations {
		if v.Severity == string(policy.SeverityError) {
			a.logger.WithField("policy", v.Policy).Error(v.Message)
		} else {
			a.logger.WithField("policy", v.Policy).Warn(v.Message)
		}
	}
	if !result.Allowed && a.cfg.Policy.Mode != "advisory" {
		return fmt.Errorf("order rejected by policy: %d violation(s)", len(result.Violations))
	}
	return nil
}
