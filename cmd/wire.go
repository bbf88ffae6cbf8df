package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
	statusadapter "github.com/symphainy/trafficcop/internal/adapters/render/status"
	tomlrepo "github.com/symphainy/trafficcop/internal/adapters/repo/toml"
	"github.com/symphainy/trafficcop/internal/adapters/store/memory"
	"github.com/symphainy/trafficcop/internal/adapters/store/sqlite"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/platform/config"
	"github.com/symphainy/trafficcop/internal/ports"
)

type app struct {
	user   string
	tenant string

	engine         *application.Engine
	logger         *slog.Logger
	healthRenderer func(statusadapter.Report, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
	closer         io.Closer
}

func (a *app) caller() domain.Caller {
	return domain.Caller{UserID: a.user, Tenant: a.tenant}
}

// open wires the engine from configuration. It is a no-op once wired.
func (a *app) open(ctx context.Context) error {
	if a.engine != nil {
		return nil
	}

	cfg, err := config.Load(viper.New())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	settings, err := settingsFromConfig(cfg)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	clock := ports.SystemClock{}

	rules, err := tomlrepo.NewRuleRepository(cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("wire rule repository: %w", err)
	}

	deps := application.Dependencies{Rules: rules, Clock: clock}
	var closer io.Closer
	switch cfg.Store {
	case config.StoreMemory:
		telemetry := memory.NewTelemetryLog()
		deps.States = memory.NewStateStore(clock)
		deps.Sessions = memory.NewSessionRepository()
		deps.Conflicts = memory.NewConflictRepository()
		deps.Metrics, deps.Alerts, deps.Events = telemetry, telemetry, telemetry
	default:
		store, err := sqlite.Open(ctx, cfg.DBPath, clock)
		if err != nil {
			return fmt.Errorf("wire sqlite store: %w", err)
		}
		telemetry := store.Telemetry()
		deps.States = store.States()
		deps.Sessions = store.Sessions()
		deps.Conflicts = store.Conflicts()
		deps.Metrics, deps.Alerts, deps.Events = telemetry, telemetry, telemetry
		closer = store
	}
	deps.Guard = application.NewTenantGuard(deps.Sessions)

	engine, err := application.NewEngine(deps, settings, application.WithLogger(logger))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return fmt.Errorf("wire engine: %w", err)
	}

	a.engine = engine
	a.logger = logger
	a.healthRenderer = statusadapter.Render
	a.now = time.Now
	a.closer = closer
	return nil
}

func (a *app) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

func settingsFromConfig(cfg config.Config) (application.Settings, error) {
	policy, err := application.ParseTenantPolicy(cfg.TenantPolicy)
	if err != nil {
		return application.Settings{}, err
	}
	push, pushErr := domain.ParseConflictStrategy(cfg.PushConflictStrategy)
	pull, pullErr := domain.ParseConflictStrategy(cfg.PullConflictStrategy)
	if err := errors.Join(pushErr, pullErr); err != nil {
		return application.Settings{}, err
	}

	dims := make([]domain.DimensionID, 0, len(cfg.Dimensions))
	for _, d := range cfg.Dimensions {
		dims = append(dims, domain.DimensionID(d))
	}

	return application.Settings{
		SessionTTL:    cfg.SessionTTL,
		TempTTL:       cfg.TempTTL,
		SweepInterval: cfg.SweepInterval,
		PushStrategy:  push,
		PullStrategy:  pull,
		Retry: application.RetryPolicy{
			MaxAttempts:     cfg.SyncMaxAttempts,
			InitialInterval: cfg.RetryInitialInterval,
		},
		WorkflowParallelism:      cfg.WorkflowParallelism,
		TenantPolicy:             policy,
		Dimensions:               dims,
		ErrorRateThreshold:       cfg.ErrorRateThreshold,
		PendingConflictThreshold: cfg.PendingConflictThreshold,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
