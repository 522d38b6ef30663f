// Package app wires the configuration, logging, tracing, model registry,
// run history and optimization service shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/longmans/prompt-agent/internal/audit"
	"github.com/longmans/prompt-agent/internal/config"
	"github.com/longmans/prompt-agent/internal/db"
	"github.com/longmans/prompt-agent/internal/llm/adapter"
	"github.com/longmans/prompt-agent/internal/llm/budget"
	"github.com/longmans/prompt-agent/internal/optimizer"
	"github.com/longmans/prompt-agent/internal/tracing"
)

// Options control how the components are built.
type Options struct {
	// ConfigPath is the YAML file; empty uses config.DefaultConfigPath.
	ConfigPath string

	// Factory overrides how model handles are constructed. Nil builds them
	// from the provider configuration.
	Factory adapter.Factory

	// Logger overrides the application logger built from the logging section.
	Logger *zap.Logger

	// NoAudit disables the audit file, e.g. for one-shot CLI runs.
	NoAudit bool

	// NoHistory disables the run history store.
	NoHistory bool
}

// App holds the long-lived components of a process.
type App struct {
	Config   config.ConfigManager
	Logger   *zap.Logger
	Audit    audit.Logger
	Registry *adapter.Registry
	Budget   budget.Tracker
	Store    db.Store // nil when history is disabled
	Service  *optimizer.Service

	shutdownTracing func(context.Context) error
}

// New loads and validates the configuration and builds every component.
func New(ctx context.Context, opts Options) (*App, error) {
	mgr, err := config.NewConfigManager(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, mgr, opts)
}

// NewWithConfig builds every component from an already loaded manager.
func NewWithConfig(ctx context.Context, mgr config.ConfigManager, opts Options) (*App, error) {
	cfg := mgr.Get(ctx)
	a := &App{Config: mgr}

	logCfg := auditConfig(cfg)
	a.Logger = opts.Logger
	if a.Logger == nil {
		logger, err := audit.NewAppLogger(logCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		a.Logger = logger
	}

	a.Audit = audit.NewNopLogger()
	if !opts.NoAudit && cfg.Logging.AuditLogPath != "" {
		if err := ensureDir(cfg.Logging.AuditLogPath); err != nil {
			return nil, err
		}
		auditLogger, err := audit.NewLogger(logCfg, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit logger: %w", err)
		}
		a.Audit = auditLogger
	}

	traceCfg := tracing.Config{ServiceName: cfg.Tracing.ServiceName, SamplingRate: cfg.Tracing.SamplingRate}
	if cfg.Tracing.Enabled {
		traceCfg.Endpoint = cfg.Tracing.Endpoint
	}
	shutdown, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		a.closeLoggers()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	factory := opts.Factory
	if factory == nil {
		factory = adapter.NewConfigFactory(config.ProviderLookup(mgr))
	}
	a.Budget = budget.NewTracker(&budget.Config{
		DailyLimitUSD: cfg.LLM.DailyBudgetUSD,
		WarnThreshold: cfg.LLM.BudgetWarnThreshold,
	})
	a.Registry = adapter.NewRegistry(adapter.WithBudget(factory, a.Budget))

	if !opts.NoHistory && cfg.Storage.Enabled {
		if err := ensureDir(cfg.Storage.SQLitePath); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		store, err := db.NewSQLiteStore(cfg.Storage.SQLitePath, db.WithHistoryLimit(cfg.Storage.HistoryLimit))
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		a.Store = store
	}

	svcOpts := []optimizer.ServiceOption{
		optimizer.WithAuditLogger(a.Audit),
		optimizer.WithServiceLogger(a.Logger),
		optimizer.WithUsageTracker(a.Budget),
	}
	if a.Store != nil {
		svcOpts = append(svcOpts, optimizer.WithRunStore(a.Store))
	}
	a.Service = optimizer.NewService(a.Registry, config.LiveCatalog{Manager: mgr}, svcOpts...)

	_ = a.Audit.Log(ctx, audit.ConfigLoaded(opts.ConfigPath, cfg.LLM.DefaultProvider, cfg.ConfiguredProviders()))
	return a, nil
}

// Close releases the store, flushes traces and closes the loggers.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	a.closeLoggers()
	return errors.Join(errs...)
}

func (a *App) closeLoggers() {
	if a.Audit != nil {
		_ = a.Audit.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

func auditConfig(cfg *config.Config) *audit.Config {
	return &audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		LogLevel:     cfg.Logging.Level,
		Format:       cfg.Logging.Format,
	}
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
