package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redline-docs/redline/internal/applier"
	"github.com/redline-docs/redline/internal/candidates"
	"github.com/redline-docs/redline/internal/config"
	"github.com/redline-docs/redline/internal/detect"
	"github.com/redline-docs/redline/internal/finalize"
	"github.com/redline-docs/redline/internal/launch"
	"github.com/redline-docs/redline/internal/store"
)

// app bundles the wired dependencies every coordinator command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.PG
	detector detect.Service
	provider candidates.Provider
}

// newApp loads configuration and connects the shared dependencies.
func newApp(ctx context.Context) (*app, error) {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	logger := newLogger(cfg.LogLevel)

	pg, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	detector := detect.NewHTTPService(detect.HTTPConfig{
		BaseURL:           cfg.Detection.BaseURL,
		APIKey:            config.ResolveEnvVars(cfg.Detection.APIKey),
		RequestsPerMinute: cfg.Detection.RequestsPerMinute,
	})

	provider := candidates.NewCache(
		candidates.NewHTTPProvider(cfg.Candidates.BaseURL, config.ResolveEnvVars(cfg.Candidates.APIKey)),
		cfg.Candidates.TTL(),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    pg,
		detector: detector,
		provider: provider,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) launcher() *launch.Coordinator {
	return launch.New(a.store, a.detector, a.provider, launch.Config{
		MaxBatchSize:      a.cfg.Run.MaxBatchSize,
		MaxPagesPerWindow: a.cfg.Run.MaxPagesPerWindow,
		ScopeProperties:   a.cfg.Run.ScopeProperties,
		StuckAfter:        a.cfg.Run.StuckAfter(),
		SecondaryMode:     a.cfg.Detection.SecondaryMode,
	}, a.logger)
}

func (a *app) finalizer() *finalize.Coordinator {
	return finalize.New(a.store, a.detector, &applier.PG{DB: a.store.DB}, finalize.Config{
		MaxPagesPerWindow: a.cfg.Run.MaxPagesPerWindow,
		MaxRetries:        a.cfg.Run.MaxRetries,
		StuckAfter:        a.cfg.Run.StuckAfter(),
	}, a.logger)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

// withTimeout derives a bounded context for one coordinator pass.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 10*time.Minute)
}
