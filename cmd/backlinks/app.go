package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofiber/storage/redis/v3"

	"backlinks/internal/activity"
	"backlinks/internal/clock"
	"backlinks/internal/config"
	"backlinks/internal/db"
	"backlinks/internal/jobs"
	"backlinks/internal/metrics"
	"backlinks/internal/pipeline"
	"backlinks/internal/provider"
	"backlinks/internal/quota"
	"backlinks/internal/scoring"
)

// app holds the long-lived dependencies shared by the subcommands.
type app struct {
	cfg          *config.Config
	db           *db.DB
	redis        *redis.Storage
	policy       scoring.Policy
	orchestrator *pipeline.Orchestrator
	quota        *quota.Service
	logger       *slog.Logger
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// openApp loads configuration, connects to the database and redis, and wires
// the pipeline.
func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	policy, err := config.LoadScoringPolicy(cfg.ScoringPolicyFile)
	if err != nil {
		logger.Warn("ignoring scoring policy file", "path", cfg.ScoringPolicyFile, "error", err)
	}

	a := &app{cfg: cfg, db: database, policy: policy, logger: logger}

	registry := provider.DefaultRegistry()
	if cfg.RedisURL != "" {
		a.redis = redis.New(redis.Config{URL: cfg.RedisURL})
		registry = registry.WithCache(a.redis, cfg.ProviderCacheTTL, logger)
	}

	clk := clock.System{}
	a.quota = quota.NewService(database, cfg.UsageMonthlyLimit, logger)
	a.orchestrator = pipeline.New(
		database,
		registry,
		a.quota,
		activity.NewRecorder(database, clk, logger),
		clk,
		pipeline.Config{
			DefaultProvider: cfg.Provider,
			Provider:        cfg.ProviderConfig(),
			PageSize:        cfg.PageSize,
			InsertBatchSize: cfg.InsertBatchSize,
			ScoreChunkSize:  cfg.ScoreChunkSize,
			Policy:          policy,
		},
		logger,
	)

	metrics.Init(database)
	return a, nil
}

func (a *app) worker() *jobs.RunWorker {
	return jobs.NewRunWorker(a.db, a.orchestrator, jobs.WorkerConfig{
		Interval:    a.cfg.WorkerInterval,
		Concurrency: a.cfg.WorkerConcurrency,
		RunTimeout:  a.cfg.RunTimeout,
		MaxAttempts: a.cfg.RunMaxAttempts,
		RetryDelay:  a.cfg.RetryDelay,
	}, a.logger)
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", "error", err)
		}
	}
	a.db.Close()
}
