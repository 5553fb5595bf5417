// Package bootstrap wires the monitor's components together and manages
// application lifecycle.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bastion/api"
	"bastion/config"
	"bastion/detect"
	"bastion/score"
	"bastion/service"
	"bastion/storage"

	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// App holds the wired application components
type App struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	sqlite   *storage.SQLite
	hub      *api.Hub
	pipeline *detect.Pipeline
	server   *api.API

	ctx    context.Context
	cancel context.CancelFunc

	serverErr chan error
}

// NewApp builds the full application from configuration
func NewApp(cfg *config.Config, logger *zap.SugaredLogger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	sqlite, err := storage.NewSQLite(cfg.Database.Path, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logStore, err := storage.NewSQLiteLogStorage(sqlite, logger)
	if err != nil {
		sqlite.Close()
		cancel()
		return nil, fmt.Errorf("failed to init log storage: %w", err)
	}

	alertStore, err := storage.NewSQLiteAlertStorage(sqlite, logger)
	if err != nil {
		sqlite.Close()
		cancel()
		return nil, fmt.Errorf("failed to init alert storage: %w", err)
	}

	ruleStore, err := storage.NewSQLiteRuleStorage(sqlite, logger)
	if err != nil {
		sqlite.Close()
		cancel()
		return nil, fmt.Errorf("failed to init rule storage: %w", err)
	}

	if cfg.Rules.SeedFile != "" {
		if err := seedRules(ctx, ruleStore, cfg.Rules.SeedFile, logger); err != nil {
			sqlite.Close()
			cancel()
			return nil, fmt.Errorf("failed to seed rules: %w", err)
		}
	}

	var scorer score.Scorer
	if cfg.Scorer.URL != "" {
		scorer = score.NewHTTPScorer(cfg.Scorer.URL, cfg.Scorer.Timeout, logger)
		logger.Infow("Remote anomaly scorer enabled", "url", cfg.Scorer.URL)
	} else {
		logger.Info("Remote anomaly scorer disabled")
	}

	hub := api.NewHub(ctx, logger)

	classifier := detect.NewClassifier(scorer, cfg.Scorer.Timeout, logger)
	engine := detect.NewRuleEngine(logger)
	pipeline := detect.NewPipeline(classifier, engine, ruleStore, alertStore, hub, logger)

	logService := service.NewLogService(logStore, pipeline, logger)
	alertService := service.NewAlertService(alertStore, logger)

	server := api.NewAPI(api.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimitRPS:   cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst: cfg.RateLimit.Burst,
	}, logService, logStore, alertService, ruleStore, hub, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		sqlite:    sqlite,
		hub:       hub,
		pipeline:  pipeline,
		server:    server,
		ctx:       ctx,
		cancel:    cancel,
		serverErr: make(chan error, 1),
	}, nil
}

// Start launches the hub and the HTTP server
func (a *App) Start() {
	go a.hub.Start()

	go func() {
		a.serverErr <- a.server.Start()
	}()

	a.logger.Infow("Bastion started", "addr", a.cfg.Server.ListenAddr)
}

// WaitForShutdown blocks until a termination signal arrives or the HTTP
// server fails, then returns the cause.
func (a *App) WaitForShutdown() error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		a.logger.Infow("Shutdown signal received", "signal", s.String())
		return nil
	case err := <-a.serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

// Shutdown stops components in reverse dependency order: the HTTP server
// first so no new events arrive, then the detection pipeline so in-flight
// work can finish, then the hub and the database.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Errorw("HTTP server shutdown failed", "error", err)
	}

	a.pipeline.Stop()
	a.hub.Stop()
	a.cancel()

	if err := a.sqlite.Close(); err != nil {
		a.logger.Errorw("Database close failed", "error", err)
	}

	a.logger.Info("Bastion stopped")
}
