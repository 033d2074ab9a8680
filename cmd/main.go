package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/benchwatch/benchwatch/internal/adapters/http/api"
	"github.com/benchwatch/benchwatch/internal/adapters/source"
	"github.com/benchwatch/benchwatch/internal/adapters/storage"
	app "github.com/benchwatch/benchwatch/internal/app"
	"github.com/benchwatch/benchwatch/internal/config"
	"github.com/benchwatch/benchwatch/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// on the shared default registry; the service registry carries its
	// own set.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			logger.Get().Error(context.Background(), "failed to sync logger", logger.Error(err))
		}
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Pick the durable-state backend.
	var store storage.Store
	switch cfg.Storage {
	case config.StorageSQLite:
		sqliteStore, err := storage.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			os.Stderr.WriteString("failed to open sqlite store: " + err.Error() + "\n")
			return
		}
		store = sqliteStore
		log.Info(ctx, "using sqlite store", logger.String("path", cfg.SQLitePath))
	default:
		store = storage.NewMemoryStore()
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithStore(store),
		app.WithMaxParallelCohorts(cfg.MaxParallelCohorts),
		app.WithEpsilonFloor(cfg.EpsilonFloor),
		app.WithReportedEpsilon(cfg.ReportedEpsilon),
		app.WithThresholds(cfg.LowThreshold, cfg.HighThreshold),
		app.WithMinConfidentSampleSize(cfg.MinConfidentSampleSize),
		app.WithDriftWindow(cfg.DriftWindow),
		app.WithDriftStableBand(cfg.DriftStableBand),
		app.WithConditionRules(cfg.NonDiscriminating),
	}
	if cfg.ScrapeDir != "" {
		opts = append(opts, app.WithRecordSource(source.NewFileSource(cfg.ScrapeDir)))
		log.Info(ctx, "using scrape directory source", logger.String("dir", cfg.ScrapeDir))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// HTTP mux and routes.
	mux := http.NewServeMux()
	apiServer := api.NewServer(svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}
