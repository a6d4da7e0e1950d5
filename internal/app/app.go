// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/qchat-dev/qchat-go/internal/arbiter"
	"github.com/qchat-dev/qchat-go/internal/buildinfo"
	"github.com/qchat-dev/qchat-go/internal/config"
	"github.com/qchat-dev/qchat-go/internal/extractor"
	"github.com/qchat-dev/qchat-go/internal/history"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
	"github.com/qchat-dev/qchat-go/internal/profile"
	"github.com/qchat-dev/qchat-go/internal/ratelimit"
	"github.com/qchat-dev/qchat-go/internal/sentry"
	"github.com/qchat-dev/qchat-go/internal/storage"
	"github.com/qchat-dev/qchat-go/internal/tracing"
	"github.com/qchat-dev/qchat-go/internal/warmup"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg      *config.Config
	logger   *logger.Logger
	db       *storage.DB
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	core     *Core

	profiles     profile.Store
	history      *history.Service
	arbiter      arbiter.Arbiter
	extractions  *extractor.Runner       // nil when extraction is off or no LLM is configured
	chatLimiter  *ratelimit.KeyedLimiter // per-user chat budget
	readiness    *warmup.ReadinessState  // tracks startup warmup for /readyz
	scheduler    *gocron.Scheduler
	rebuildMu    sync.Mutex // held by a running rebuild
	server       *http.Server
	wg           sync.WaitGroup // background goroutines, waited on before shutdown
	closeProfile func(context.Context) error
	logShutdown  func(context.Context) error
	tracingClose tracing.ShutdownFunc
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log, logShutdown := logger.Setup(logger.Options{
		Level:            cfg.LogLevel,
		BetterstackToken: cfg.Observe.BetterstackToken,
	})
	log = log.WithField("service", tracing.ServiceName)
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog calls pick up request and user IDs through the
	// context handler.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.String()).Info("Initializing application...")
	if cfg.Observe.BetterstackToken != "" {
		log.Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		DSN:              cfg.Observe.SentryDSN,
		Environment:      cfg.Observe.SentryEnvironment,
		Release:          buildinfo.Version,
		SampleRate:       cfg.Observe.SentrySampleRate,
		TracesSampleRate: cfg.Observe.SentryTracesRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed")
	} else if sentry.IsEnabled() {
		log.WithField("environment", cfg.Observe.SentryEnvironment).Info("Sentry error reporting enabled")
	}

	tracingClose, err := tracing.Setup(ctx, tracing.Options{
		Endpoint:    cfg.Observe.OTLPEndpoint,
		Insecure:    cfg.Observe.OTLPInsecure,
		SampleRatio: cfg.Observe.TracingSampleRatio,
		Version:     buildinfo.Version,
		Environment: cfg.Observe.SentryEnvironment,
	})
	if err != nil {
		log.WithError(err).Warn("Tracing initialization failed")
		tracingClose = func(context.Context) error { return nil }
	} else if cfg.Observe.OTLPEndpoint != "" {
		log.WithField("endpoint", cfg.Observe.OTLPEndpoint).Info("OpenTelemetry tracing enabled")
	}

	db, err := storage.New(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath).Info("Database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	core, err := NewCore(ctx, cfg, log, m)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	profiles, closeProfile, err := OpenProfileStore(ctx, cfg, db, log)
	if err != nil {
		_ = core.Close()
		_ = db.Close()
		return nil, fmt.Errorf("profile store: %w", err)
	}
	log.WithField("backend", cfg.Profile.Backend).Info("Profile store ready")

	var runner *extractor.Runner
	if cfg.Extraction.Enabled && core.LLM != nil {
		runner = extractor.NewRunner(extractor.New(core.LLM, log), profiles, extractor.RunnerOptions{
			Workers: cfg.Extraction.Workers,
			Timeout: cfg.Extraction.Timeout,
		}, m, log)
		log.WithField("workers", cfg.Extraction.Workers).Info("Profile extraction enabled")
	}

	arb, err := core.NewArbiter(profiles, runner)
	if err != nil {
		_ = closeProfile(ctx)
		_ = core.Close()
		_ = db.Close()
		return nil, fmt.Errorf("arbiter: %w", err)
	}
	log.WithFields(map[string]any{
		"strategy":  arb.Strategy(),
		"rag_mode":  cfg.Arbiter.RAGMode,
		"providers": cfg.LLM.ConfiguredProviders(),
		"embedder":  core.Embedder != nil,
	}).Info("Arbiter configured")

	app := &Application{
		cfg:          cfg,
		logger:       log,
		db:           db,
		metrics:      m,
		registry:     registry,
		core:         core,
		profiles:     profiles,
		history:      history.New(db, cfg.ChatLogEnabled, log),
		arbiter:      arb,
		extractions:  runner,
		readiness:    warmup.NewReadinessState(config.IndexWarmup),
		closeProfile: closeProfile,
		logShutdown:  logShutdown,
		tracingClose: tracingClose,
		chatLimiter: ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
			Name:      "chat",
			PerMinute: cfg.ChatRatePerMinute,
			Burst:     cfg.ChatBurst,
			Metrics:   m,
		}),
	}

	gin.SetMode(gin.ReleaseMode)
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.newRouter(),
		ReadHeaderTimeout: config.HTTPRead,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// Run starts the HTTP server and background jobs and blocks until SIGINT or
// SIGTERM.
//
// Background jobs are cancelled and awaited before any resource is closed,
// so an index rebuild never writes into a closed database or bucket client.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.startBackgroundJobs(ctx); err != nil {
		return err
	}
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("HTTP server error")
			sentry.CaptureException(err)
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops the server and releases resources. The scheduler has
// already stopped with the background jobs. Order: HTTP server, extraction
// workers, stores, tracing, logs, Sentry.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	if a.extractions != nil {
		a.logger.Info("Waiting for profile extractions to finish...")
		if err := a.extractions.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Profile extraction shutdown timeout")
		}
	}

	a.logger.Info("Closing resources...")
	a.chatLimiter.Stop()

	if err := a.core.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "page_cache").Error("Component close error")
	}
	if err := a.closeProfile(shutdownCtx); err != nil {
		a.logger.WithError(err).WithField("component", "profile_store").Error("Component close error")
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}

	if err := a.tracingClose(shutdownCtx); err != nil {
		a.logger.WithError(err).WithField("component", "tracing").Warn("Component close error")
	}

	a.logger.Info("Shutdown complete")
	if err := a.logShutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}
	sentry.Flush(2 * time.Second)
	return nil
}
