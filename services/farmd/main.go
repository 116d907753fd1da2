package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	farmconfig "yieldfarm/config"
	"yieldfarm/core/events"
	"yieldfarm/core/state"
	"yieldfarm/observability/logging"
	"yieldfarm/observability/metrics"
	telemetry "yieldfarm/observability/otel"
	"yieldfarm/services/farmd/config"
	"yieldfarm/services/farmd/scheduler"
	"yieldfarm/services/farmd/server"
	"yieldfarm/services/farmd/service"
	"yieldfarm/storage"
	"yieldfarm/storage/history"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/farmd/config.yaml", "path to farmd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOpts := logging.Options{Level: logging.ParseLevel(cfg.Log.Level)}
	if cfg.Log.File != "" {
		logOpts.File = &logging.FileSink{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
	}
	logger, logCloser := logging.SetupWithOptions("farmd", cfg.Environment, logOpts)
	defer func() { _ = logCloser.Close() }()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "farmd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			log.Fatalf("init telemetry: %v", err)
		}
		defer func() { _ = shutdownTelemetry(context.Background()) }()
	}

	if err := run(cfg, logger); err != nil {
		log.Fatalf("farmd failed: %v", err)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("farmd starting",
		"listen", cfg.ListenAddress,
		"dataDir", cfg.DataDir,
		"historyDriver", cfg.History.Driver,
		logging.MaskField("historyDSN", cfg.History.DSN),
		logging.MaskField("hmacSecret", cfg.Auth.HMACSecret),
		"checkpoint", cfg.Checkpoint.Schedule)

	farmCfg, err := farmconfig.LoadFarm(cfg.FarmConfig)
	if err != nil {
		return fmt.Errorf("load farm config: %w", err)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	historyDB, err := history.Open(cfg.History.Driver, cfg.History.DSN)
	if err != nil {
		return err
	}
	recorder, err := history.NewRecorder(historyDB, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := historyDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	farmMetrics := metrics.Farm()
	svc, err := service.New(state.NewManager(db), farmCfg, service.Options{
		Logger: logger,
		Sink:   events.MultiEmitter{recorder, farmMetrics},
	})
	if err != nil {
		return fmt.Errorf("bootstrap farm: %w", err)
	}

	srv, err := server.New(server.Config{
		Service:  svc,
		History:  recorder,
		Observer: farmMetrics,
		Metrics:  promhttp.Handler(),
		Auth: server.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ScopeClaim: cfg.Auth.ScopeClaim,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if cfg.Checkpoint.Schedule != "" {
		sched, err := scheduler.New(cfg.Checkpoint.Schedule, svc, farmMetrics, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(srv.Handler(), "farmd"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("farmd listening", "addr", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}
