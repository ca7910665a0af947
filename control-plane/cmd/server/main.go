// Command server runs the fleet control plane.
//
// # Usage
//
//	server --config /etc/fleet/server.yaml
//	server --database postgres://localhost/fleet --port 8080
//
// # Configuration
//
// The server can be configured via:
// - A YAML config file (--config)
// - Command-line flags
// - Environment variables (FLEET_*)
//
// Connection URLs may be 1Password references (op://vault/item/field),
// resolved through the secrets backend selected by FLEET_SECRETS_BACKEND.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/pilot-net/fleet-control/control-plane/internal/api"
	"github.com/pilot-net/fleet-control/control-plane/internal/cache"
	"github.com/pilot-net/fleet-control/control-plane/internal/config"
	"github.com/pilot-net/fleet-control/control-plane/internal/metrics"
	"github.com/pilot-net/fleet-control/control-plane/internal/secrets"
	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/control-plane/internal/store"
	"github.com/pilot-net/fleet-control/control-plane/internal/telemetry"
	"github.com/pilot-net/fleet-control/db/migrate"
)

const serverVersion = "fleet-server v0.1.0"

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		port       = flag.Int("port", 0, "HTTP server port (overrides config)")
		dbURL      = flag.String("database", "", "Database URL (postgres://... or op://...)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println(serverVersion)
		os.Exit(0)
	}

	// Load configuration: file, then env, then flags
	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.ApplyEnvOverrides()
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbURL != "" {
		cfg.Database.URL = *dbURL
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	logger := newLogger(cfg.Log)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Resolve op:// references before anything connects
	if cfg.HasSecretRefs() {
		resolver, err := secrets.NewResolver(secrets.ConfigFromEnv(), logger)
		if err != nil {
			return fmt.Errorf("creating secrets resolver: %w", err)
		}
		if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Connect to database
	db, err := store.NewStoreFromURL(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, config.DatabasePingTimeout)
	err = db.Ping(pingCtx)
	pingCancel()
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("connected to database")

	if cfg.Database.Migrate {
		if err := migrate.Run(ctx, db.Pool(), logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	// Optional Redis for idempotency keys
	var idem api.Idempotency
	var cachePinger metrics.Pinger
	if cfg.Redis.URL != "" {
		c, err := cache.New(cfg.Redis.URL, logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer c.Close()
		idem = c
		cachePinger = c
		logger.Info("connected to redis, idempotency keys enabled")
	} else {
		logger.Warn("redis not configured, idempotency keys held in process memory")
	}

	schemaStatus := func(ctx context.Context) (int, []string, error) {
		st, err := migrate.GetStatus(ctx, db.Pool())
		if err != nil {
			return 0, nil, err
		}
		return st.Version, st.Pending, nil
	}
	collector := metrics.NewCollector(db, schemaStatus, cachePinger)

	if !cfg.Auth.Enabled && len(cfg.Auth.OperatorKeyHashes) > 0 {
		logger.Warn("operator auth in grace period: invalid keys are logged but not rejected")
	}

	tp, err := telemetry.New(ctx, cfg.Telemetry, serverVersion)
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()
	if tp.Enabled() {
		logger.Info("exporting metrics", "output", cfg.Telemetry.Output, "interval", cfg.Telemetry.Interval)
	}

	svc := service.NewService(db, logger)
	svc.SetMeterProvider(tp.MeterProvider())
	apiServer := api.NewServer(svc, api.Options{
		Health:      collector,
		Idempotency: idem,
		IngestLimit: rate.Limit(cfg.Ingest.RateLimit),
		IngestBurst: cfg.Ingest.Burst,
		Auth:        cfg.Auth,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "version", serverVersion)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
