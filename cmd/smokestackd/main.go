package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/admission"
	"github.com/jaxxstorm/smokestack/internal/api"
	"github.com/jaxxstorm/smokestack/internal/config"
	"github.com/jaxxstorm/smokestack/internal/database"
	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/engine"
	"github.com/jaxxstorm/smokestack/internal/eventbus"
	"github.com/jaxxstorm/smokestack/internal/history"
	"github.com/jaxxstorm/smokestack/internal/history/jsonl"
	"github.com/jaxxstorm/smokestack/internal/history/sqlstore"
	"github.com/jaxxstorm/smokestack/internal/logger"
	"github.com/jaxxstorm/smokestack/internal/metrics"
	"github.com/jaxxstorm/smokestack/internal/persistence"
	"github.com/jaxxstorm/smokestack/internal/sinkdelivery"
	"github.com/jaxxstorm/smokestack/internal/sinkdelivery/redischan"
	"github.com/jaxxstorm/smokestack/internal/sinkdelivery/webhook"
	"github.com/jaxxstorm/smokestack/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load configuration
	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind environment variables: %v\n", err)
		os.Exit(1)
	}

	// Find and load config file
	configFile, err := config.FindConfigFile("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find config file: %v\n", err)
		os.Exit(1)
	}

	if configFile != "" {
		if err := config.LoadConfigFile(v, configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting smokestack coordination engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Domain Store, restored from the Persistence Journal if present
	st := store.New()
	journal := persistence.New(cfg.Persistence.SnapshotPath, log)
	snap, found, err := journal.Load()
	if err != nil {
		log.Fatal("Failed to load persistence journal", zap.Error(err))
	}
	if found {
		st.Restore(snap)
		log.Info("restored state from journal",
			zap.String("path", cfg.Persistence.SnapshotPath),
			zap.Int("operations", len(snap.Operations)))
	}

	// History Log: the JSONL file is authoritative; the SQL index is an
	// optional derived accelerator for filtered queries.
	var historyStore history.Store
	jsonlStore, err := jsonl.Open(cfg.Persistence.HistoryPath, log)
	if err != nil {
		log.Fatal("Failed to open history log", zap.Error(err))
	}
	historyStore = jsonlStore

	if cfg.Persistence.SQLIndexEnabled {
		dbProvider, err := database.NewProvider(ctx, &cfg.Database, log)
		if err != nil {
			log.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer dbProvider.Close()

		if err := database.RunMigrations(cfg.Database.MigrationConnectionString(), log); err != nil {
			log.Fatal("Failed to run database migrations", zap.Error(err))
		}

		db, err := indexDB(dbProvider, &cfg.Database)
		if err != nil {
			log.Fatal("Failed to open history index connection", zap.Error(err))
		}
		historyStore = history.NewTee(jsonlStore, sqlstore.Open(db, log), log)
		log.Info("history SQL index enabled", zap.String("provider", cfg.Database.Provider))
	}
	defer historyStore.Close()

	// Metrics
	reg := metrics.New(prometheus.DefaultRegisterer)

	// Admission Controller and Event Bus
	adm := admission.New(st, cfg.Admission.AdminGroup)

	// System Sink delivery: webhook always available, redis when a
	// client can be configured from the environment.
	deliverers := map[domain.SinkKind]sinkdelivery.Deliverer{
		domain.SinkWebhook: webhook.New(&http.Client{Timeout: cfg.Sinks.DeliveryTimeout}),
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
		deliverers[domain.SinkRedis] = redischan.New(client)
		log.Info("redis sink delivery enabled", zap.String("addr", addr))
	}

	bus := eventbus.New(st, nil, log)

	// Transition Engine, the single writer
	eng := engine.New(st, adm, historyStore, bus, journal, log)
	eng.SetMetrics(reg)

	sinkQueue := sinkdelivery.New(deliverers, eng, cfg.Sinks.DeliveryTimeout, log)
	sinkQueue.SetMetrics(reg)
	eng.SetSinkForwarder(sinkQueue)
	bus.SetSinkForwarder(sinkQueue)

	go eng.Run(ctx)
	for i := 0; i < cfg.Sinks.Workers; i++ {
		go sinkQueue.Run(ctx)
	}

	recovery, err := sinkdelivery.NewRecoveryScheduler(cfg.Sinks.RecoveryProbeSchedule, eng, log)
	if err != nil {
		log.Fatal("Failed to initialize sink recovery scheduler", zap.Error(err))
	}
	recovery.Start()
	defer recovery.Stop()

	// Request Facade
	srv := api.New(&cfg.HTTP, &cfg.Metrics, eng, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	cancel()
	sinkQueue.ShutDown()

	// Give in-flight sink deliveries a moment to drain before exit.
	time.Sleep(100 * time.Millisecond)
	log.Info("smokestack stopped")
}

// indexDB adapts the configured database provider to the *sqlx.DB the
// history index expects. The SQLite provider already hands one out; for
// Postgres a separate database/sql pool is opened over the pgx stdlib
// driver, since the provider's native pgxpool doesn't speak database/sql.
func indexDB(provider database.Provider, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	if db, ok := provider.Pool().(*sqlx.DB); ok {
		return db, nil
	}
	db, err := sqlx.Connect("pgx", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect history index: %w", err)
	}
	return db, nil
}
