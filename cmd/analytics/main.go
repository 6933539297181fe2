// Command analytics runs the standalone analytics aggregation service.
//
// It consumes search and rebuild events from Kafka, aggregates them in
// memory (unanswered questions, fallback rate, confidence and latency
// percentiles, per-competition counts), periodically snapshots the totals
// to PostgreSQL when enabled and serves them at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	aggregator := analytics.NewAggregator(analytics.WithMaxQuestions(cfg.Analytics.MaxQuestions))

	var snapshotLister analytics.SnapshotLister
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		checker.Register("postgres", health.Ping(pg.Ping, true))

		store := snapshot.NewStore(pg.DB)
		if latest, err := store.Latest(ctx); err != nil {
			slog.Warn("failed to restore analytics snapshot", "error", err)
		} else if latest != nil {
			aggregator.Restore(*latest)
		}
		store.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
		snapshotLister = store
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	analyticsHandler := analytics.NewHandler(aggregator, snapshotLister)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsHandler.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.RequestID(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
