// Command indexer checks a passage corpus offline and announces corpus
// changes to running retrievers.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] validate
//	go run ./cmd/indexer -q "报名截止时间" search
//	go run ./cmd/indexer -reason manual publish
//
// validate builds the index from the configured source and prints its
// stats as JSON; it exits non-zero when the corpus would be rejected.
// search builds the index and runs one question against it. publish sends
// a corpus.updated event so every retriever rebuilds.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/source"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	question := flag.String("q", "", "question for the search command")
	hint := flag.String("competition", "", "competition hint for the search command")
	reason := flag.String("reason", "manual", "reason recorded in the corpus.updated event")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd := flag.Arg(0); cmd {
	case "validate", "":
		engine := build(ctx, cfg)
		stats, _ := engine.Stats()
		printJSON(stats)
	case "search":
		if *question == "" {
			fmt.Fprintln(os.Stderr, "search requires -q")
			os.Exit(2)
		}
		engine := build(ctx, cfg)
		resp, err := engine.Search(ctx, retrieval.SearchRequest{Question: *question, Hint: *hint})
		if err != nil {
			slog.Error("search failed", "error", err)
			os.Exit(1)
		}
		printJSON(resp)
	case "publish":
		if err := publish(ctx, cfg, *reason); err != nil {
			slog.Error("publish failed", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want validate, search or publish)\n", cmd)
		os.Exit(2)
	}
}

// build loads the configured source and runs one rebuild through the same
// path the retriever uses.
func build(ctx context.Context, cfg *config.Config) *retrieval.Engine {
	var db *sql.DB
	if cfg.Corpus.Source == "postgres" {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		db = pg.DB
	}

	src, err := source.New(cfg.Corpus, db)
	if err != nil {
		slog.Error("failed to configure passage source", "error", err)
		os.Exit(1)
	}

	opts, err := retrieval.OptionsFromConfig(cfg, nil)
	if err != nil {
		slog.Error("failed to configure retrieval engine", "error", err)
		os.Exit(1)
	}
	engine := retrieval.New(opts)
	result, err := indexer.New(src, engine, indexer.Config{LoadTimeout: cfg.Corpus.LoadTimeout}).Rebuild(ctx, "cli")
	if err != nil {
		slog.Error("corpus rejected", "source", src.Name(), "error", err)
		os.Exit(1)
	}
	slog.Info("corpus indexed",
		"source", src.Name(),
		"passages", result.Passages,
		"duration_s", result.DurationSeconds,
	)
	return engine
}

func publish(ctx context.Context, cfg *config.Config, reason string) error {
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdated)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := producer.Publish(ctx, kafka.Event{
		Key:  "corpus",
		Type: publisher.EventCorpusUpdated,
		Value: ingestion.CorpusUpdatedEvent{
			Reason:    reason,
			UpdatedAt: time.Now().UTC(),
		},
	})
	if err != nil {
		return err
	}
	slog.Info("corpus update announced", "topic", cfg.Kafka.Topics.CorpusUpdated, "reason", reason)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to write output", "error", err)
	}
}
