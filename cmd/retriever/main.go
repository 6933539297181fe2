// Command retriever serves competition QA retrieval over HTTP.
//
// It loads the passage corpus from the configured source, builds the
// in-memory index and answers search, evaluate, rebuild and passage write
// requests. Redis, PostgreSQL, Kafka and the embedding endpoint are
// optional and enabled per config section.
//
// Usage:
//
//	go run ./cmd/retriever [-config configs/development.yaml]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/auth/apikey"
	authmw "github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/auth/middleware"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/indexer/consumer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/semantic"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/source"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/resilience"
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
	slog.Info("starting retriever", "port", cfg.Server.Port, "corpus_source", cfg.Corpus.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()

	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		pg, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		checker.Register("postgres", health.Ping(pg.Ping, false))
		slog.Info("postgres connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	var db *sql.DB
	if pg != nil {
		db = pg.DB
	}
	src, err := source.New(cfg.Corpus, db)
	if err != nil {
		slog.Error("failed to configure passage source", "error", err)
		os.Exit(1)
	}

	opts, err := retrieval.OptionsFromConfig(cfg, m)
	if err != nil {
		slog.Error("failed to configure retrieval engine", "error", err)
		os.Exit(1)
	}
	engine := retrieval.New(opts)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if !engine.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no index built yet"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("generation %d", engine.Generation())}
	})
	if guarded, ok := opts.Embedder.(*semantic.Guarded); ok {
		checker.Register("embedder", func(ctx context.Context) health.ComponentHealth {
			if state := guarded.State(); state != resilience.StateClosed {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.Ping(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator(analytics.WithMaxQuestions(cfg.Analytics.MaxQuestions))
	var snapshots *snapshot.Store
	if db != nil {
		snapshots = snapshot.NewStore(db)
		if latest, err := snapshots.Latest(ctx); err != nil {
			slog.Warn("failed to restore analytics snapshot", "error", err)
		} else if latest != nil {
			aggregator.Restore(*latest)
			slog.Info("analytics restored from snapshot", "searches", latest.TotalSearches)
		}
		snapshots.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
	}

	var sink analytics.Sink = analytics.NewLocalSink(aggregator)
	var indexProducer, corpusProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		sink = analytics.NewKafkaSink(analyticsProducer)

		indexProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer indexProducer.Close()
		corpusProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdated)
		defer corpusProducer.Close()
	}
	collector := analytics.NewCollector(sink, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	collector.Start(ctx)

	rebuildCfg := indexer.Config{
		LoadTimeout: cfg.Corpus.LoadTimeout,
		Tracker:     collector,
		Metrics:     m,
	}
	if queryCache != nil {
		rebuildCfg.Cache = queryCache
	}
	if indexProducer != nil {
		rebuildCfg.Producer = indexProducer
	}
	rebuilder := indexer.New(src, engine, rebuildCfg)

	if cfg.Corpus.RebuildOnStart {
		if result, err := rebuilder.Rebuild(ctx, "startup"); err != nil {
			slog.Error("initial index build failed, serving 503 until a rebuild succeeds", "error", err)
		} else {
			slog.Info("initial index built", "passages", result.Passages, "generation", result.Generation)
		}
	}

	if cfg.Kafka.Enabled {
		startConsumers(ctx, cfg.Kafka, rebuilder, aggregator)
	}

	mux := http.NewServeMux()
	handler.New(engine, rebuilder, queryCache, collector, m, handler.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		Timeout:      cfg.Search.Timeout,
	}).Register(mux)

	var repo publisher.Repository
	if pg != nil {
		repo = publisher.NewPostgresRepository(pg)
	}
	var notifier kafka.Publisher
	if corpusProducer != nil {
		notifier = corpusProducer
	}
	if mountIngestion(mux, cfg.Corpus, repo, notifier, rebuilder) {
		slog.Info("passage writes enabled", "table", cfg.Corpus.Table)
	} else if pg != nil {
		slog.Info("passage writes disabled, corpus is not read from postgres", "corpus_source", cfg.Corpus.Source)
	}

	var keys *apikey.Validator
	if cfg.Auth.Enabled {
		keys = apikey.NewValidator(pg.DB)
		apikey.NewHandler(keys, cfg.Auth.AnonymousRateLimit*10).Register(mux)
		slog.Info("api key auth enabled", "admin_api", cfg.Auth.AdminToken != "")
	}
	limiter := ratelimit.New(cfg.Auth.RateWindow)
	limiter.StartCleanup(ctx, 5*time.Minute)

	var snapshotLister analytics.SnapshotLister
	if snapshots != nil {
		snapshotLister = snapshots
	}
	analyticsH := analytics.NewHandler(aggregator, snapshotLister)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsH.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = authmw.RateLimit(limiter, cfg.Auth.AnonymousRateLimit)(chain)
	if keys != nil {
		chain = authmw.Auth(keys, cfg.Auth.AdminToken)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Auth.CORSOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
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

	slog.Info("retriever listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	stop()
	collector.Close()
	slog.Info("retriever stopped")
}

// mountIngestion registers the passage write endpoints when the corpus is
// read from the table they write to. Writes against any other source would
// be accepted but never indexed.
func mountIngestion(mux *http.ServeMux, corpus config.CorpusConfig, repo publisher.Repository, notifier kafka.Publisher, trigger ingesthandler.Trigger) bool {
	if !corpus.Writable() || repo == nil {
		return false
	}
	ingesthandler.New(publisher.New(repo, notifier), trigger).Register(mux)
	return true
}

// startConsumers runs the corpus and analytics consumers. Every replica
// must rebuild on a corpus update, so that consumer joins a per-host group;
// analytics events are shared by the whole deployment.
func startConsumers(ctx context.Context, kcfg config.KafkaConfig, rebuilder *indexer.Rebuilder, aggregator *analytics.Aggregator) {
	corpusCfg := kcfg
	if host, err := os.Hostname(); err == nil {
		corpusCfg.ConsumerGroup = kcfg.ConsumerGroup + "-" + host
	}
	indexConsumer := consumer.New(kafka.NewConsumer(corpusCfg, kcfg.Topics.CorpusUpdated, consumer.HandleCorpusUpdated(rebuilder)))
	go func() {
		if err := indexConsumer.Start(ctx); err != nil {
			slog.Error("corpus consumer error", "error", err)
		}
	}()

	analyticsConsumer := kafka.NewConsumer(kcfg, kcfg.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
	go func() {
		if err := analyticsConsumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("kafka consumers started",
		"corpus_topic", kcfg.Topics.CorpusUpdated,
		"corpus_group", corpusCfg.ConsumerGroup,
		"analytics_topic", kcfg.Topics.AnalyticsEvents,
	)
}
