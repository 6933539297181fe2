// Package indexer reloads the passage source and swaps a freshly built
// index into the retrieval engine. Rebuild requests arriving from HTTP,
// Kafka and local writes are serialized here.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/metrics"
)

// EventIndexComplete is the event type published after every rebuild.
const EventIndexComplete = "index.complete"

// IndexCompleteEvent announces the outcome of a rebuild.
type IndexCompleteEvent struct {
	Trigger         string    `json:"trigger"`
	Success         bool      `json:"success"`
	Generation      uint64    `json:"generation"`
	Passages        int       `json:"passages"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           string    `json:"error,omitempty"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Engine is the part of retrieval.Engine that owns the index.
type Engine interface {
	RebuildIndex(ctx context.Context, raws []index.RawPassage) (retrieval.RebuildResult, error)
	Generation() uint64
}

// Invalidator drops cached search results; *cache.QueryCache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Tracker receives analytics events.
type Tracker interface {
	Track(event analytics.Event)
}

// Config wires the optional collaborators. Nil fields are skipped.
type Config struct {
	LoadTimeout time.Duration
	Cache       Invalidator
	Producer    kafka.Publisher
	Tracker     Tracker
	Metrics     *metrics.Metrics
}

type Rebuilder struct {
	source  source.Source
	engine  Engine
	cfg     Config
	running atomic.Bool
	pending atomic.Bool
	logger  *slog.Logger
}

func New(src source.Source, engine Engine, cfg Config) *Rebuilder {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 2 * time.Minute
	}
	return &Rebuilder{
		source: src,
		engine: engine,
		cfg:    cfg,
		logger: slog.Default().With("component", "rebuilder", "source", src.Name()),
	}
}

// Rebuild runs one rebuild now. It fails with ErrRebuildInProgress while
// another rebuild holds the lock; on any failure the previous index keeps
// serving.
func (r *Rebuilder) Rebuild(ctx context.Context, trigger string) (retrieval.RebuildResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.count("rejected")
		return retrieval.RebuildResult{
			Error:      apperrors.ErrRebuildInProgress.Error(),
			Generation: r.engine.Generation(),
		}, apperrors.ErrRebuildInProgress
	}
	result, err := r.rebuild(ctx, trigger)
	r.release(ctx)
	return result, err
}

// Request asks for a rebuild without competing for the lock. When one is
// already running the request is folded into a single follow-up rebuild,
// so a burst of corpus updates costs at most two rebuilds.
func (r *Rebuilder) Request(ctx context.Context, trigger string) error {
	r.pending.Store(true)
	var lastErr error
	for r.pending.Load() {
		if !r.running.CompareAndSwap(false, true) {
			r.logger.Debug("rebuild already running, request coalesced", "trigger", trigger)
			return nil
		}
		r.pending.Store(false)
		_, err := r.rebuild(ctx, trigger)
		r.running.Store(false)
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

// Pending reports whether a coalesced request is waiting.
func (r *Rebuilder) Pending() bool {
	return r.pending.Load()
}

func (r *Rebuilder) release(ctx context.Context) {
	r.running.Store(false)
	if !r.pending.Load() {
		return
	}
	go func() {
		if err := r.Request(context.WithoutCancel(ctx), "coalesced"); err != nil {
			r.logger.Error("coalesced rebuild failed", "error", err)
		}
	}()
}

func (r *Rebuilder) rebuild(ctx context.Context, trigger string) (retrieval.RebuildResult, error) {
	start := time.Now()
	log := r.logger.With("trigger", trigger)
	log.Info("rebuild started")

	loadCtx, cancel := context.WithTimeout(ctx, r.cfg.LoadTimeout)
	raws, err := r.source.Load(loadCtx)
	cancel()
	if err != nil {
		err = fmt.Errorf("loading %s: %w: %w", r.source.Name(), apperrors.ErrSourceUnavailable, err)
		r.count("failed")
		result := retrieval.RebuildResult{
			DurationSeconds: time.Since(start).Seconds(),
			Error:           err.Error(),
			Generation:      r.engine.Generation(),
		}
		log.Error("passage source failed, keeping previous index", "error", err)
		r.finish(ctx, trigger, result)
		return result, err
	}

	result, err := r.engine.RebuildIndex(ctx, raws)
	result.DurationSeconds = time.Since(start).Seconds()
	if err != nil {
		log.Error("rebuild failed", "error", err, "passages_loaded", len(raws))
		r.finish(ctx, trigger, result)
		return result, err
	}

	if r.cfg.Cache != nil {
		deleted, err := r.cfg.Cache.Invalidate(ctx)
		if err != nil {
			log.Warn("cache invalidation after rebuild failed", "error", err)
		} else {
			log.Debug("cache invalidated", "keys_deleted", deleted)
		}
	}
	log.Info("rebuild finished",
		"generation", result.Generation,
		"passages", result.Passages,
		"duration_s", result.DurationSeconds,
	)
	r.finish(ctx, trigger, result)
	return result, nil
}

func (r *Rebuilder) finish(ctx context.Context, trigger string, result retrieval.RebuildResult) {
	now := time.Now().UTC()
	if r.cfg.Tracker != nil {
		r.cfg.Tracker.Track(analytics.RebuildEvent{
			Type:       analytics.EventRebuild,
			Trigger:    trigger,
			Success:    result.Success,
			Passages:   result.Passages,
			Generation: result.Generation,
			DurationMs: int64(result.DurationSeconds * 1000),
			Error:      result.Error,
			Timestamp:  now,
		})
	}
	if r.cfg.Producer == nil {
		return
	}
	err := r.cfg.Producer.Publish(ctx, kafka.Event{
		Key:  "index",
		Type: EventIndexComplete,
		Value: IndexCompleteEvent{
			Trigger:         trigger,
			Success:         result.Success,
			Generation:      result.Generation,
			Passages:        result.Passages,
			DurationSeconds: result.DurationSeconds,
			Error:           result.Error,
			CompletedAt:     now,
		},
	})
	if err != nil {
		r.logger.Warn("failed to publish index.complete", "error", err)
	}
}

func (r *Rebuilder) count(status string) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RebuildsTotal.WithLabelValues(status).Inc()
	}
}
