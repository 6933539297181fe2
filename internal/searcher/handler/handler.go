// Package handler exposes the retrieval engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/confidence"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/middleware"
)

const maxBodyBytes = 1 << 20

// Engine is the part of retrieval.Engine the handler serves.
type Engine interface {
	Search(ctx context.Context, req retrieval.SearchRequest) (*retrieval.SearchResponse, error)
	Evaluate(resp *retrieval.SearchResponse, answer string) confidence.Report
	Stats() (index.Stats, error)
	Generation() uint64
}

// Rebuilder reloads the passage source and rebuilds the index.
type Rebuilder interface {
	Rebuild(ctx context.Context, trigger string) (retrieval.RebuildResult, error)
}

// Tracker receives analytics events; *analytics.Collector satisfies it.
type Tracker interface {
	Track(event analytics.Event)
}

type Config struct {
	DefaultLimit int
	MaxResults   int
	// Timeout bounds each search, cache lookup included. Zero leaves the
	// request context alone.
	Timeout time.Duration
}

type Handler struct {
	engine    Engine
	rebuilder Rebuilder
	cache     *cache.QueryCache
	tracker   Tracker
	metrics   *metrics.Metrics
	cfg       Config
	logger    *slog.Logger
}

// New wires the handler. cache, tracker, rebuilder and m may be nil.
func New(engine Engine, rebuilder Rebuilder, queryCache *cache.QueryCache, tracker Tracker, m *metrics.Metrics, cfg Config) *Handler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxResults < cfg.DefaultLimit {
		cfg.MaxResults = cfg.DefaultLimit
	}
	return &Handler{
		engine:    engine,
		rebuilder: rebuilder,
		cache:     queryCache,
		tracker:   tracker,
		metrics:   m,
		cfg:       cfg,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.SearchGet)
	mux.HandleFunc("POST /api/v1/search", h.SearchPost)
	mux.HandleFunc("POST /api/v1/evaluate", h.Evaluate)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// SearchGet serves GET /api/v1/search?q=&competition=&limit=.
func (h *Handler) SearchGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := retrieval.SearchRequest{
		Question: q.Get("q"),
		Hint:     q.Get("competition"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		req.Limit = n
	}
	h.search(w, r, req)
}

// SearchPost serves POST /api/v1/search with a JSON SearchRequest body.
func (h *Handler) SearchPost(w http.ResponseWriter, r *http.Request) {
	var req retrieval.SearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Limit < 0 {
		h.writeError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}
	h.search(w, r, req)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, req retrieval.SearchRequest) {
	resp, err := h.run(r.Context(), req)
	if err != nil {
		h.fail(w, r, "search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type evaluateResponse struct {
	Question    string            `json:"question"`
	Competition string            `json:"competition,omitempty"`
	Confidence  confidence.Report `json:"confidence"`
	Generation  uint64            `json:"generation"`
}

// Evaluate serves POST /api/v1/evaluate: it retrieves for the question
// and scores the drafted answer against those passages.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req retrieval.SearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		h.writeError(w, http.StatusBadRequest, "answer is required")
		return
	}
	answer := req.Answer
	req.Answer = ""

	resp, err := h.run(r.Context(), req)
	if err != nil {
		h.fail(w, r, "evaluation failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, evaluateResponse{
		Question:    resp.Question,
		Competition: resp.Competition,
		Confidence:  h.engine.Evaluate(resp, answer),
		Generation:  resp.Generation,
	})
}

// run executes a search through the cache and tracks it.
func (h *Handler) run(ctx context.Context, req retrieval.SearchRequest) (*retrieval.SearchResponse, error) {
	start := time.Now()
	req.Limit = h.clamp(req.Limit)
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	var resp *retrieval.SearchResponse
	var hit bool
	var err error
	if h.cache != nil {
		resp, hit, err = h.cache.GetOrCompute(ctx, h.engine.Generation(), req, func() (*retrieval.SearchResponse, error) {
			return h.engine.Search(ctx, req)
		})
	} else {
		resp, err = h.engine.Search(ctx, req)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrTimeout) {
			err = fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		return nil, err
	}

	latency := time.Since(start)
	if hit && h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues("hit").Observe(latency.Seconds())
	}
	logger.FromContext(ctx).Info("search completed",
		"question", resp.Question,
		"competition", resp.Competition,
		"scope", resp.Scope,
		"returned", len(resp.Results),
		"classification", resp.Confidence.Classification,
		"confidence", resp.Confidence.Score,
		"cache_hit", hit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil {
		h.tracker.Track(analytics.SearchEvent{
			Type:           analytics.EventSearch,
			Question:       resp.Question,
			Competition:    resp.Competition,
			Scope:          string(resp.Scope),
			FellBack:       resp.FellBack,
			Classification: string(resp.Confidence.Classification),
			Confidence:     resp.Confidence.Score,
			Returned:       len(resp.Results),
			LatencyMs:      latency.Milliseconds(),
			CacheHit:       hit,
			Generation:     resp.Generation,
			Timestamp:      time.Now().UTC(),
			RequestID:      middleware.GetRequestID(ctx),
		})
	}
	return resp, nil
}

func (h *Handler) clamp(limit int) int {
	if limit <= 0 {
		return h.cfg.DefaultLimit
	}
	if limit > h.cfg.MaxResults {
		return h.cfg.MaxResults
	}
	return limit
}

// Rebuild serves POST /api/v1/index/rebuild. The result body is returned
// for failures too so callers see the error and timing.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.rebuilder == nil {
		h.writeError(w, http.StatusServiceUnavailable, "rebuilds are disabled")
		return
	}
	result, err := h.rebuilder.Rebuild(r.Context(), "http")
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("rebuild failed", "error", err)
		}
		if result.Error == "" {
			result.Error = err.Error()
		}
		h.writeJSON(w, status, result)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats()
	if err != nil {
		h.fail(w, r, "index stats failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// fail maps err to a status code. Server-side failures are logged; the
// client only sees the sentinel message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case status >= http.StatusInternalServerError:
		logger.FromContext(r.Context()).Error(msg, "error", err)
	}
	message := msg
	for _, sentinel := range []error{
		apperrors.ErrIndexUnavailable,
		apperrors.ErrTimeout,
		apperrors.ErrInvalidInput,
	} {
		if errors.Is(err, sentinel) {
			message = sentinel.Error()
			break
		}
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
