// Package cache memoizes search responses in Redis. Keys embed the index
// generation, so a rebuild makes older entries unreachable even before
// Invalidate sweeps them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/redis"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// Stats is the hit/miss tally since startup.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, generation uint64, req retrieval.SearchRequest) (*retrieval.SearchResponse, bool) {
	key := BuildKey(generation, req)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var resp retrieval.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "question", req.Question, "key", key)
	return &resp, true
}

func (c *QueryCache) Set(ctx context.Context, generation uint64, req retrieval.SearchRequest, resp *retrieval.SearchResponse) {
	key := BuildKey(generation, req)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached response or runs compute once per key,
// sharing the result with concurrent callers. The bool reports a hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	req retrieval.SearchRequest,
	compute func() (*retrieval.SearchResponse, error),
) (*retrieval.SearchResponse, bool, error) {
	if resp, ok := c.Get(ctx, generation, req); ok {
		return resp, true, nil
	}
	key := BuildKey(generation, req)
	val, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		// A rebuild may have landed while computing; only cache under the
		// generation the response was produced from.
		if resp.Generation == generation {
			c.Set(ctx, generation, req, resp)
		}
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*retrieval.SearchResponse), false, nil
}

// Invalidate removes every cached response and returns how many keys went.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes everything that shapes a response. Questions differing
// only in case or spacing share a key.
func BuildKey(generation uint64, req retrieval.SearchRequest) string {
	raw := fmt.Sprintf("g=%d|q=%s|c=%s|a=%s|limit=%d",
		generation,
		normalize(req.Question),
		normalize(req.Hint),
		normalize(req.Answer),
		req.Limit,
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
