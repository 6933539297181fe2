package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/confidence"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/ranker"
)

type memoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	v, ok := s.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memoryStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func response(gen uint64) *retrieval.SearchResponse {
	return &retrieval.SearchResponse{
		Question:   "MathCup报名截止时间",
		Generation: gen,
		Results: []ranker.ScoredResult{{
			Passage: &index.Passage{ID: "m1", Competition: "MathCup", Text: "MathCup报名截止时间为3月1日"},
			Score:   4.2,
			Lexical: 4.2,
			Matched: []string{"报名", "截止"},
		}},
		Confidence: confidence.Report{Classification: confidence.Answerable, Score: 0.8},
	}
}

func TestBuildKeyNormalizes(t *testing.T) {
	a := BuildKey(1, retrieval.SearchRequest{Question: "  MathCup  报名截止 ", Hint: "mathcup"})
	b := BuildKey(1, retrieval.SearchRequest{Question: "mathcup 报名截止", Hint: "MathCup"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, BuildKey(2, retrieval.SearchRequest{Question: "mathcup 报名截止", Hint: "MathCup"}))
	assert.NotEqual(t, a, BuildKey(1, retrieval.SearchRequest{Question: "mathcup 报名截止", Hint: "MathCup", Limit: 3}))
	assert.NotEqual(t, a, BuildKey(1, retrieval.SearchRequest{Question: "mathcup 报名截止", Hint: "MathCup", Answer: "3月1日"}))
	assert.Regexp(t, `^search:[0-9a-f]{32}$`, a)
}

func TestGetOrComputeCaches(t *testing.T) {
	c := New(newMemoryStore(), time.Minute, nil)
	req := retrieval.SearchRequest{Question: "MathCup报名截止时间"}
	var calls atomic.Int32
	compute := func() (*retrieval.SearchResponse, error) {
		calls.Add(1)
		return response(3), nil
	}

	first, hit, err := c.GetOrCompute(context.Background(), 3, req, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrCompute(context.Background(), 3, req, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.Results[0].Passage.ID, second.Results[0].Passage.ID)
	assert.Equal(t, confidence.Answerable, second.Confidence.Classification)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestGetOrComputeSkipsStaleGeneration(t *testing.T) {
	store := newMemoryStore()
	c := New(store, time.Minute, nil)
	req := retrieval.SearchRequest{Question: "q"}

	_, _, err := c.GetOrCompute(context.Background(), 3, req, func() (*retrieval.SearchResponse, error) {
		return response(4), nil
	})
	require.NoError(t, err)
	assert.Empty(t, store.data)
}

func TestGetOrComputePropagatesError(t *testing.T) {
	c := New(newMemoryStore(), time.Minute, nil)
	boom := errors.New("index unavailable")
	_, _, err := c.GetOrCompute(context.Background(), 1, retrieval.SearchRequest{Question: "q"}, func() (*retrieval.SearchResponse, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestStoreFailureIsAMiss(t *testing.T) {
	store := newMemoryStore()
	store.failGet = errors.New("connection reset")
	c := New(store, time.Minute, nil)

	_, ok := c.Get(context.Background(), 1, retrieval.SearchRequest{Question: "q"})
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestInvalidate(t *testing.T) {
	store := newMemoryStore()
	store.data["other:key"] = []byte("x")
	c := New(store, time.Minute, nil)
	c.Set(context.Background(), 1, retrieval.SearchRequest{Question: "a"}, response(1))
	c.Set(context.Background(), 1, retrieval.SearchRequest{Question: "b"}, response(1))

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, store.data, "other:key")
}

func BenchmarkBuildKey(b *testing.B) {
	req := retrieval.SearchRequest{Question: "  MathCup 报名截止时间是什么时候？ ", Hint: "数学杯", Limit: 10}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = BuildKey(42, req)
	}
}
