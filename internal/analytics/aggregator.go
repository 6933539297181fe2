package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	topQuestions      = 10
	unableClass       = "unable_to_answer"

	// DefaultMaxQuestions bounds the distinct questions tracked per table.
	DefaultMaxQuestions = 5000
)

type AggregatedStats struct {
	TotalSearches       int64            `json:"total_searches"`
	CacheHits           int64            `json:"cache_hits"`
	CacheMisses         int64            `json:"cache_misses"`
	ZeroResultCount     int64            `json:"zero_result_count"`
	UnableToAnswerCount int64            `json:"unable_to_answer_count"`
	FallbackCount       int64            `json:"fallback_count"`
	AvgConfidence       float64          `json:"avg_confidence"`
	AvgLatencyMs        float64          `json:"avg_latency_ms"`
	P50LatencyMs        int64            `json:"p50_latency_ms"`
	P95LatencyMs        int64            `json:"p95_latency_ms"`
	P99LatencyMs        int64            `json:"p99_latency_ms"`
	TopQuestions        []QuestionCount  `json:"top_questions"`
	Unanswered          []QuestionCount  `json:"unanswered_questions"`
	ByCompetition       map[string]int64 `json:"by_competition"`
	Rebuilds            RebuildStats     `json:"rebuilds"`
	QueriesPerMinute    float64          `json:"queries_per_minute"`
	Since               time.Time        `json:"since"`
}

type QuestionCount struct {
	Question string `json:"question"`
	Count    int64  `json:"count"`
}

type RebuildStats struct {
	Total          int64     `json:"total"`
	Failed         int64     `json:"failed"`
	LastGeneration uint64    `json:"last_generation"`
	LastPassages   int       `json:"last_passages"`
	LastAt         time.Time `json:"last_at,omitempty"`
}

// Aggregator folds search and rebuild events into running statistics.
type Aggregator struct {
	mu            sync.RWMutex
	searches      int64
	cacheHits     int64
	cacheMisses   int64
	zeroResults   int64
	unable        int64
	fallbacks     int64
	confidenceSum float64
	latencies     []int64
	next          int
	questions     map[string]int64
	unanswered    map[string]int64
	competitions  map[string]int64
	rebuilds      RebuildStats
	startTime     time.Time
	maxQuestions  int
	evicted       int64

	logger *slog.Logger
}

type AggregatorOption func(*Aggregator)

// WithMaxQuestions bounds the distinct questions kept in the question and
// unanswered tables. Non-positive values keep the default.
func WithMaxQuestions(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxQuestions = n
		}
	}
}

func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		latencies:    make([]int64, 0, 1024),
		questions:    make(map[string]int64),
		unanswered:   make(map[string]int64),
		competitions: make(map[string]int64),
		startTime:    time.Now(),
		maxQuestions: DefaultMaxQuestions,
		logger:       slog.Default().With("component", "analytics-aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record folds one event into the statistics. Unknown kinds are ignored.
func (a *Aggregator) Record(event Event) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case *SearchEvent:
		a.recordSearch(*e)
	case RebuildEvent:
		a.recordRebuild(e)
	case *RebuildEvent:
		a.recordRebuild(*e)
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.searches++
	if e.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	question := strings.TrimSpace(e.Question)
	a.questions[question]++
	a.bound(a.questions)
	if e.Returned == 0 {
		a.zeroResults++
	}
	if e.Classification == unableClass {
		a.unable++
		a.unanswered[question]++
		a.bound(a.unanswered)
	}
	if e.FellBack {
		a.fallbacks++
	}
	competition := e.Competition
	if competition == "" {
		competition = "global"
	}
	a.competitions[competition]++
	a.confidenceSum += e.Confidence

	// Latencies form a ring so memory stays bounded on long runs.
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

func (a *Aggregator) recordRebuild(e RebuildEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rebuilds.Total++
	if !e.Success {
		a.rebuilds.Failed++
		return
	}
	a.rebuilds.LastGeneration = e.Generation
	a.rebuilds.LastPassages = e.Passages
	a.rebuilds.LastAt = e.Timestamp
}

// HandleEvent adapts the aggregator to the analytics topic. Events are
// routed by their "type" field; undecodable messages are logged and
// skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := Decode(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Decode parses a serialized event.
func Decode(value []byte) (Event, error) {
	envelope, err := kafka.DecodeJSON[struct {
		Type EventType `json:"type"`
	}](value)
	if err != nil {
		return nil, err
	}
	switch envelope.Type {
	case EventSearch:
		e, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return nil, err
		}
		return e, nil
	case EventRebuild:
		e, err := kafka.DecodeJSON[RebuildEvent](value)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", envelope.Type)
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:       a.searches,
		CacheHits:           a.cacheHits,
		CacheMisses:         a.cacheMisses,
		ZeroResultCount:     a.zeroResults,
		UnableToAnswerCount: a.unable,
		FallbackCount:       a.fallbacks,
		TopQuestions:        topN(a.questions, topQuestions),
		Unanswered:          topN(a.unanswered, topQuestions),
		ByCompetition:       make(map[string]int64, len(a.competitions)),
		Rebuilds:            a.rebuilds,
		Since:               a.startTime.UTC(),
	}
	for k, v := range a.competitions {
		stats.ByCompetition[k] = v
	}
	if a.searches > 0 {
		stats.AvgConfidence = a.confidenceSum / float64(a.searches)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// Restore seeds the counters from a persisted snapshot so a restarted
// aggregator keeps its totals. Latency samples are not restored.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.searches += s.TotalSearches
	a.cacheHits += s.CacheHits
	a.cacheMisses += s.CacheMisses
	a.zeroResults += s.ZeroResultCount
	a.unable += s.UnableToAnswerCount
	a.fallbacks += s.FallbackCount
	a.confidenceSum += s.AvgConfidence * float64(s.TotalSearches)
	for _, q := range s.TopQuestions {
		a.questions[q.Question] += q.Count
	}
	for _, q := range s.Unanswered {
		a.unanswered[q.Question] += q.Count
	}
	a.bound(a.questions)
	a.bound(a.unanswered)
	for k, v := range s.ByCompetition {
		a.competitions[k] += v
	}
	a.rebuilds.Total += s.Rebuilds.Total
	a.rebuilds.Failed += s.Rebuilds.Failed
	if s.Rebuilds.LastAt.After(a.rebuilds.LastAt) {
		a.rebuilds.LastGeneration = s.Rebuilds.LastGeneration
		a.rebuilds.LastPassages = s.Rebuilds.LastPassages
		a.rebuilds.LastAt = s.Rebuilds.LastAt
	}
	if !s.Since.IsZero() && s.Since.Before(a.startTime) {
		a.startTime = s.Since
	}
}

// bound prunes counts back to three quarters of maxQuestions once it
// overflows, keeping the most frequent questions. Pruning in bulk keeps
// the amortized cost per event constant.
func (a *Aggregator) bound(counts map[string]int64) {
	if len(counts) <= a.maxQuestions {
		return
	}
	keep := max(a.maxQuestions*3/4, topQuestions)
	survivors := make(map[string]bool, keep)
	for _, q := range topN(counts, keep) {
		survivors[q.Question] = true
	}
	for question := range counts {
		if !survivors[question] {
			delete(counts, question)
			a.evicted++
		}
	}
	a.logger.Debug("pruned question counts", "kept", len(counts), "evicted_total", a.evicted)
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QuestionCount {
	result := make([]QuestionCount, 0, len(counts))
	for question, count := range counts {
		result = append(result, QuestionCount{Question: question, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Question < result[j].Question
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
