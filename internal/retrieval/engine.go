// Package retrieval answers competition questions from an in-memory passage
// index. Searches read an immutable corpus snapshot; rebuilds construct a
// replacement off to the side and publish it with a single atomic swap.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/competition"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/confidence"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/infotype"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/ranker"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/router"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/semantic"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/tracing"
)

// Options wires the engine's components. Zero values select each
// package's defaults.
type Options struct {
	Tokenizer        tokenizer.Config
	Lexicon          []string
	Stopwords        tokenizer.StopwordFilter
	// Synonyms expands question keywords; nil selects the default table
	// and an empty map disables expansion.
	Synonyms map[string][]string
	// InfoTypes classifies questions and tags passages; nil selects the
	// defaults and an empty slice disables classification.
	InfoTypes        []infotype.Type
	QueryMaxKeywords int
	Catalog          *competition.Catalog
	Builder          index.BuilderConfig
	Scorer           ranker.Config
	Router           router.Config
	Confidence       confidence.Config
	// Embedder enables the semantic blend when non-nil.
	Embedder        semantic.Embedder
	SemanticTimeout time.Duration
	Metrics         *metrics.Metrics
}

type SearchRequest struct {
	Question string `json:"question"`
	Hint     string `json:"competition,omitempty"`
	// Answer is a drafted answer checked for unsupported entities.
	Answer string `json:"answer,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type SearchResponse struct {
	Question    string                `json:"question"`
	Keywords    []tokenizer.Keyword   `json:"keywords"`
	Results     []ranker.ScoredResult `json:"results"`
	Confidence  confidence.Report     `json:"confidence"`
	Scope       router.Scope          `json:"scope"`
	Competition string                `json:"competition,omitempty"`
	FellBack    bool                  `json:"fell_back"`
	// Relaxed is set when no passage reached the relevance threshold and
	// the router retried with a lowered one.
	Relaxed bool `json:"relaxed"`
	// InfoType is the kind of information the question asks for, if
	// recognized.
	InfoType   string  `json:"info_type,omitempty"`
	Generation uint64  `json:"generation"`
	Ceiling    float64 `json:"ceiling"`
	// Total is the number of ranked passages before the limit applied.
	Total int `json:"total"`
}

// RebuildResult reports the outcome of one rebuild request.
type RebuildResult struct {
	Success         bool    `json:"success"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error,omitempty"`
	Passages        int     `json:"passages"`
	Generation      uint64  `json:"generation"`
}

type Engine struct {
	tok       *tokenizer.Tokenizer
	builder   *index.Builder
	scorer    *ranker.Scorer
	router    *router.Router
	evaluator *confidence.Evaluator
	infoTypes *infotype.Classifier
	embedder  semantic.Embedder
	queryMax  int
	embedWait time.Duration
	metrics   *metrics.Metrics

	current    atomic.Pointer[index.Corpus]
	rebuilding atomic.Bool
	generation atomic.Uint64

	logger *slog.Logger
}

func New(opts Options) *Engine {
	tcfg := opts.Tokenizer
	if tcfg.KeepTags == nil {
		tcfg = overlayTokenizer(tokenizer.DefaultConfig(), tcfg)
	}
	table := opts.Synonyms
	if table == nil {
		table = tokenizer.DefaultSynonyms()
	}
	synonyms := tokenizer.NewSynonyms(table)
	terms := append(tokenizer.DefaultTerms(), opts.Lexicon...)
	terms = append(terms, synonyms.LexiconTerms()...)
	tokOpts := []tokenizer.Option{tokenizer.WithSynonyms(synonyms)}
	if opts.Stopwords != nil {
		tokOpts = append(tokOpts, tokenizer.WithStopwords(opts.Stopwords))
	}
	tok := tokenizer.New(tcfg, tokenizer.NewLexicon(terms...), tokOpts...)

	types := opts.InfoTypes
	if types == nil {
		types = infotype.Defaults()
	}
	var classifier *infotype.Classifier
	if len(types) > 0 {
		classifier = infotype.New(types)
	}
	bcfg := opts.Builder
	bcfg.InfoTypes = classifier

	catalog := opts.Catalog
	if catalog == nil {
		catalog = competition.NewCatalog(competition.DefaultEntries())
	}

	var buildEmbedder index.Embedder
	if opts.Embedder != nil {
		buildEmbedder = opts.Embedder
	} else {
		opts.Scorer.SemanticWeight = 0
	}
	scorer := ranker.New(opts.Scorer)

	queryMax := opts.QueryMaxKeywords
	if queryMax <= 0 {
		queryMax = 20
	}
	wait := opts.SemanticTimeout
	if wait <= 0 {
		wait = 10 * time.Second
	}

	return &Engine{
		tok:       tok,
		builder:   index.NewBuilder(tok, catalog, buildEmbedder, bcfg),
		scorer:    scorer,
		router:    router.New(scorer, catalog, opts.Router),
		evaluator: confidence.New(opts.Confidence, tok),
		infoTypes: classifier,
		embedder:  opts.Embedder,
		queryMax:  queryMax,
		embedWait: wait,
		metrics:   opts.Metrics,
		logger:    slog.Default().With("component", "retrieval-engine"),
	}
}

// overlayTokenizer copies the non-zero fields of override onto base.
func overlayTokenizer(base, override tokenizer.Config) tokenizer.Config {
	if override.MinTokenLength > 0 {
		base.MinTokenLength = override.MinTokenLength
	}
	if override.HeadWindow > 0 {
		base.HeadWindow = override.HeadWindow
	}
	if override.HeadBonus > 0 {
		base.HeadBonus = override.HeadBonus
	}
	if override.TermBonus > 0 {
		base.TermBonus = override.TermBonus
	}
	if override.SynonymWeight > 0 {
		base.SynonymWeight = override.SynonymWeight
	}
	return base
}

// Search answers one question against the current index snapshot. A
// question without usable keywords yields no results and an
// unable-to-answer report rather than an error. Confidence is judged on
// the full ranked list, so it does not depend on Limit; a drafted answer
// is checked against the passages actually returned.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	corpus := e.current.Load()
	if corpus == nil {
		return nil, apperrors.ErrIndexUnavailable
	}

	ctx, span := tracing.Start(ctx, "search")
	defer func() {
		span.End()
		span.Log(logger.FromContext(ctx))
	}()

	question := strings.TrimSpace(req.Question)
	_, tokSpan := tracing.Start(ctx, "tokenize")
	q := ranker.Query{Text: question, Keywords: e.tok.QueryKeywords(question, e.queryMax)}
	q.InfoType, _ = e.infoTypes.Classify(question)
	tokSpan.SetAttr("keywords", len(q.Keywords))
	tokSpan.SetAttr("info_type", q.InfoType)
	tokSpan.End()

	resp := &SearchResponse{
		Question:   question,
		Keywords:   q.Keywords,
		InfoType:   q.InfoType,
		Results:    []ranker.ScoredResult{},
		Scope:      router.ScopeGlobal,
		Generation: corpus.Generation(),
		Confidence: confidence.Report{Classification: confidence.UnableToAnswer},
	}
	if len(q.Keywords) == 0 {
		e.record(resp, start)
		return resp, nil
	}

	q.Vector = e.embedQuery(ctx, question)

	routeCtx, routeSpan := tracing.Start(ctx, "route")
	route, err := e.router.Route(routeCtx, q, req.Hint, corpus)
	routeSpan.End()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		return nil, fmt.Errorf("routing query: %w", err)
	}
	routeSpan.SetAttr("scope", string(route.Scope))
	routeSpan.SetAttr("fell_back", route.FellBack)
	routeSpan.SetAttr("relaxed", route.Relaxed)
	if route.Results != nil {
		resp.Results = route.Results
	}
	resp.Scope = route.Scope
	resp.Competition = route.Competition
	resp.FellBack = route.FellBack
	resp.Relaxed = route.Relaxed
	resp.Total = len(resp.Results)

	_, confSpan := tracing.Start(ctx, "confidence")
	resp.Ceiling = e.scorer.Ceiling(q, corpus)
	resp.Confidence = e.evaluator.Evaluate(confidence.Input{
		Query:   q,
		Results: resp.Results,
		Ceiling: resp.Ceiling,
	})
	if req.Limit > 0 && len(resp.Results) > req.Limit {
		resp.Results = resp.Results[:req.Limit]
	}
	if strings.TrimSpace(req.Answer) != "" {
		resp.Confidence = e.evaluator.Reassess(resp.Confidence, resp.Results, req.Answer)
	}
	confSpan.SetAttr("classification", string(resp.Confidence.Classification))
	confSpan.End()

	e.record(resp, start)
	return resp, nil
}

// Evaluate re-scores a previous response against an answer drafted from
// its passages. The retrieval factors of the response are kept.
func (e *Engine) Evaluate(resp *SearchResponse, answer string) confidence.Report {
	if resp == nil {
		return confidence.Report{Classification: confidence.UnableToAnswer}
	}
	return e.evaluator.Reassess(resp.Confidence, resp.Results, answer)
}

func (e *Engine) embedQuery(ctx context.Context, question string) []float32 {
	if e.embedder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.embedWait)
	defer cancel()
	ctx, span := tracing.Start(ctx, "embed")
	defer span.End()
	vec, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		span.SetAttr("error", err.Error())
		e.logger.Warn("query embedding failed, scoring lexically", "error", err)
		return nil
	}
	return vec
}

func (e *Engine) record(resp *SearchResponse, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(string(resp.Confidence.Classification), string(resp.Scope)).Inc()
	e.metrics.SearchLatency.WithLabelValues("miss").Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.Observe(float64(len(resp.Results)))
	e.metrics.ConfidenceScore.Observe(resp.Confidence.Score)
	if resp.FellBack {
		e.metrics.RouterFallbacksTotal.Inc()
	}
	if resp.Relaxed {
		e.metrics.RouterRelaxedTotal.Inc()
	}
}

// RebuildIndex builds a new index from raws and swaps it in. Only one
// rebuild runs at a time; a concurrent request fails with
// ErrRebuildInProgress. On failure the previous index keeps serving.
func (e *Engine) RebuildIndex(ctx context.Context, raws []index.RawPassage) (RebuildResult, error) {
	if !e.rebuilding.CompareAndSwap(false, true) {
		e.countRebuild("rejected")
		return RebuildResult{Error: apperrors.ErrRebuildInProgress.Error()}, apperrors.ErrRebuildInProgress
	}
	defer e.rebuilding.Store(false)

	start := time.Now()
	gen := e.generation.Load() + 1
	corpus, err := e.builder.Build(ctx, raws, gen)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		e.countRebuild("failed")
		e.logger.Error("index rebuild failed, keeping previous index",
			"error", err,
			"generation", e.generation.Load(),
		)
		return RebuildResult{DurationSeconds: elapsed, Error: err.Error(), Generation: e.generation.Load()}, err
	}

	e.generation.Store(gen)
	e.current.Store(corpus)
	e.countRebuild("success")
	if e.metrics != nil {
		e.metrics.RebuildDuration.Observe(elapsed)
		e.metrics.IndexGeneration.Set(float64(gen))
		e.metrics.IndexedPassages.Reset()
		for _, tag := range corpus.Tags() {
			e.metrics.IndexedPassages.WithLabelValues(tag).Set(float64(len(corpus.Tagged(tag))))
		}
	}
	e.logger.Info("index rebuilt",
		"generation", gen,
		"passages", corpus.Len(),
		"competitions", len(corpus.Tags()),
		"duration_s", elapsed,
	)
	return RebuildResult{
		Success:         true,
		DurationSeconds: elapsed,
		Passages:        corpus.Len(),
		Generation:      gen,
	}, nil
}

func (e *Engine) countRebuild(status string) {
	if e.metrics != nil {
		e.metrics.RebuildsTotal.WithLabelValues(status).Inc()
	}
}

// Stats describes the active index.
func (e *Engine) Stats() (index.Stats, error) {
	corpus := e.current.Load()
	if corpus == nil {
		return index.Stats{}, apperrors.ErrIndexUnavailable
	}
	return corpus.Stats(), nil
}

// Ready reports whether an index has been published.
func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

// Generation returns the generation of the active index, zero before the
// first successful rebuild.
func (e *Engine) Generation() uint64 {
	if corpus := e.current.Load(); corpus != nil {
		return corpus.Generation()
	}
	return 0
}

// Rebuilding reports whether a rebuild is running.
func (e *Engine) Rebuilding() bool {
	return e.rebuilding.Load()
}
