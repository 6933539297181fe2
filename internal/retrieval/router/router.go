// Package router chooses the corpus scope for a question. A competition
// hint may narrow the first search, but a weak scoped result always falls
// back to the full corpus. When even the full corpus stays below the
// threshold, the router retries with a relaxed one.
package router

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/competition"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/ranker"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/tokenizer"
)

type Scope string

const (
	ScopeCompetition Scope = "competition"
	ScopeGlobal      Scope = "global"
)

type Config struct {
	// MinScore is the top score a scoped search must reach to be trusted.
	MinScore float64
	// RelaxFactor scales MinScore for the retry after a weak full-corpus
	// search. It must lie in (0, 1].
	RelaxFactor float64
}

func DefaultConfig() Config {
	return Config{MinScore: 4.0, RelaxFactor: 0.5}
}

// Route is the outcome of routing one query.
type Route struct {
	Results []ranker.ScoredResult `json:"results"`
	Scope   Scope                 `json:"scope"`
	// Competition is the resolved hint, empty when none applied.
	Competition string `json:"competition,omitempty"`
	FellBack    bool   `json:"fell_back"`
	// Relaxed is set when no search reached MinScore and Threshold was
	// lowered for the retry.
	Relaxed   bool    `json:"relaxed"`
	Threshold float64 `json:"threshold"`
}

type Router struct {
	scorer  *ranker.Scorer
	catalog *competition.Catalog
	cfg     Config
	logger  *slog.Logger
}

func New(scorer *ranker.Scorer, catalog *competition.Catalog, cfg Config) *Router {
	defaults := DefaultConfig()
	if cfg.MinScore <= 0 {
		cfg.MinScore = defaults.MinScore
	}
	if cfg.RelaxFactor <= 0 || cfg.RelaxFactor > 1 {
		cfg.RelaxFactor = defaults.RelaxFactor
	}
	return &Router{
		scorer:  scorer,
		catalog: catalog,
		cfg:     cfg,
		logger:  slog.Default().With("component", "query-router"),
	}
}

// Route scores q against corpus and returns the full ranked list. An
// explicit hint is resolved through the alias catalog; without one, a
// competition named in the question is used. The scoped result is returned
// only when its top score reaches MinScore.
//
// When the full corpus also stays below MinScore the threshold drops to
// MinScore*RelaxFactor. A scoped result that reaches the relaxed threshold
// and scores at least as well as the full corpus is then preferred, so a
// weak question keeps its competition focus.
func (r *Router) Route(ctx context.Context, q ranker.Query, hint string, corpus *index.Corpus) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	terms := q.Terms()
	tag := r.resolve(hint, q.Text)

	var scoped []ranker.ScoredResult
	tried := false
	switch {
	case tag == "":
	case !corpus.HasTag(tag):
		r.logger.Debug("competition not in corpus, searching full corpus", "competition", tag)
	default:
		tried = true
		scoped = r.scorer.Score(q, corpus.Candidates(terms, tag), 0)
		if topScore(scoped) >= r.cfg.MinScore {
			return Route{Results: scoped, Scope: ScopeCompetition, Competition: tag, Threshold: r.cfg.MinScore}, nil
		}
		r.logger.Debug("scoped search below threshold, widening to full corpus",
			"competition", tag,
			"top_score", topScore(scoped),
			"min_score", r.cfg.MinScore,
		)
		if err := ctx.Err(); err != nil {
			return Route{}, err
		}
	}

	global := r.scorer.Score(q, corpus.Candidates(terms, ""), 0)
	route := Route{
		Results:     global,
		Scope:       ScopeGlobal,
		Competition: tag,
		FellBack:    tried,
		Threshold:   r.cfg.MinScore,
	}
	if topScore(global) >= r.cfg.MinScore {
		return route, nil
	}

	route.Relaxed = true
	route.Threshold = tokenizer.Round(r.cfg.MinScore * r.cfg.RelaxFactor)
	if tried && topScore(scoped) >= route.Threshold && topScore(scoped) >= topScore(global) {
		route.Results = scoped
		route.Scope = ScopeCompetition
	}
	r.logger.Debug("full corpus below threshold, retried with relaxed threshold",
		"competition", tag,
		"scope", route.Scope,
		"top_score", topScore(route.Results),
		"threshold", route.Threshold,
	)
	return route, nil
}

func topScore(results []ranker.ScoredResult) float64 {
	if len(results) == 0 {
		return 0
	}
	return results[0].Score
}

func (r *Router) resolve(hint, question string) string {
	if tag, ok := r.catalog.Resolve(hint); ok {
		return tag
	}
	if tag, ok := r.catalog.Detect(question); ok {
		return tag
	}
	return ""
}
