package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/competition"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/ranker"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/tokenizer"
)

var tok = tokenizer.New(tokenizer.DefaultConfig(), tokenizer.NewLexicon(tokenizer.DefaultTerms()...))

func setup(t *testing.T) (*Router, *index.Corpus) {
	t.Helper()
	catalog := competition.NewCatalog([]competition.Entry{
		{Name: "MathCup", Aliases: []string{"数学杯"}},
		{Name: "RoboCup", Aliases: []string{"机器人杯"}},
	})
	b := index.NewBuilder(tok, catalog, nil, index.BuilderConfig{})
	corpus, err := b.Build(context.Background(), []index.RawPassage{
		{ID: "m1", Competition: "MathCup", Text: "报名时间为3月1日至4月1日"},
		{ID: "r1", Competition: "RoboCup", Text: "决赛评分标准由评委会制定"},
		{ID: "r2", Competition: "RoboCup", Text: "报名时间另行通知"},
	}, 1)
	require.NoError(t, err)
	return New(ranker.New(ranker.DefaultConfig()), catalog, DefaultConfig()), corpus
}

func q(text string) ranker.Query {
	return ranker.Query{Text: text, Keywords: tok.Keywords(text, 20)}
}

func TestRouteScopedHit(t *testing.T) {
	r, corpus := setup(t)
	route, err := r.Route(context.Background(), q("报名时间是什么"), "MathCup", corpus)
	require.NoError(t, err)

	assert.Equal(t, ScopeCompetition, route.Scope)
	assert.Equal(t, "MathCup", route.Competition)
	assert.False(t, route.FellBack)
	assert.False(t, route.Relaxed)
	assert.Equal(t, 4.0, route.Threshold)
	require.Len(t, route.Results, 1)
	assert.Equal(t, "m1", route.Results[0].Passage.ID)
}

func TestRouteAliasHint(t *testing.T) {
	r, corpus := setup(t)
	route, err := r.Route(context.Background(), q("报名时间"), "机器人杯", corpus)
	require.NoError(t, err)
	assert.Equal(t, ScopeCompetition, route.Scope)
	assert.Equal(t, "RoboCup", route.Competition)
	assert.Equal(t, "r2", route.Results[0].Passage.ID)
}

func TestRouteFallsBackToGlobal(t *testing.T) {
	r, corpus := setup(t)
	route, err := r.Route(context.Background(), q("评分标准"), "MathCup", corpus)
	require.NoError(t, err)

	assert.Equal(t, ScopeGlobal, route.Scope)
	assert.True(t, route.FellBack)
	assert.Equal(t, "MathCup", route.Competition)
	require.NotEmpty(t, route.Results)
	assert.Equal(t, "r1", route.Results[0].Passage.ID)
}

func TestRouteUnknownHintSearchesGlobal(t *testing.T) {
	r, corpus := setup(t)
	route, err := r.Route(context.Background(), q("报名时间"), "NoSuchCup", corpus)
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, route.Scope)
	assert.False(t, route.FellBack)
	assert.Len(t, route.Results, 2)
}

func TestRouteDetectsCompetitionInQuestion(t *testing.T) {
	r, corpus := setup(t)
	route, err := r.Route(context.Background(), q("数学杯报名时间"), "", corpus)
	require.NoError(t, err)
	assert.Equal(t, ScopeCompetition, route.Scope)
	assert.Equal(t, "MathCup", route.Competition)

	route, err = r.Route(context.Background(), q("报名时间"), "", corpus)
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, route.Scope)
	assert.False(t, route.FellBack)
}

func TestRouteCancelled(t *testing.T) {
	r, corpus := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Route(ctx, q("报名时间"), "MathCup", corpus)
	assert.ErrorIs(t, err, context.Canceled)
}

func weakSetup(t *testing.T) (*Router, *index.Corpus) {
	t.Helper()
	catalog := competition.NewCatalog([]competition.Entry{{Name: "MathCup"}, {Name: "RoboCup"}})
	b := index.NewBuilder(tok, catalog, nil, index.BuilderConfig{})
	corpus, err := b.Build(context.Background(), []index.RawPassage{
		{ID: "m1", Competition: "MathCup", Text: "决赛决赛在上海"},
		{ID: "r1", Competition: "RoboCup", Text: "决赛在北京"},
	}, 1)
	require.NoError(t, err)
	return New(ranker.New(ranker.DefaultConfig()), catalog, DefaultConfig()), corpus
}

// weak scores 0.9*1.4*1.5 per occurrence of 决赛, below MinScore even
// for the passage holding it twice.
func weak() ranker.Query {
	return ranker.Query{Text: "决赛", Keywords: []tokenizer.Keyword{{Term: "决赛", Weight: 0.9}}}
}

func TestRouteRelaxedPrefersScope(t *testing.T) {
	r, corpus := weakSetup(t)
	route, err := r.Route(context.Background(), weak(), "MathCup", corpus)
	require.NoError(t, err)

	assert.True(t, route.Relaxed)
	assert.Equal(t, 2.0, route.Threshold)
	assert.Equal(t, ScopeCompetition, route.Scope)
	assert.True(t, route.FellBack)
	assert.Equal(t, "MathCup", route.Competition)
	require.Len(t, route.Results, 1)
	assert.Equal(t, "m1", route.Results[0].Passage.ID)
	assert.InDelta(t, 3.78, route.Results[0].Score, 1e-9)
}

func TestRouteRelaxedKeepsGlobal(t *testing.T) {
	r, corpus := weakSetup(t)

	// The scoped top stays under the relaxed threshold.
	route, err := r.Route(context.Background(), weak(), "RoboCup", corpus)
	require.NoError(t, err)
	assert.True(t, route.Relaxed)
	assert.Equal(t, ScopeGlobal, route.Scope)
	assert.True(t, route.FellBack)
	require.Len(t, route.Results, 2)
	assert.Equal(t, "m1", route.Results[0].Passage.ID)

	route, err = r.Route(context.Background(), weak(), "", corpus)
	require.NoError(t, err)
	assert.True(t, route.Relaxed)
	assert.Equal(t, ScopeGlobal, route.Scope)
	assert.False(t, route.FellBack)
}

func TestRouteRelaxFactor(t *testing.T) {
	_, corpus := weakSetup(t)
	catalog := competition.NewCatalog([]competition.Entry{{Name: "MathCup"}, {Name: "RoboCup"}})
	r := New(ranker.New(ranker.DefaultConfig()), catalog, Config{MinScore: 4, RelaxFactor: 0.25})

	route, err := r.Route(context.Background(), weak(), "RoboCup", corpus)
	require.NoError(t, err)
	assert.Equal(t, 1.0, route.Threshold)
	assert.Equal(t, ScopeGlobal, route.Scope)

	// Out of range factors fall back to the default.
	r = New(ranker.New(ranker.DefaultConfig()), catalog, Config{MinScore: 4, RelaxFactor: 3})
	route, err = r.Route(context.Background(), weak(), "RoboCup", corpus)
	require.NoError(t, err)
	assert.Equal(t, 2.0, route.Threshold)
}
