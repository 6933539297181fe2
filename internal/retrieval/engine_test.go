package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/competition"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/confidence"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/infotype"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/ranker"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/router"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/semantic"
	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/metrics"
)

func testCatalog() *competition.Catalog {
	return competition.NewCatalog([]competition.Entry{
		{Name: "MathCup", Aliases: []string{"数学杯"}},
		{Name: "RoboCup", Aliases: []string{"机器人杯"}},
	})
}

func mathCorpus() []index.RawPassage {
	return []index.RawPassage{
		{ID: "m1", Document: "mathcup.txt", Competition: "MathCup", Text: "报名时间为3月1日至4月1日"},
	}
}

func mixedCorpus() []index.RawPassage {
	return []index.RawPassage{
		{ID: "m1", Document: "mathcup.txt", Competition: "MathCup", Text: "报名时间为3月1日至4月1日"},
		{ID: "r1", Document: "robocup.txt", Competition: "RoboCup", Text: "决赛评分标准由评委会制定"},
		{ID: "r2", Document: "robocup.txt", Competition: "RoboCup", Text: "报名时间另行通知，请关注官方网站"},
	}
}

func newEngine(t *testing.T, raws []index.RawPassage) *Engine {
	t.Helper()
	e := New(Options{Catalog: testCatalog()})
	if raws != nil {
		res, err := e.RebuildIndex(context.Background(), raws)
		require.NoError(t, err)
		require.True(t, res.Success)
	}
	return e
}

func TestSearchHintedMatch(t *testing.T) {
	e := newEngine(t, mathCorpus())

	resp, err := e.Search(context.Background(), SearchRequest{Question: "报名时间是什么", Hint: "MathCup", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "m1", resp.Results[0].Passage.ID)
	assert.Equal(t, router.ScopeCompetition, resp.Scope)
	assert.Greater(t, resp.Confidence.Score, 0.0)
	assert.Equal(t, confidence.Answerable, resp.Confidence.Classification)
	assert.Equal(t, uint64(1), resp.Generation)
}

func TestSearchWithoutOverlap(t *testing.T) {
	e := newEngine(t, mathCorpus())

	resp, err := e.Search(context.Background(), SearchRequest{Question: "评委如何评分", Hint: "MathCup"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Confidence.Score)
	assert.Equal(t, confidence.UnableToAnswer, resp.Confidence.Classification)
}

func TestSearchFallsBackToGlobalMatch(t *testing.T) {
	e := newEngine(t, mixedCorpus())

	resp, err := e.Search(context.Background(), SearchRequest{Question: "评分标准", Hint: "MathCup"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "r1", resp.Results[0].Passage.ID)
	assert.Equal(t, router.ScopeGlobal, resp.Scope)
	assert.True(t, resp.FellBack)
	assert.Equal(t, "MathCup", resp.Competition)
}

func TestSearchResultsSorted(t *testing.T) {
	e := newEngine(t, mixedCorpus())

	resp, err := e.Search(context.Background(), SearchRequest{Question: "报名时间和评分标准"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(resp.Results), 2)
	for i := 1; i < len(resp.Results); i++ {
		prev, cur := resp.Results[i-1], resp.Results[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.Passage.Seq < cur.Passage.Seq))
	}
}

func TestSearchEmptyQuestion(t *testing.T) {
	e := newEngine(t, mathCorpus())

	for _, q := range []string{"", "   ", "的了吗"} {
		resp, err := e.Search(context.Background(), SearchRequest{Question: q})
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
		assert.Equal(t, confidence.UnableToAnswer, resp.Confidence.Classification)
	}
}

func TestSearchWithoutIndex(t *testing.T) {
	e := newEngine(t, nil)
	assert.False(t, e.Ready())

	_, err := e.Search(context.Background(), SearchRequest{Question: "报名时间"})
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)

	_, err = e.Stats()
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}

func TestSearchCancelledContext(t *testing.T) {
	e := newEngine(t, mathCorpus())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Search(ctx, SearchRequest{Question: "报名时间"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateDraftedAnswer(t *testing.T) {
	e := newEngine(t, mathCorpus())
	resp, err := e.Search(context.Background(), SearchRequest{Question: "报名时间是什么", Hint: "MathCup"})
	require.NoError(t, err)

	grounded := e.Evaluate(resp, "报名时间为3月1日至4月1日")
	fabricated := e.Evaluate(resp, "报名时间为2025年9月15日")
	assert.False(t, grounded.Factors.FabricationRisk)
	assert.True(t, fabricated.Factors.FabricationRisk)
	assert.Less(t, fabricated.Score, grounded.Score)

	assert.Equal(t, confidence.UnableToAnswer, e.Evaluate(nil, "x").Classification)
}

func TestRebuildIsIdempotent(t *testing.T) {
	e := newEngine(t, mixedCorpus())
	req := SearchRequest{Question: "报名时间"}
	first, err := e.Search(context.Background(), req)
	require.NoError(t, err)

	res, err := e.RebuildIndex(context.Background(), mixedCorpus())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Generation)
	assert.Equal(t, 3, res.Passages)

	second, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, second.Results, len(first.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].Passage.ID, second.Results[i].Passage.ID)
		assert.Equal(t, first.Results[i].Score, second.Results[i].Score)
	}
	assert.Equal(t, first.Confidence.Score, second.Confidence.Score)
}

func TestFailedRebuildKeepsPreviousIndex(t *testing.T) {
	e := newEngine(t, mathCorpus())

	for _, raws := range [][]index.RawPassage{
		nil,
		{{ID: "x", Text: "   "}},
		{{ID: "d", Text: "报名"}, {ID: "d", Text: "评分"}},
	} {
		res, err := e.RebuildIndex(context.Background(), raws)
		assert.ErrorIs(t, err, apperrors.ErrInvalidCorpus)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
		assert.Equal(t, uint64(1), res.Generation)
	}

	assert.Equal(t, uint64(1), e.Generation())
	resp, err := e.Search(context.Background(), SearchRequest{Question: "报名时间"})
	require.NoError(t, err)
	assert.Equal(t, "m1", resp.Results[0].Passage.ID)
}

// gatedEmbedder blocks passage embedding until released.
type gatedEmbedder struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return semantic.NewMockEmbedder(8).EmbedTexts(ctx, texts)
}

func (g *gatedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return semantic.NewMockEmbedder(8).EmbedQuery(ctx, text)
}

func TestConcurrentRebuildRejected(t *testing.T) {
	gate := &gatedEmbedder{entered: make(chan struct{}), release: make(chan struct{})}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	e := New(Options{Catalog: testCatalog(), Embedder: gate, Metrics: m})

	done := make(chan RebuildResult)
	go func() {
		res, _ := e.RebuildIndex(context.Background(), mixedCorpus())
		done <- res
	}()

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("rebuild never started")
	}
	assert.True(t, e.Rebuilding())

	res, err := e.RebuildIndex(context.Background(), mathCorpus())
	assert.ErrorIs(t, err, apperrors.ErrRebuildInProgress)
	assert.False(t, res.Success)

	close(gate.release)
	first := <-done
	assert.True(t, first.Success)
	assert.False(t, e.Rebuilding())

	rec := httptest.NewRecorder()
	metrics.NewMux(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `index_rebuilds_total{status="rejected"} 1`)
	assert.Contains(t, body, `index_rebuilds_total{status="success"} 1`)
	assert.Contains(t, body, `indexed_passages{competition="RoboCup"} 2`)
}

func TestSearchSeesConsistentSnapshotDuringRebuilds(t *testing.T) {
	corpus := func(prefix string) []index.RawPassage {
		raws := make([]index.RawPassage, 0, 20)
		for i := range 20 {
			raws = append(raws, index.RawPassage{
				ID:          fmt.Sprintf("%s-%d", prefix, i),
				Competition: "MathCup",
				Text:        fmt.Sprintf("报名时间说明第%d条，评分标准见附件", i),
			})
		}
		return raws
	}
	e := newEngine(t, corpus("a"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil && i < 50; i++ {
			prefix := "a"
			if i%2 == 0 {
				prefix = "b"
			}
			_, _ = e.RebuildIndex(ctx, corpus(prefix))
		}
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				resp, err := e.Search(context.Background(), SearchRequest{Question: "报名时间评分标准", Limit: 20})
				if !assert.NoError(t, err) {
					return
				}
				if !assert.Len(t, resp.Results, 20) {
					return
				}
				prefix := strings.SplitN(resp.Results[0].Passage.ID, "-", 2)[0]
				for _, r := range resp.Results {
					assert.True(t, strings.HasPrefix(r.Passage.ID, prefix+"-"), "mixed snapshot in generation %d", resp.Generation)
				}
			}
		}()
	}
	wg.Wait()
}

func TestSemanticBlendDegradesWithoutVectors(t *testing.T) {
	mock := semantic.NewMockEmbedder(16)
	e := New(Options{Catalog: testCatalog(), Embedder: mock, Scorer: ranker.Config{SemanticWeight: 0.5}})
	_, err := e.RebuildIndex(context.Background(), mixedCorpus())
	require.NoError(t, err)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Embedded)

	resp, err := e.Search(context.Background(), SearchRequest{Question: "报名时间"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, r.Lexical)
	}
}

func TestConfidenceIndependentOfLimit(t *testing.T) {
	e := newEngine(t, mixedCorpus())

	full, err := e.Search(context.Background(), SearchRequest{Question: "报名时间", Limit: 10})
	require.NoError(t, err)
	page, err := e.Search(context.Background(), SearchRequest{Question: "报名时间", Limit: 1})
	require.NoError(t, err)

	require.Len(t, full.Results, 2)
	require.Len(t, page.Results, 1)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, full.Confidence, page.Confidence)
	assert.Equal(t, 2, page.Confidence.Factors.SourceCount)

	answer := "报名时间为3月1日至4月1日"
	drafted, err := e.Search(context.Background(), SearchRequest{Question: "报名时间", Limit: 1, Answer: answer})
	require.NoError(t, err)
	assert.Equal(t, e.Evaluate(page, answer), drafted.Confidence)
	assert.Equal(t, page.Confidence.Factors.Base, drafted.Confidence.Factors.Base)
}

func TestSearchExpandsSynonyms(t *testing.T) {
	raws := []index.RawPassage{
		{ID: "m1", Competition: "MathCup", Text: "注册截止日期为5月1日"},
	}
	e := newEngine(t, raws)
	resp, err := e.Search(context.Background(), SearchRequest{Question: "报名时间", Hint: "MathCup"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "m1", resp.Results[0].Passage.ID)
	assert.Contains(t, resp.Results[0].Matched, "注册")

	expanded := map[string]string{}
	for _, kw := range resp.Keywords {
		if kw.ExpandedFrom != "" {
			expanded[kw.Term] = kw.ExpandedFrom
		}
	}
	assert.Equal(t, "报名", expanded["注册"])
	assert.Equal(t, "时间", expanded["截止日期"])

	plain := New(Options{Catalog: testCatalog(), Synonyms: map[string][]string{}})
	_, err = plain.RebuildIndex(context.Background(), raws)
	require.NoError(t, err)
	resp, err = plain.Search(context.Background(), SearchRequest{Question: "报名时间", Hint: "MathCup"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	for _, kw := range resp.Keywords {
		assert.Empty(t, kw.ExpandedFrom)
	}
}

func TestSearchClassifiesInfoType(t *testing.T) {
	e := newEngine(t, mixedCorpus())
	resp, err := e.Search(context.Background(), SearchRequest{Question: "报名时间是什么"})
	require.NoError(t, err)
	assert.Equal(t, "registration", resp.InfoType)
	require.NotEmpty(t, resp.Results)
	assert.True(t, resp.Results[0].InfoTypeMatch)
	assert.Greater(t, resp.Results[0].Score, resp.Results[0].Lexical)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.InfoTypes["registration"])

	plain := New(Options{Catalog: testCatalog(), InfoTypes: []infotype.Type{}})
	_, err = plain.RebuildIndex(context.Background(), mixedCorpus())
	require.NoError(t, err)
	resp, err = plain.Search(context.Background(), SearchRequest{Question: "报名时间是什么"})
	require.NoError(t, err)
	assert.Empty(t, resp.InfoType)
	for _, r := range resp.Results {
		assert.False(t, r.InfoTypeMatch)
	}
}

func TestSearchRelaxedStaysUnableToAnswer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	e := New(Options{Catalog: testCatalog(), Metrics: m})
	// The only occurrence sits past the lead window, keeping the score
	// under the relevance threshold.
	_, err := e.RebuildIndex(context.Background(), []index.RawPassage{
		{ID: "m1", Competition: "MathCup", Text: strings.Repeat("。", 210) + "赛场"},
	})
	require.NoError(t, err)

	resp, err := e.Search(context.Background(), SearchRequest{Question: "赛场"})
	require.NoError(t, err)
	assert.True(t, resp.Relaxed)
	require.Len(t, resp.Results, 1)
	assert.Less(t, resp.Results[0].Score, 4.0)
	assert.Equal(t, confidence.UnableToAnswer, resp.Confidence.Classification)
	assert.Zero(t, resp.Confidence.Score)

	rec := httptest.NewRecorder()
	metrics.NewMux(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "router_relaxed_total 1")
}
