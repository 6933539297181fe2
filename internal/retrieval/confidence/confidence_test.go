package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/ranker"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/tokenizer"
)

var tok = tokenizer.New(tokenizer.DefaultConfig(), tokenizer.NewLexicon(tokenizer.DefaultTerms()...))

func passage(seq int, text string) *index.Passage {
	p := &index.Passage{ID: text, Text: text, Seq: seq, Weights: map[string]float64{}, Positions: map[string][]int{}}
	for _, kw := range tok.Keywords(text, 0) {
		p.Weights[kw.Term] = kw.Weight
		p.Positions[kw.Term] = kw.Positions
	}
	return p
}

func query(text string) ranker.Query {
	return ranker.Query{Text: text, Keywords: tok.Keywords(text, 20)}
}

func TestNoSourcesIsUnableToAnswer(t *testing.T) {
	e := New(DefaultConfig(), tok)

	r := e.Evaluate(Input{Query: query("评委如何评分"), Answer: "评委按评分标准打分"})
	assert.Equal(t, UnableToAnswer, r.Classification)
	assert.Zero(t, r.Score)

	weak := []ranker.ScoredResult{{Passage: passage(0, "评分"), Score: 1}}
	r = e.Evaluate(Input{Query: query("评分"), Results: weak, Ceiling: 10})
	assert.Equal(t, UnableToAnswer, r.Classification)
	assert.Zero(t, r.Score)
}

func TestAnswerableWithGroundedAnswer(t *testing.T) {
	e := New(DefaultConfig(), tok)
	p := passage(0, "报名时间为3月1日至4月1日")
	in := Input{
		Query:   query("报名时间是什么"),
		Results: []ranker.ScoredResult{{Passage: p, Score: 30}},
		Ceiling: 30,
		Answer:  "报名时间为3月1日至4月1日。",
	}
	r := e.Evaluate(in)
	assert.Equal(t, Answerable, r.Classification)
	assert.Greater(t, r.Score, 0.0)
	assert.LessOrEqual(t, r.Score, 1.0)
	assert.False(t, r.Factors.FabricationRisk)
	assert.Equal(t, 1.0, r.Factors.Overlap)
	assert.Equal(t, 1, r.Factors.SourceCount)
	// (0.5*1 + 0.3*(1/3) + 0.2*1) / 1.0
	assert.InDelta(t, 0.8, r.Score, 1e-4)
}

func TestMonotoneInTopScore(t *testing.T) {
	e := New(DefaultConfig(), tok)
	q := query("报名时间")
	p1 := passage(0, "报名时间为3月")
	p2 := passage(1, "报名时间另行通知")

	prev := -1.0
	for top := 5.0; top <= 100; top += 5 {
		results := []ranker.ScoredResult{
			{Passage: p1, Score: top},
			{Passage: p2, Score: 5},
		}
		r := e.Evaluate(Input{Query: q, Results: results, Ceiling: 80})
		assert.GreaterOrEqual(t, r.Score, prev, "top=%v", top)
		prev = r.Score
	}
}

func TestOverlapCapsConfidence(t *testing.T) {
	e := New(DefaultConfig(), tok)
	q := ranker.Query{Keywords: []tokenizer.Keyword{
		{Term: "报名", Weight: 1}, {Term: "评分", Weight: 1}, {Term: "奖项", Weight: 1}, {Term: "答辩", Weight: 1},
	}}
	results := []ranker.ScoredResult{{Passage: passage(0, "报名开始"), Score: 50}}

	r := e.Evaluate(Input{Query: q, Results: results, Ceiling: 50})
	assert.InDelta(t, 0.25, r.Factors.Overlap, 1e-9)
	assert.InDelta(t, 0.25/0.6, r.Score, 1e-4)
}

func TestFabricationPenalty(t *testing.T) {
	e := New(DefaultConfig(), tok)
	in := Input{
		Query:   query("报名时间"),
		Results: []ranker.ScoredResult{{Passage: passage(0, "报名时间为3月1日至4月1日"), Score: 30}},
		Ceiling: 30,
	}
	grounded := e.Evaluate(in)

	in.Answer = "报名时间为2025年9月15日，需提交PPT"
	fabricated := e.Evaluate(in)
	assert.True(t, fabricated.Factors.FabricationRisk)
	assert.Contains(t, fabricated.Factors.Unsupported, "2025")
	assert.Contains(t, fabricated.Factors.Unsupported, "ppt")
	assert.Greater(t, fabricated.Factors.UnsupportedRatio, 0.3)
	assert.InDelta(t, grounded.Score*0.5, fabricated.Score, 1e-4)
	assert.Equal(t, Answerable, fabricated.Classification)
}

func TestRejectionCapsScore(t *testing.T) {
	e := New(DefaultConfig(), tok)
	r := e.Evaluate(Input{
		Query:   query("报名时间"),
		Results: []ranker.ScoredResult{{Passage: passage(0, "报名时间为3月"), Score: 30}},
		Ceiling: 30,
		Answer:  "抱歉，无法回答这个问题",
	})
	assert.True(t, r.Factors.Rejection)
	assert.LessOrEqual(t, r.Score, 0.2)
}

func TestRestoredPassagesAreReanalyzed(t *testing.T) {
	e := New(DefaultConfig(), tok)
	restored := &index.Passage{ID: "x", Text: "报名时间为3月1日"}
	r := e.Evaluate(Input{
		Query:   query("报名时间"),
		Results: []ranker.ScoredResult{{Passage: restored, Score: 30}},
		Ceiling: 30,
		Answer:  "3月1日",
	})
	require.Equal(t, Answerable, r.Classification)
	assert.Equal(t, 1.0, r.Factors.Overlap)
	assert.False(t, r.Factors.FabricationRisk)
}

func TestOverlapCountsSynonymSupport(t *testing.T) {
	e := New(DefaultConfig(), tok)
	q := ranker.Query{Keywords: []tokenizer.Keyword{
		{Term: "报名", Weight: 2}, {Term: "评分", Weight: 2},
		{Term: "注册", Weight: 1.2, ExpandedFrom: "报名"},
		{Term: "登记", Weight: 1.2, ExpandedFrom: "报名"},
		{Term: "奖金", Weight: 1.2, ExpandedFrom: "奖项"},
	}}
	results := []ranker.ScoredResult{{Passage: passage(0, "注册开始，奖金丰厚"), Score: 50}}

	r := e.Evaluate(Input{Query: q, Results: results, Ceiling: 50})
	// 报名 is supported through 注册; 评分 is not; 奖金 is not a question keyword.
	assert.InDelta(t, 0.5, r.Factors.Overlap, 1e-9)
}

func TestReassessKeepsBaseFactors(t *testing.T) {
	e := New(DefaultConfig(), tok)
	p1 := passage(0, "报名时间为3月1日至4月1日")
	p2 := passage(1, "报名时间另行通知")
	in := Input{
		Query:   query("报名时间"),
		Results: []ranker.ScoredResult{{Passage: p1, Score: 30}, {Passage: p2, Score: 20}},
		Ceiling: 30,
	}
	base := e.Evaluate(in)
	require.Equal(t, Answerable, base.Classification)
	assert.Equal(t, base.Score, base.Factors.Base)

	// Reassessing against the first page only keeps the base factors.
	r := e.Reassess(base, in.Results[:1], "报名时间为3月1日")
	assert.Equal(t, base.Factors.SourceCount, r.Factors.SourceCount)
	assert.Equal(t, base.Factors.Spread, r.Factors.Spread)
	assert.Equal(t, base.Score, r.Score)
	assert.False(t, r.Factors.FabricationRisk)

	in.Answer = "报名时间为3月1日"
	assert.Equal(t, e.Evaluate(in).Score, r.Score)

	fabricated := e.Reassess(base, in.Results[:1], "报名截止2025年9月15日，需提交PPT")
	assert.True(t, fabricated.Factors.FabricationRisk)
	assert.InDelta(t, base.Score*0.5, fabricated.Score, 1e-4)

	rejected := e.Reassess(fabricated, in.Results[:1], "抱歉，无法回答")
	assert.False(t, rejected.Factors.FabricationRisk)
	assert.True(t, rejected.Factors.Rejection)
	assert.LessOrEqual(t, rejected.Score, 0.2)

	unable := e.Reassess(Report{Classification: UnableToAnswer}, in.Results, "报名时间为3月1日")
	assert.Equal(t, UnableToAnswer, unable.Classification)
	assert.Zero(t, unable.Score)
}
