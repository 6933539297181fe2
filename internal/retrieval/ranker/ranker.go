package ranker

import (
	"log/slog"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/semantic"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/tokenizer"
)

// Query is an analyzed question. Vector is set only when semantic scoring
// is available; InfoType only when the question was classified.
type Query struct {
	Text     string
	Keywords []tokenizer.Keyword
	Vector   []float32
	InfoType string
}

// Terms returns the keyword terms in weight order.
func (q Query) Terms() []string {
	out := make([]string, len(q.Keywords))
	for i, kw := range q.Keywords {
		out[i] = kw.Term
	}
	return out
}

type ScoredResult struct {
	Passage *index.Passage `json:"passage"`
	Score   float64        `json:"score"`
	Lexical float64        `json:"lexical"`
	// Similarity is the cosine similarity used in the semantic blend.
	Similarity float64  `json:"similarity,omitempty"`
	Matched    []string `json:"matched"`
	// InfoTypeMatch reports whether the passage holds the kind of
	// information the question asks for.
	InfoTypeMatch bool `json:"info_type_match,omitempty"`
}

type Config struct {
	// LeadWindow is the passage prefix, in runes, treated as its first
	// segment.
	LeadWindow int
	LeadBonus  float64
	// PhraseBoosts multiplies the contribution of specific keywords.
	PhraseBoosts map[string]float64
	// SemanticWeight scales the embedding-similarity blend; zero disables it.
	SemanticWeight float64
	// InfoTypeBoost multiplies the score of passages tagged with the info
	// type the question asks for. 1 disables it.
	InfoTypeBoost float64
}

func DefaultConfig() Config {
	return Config{
		LeadWindow:    200,
		LeadBonus:     1.5,
		PhraseBoosts:  DefaultPhraseBoosts(),
		InfoTypeBoost: 1.3,
	}
}

// DefaultPhraseBoosts are the critical phrases of competition questions.
func DefaultPhraseBoosts() map[string]float64 {
	return map[string]float64{
		"报名截止": 3.0, "提交时间": 2.8, "参赛要求": 2.7, "参赛资格": 2.5, "参赛对象": 2.5,
		"评分标准": 2.5, "评审方式": 2.3, "奖项设置": 2.3, "比赛流程": 2.2, "官方网站": 2.0,
		"联系方式": 2.0, "介绍": 2.0, "简介": 2.0, "要求": 1.8, "标准": 1.7,
		"截止日期": 2.5, "评分规则": 2.3, "作品提交": 2.5, "参赛条件": 2.5, "参赛组别": 2.3,
		"获奖条件": 2.2, "奖金": 2.0, "时间安排": 2.3, "内容要求": 2.2, "报名方式": 2.3,
		"作品要求": 2.5,
	}
}

// Scorer ranks passages against a query. Scores are sums of non-negative
// per-keyword contributions, so adding keywords never lowers a passage's
// score.
type Scorer struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Scorer {
	defaults := DefaultConfig()
	if cfg.LeadWindow <= 0 {
		cfg.LeadWindow = defaults.LeadWindow
	}
	if cfg.LeadBonus <= 0 {
		cfg.LeadBonus = defaults.LeadBonus
	}
	if cfg.PhraseBoosts == nil {
		cfg.PhraseBoosts = defaults.PhraseBoosts
	}
	if cfg.SemanticWeight < 0 {
		cfg.SemanticWeight = 0
	}
	if cfg.InfoTypeBoost <= 0 {
		cfg.InfoTypeBoost = defaults.InfoTypeBoost
	}
	if cfg.InfoTypeBoost < 1 {
		cfg.InfoTypeBoost = 1
	}
	return &Scorer{
		cfg:    cfg,
		logger: slog.Default().With("component", "scorer"),
	}
}

// Score ranks candidates by descending score with ties broken on global
// order. Passages sharing no keyword are omitted. A positive limit
// truncates the ranked list.
func (s *Scorer) Score(q Query, candidates []*index.Passage, limit int) []ScoredResult {
	results := make([]ScoredResult, 0, len(candidates))
	for _, p := range candidates {
		var total float64
		var matched []string
		for _, kw := range q.Keywords {
			c := s.contribution(kw, p.Count(kw.Term), p.First(kw.Term))
			if c <= 0 {
				continue
			}
			total += c
			matched = append(matched, kw.Term)
		}
		if len(matched) == 0 {
			continue
		}
		r := ScoredResult{Passage: p, Lexical: tokenizer.Round(total), Matched: matched}
		if s.cfg.SemanticWeight > 0 && len(q.Vector) > 0 && len(p.Vector) > 0 {
			r.Similarity = tokenizer.Round(semantic.Cosine(q.Vector, p.Vector))
			total *= 1 + s.cfg.SemanticWeight*math.Max(r.Similarity, 0)
		}
		if q.InfoType != "" && p.HasInfoType(q.InfoType) {
			total *= s.cfg.InfoTypeBoost
			r.InfoTypeMatch = true
		}
		r.Score = tokenizer.Round(total)
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Passage.Seq < results[j].Passage.Seq
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Ceiling is the best score q could reach in corpus: every keyword at its
// highest per-passage match count inside the lead window, boosted when
// some passage holds the requested info type.
func (s *Scorer) Ceiling(q Query, corpus *index.Corpus) float64 {
	var total float64
	for _, kw := range q.Keywords {
		total += s.contribution(kw, corpus.MaxCount(kw.Term), 0)
	}
	if s.cfg.SemanticWeight > 0 && len(q.Vector) > 0 {
		total *= 1 + s.cfg.SemanticWeight
	}
	if q.InfoType != "" && corpus.HasInfoType(q.InfoType) {
		total *= s.cfg.InfoTypeBoost
	}
	return tokenizer.Round(total)
}

func (s *Scorer) contribution(kw tokenizer.Keyword, count, first int) float64 {
	if count <= 0 || kw.Weight <= 0 {
		return 0
	}
	c := kw.Weight * float64(count) * tokenizer.LengthFactor(kw.Term)
	if first >= 0 && first < s.cfg.LeadWindow {
		c *= s.cfg.LeadBonus
	}
	if boost, ok := s.cfg.PhraseBoosts[kw.Term]; ok && boost > 0 {
		c *= boost
	}
	return c
}
