// Package confidence estimates how far an answer assembled from retrieved
// passages can be trusted.
package confidence

import (
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/ranker"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/tokenizer"
)

type Classification string

const (
	Answerable     Classification = "answerable"
	UnableToAnswer Classification = "unable_to_answer"
)

type Factors struct {
	SourceCount  int     `json:"source_count"`
	SourceFactor float64 `json:"source_factor"`
	Quality      float64 `json:"quality"`
	Spread       float64 `json:"spread"`
	Overlap      float64 `json:"overlap"`
	// Base is the score before the answer penalties.
	Base float64 `json:"base"`
	// FabricationRisk is set when too much of the answer's entities are
	// absent from every retrieved passage.
	FabricationRisk  bool     `json:"fabrication_risk"`
	UnsupportedRatio float64  `json:"unsupported_ratio"`
	Unsupported      []string `json:"unsupported,omitempty"`
	Rejection        bool     `json:"rejection"`
}

type Report struct {
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
	Factors        Factors        `json:"factors"`
}

type Config struct {
	// MinScore is the relevance a result needs to count as a source.
	MinScore         float64
	SourceSaturation int
	QualityWeight    float64
	SourceWeight     float64
	SpreadWeight     float64
	// OverlapFloor is the keyword-overlap fraction below which confidence
	// is capped proportionally.
	OverlapFloor         float64
	FabricationThreshold float64
	FabricationPenalty   float64
	EntityTags           []tokenizer.Tag
	// RejectionPhrases mark answers that decline to answer; such answers
	// are capped at RejectionCap.
	RejectionPhrases []string
	RejectionCap     float64
}

func DefaultConfig() Config {
	return Config{
		MinScore:             4.0,
		SourceSaturation:     3,
		QualityWeight:        0.5,
		SourceWeight:         0.3,
		SpreadWeight:         0.2,
		OverlapFloor:         0.6,
		FabricationThreshold: 0.3,
		FabricationPenalty:   0.5,
		EntityTags:           []tokenizer.Tag{tokenizer.TagNumeral, tokenizer.TagEnglish, tokenizer.TagTerm},
		RejectionPhrases:     []string{"无法回答", "无法提供", "抱歉", "找不到", "没有相关", "不知道", "未找到"},
		RejectionCap:         0.2,
	}
}

// Input is everything a confidence judgement is based on. Ceiling is the
// best score the query could reach in the current corpus.
type Input struct {
	Query   ranker.Query
	Results []ranker.ScoredResult
	Ceiling float64
	Answer  string
}

type Evaluator struct {
	cfg      Config
	tok      *tokenizer.Tokenizer
	entities map[tokenizer.Tag]bool
}

// New creates an Evaluator. tok analyzes answer text and any passage that
// arrives without precomputed tokens.
func New(cfg Config, tok *tokenizer.Tokenizer) *Evaluator {
	d := DefaultConfig()
	if cfg.MinScore <= 0 {
		cfg.MinScore = d.MinScore
	}
	if cfg.SourceSaturation <= 0 {
		cfg.SourceSaturation = d.SourceSaturation
	}
	if cfg.QualityWeight <= 0 && cfg.SourceWeight <= 0 && cfg.SpreadWeight <= 0 {
		cfg.QualityWeight, cfg.SourceWeight, cfg.SpreadWeight = d.QualityWeight, d.SourceWeight, d.SpreadWeight
	}
	if cfg.OverlapFloor <= 0 {
		cfg.OverlapFloor = d.OverlapFloor
	}
	if cfg.FabricationThreshold <= 0 {
		cfg.FabricationThreshold = d.FabricationThreshold
	}
	if cfg.FabricationPenalty <= 0 {
		cfg.FabricationPenalty = d.FabricationPenalty
	}
	if len(cfg.EntityTags) == 0 {
		cfg.EntityTags = d.EntityTags
	}
	if cfg.RejectionPhrases == nil {
		cfg.RejectionPhrases = d.RejectionPhrases
	}
	if cfg.RejectionCap <= 0 {
		cfg.RejectionCap = d.RejectionCap
	}
	e := &Evaluator{cfg: cfg, tok: tok, entities: make(map[tokenizer.Tag]bool)}
	for _, tag := range cfg.EntityTags {
		e.entities[tag] = true
	}
	return e
}

// Evaluate combines source count, top-score quality and score spread into
// a base score, caps it by keyword overlap, then applies the fabrication
// and rejection penalties. With no result at or above MinScore the report
// is UnableToAnswer with score 0 whatever the answer says.
func (e *Evaluator) Evaluate(in Input) Report {
	sources := e.sources(in.Results)
	if len(sources) == 0 {
		return Report{Score: 0, Classification: UnableToAnswer}
	}

	f := Factors{SourceCount: len(sources)}
	f.SourceFactor = float64(min(len(sources), e.cfg.SourceSaturation)) / float64(e.cfg.SourceSaturation)

	top := sources[0].Score
	if in.Ceiling > 0 {
		f.Quality = clamp(top / in.Ceiling)
	}
	f.Spread = 1
	if len(sources) > 1 {
		f.Spread = clamp((top - sources[1].Score) / top)
	}

	support := e.supportSets(sources)
	f.Overlap = overlap(in.Query.Keywords, support)

	weights := e.cfg.QualityWeight + e.cfg.SourceWeight + e.cfg.SpreadWeight
	score := (e.cfg.QualityWeight*f.Quality + e.cfg.SourceWeight*f.SourceFactor + e.cfg.SpreadWeight*f.Spread) / weights
	score = math.Min(score, math.Min(1, f.Overlap/e.cfg.OverlapFloor))
	f.Base = tokenizer.Round(clamp(score))

	f.Quality = tokenizer.Round(f.Quality)
	f.Spread = tokenizer.Round(f.Spread)
	f.Overlap = tokenizer.Round(f.Overlap)
	f.SourceFactor = tokenizer.Round(f.SourceFactor)
	return e.penalize(f, in.Answer, support)
}

// Reassess applies the answer penalties to a report computed without an
// answer. The base factors are kept; the answer is checked against the
// sources among results, which may be a truncated page of the list the
// base report was computed on.
func (e *Evaluator) Reassess(base Report, results []ranker.ScoredResult, answer string) Report {
	if base.Classification != Answerable {
		return Report{Score: 0, Classification: UnableToAnswer}
	}
	f := base.Factors
	f.FabricationRisk, f.UnsupportedRatio, f.Unsupported, f.Rejection = false, 0, nil, false
	return e.penalize(f, answer, e.supportSets(e.sources(results)))
}

func (e *Evaluator) penalize(f Factors, answer string, support []tokenSet) Report {
	score := f.Base
	if strings.TrimSpace(answer) != "" {
		f.Unsupported, f.UnsupportedRatio = e.unsupported(answer, support)
		if f.UnsupportedRatio > e.cfg.FabricationThreshold {
			f.FabricationRisk = true
			score *= 1 - e.cfg.FabricationPenalty
		}
		for _, phrase := range e.cfg.RejectionPhrases {
			if phrase != "" && strings.Contains(answer, phrase) {
				f.Rejection = true
				score = math.Min(score, e.cfg.RejectionCap)
				break
			}
		}
	}
	f.UnsupportedRatio = tokenizer.Round(f.UnsupportedRatio)
	return Report{
		Score:          tokenizer.Round(clamp(score)),
		Classification: Answerable,
		Factors:        f,
	}
}

func (e *Evaluator) sources(results []ranker.ScoredResult) []ranker.ScoredResult {
	var sources []ranker.ScoredResult
	for _, r := range results {
		if r.Score >= e.cfg.MinScore {
			sources = append(sources, r)
		}
	}
	return sources
}

type tokenSet interface {
	Has(term string) bool
}

type termSet map[string]struct{}

func (s termSet) Has(term string) bool {
	_, ok := s[term]
	return ok
}

// supportSets returns the token set of each source, re-analyzing passages
// that were restored without their precomputed tokens.
func (e *Evaluator) supportSets(sources []ranker.ScoredResult) []tokenSet {
	sets := make([]tokenSet, 0, len(sources))
	for _, r := range sources {
		if r.Passage == nil {
			continue
		}
		if r.Passage.Weights != nil {
			sets = append(sets, r.Passage)
			continue
		}
		sets = append(sets, e.analyze(r.Passage))
	}
	return sets
}

func (e *Evaluator) analyze(p *index.Passage) termSet {
	set := make(termSet)
	for _, tok := range e.tok.Tokenize(p.Text) {
		set[tok.Term] = struct{}{}
	}
	return set
}

func supported(term string, sets []tokenSet) bool {
	for _, s := range sets {
		if s.Has(term) {
			return true
		}
	}
	return false
}

// overlap is the fraction of the question's own keywords found in some
// source. A keyword also counts when one of its synonyms is found;
// synonyms are not counted on their own.
func overlap(keywords []tokenizer.Keyword, sets []tokenSet) float64 {
	expansions := make(map[string][]string)
	for _, kw := range keywords {
		if kw.ExpandedFrom != "" {
			expansions[kw.ExpandedFrom] = append(expansions[kw.ExpandedFrom], kw.Term)
		}
	}
	hit, total := 0, 0
	for _, kw := range keywords {
		if kw.ExpandedFrom != "" {
			continue
		}
		total++
		if supported(kw.Term, sets) {
			hit++
			continue
		}
		for _, syn := range expansions[kw.Term] {
			if supported(syn, sets) {
				hit++
				break
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}

// unsupported lists the answer's entity terms found in no source.
func (e *Evaluator) unsupported(answer string, sets []tokenSet) ([]string, float64) {
	seen := make(map[string]bool)
	var missing []string
	total := 0
	for _, tok := range e.tok.Tokenize(answer) {
		if !e.entities[tok.Tag] || seen[tok.Term] {
			continue
		}
		seen[tok.Term] = true
		total++
		if !supported(tok.Term, sets) {
			missing = append(missing, tok.Term)
		}
	}
	if total == 0 {
		return nil, 0
	}
	return missing, float64(len(missing)) / float64(total)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
