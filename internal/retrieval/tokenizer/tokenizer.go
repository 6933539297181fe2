// Package tokenizer turns raw text into weighted keyword sets. Segmentation
// and part-of-speech tagging are pluggable; the defaults split text into
// script runs, emit overlapping Han bigrams plus domain lexicon terms, and
// tag tokens from the lexicon and character classes.
package tokenizer

import (
	"math"
	"sort"
	"unicode/utf8"
)

// Token is a single tagged term and the rune offset where it starts.
type Token struct {
	Term     string
	Position int
	Tag      Tag
}

// Keyword is an extracted term with its weight and every position it occurs
// at, in ascending order.
type Keyword struct {
	Term      string  `json:"term"`
	Tag       Tag     `json:"tag"`
	Weight    float64 `json:"weight"`
	Positions []int   `json:"-"`
	// ExpandedFrom names the question term a synonym keyword stands in
	// for; it is empty for terms that occur in the text.
	ExpandedFrom string `json:"expanded_from,omitempty"`
}

// StopwordFilter is satisfied by *stopwords.Set.
type StopwordFilter interface {
	Contains(term string) bool
}

// Config controls filtering and weighting.
type Config struct {
	// MinTokenLength is measured in runes. Numerals and lexicon terms are
	// kept regardless.
	MinTokenLength int
	// HeadWindow is the number of leading runes whose tokens get HeadBonus.
	HeadWindow int
	HeadBonus  float64
	// TermBonus multiplies the weight of lexicon terms.
	TermBonus float64
	StemLatin bool
	KeepTags  []Tag
	// SynonymWeight scales an expanded keyword's weight relative to the
	// term it was expanded from.
	SynonymWeight float64
}

func DefaultConfig() Config {
	return Config{
		MinTokenLength: 2,
		HeadWindow:     30,
		HeadBonus:      1.5,
		TermBonus:      1.5,
		StemLatin:      true,
		KeepTags:       []Tag{TagNoun, TagTerm, TagEnglish, TagNumeral, TagVerb, TagAdjective},
		SynonymWeight:  0.6,
	}
}

// Tokenizer is immutable after construction and safe for concurrent use.
type Tokenizer struct {
	cfg       Config
	segmenter Segmenter
	tagger    Tagger
	stop      StopwordFilter
	synonyms  *Synonyms
	keep      map[Tag]bool
}

type Option func(*Tokenizer)

func WithSegmenter(s Segmenter) Option {
	return func(t *Tokenizer) { t.segmenter = s }
}

func WithTagger(tg Tagger) Option {
	return func(t *Tokenizer) { t.tagger = tg }
}

func WithStopwords(f StopwordFilter) Option {
	return func(t *Tokenizer) { t.stop = f }
}

// WithSynonyms enables keyword expansion in QueryKeywords.
func WithSynonyms(s *Synonyms) Option {
	return func(t *Tokenizer) { t.synonyms = s }
}

// New creates a Tokenizer using the run segmenter and lexicon tagger over
// lexicon unless options replace them.
func New(cfg Config, lexicon *Lexicon, opts ...Option) *Tokenizer {
	defaults := DefaultConfig()
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = defaults.MinTokenLength
	}
	if cfg.HeadWindow <= 0 {
		cfg.HeadWindow = defaults.HeadWindow
	}
	if cfg.HeadBonus <= 0 {
		cfg.HeadBonus = defaults.HeadBonus
	}
	if cfg.TermBonus <= 0 {
		cfg.TermBonus = defaults.TermBonus
	}
	if len(cfg.KeepTags) == 0 {
		cfg.KeepTags = defaults.KeepTags
	}
	if cfg.SynonymWeight <= 0 || cfg.SynonymWeight > 1 {
		cfg.SynonymWeight = defaults.SynonymWeight
	}
	t := &Tokenizer{
		cfg:       cfg,
		segmenter: NewRunSegmenter(lexicon),
		tagger:    NewLexiconTagger(lexicon),
		keep:      make(map[Tag]bool, len(cfg.KeepTags)),
	}
	for _, tag := range cfg.KeepTags {
		t.keep[tag] = true
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tokenize segments, tags and filters text. Tokens are returned in
// position order.
func (t *Tokenizer) Tokenize(text string) []Token {
	raw := t.segmenter.Segment(text)
	tokens := make([]Token, 0, len(raw))
	for _, tok := range raw {
		tag := t.tagger.Tag(tok.Term)
		if !t.keep[tag] {
			continue
		}
		if tag != TagNumeral && tag != TagTerm && utf8.RuneCountInString(tok.Term) < t.cfg.MinTokenLength {
			continue
		}
		if t.stop != nil && t.stop.Contains(tok.Term) {
			continue
		}
		term := tok.Term
		if tag == TagEnglish && t.cfg.StemLatin {
			term = stem(term)
		}
		tokens = append(tokens, Token{Term: term, Position: tok.Position, Tag: tag})
	}
	return tokens
}

// Keywords extracts the weighted keyword set of text, ordered by descending
// weight then term. A positive limit keeps only the heaviest keywords.
func (t *Tokenizer) Keywords(text string, limit int) []Keyword {
	tokens := t.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	byTerm := make(map[string]*Keyword)
	for _, tok := range tokens {
		kw, ok := byTerm[tok.Term]
		if !ok {
			kw = &Keyword{Term: tok.Term, Tag: tok.Tag}
			byTerm[tok.Term] = kw
		}
		kw.Positions = append(kw.Positions, tok.Position)
	}
	keywords := make([]Keyword, 0, len(byTerm))
	for _, kw := range byTerm {
		kw.Weight = t.weight(kw)
		keywords = append(keywords, *kw)
	}
	SortKeywords(keywords)
	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

// QueryKeywords extracts the keywords of a question and appends the
// synonyms of each. An expanded keyword carries the weight of its source
// scaled by SynonymWeight; terms already in the question, stopwords and
// function words are not added. The limit applies before expansion.
func (t *Tokenizer) QueryKeywords(text string, limit int) []Keyword {
	keywords := t.Keywords(text, limit)
	if t.synonyms == nil || len(keywords) == 0 {
		return keywords
	}
	present := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		present[kw.Term] = true
	}
	expanded := make(map[string]*Keyword)
	var order []string
	for _, kw := range keywords {
		for _, term := range t.synonyms.Expand(kw.Term) {
			if present[term] || (t.stop != nil && t.stop.Contains(term)) {
				continue
			}
			tag := t.tagger.Tag(term)
			if tag == TagFunction {
				continue
			}
			weight := Round(kw.Weight * t.cfg.SynonymWeight)
			if prev, ok := expanded[term]; ok {
				if weight > prev.Weight {
					prev.Weight, prev.ExpandedFrom = weight, kw.Term
				}
				continue
			}
			expanded[term] = &Keyword{Term: term, Tag: tag, Weight: weight, ExpandedFrom: kw.Term}
			order = append(order, term)
		}
	}
	for _, term := range order {
		keywords = append(keywords, *expanded[term])
	}
	SortKeywords(keywords)
	return keywords
}

func (t *Tokenizer) weight(kw *Keyword) float64 {
	w := LengthFactor(kw.Term) * (1 + math.Min(float64(len(kw.Positions))/10, 1))
	if kw.Positions[0] < t.cfg.HeadWindow {
		w *= t.cfg.HeadBonus
	}
	if kw.Tag == TagTerm {
		w *= t.cfg.TermBonus
	}
	return Round(w)
}

// LengthFactor rewards longer, more specific terms: 1 + min(runes/5, 2).
func LengthFactor(term string) float64 {
	return 1 + math.Min(float64(utf8.RuneCountInString(term))/5, 2)
}

// SortKeywords orders keywords by descending weight, breaking ties on term.
func SortKeywords(keywords []Keyword) {
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Weight != keywords[j].Weight {
			return keywords[i].Weight > keywords[j].Weight
		}
		return keywords[i].Term < keywords[j].Term
	})
}

// Round truncates scores to four decimals so equal inputs compare equal.
func Round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
