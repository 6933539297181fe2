// Package index holds the immutable corpus index and the builder that
// produces it. A Corpus is never modified after Build returns; rebuilding
// produces a new Corpus that callers swap in atomically.
package index

import (
	"sort"
	"time"
)

// Corpus is the searchable passage collection with per-competition views,
// a global view and an inverted index from term to passages.
type Corpus struct {
	generation uint64
	builtAt    time.Time

	passages []*Passage
	byTag    map[string][]*Passage
	tags     []string
	// postings maps a term to the ascending Seq of passages containing it.
	postings map[string][]int
	// maxCount is the highest match count of a term in any single passage.
	maxCount map[string]int
	// infoTypes counts the passages tagged with each info type.
	infoTypes map[string]int
}

func (c *Corpus) Generation() uint64 { return c.generation }
func (c *Corpus) BuiltAt() time.Time  { return c.builtAt }
func (c *Corpus) Len() int            { return len(c.passages) }

// Tags returns competition tags in lexical order.
func (c *Corpus) Tags() []string {
	out := make([]string, len(c.tags))
	copy(out, c.tags)
	return out
}

func (c *Corpus) HasTag(tag string) bool {
	_, ok := c.byTag[tag]
	return ok
}

// Global returns every passage: tags in lexical order, input order within
// a tag.
func (c *Corpus) Global() []*Passage {
	return c.passages
}

// Tagged returns the passages of one competition in global order.
func (c *Corpus) Tagged(tag string) []*Passage {
	return c.byTag[tag]
}

// MaxCount returns the largest per-passage match count of term.
func (c *Corpus) MaxCount(term string) int {
	return c.maxCount[term]
}

// HasInfoType reports whether any passage is tagged with t.
func (c *Corpus) HasInfoType(t string) bool {
	return c.infoTypes[t] > 0
}

// Candidates returns the passages sharing at least one of terms, in global
// order. An empty tag selects the global view.
func (c *Corpus) Candidates(terms []string, tag string) []*Passage {
	seen := make(map[int]struct{})
	for _, term := range terms {
		for _, seq := range c.postings[term] {
			seen[seq] = struct{}{}
		}
	}
	seqs := make([]int, 0, len(seen))
	for seq := range seen {
		if tag != "" && c.passages[seq].Competition != tag {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	out := make([]*Passage, len(seqs))
	for i, seq := range seqs {
		out[i] = c.passages[seq]
	}
	return out
}

// Stats is a diagnostic summary of the corpus.
type Stats struct {
	Generation   uint64         `json:"generation"`
	BuiltAt      time.Time      `json:"built_at"`
	Passages     int            `json:"passages"`
	Terms        int            `json:"terms"`
	Documents    int            `json:"documents"`
	Competitions map[string]int `json:"competitions"`
	Embedded     int            `json:"embedded"`
	AvgLength    float64        `json:"avg_length"`
	InfoTypes    map[string]int `json:"info_types,omitempty"`
}

func (c *Corpus) Stats() Stats {
	s := Stats{
		Generation:   c.generation,
		BuiltAt:      c.builtAt,
		Passages:     len(c.passages),
		Terms:        len(c.postings),
		Competitions: make(map[string]int, len(c.byTag)),
	}
	docs := make(map[string]struct{})
	total := 0
	for _, p := range c.passages {
		docs[p.Document] = struct{}{}
		total += p.Length
		if len(p.Vector) > 0 {
			s.Embedded++
		}
	}
	for tag, ps := range c.byTag {
		s.Competitions[tag] = len(ps)
	}
	if len(c.infoTypes) > 0 {
		s.InfoTypes = make(map[string]int, len(c.infoTypes))
		for t, n := range c.infoTypes {
			s.InfoTypes[t] = n
		}
	}
	s.Documents = len(docs)
	if len(c.passages) > 0 {
		s.AvgLength = float64(total) / float64(len(c.passages))
	}
	return s
}
