package index

// RawPassage is a pre-segmented unit of source text as delivered by a
// passage source. Competition may be empty; the builder then detects it.
type RawPassage struct {
	ID          string `json:"id" yaml:"id"`
	Document    string `json:"document" yaml:"document"`
	Competition string `json:"competition" yaml:"competition"`
	Page        int    `json:"page" yaml:"page"`
	Text        string `json:"text" yaml:"text"`
}

// Passage is an indexed passage. Its token data is computed once at build
// time and never mutated afterwards.
type Passage struct {
	ID          string `json:"id"`
	Document    string `json:"document"`
	Competition string `json:"competition"`
	Page        int    `json:"page"`
	Text        string `json:"text"`
	// Seq is the passage's position in the global view.
	Seq int `json:"seq"`
	// Length is the text length in runes.
	Length int `json:"length"`
	// InfoTypes are the kinds of information the passage holds, sorted.
	InfoTypes []string `json:"info_types,omitempty"`

	Weights   map[string]float64 `json:"-"`
	Positions map[string][]int   `json:"-"`
	Vector    []float32          `json:"-"`
}

// Count returns how many times term occurs in the passage.
func (p *Passage) Count(term string) int {
	return len(p.Positions[term])
}

// First returns the rune offset of the first occurrence of term, or -1.
func (p *Passage) First(term string) int {
	pos := p.Positions[term]
	if len(pos) == 0 {
		return -1
	}
	return pos[0]
}

// HasInfoType reports whether the passage is tagged with t.
func (p *Passage) HasInfoType(t string) bool {
	for _, have := range p.InfoTypes {
		if have == t {
			return true
		}
	}
	return false
}

// Has reports whether term is in the passage's token set.
func (p *Passage) Has(term string) bool {
	_, ok := p.Weights[term]
	return ok
}
