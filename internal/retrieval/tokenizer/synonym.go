package tokenizer

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Synonyms groups interchangeable terms. A term may belong to several
// groups; expanding it yields every other member of each.
type Synonyms struct {
	groups [][]string
	member map[string][]int
}

// DefaultSynonyms are the competition elements questions and handbooks
// most often phrase differently.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"比赛": {"竞赛", "大赛", "赛事", "contest", "competition"},
		"专项赛": {"专项竞赛", "赛项"},
		"报名": {"注册", "登记", "registration", "register"},
		"要求": {"条件", "资格", "criteria", "requirement"},
		"时间": {"日期", "期限", "截止日期", "deadline", "date"},
		"评分": {"打分", "评判", "评价", "评审", "score", "evaluation"},
		"奖项": {"奖励", "奖金", "获奖", "荣誉", "prize", "award"},
		"材料": {"作品", "提交物", "文档", "submission"},
	}
}

// NewSynonyms builds groups from head terms and their synonyms. Terms are
// lower-cased; English words are stemmed the way the tokenizer stems them.
// Multi-word entries are dropped since the segmenter never emits them.
func NewSynonyms(table map[string][]string) *Synonyms {
	heads := make([]string, 0, len(table))
	for head := range table {
		heads = append(heads, head)
	}
	sort.Strings(heads)

	s := &Synonyms{member: make(map[string][]int)}
	for _, head := range heads {
		seen := make(map[string]bool)
		var group []string
		for _, term := range append([]string{head}, table[head]...) {
			term = normalizeTerm(term)
			if term == "" || seen[term] {
				continue
			}
			seen[term] = true
			group = append(group, term)
		}
		if len(group) < 2 {
			continue
		}
		idx := len(s.groups)
		s.groups = append(s.groups, group)
		for _, term := range group {
			s.member[term] = append(s.member[term], idx)
		}
	}
	return s
}

func normalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" || strings.ContainsAny(term, " \t") {
		return ""
	}
	if isLatin(term) {
		return stem(term)
	}
	return term
}

// Expand returns the synonyms of term in group order, without term itself.
// The nil *Synonyms expands nothing.
func (s *Synonyms) Expand(term string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, idx := range s.member[term] {
		for _, other := range s.groups[idx] {
			if other != term {
				out = append(out, other)
			}
		}
	}
	return out
}

// Terms lists every term of every group.
func (s *Synonyms) Terms() []string {
	if s == nil {
		return nil
	}
	terms := make([]string, 0, len(s.member))
	for term := range s.member {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// LexiconTerms are the Han synonyms longer than a bigram. The segmenter
// only emits such terms when they are lexicon entries, so they must be
// added to the lexicon for an expansion to ever match.
func (s *Synonyms) LexiconTerms() []string {
	var out []string
	for _, term := range s.Terms() {
		if utf8.RuneCountInString(term) > 2 && !isLatin(term) {
			out = append(out, term)
		}
	}
	return out
}

func isLatin(term string) bool {
	for _, r := range term {
		if isHan(r) {
			return false
		}
	}
	return true
}
