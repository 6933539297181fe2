package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segmenter splits text into candidate tokens. Tag is left empty; the
// Tagger assigns it.
type Segmenter interface {
	Segment(text string) []Token
}

// Lexicon is a set of domain terms that segment as whole words and are
// tagged as proper terms.
type Lexicon struct {
	terms  map[string]struct{}
	maxLen int
}

func NewLexicon(terms ...string) *Lexicon {
	l := &Lexicon{terms: make(map[string]struct{}, len(terms))}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		l.terms[term] = struct{}{}
		if n := utf8.RuneCountInString(term); n > l.maxLen {
			l.maxLen = n
		}
	}
	return l
}

// Has reports whether term is a lexicon entry. The nil *Lexicon is empty.
func (l *Lexicon) Has(term string) bool {
	if l == nil {
		return false
	}
	_, ok := l.terms[term]
	return ok
}

func (l *Lexicon) Len() int {
	if l == nil {
		return 0
	}
	return len(l.terms)
}

// DefaultTerms are competition stages, elements, content and deliverables.
func DefaultTerms() []string {
	return []string{
		"报名", "初赛", "复赛", "决赛", "作品提交", "结果公布", "颁奖", "开幕式", "闭幕式", "答辩", "评审",
		"参赛资格", "参赛条件", "参赛要求", "参赛流程", "参赛对象", "参赛组别", "评分标准", "评分规则",
		"奖项设置", "报名方式", "报名费用", "报名时间", "报名截止", "比赛时间", "比赛流程", "提交要求",
		"提交方式", "提交时间", "评审方式", "评审标准", "截止日期", "获奖条件", "时间安排", "内容要求",
		"作品要求", "官方网站", "联系方式",
		"赛题", "题目", "任务", "要求", "目标", "创新点", "技术路线", "解决方案", "实现方法", "评价指标", "验收标准",
		"论文", "代码", "设计", "模型", "方案", "报告", "演示", "展示", "ppt", "视频", "海报",
	}
}

// RunSegmenter splits text into script runs. Latin and digit runs become
// single lower-cased tokens. Han runs yield every overlapping bigram plus
// any lexicon term longer than two runes starting at each offset.
type RunSegmenter struct {
	lexicon *Lexicon
}

func NewRunSegmenter(lexicon *Lexicon) *RunSegmenter {
	return &RunSegmenter{lexicon: lexicon}
}

func (s *RunSegmenter) Segment(text string) []Token {
	runes := []rune(text)
	tokens := make([]Token, 0, len(runes))
	for i := 0; i < len(runes); {
		switch r := runes[i]; {
		case isHan(r):
			j := i
			for j < len(runes) && isHan(runes[j]) {
				j++
			}
			tokens = s.appendHan(tokens, runes[i:j], i)
			i = j
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i
			for j < len(runes) && !isHan(runes[j]) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			tokens = append(tokens, Token{Term: strings.ToLower(string(runes[i:j])), Position: i})
			i = j
		default:
			i++
		}
	}
	return tokens
}

func (s *RunSegmenter) appendHan(tokens []Token, run []rune, offset int) []Token {
	if len(run) == 1 {
		if term := string(run); s.lexicon.Has(term) {
			tokens = append(tokens, Token{Term: term, Position: offset})
		}
		return tokens
	}
	maxLen := 0
	if s.lexicon != nil {
		maxLen = s.lexicon.maxLen
	}
	for i := 0; i < len(run); i++ {
		for l := min(maxLen, len(run)-i); l > 2; l-- {
			if term := string(run[i : i+l]); s.lexicon.Has(term) {
				tokens = append(tokens, Token{Term: term, Position: offset + i})
			}
		}
		if i+1 < len(run) {
			tokens = append(tokens, Token{Term: string(run[i : i+2]), Position: offset + i})
		}
	}
	return tokens
}

func isHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
