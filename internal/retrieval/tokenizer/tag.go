package tokenizer

import "unicode"

// Tag is a coarse part-of-speech label.
type Tag string

const (
	TagNoun      Tag = "n"
	TagTerm      Tag = "nz"
	TagEnglish   Tag = "eng"
	TagNumeral   Tag = "m"
	TagVerb      Tag = "v"
	TagAdjective Tag = "a"
	TagFunction  Tag = "u"
)

// Tagger labels a segmented term.
type Tagger interface {
	Tag(term string) Tag
}

// functionChars are particles, pronouns and connectives; a Han bigram that
// contains one is grammatical glue rather than content.
var functionChars = map[rune]bool{
	'的': true, '了': true, '是': true, '在': true, '和': true, '与': true, '或': true,
	'为': true, '及': true, '吗': true, '呢': true, '么': true, '吧': true, '啊': true,
	'着': true, '把': true, '被': true, '之': true, '其': true, '这': true, '那': true,
	'哪': true, '也': true, '都': true, '就': true, '而': true, '并': true, '但': true,
	'至': true, '于': true, '由': true, '我': true, '你': true, '他': true, '她': true,
}

// LexiconTagger tags lexicon entries as TagTerm and classifies everything
// else by character class.
type LexiconTagger struct {
	lexicon *Lexicon
}

func NewLexiconTagger(lexicon *Lexicon) *LexiconTagger {
	return &LexiconTagger{lexicon: lexicon}
}

func (t *LexiconTagger) Tag(term string) Tag {
	if t.lexicon.Has(term) {
		return TagTerm
	}
	digits, han := true, false
	for _, r := range term {
		if !unicode.IsDigit(r) {
			digits = false
		}
		if isHan(r) {
			han = true
			if functionChars[r] {
				return TagFunction
			}
		}
	}
	switch {
	case digits:
		return TagNumeral
	case !han:
		return TagEnglish
	default:
		return TagNoun
	}
}
