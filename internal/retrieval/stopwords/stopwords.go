// Package stopwords holds the low-information token list consulted by the
// tokenizer. A list is loaded once at start-up; a missing or empty source
// disables filtering instead of failing.
package stopwords

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"
)

// defaultWords covers Chinese question scaffolding plus the English function
// words the old tokenizer dropped.
var defaultWords = []string{
	"什么", "如何", "怎么", "怎样", "哪些", "哪个", "哪里", "多少", "是否",
	"请问", "一下", "可以", "能否", "我们", "你们", "他们", "这个", "那个",
	"以及", "还是", "或者", "关于", "有关", "进行", "具体", "情况", "相关",
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "has",
	"he", "in", "is", "it", "its", "of", "on", "or", "that", "the", "to",
	"was", "were", "will", "with", "this", "but", "they", "have", "had",
	"what", "when", "where", "who", "which", "their", "if", "each", "do",
	"not", "no", "so", "can", "how",
}

// Set is an immutable stopword set. The nil *Set filters nothing.
type Set struct {
	words map[string]struct{}
}

// New builds a Set from the given words, ignoring blanks.
func New(words ...string) *Set {
	s := &Set{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		s.words[w] = struct{}{}
	}
	return s
}

// Default returns the built-in list.
func Default() *Set {
	return New(defaultWords...)
}

// Load reads a stopword file. An empty path selects the built-in list. A
// file that cannot be read, or that holds no words, yields an empty Set so
// that requests keep working without filtering.
func Load(path string) *Set {
	logger := slog.Default().With("component", "stopwords")
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("stopword list unavailable, filtering disabled", "path", path, "error", err)
		return New()
	}
	defer f.Close()

	words, err := Parse(f)
	if err != nil {
		logger.Warn("stopword list unreadable, filtering disabled", "path", path, "error", err)
		return New()
	}
	set := New(words...)
	if set.Len() == 0 {
		logger.Warn("stopword list empty, filtering disabled", "path", path)
	} else {
		logger.Info("stopword list loaded", "path", path, "words", set.Len())
	}
	return set
}

// Parse splits a stopword source on newlines, whitespace, commas and the
// ideographic enumeration comma.
func Parse(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.FieldsFunc(scanner.Text(), func(c rune) bool {
			return c == '、' || c == ',' || c == '，' || unicode.IsSpace(c)
		})
		words = append(words, fields...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

// Contains reports whether term is a stopword.
func (s *Set) Contains(term string) bool {
	if s == nil {
		return false
	}
	_, ok := s.words[term]
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}
