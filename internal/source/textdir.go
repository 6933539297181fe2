package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
)

// ChunkOptions sizes text chunks in runes.
type ChunkOptions struct {
	Size    int
	Overlap int
}

func (o ChunkOptions) normalized() ChunkOptions {
	if o.Size <= 0 {
		o.Size = 1500
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap > o.Size/2 {
		o.Overlap = o.Size / 2
	}
	return o
}

// TextDirSource reads .txt and .md documents converted from the
// competition handbooks. Form feeds separate pages. A document inside a
// subdirectory takes the directory name as its competition; documents at
// the root are classified from their file name.
type TextDirSource struct {
	root   string
	chunk  ChunkOptions
	logger *slog.Logger
}

func NewTextDirSource(root string, chunk ChunkOptions) *TextDirSource {
	return &TextDirSource{
		root:   root,
		chunk:  chunk.normalized(),
		logger: slog.Default().With("component", "textdir-source"),
	}
}

func (s *TextDirSource) Name() string { return "textdir:" + s.root }

func (s *TextDirSource) Load(ctx context.Context) ([]index.RawPassage, error) {
	var passages []index.RawPassage
	files := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isTextFile(path) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		files++
		passages = append(passages, s.split(filepath.ToSlash(rel), string(data))...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}
	s.logger.Info("text documents loaded", "root", s.root, "files", files, "passages", len(passages))
	return passages, nil
}

func (s *TextDirSource) split(rel, text string) []index.RawPassage {
	document := filepath.Base(rel)
	competition := ""
	if dir := filepath.Dir(filepath.FromSlash(rel)); dir != "." {
		competition = filepath.Base(dir)
	}

	var out []index.RawPassage
	for pageIdx, page := range strings.Split(text, "\f") {
		for chunkIdx, chunk := range Chunk(page, s.chunk) {
			out = append(out, index.RawPassage{
				ID:          fmt.Sprintf("%s#p%d#c%d", rel, pageIdx+1, chunkIdx),
				Document:    document,
				Competition: competition,
				Page:        pageIdx + 1,
				Text:        chunk,
			})
		}
	}
	return out
}

func isTextFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// Chunk packs the non-blank lines of text into chunks of at most
// opts.Size runes. A chunk starts with the last opts.Overlap runes of its
// predecessor when they fit; lines longer than a chunk are split hard.
func Chunk(text string, opts ChunkOptions) []string {
	opts = opts.normalized()
	var chunks []string
	var cur []rune
	emit := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			chunks = append(chunks, s)
		}
		cur = nil
	}

	for _, line := range strings.Split(text, "\n") {
		para := []rune(strings.TrimSpace(line))
		if len(para) == 0 {
			continue
		}
		for len(para) > opts.Size {
			if len(cur) > 0 {
				emit()
			}
			chunks = append(chunks, string(para[:opts.Size]))
			para = para[opts.Size-opts.Overlap:]
		}
		if len(cur) > 0 && len(cur)+1+len(para) > opts.Size {
			carry := tail(cur, opts.Overlap)
			emit()
			if len(carry)+1+len(para) <= opts.Size {
				cur = carry
			}
		}
		if len(cur) > 0 {
			cur = append(cur, '\n')
		}
		cur = append(cur, para...)
	}
	emit()
	return chunks
}

func tail(r []rune, n int) []rune {
	if n <= 0 {
		return nil
	}
	if n > len(r) {
		n = len(r)
	}
	out := make([]rune, n)
	copy(out, r[len(r)-n:])
	return out
}
