package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/competition"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/infotype"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
)

// Embedder computes passage vectors for the semantic strategy.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// BuilderConfig controls index construction.
type BuilderConfig struct {
	// Workers bounds concurrent passage analysis; zero means GOMAXPROCS.
	Workers int
	// MaxKeywords caps the terms indexed per passage; zero keeps all.
	MaxKeywords int
	// EmbedBatch is the number of passages sent per embedding call.
	EmbedBatch int
	// InfoTypes tags passages with the kinds of information they hold;
	// nil disables tagging.
	InfoTypes *infotype.Classifier
}

// Builder turns raw passages into a Corpus.
type Builder struct {
	tok      *tokenizer.Tokenizer
	catalog  *competition.Catalog
	embedder Embedder
	cfg      BuilderConfig
	logger   *slog.Logger
}

// NewBuilder creates a Builder. embedder may be nil.
func NewBuilder(tok *tokenizer.Tokenizer, catalog *competition.Catalog, embedder Embedder, cfg BuilderConfig) *Builder {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 32
	}
	return &Builder{
		tok:      tok,
		catalog:  catalog,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default().With("component", "index-builder"),
	}
}

// Build validates raws and produces a new Corpus stamped with generation.
// It fails with ErrInvalidCorpus when the input is empty, contains only
// blank passages, or repeats a passage ID.
func (b *Builder) Build(ctx context.Context, raws []RawPassage, generation uint64) (*Corpus, error) {
	start := time.Now()
	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: no passages supplied", apperrors.ErrInvalidCorpus)
	}

	explicit := make(map[string]bool, len(raws))
	for _, raw := range raws {
		if id := strings.TrimSpace(raw.ID); id != "" && strings.TrimSpace(raw.Text) != "" {
			explicit[id] = true
		}
	}

	passages := make([]*Passage, 0, len(raws))
	ids := make(map[string]int, len(raws))
	skipped := 0
	for i, raw := range raws {
		text := strings.TrimSpace(raw.Text)
		if text == "" {
			skipped++
			continue
		}
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			id = deriveID(raw.Document, i, explicit, ids)
		}
		if prev, dup := ids[id]; dup {
			return nil, fmt.Errorf("%w: duplicate passage id %q at %d and %d", apperrors.ErrInvalidCorpus, id, prev, i)
		}
		ids[id] = i
		passages = append(passages, &Passage{
			ID:          id,
			Document:    raw.Document,
			Competition: b.classify(raw),
			Page:        raw.Page,
			Text:        text,
			Length:      utf8.RuneCountInString(text),
			InfoTypes:   b.cfg.InfoTypes.Tags(text),
		})
	}
	if len(passages) == 0 {
		return nil, fmt.Errorf("%w: all %d passages are blank", apperrors.ErrInvalidCorpus, len(raws))
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Competition < passages[j].Competition
	})
	for i, p := range passages {
		p.Seq = i
	}

	if err := b.analyze(ctx, passages); err != nil {
		return nil, err
	}
	b.embed(ctx, passages)

	corpus := assemble(passages, generation)
	b.logger.Info("index built",
		"generation", generation,
		"passages", len(passages),
		"skipped_blank", skipped,
		"competitions", len(corpus.tags),
		"terms", len(corpus.postings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return corpus, nil
}

// deriveID names an unnamed passage document#index. When that collides
// with an explicit ID, a .n suffix is added until it is free, so derived
// names never cause a duplicate-ID rejection and stay stable for the same
// input.
func deriveID(document string, i int, explicit map[string]bool, used map[string]int) string {
	base := fmt.Sprintf("%s#%d", document, i)
	id := base
	for n := 1; ; n++ {
		if _, taken := used[id]; !explicit[id] && !taken {
			return id
		}
		id = fmt.Sprintf("%s.%d", base, n)
	}
}

func (b *Builder) classify(raw RawPassage) string {
	if tag := strings.TrimSpace(raw.Competition); tag != "" {
		if resolved, ok := b.catalog.Resolve(tag); ok {
			return resolved
		}
	}
	if tag, ok := b.catalog.Detect(raw.Document); ok {
		return tag
	}
	return competition.Unclassified
}

// analyze tokenizes every passage once. Each worker writes only its own
// passage, so no locking is needed.
func (b *Builder) analyze(ctx context.Context, passages []*Passage) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for _, p := range passages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			keywords := b.tok.Keywords(p.Text, b.cfg.MaxKeywords)
			p.Weights = make(map[string]float64, len(keywords))
			p.Positions = make(map[string][]int, len(keywords))
			for _, kw := range keywords {
				p.Weights[kw.Term] = kw.Weight
				p.Positions[kw.Term] = kw.Positions
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("analyzing passages: %w", err)
	}
	return nil
}

// embed attaches vectors when an embedder is configured. Failures leave
// the corpus lexical-only.
func (b *Builder) embed(ctx context.Context, passages []*Passage) {
	if b.embedder == nil {
		return
	}
	for start := 0; start < len(passages); start += b.cfg.EmbedBatch {
		end := min(start+b.cfg.EmbedBatch, len(passages))
		texts := make([]string, 0, end-start)
		for _, p := range passages[start:end] {
			texts = append(texts, p.Text)
		}
		vectors, err := b.embedder.EmbedTexts(ctx, texts)
		if err == nil && len(vectors) != len(texts) {
			err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		if err != nil {
			b.logger.Warn("passage embedding failed, semantic scoring disabled for this index", "error", err)
			for _, p := range passages {
				p.Vector = nil
			}
			return
		}
		for i, p := range passages[start:end] {
			p.Vector = vectors[i]
		}
	}
}

func assemble(passages []*Passage, generation uint64) *Corpus {
	c := &Corpus{
		generation: generation,
		builtAt:    time.Now().UTC(),
		passages:   passages,
		byTag:      make(map[string][]*Passage),
		infoTypes:  make(map[string]int),
		postings:   make(map[string][]int),
		maxCount:   make(map[string]int),
	}
	for _, p := range passages {
		if _, ok := c.byTag[p.Competition]; !ok {
			c.tags = append(c.tags, p.Competition)
		}
		c.byTag[p.Competition] = append(c.byTag[p.Competition], p)
		for _, t := range p.InfoTypes {
			c.infoTypes[t]++
		}
		for term, positions := range p.Positions {
			c.postings[term] = append(c.postings[term], p.Seq)
			if n := len(positions); n > c.maxCount[term] {
				c.maxCount[term] = n
			}
		}
	}
	return c
}
