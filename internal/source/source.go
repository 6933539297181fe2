// Package source loads raw passages for index rebuilds from a passage
// file, a directory of pre-converted text documents, or PostgreSQL.
package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/config"
)

// Source produces the full passage set of the corpus.
type Source interface {
	Load(ctx context.Context) ([]index.RawPassage, error)
	Name() string
}

// New builds the Source selected by cfg. db is required only for the
// postgres source.
func New(cfg config.CorpusConfig, db *sql.DB) (Source, error) {
	switch cfg.Source {
	case "file":
		return NewFileSource(cfg.Path), nil
	case "textdir":
		return NewTextDirSource(cfg.Path, ChunkOptions{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres source requires a database connection")
		}
		return NewPostgresSource(db, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown corpus source %q", cfg.Source)
	}
}
