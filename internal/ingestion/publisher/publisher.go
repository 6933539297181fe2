// Package publisher persists passages to PostgreSQL and announces corpus
// changes on Kafka so every replica rebuilds its index.
package publisher

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/kafka"
)

const (
	EventCorpusUpdated = "corpus.updated"
	eventKey           = "corpus"
)

// Repository stores passages.
type Repository interface {
	Upsert(ctx context.Context, passages []ingestion.PassageInput) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Transactor is implemented by postgres.Client.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// PostgresRepository writes to the passages table.
type PostgresRepository struct {
	db Transactor
}

func NewPostgresRepository(db Transactor) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const upsertSQL = `INSERT INTO passages (id, document, competition, page, text, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (id) DO UPDATE SET
    document = EXCLUDED.document,
    competition = EXCLUDED.competition,
    page = EXCLUDED.page,
    text = EXCLUDED.text,
    updated_at = NOW()`

func (r *PostgresRepository) Upsert(ctx context.Context, passages []ingestion.PassageInput) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, p := range passages {
			if _, err := stmt.ExecContext(ctx, p.ID, p.Document, nullable(p.Competition), nullablePage(p.Page), p.Text); err != nil {
				return fmt.Errorf("upserting passage %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("deleting passage %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("counting deleted rows: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// Publisher coordinates passage persistence and change notification.
type Publisher struct {
	repo     Repository
	producer kafka.Publisher
	logger   *slog.Logger
}

// New creates a Publisher. producer may be nil when Kafka is disabled;
// callers then trigger rebuilds themselves.
func New(repo Repository, producer kafka.Publisher) *Publisher {
	return &Publisher{
		repo:     repo,
		producer: producer,
		logger:   slog.Default().With("component", "passage-publisher"),
	}
}

// Notifies reports whether writes are announced on Kafka.
func (p *Publisher) Notifies() bool {
	return p.producer != nil
}

// Ingest stores the passages and announces the change. A failed
// announcement is logged, not returned: the rows are committed and the next
// rebuild will include them.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	passages := make([]ingestion.PassageInput, len(req.Passages))
	ids := make([]string, len(req.Passages))
	for i, in := range req.Passages {
		in.ID = strings.TrimSpace(in.ID)
		if in.ID == "" {
			in.ID = DeriveID(in)
		}
		passages[i] = in
		ids[i] = in.ID
	}

	if err := p.repo.Upsert(ctx, passages); err != nil {
		return nil, fmt.Errorf("storing passages: %w", err)
	}
	p.logger.Info("passages stored", "count", len(passages))

	status := ingestion.StatusStored
	if p.announce(ctx, "ingest", ids) {
		status = ingestion.StatusQueued
	}
	return &ingestion.IngestResponse{IDs: ids, Status: status}, nil
}

// Delete removes one passage. A missing ID yields ErrNotFound.
func (p *Publisher) Delete(ctx context.Context, id string) error {
	deleted, err := p.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "passage %q does not exist", id)
	}
	p.logger.Info("passage deleted", "id", id)
	p.announce(ctx, "delete", []string{id})
	return nil
}

func (p *Publisher) announce(ctx context.Context, reason string, ids []string) bool {
	if p.producer == nil {
		return false
	}
	err := p.producer.Publish(ctx, kafka.Event{
		Key:  eventKey,
		Type: EventCorpusUpdated,
		Value: ingestion.CorpusUpdatedEvent{
			Reason:     reason,
			PassageIDs: ids,
			UpdatedAt:  time.Now().UTC(),
		},
	})
	if err != nil {
		p.logger.Error("failed to announce corpus update, index stays stale until the next rebuild",
			"reason", reason,
			"passages", len(ids),
			"error", err,
		)
		return false
	}
	return true
}

// DeriveID names a passage by its document and a content hash, so
// re-ingesting the same text is an update rather than a duplicate.
func DeriveID(p ingestion.PassageInput) string {
	doc := strings.TrimSpace(p.Document)
	if doc == "" {
		doc = "passage"
	}
	sum := sha256.Sum256([]byte(p.Competition + "\x00" + p.Text))
	return fmt.Sprintf("%s#%x", doc, sum[:6])
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullablePage(page int) sql.NullInt64 {
	if page <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(page), Valid: true}
}
