package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/resilience"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSource reads passages from a table with the columns id,
// document, competition, page and text.
type PostgresSource struct {
	db     *sql.DB
	query  string
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewPostgresSource(db *sql.DB, table string) (*PostgresSource, error) {
	query, err := selectQuery(table)
	if err != nil {
		return nil, err
	}
	return &PostgresSource{
		db:     db,
		query:  query,
		retry:  resilience.RetryConfig{Retryable: resilience.Retryable},
		logger: slog.Default().With("component", "postgres-source"),
	}, nil
}

func (s *PostgresSource) Name() string { return "postgres" }

// selectQuery builds the load statement for table, which may be
// schema-qualified.
func selectQuery(table string) (string, error) {
	if table == "" {
		table = "passages"
	}
	m := tableName.FindStringSubmatch(table)
	if m == nil {
		return "", fmt.Errorf("invalid passage table name %q", table)
	}
	quoted := ""
	if m[1] != "" {
		schema := table[:len(table)-len(m[1])]
		quoted = pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(m[1][1:])
	} else {
		quoted = pq.QuoteIdentifier(table)
	}
	return fmt.Sprintf(
		`SELECT id, document, competition, page, text FROM %s ORDER BY competition, document, page, id`,
		quoted,
	), nil
}

func (s *PostgresSource) Load(ctx context.Context) ([]index.RawPassage, error) {
	var passages []index.RawPassage
	err := resilience.Retry(ctx, "load-passages", s.retry, func() error {
		var err error
		passages, err = s.load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("passages loaded", "count", len(passages))
	return passages, nil
}

func (s *PostgresSource) load(ctx context.Context) ([]index.RawPassage, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	var passages []index.RawPassage
	for rows.Next() {
		var p index.RawPassage
		var competition sql.NullString
		var page sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Document, &competition, &page, &p.Text); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		p.Competition = competition.String
		p.Page = int(page.Int64)
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}
	return passages, nil
}
