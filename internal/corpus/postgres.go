package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/postgres"
)

// PostgresSource runs a query returning (id, body) rows. The query must
// return rows in a stable order so handles are reproducible between runs.
type PostgresSource struct {
	db     *postgres.Client
	query  string
	logger *slog.Logger
}

// NewPostgresSource creates a source running query against db.
func NewPostgresSource(db *postgres.Client, query string) *PostgresSource {
	return &PostgresSource{
		db:     db,
		query:  query,
		logger: slog.Default().With("component", "corpus-postgres"),
	}
}

// Load runs the query. Rows with a NULL body are counted as malformed.
func (s *PostgresSource) Load(ctx context.Context) ([]Document, LoadStats, error) {
	var stats LoadStats
	rows, err := s.db.DB.QueryContext(ctx, s.query)
	if err != nil {
		return nil, stats, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, 1024)
	for rows.Next() {
		var id string
		var body sql.NullString
		if err := rows.Scan(&id, &body); err != nil {
			return nil, stats, fmt.Errorf("scanning corpus row: %w", err)
		}
		stats.Read++
		if !body.Valid {
			stats.Malformed++
			continue
		}
		docs = append(docs, Document{ID: id, Text: body.String})
	}
	if err := rows.Err(); err != nil {
		return nil, stats, fmt.Errorf("iterating corpus rows: %w", err)
	}
	s.logger.Info("corpus loaded", "documents", len(docs), "malformed", stats.Malformed)
	return docs, stats, nil
}
