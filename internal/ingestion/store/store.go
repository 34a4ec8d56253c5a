// Package store writes ingested documents into the corpus table. Writes are
// idempotent per ID: re-sending a document with the same text is reported as
// existing, and different text under a known ID is rejected so a built index
// never refers to a changed document.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/postgres"
)

// Store persists documents in PostgreSQL.
type Store struct {
	db      *postgres.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Store on db. m may be nil.
func New(db *postgres.Client, m *metrics.Metrics) *Store {
	return &Store{
		db:      db,
		metrics: m,
		logger:  slog.Default().With("component", "ingestion-store"),
	}
}

// Put stores docs in one transaction. A conflicting document aborts the
// whole batch with ErrConflict.
func (s *Store) Put(ctx context.Context, docs []ingestion.IngestRequest) ([]ingestion.IngestResponse, error) {
	results := make([]ingestion.IngestResponse, 0, len(docs))
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, doc := range docs {
			status, err := putOne(ctx, tx, doc)
			if err != nil {
				return err
			}
			results = append(results, ingestion.IngestResponse{ID: doc.ID, Status: status})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		for _, r := range results {
			s.metrics.DocsIngestedTotal.WithLabelValues(r.Status).Inc()
		}
	}
	return results, nil
}

func putOne(ctx context.Context, tx *sql.Tx, doc ingestion.IngestRequest) (string, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, body) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.Text)
	if err != nil {
		return "", fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	if n == 1 {
		return ingestion.StatusCreated, nil
	}

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = $1`, doc.ID).Scan(&existing)
	if err != nil {
		return "", fmt.Errorf("reading existing document %s: %w", doc.ID, err)
	}
	if existing != doc.Text {
		return "", apperrors.Newf(apperrors.ErrConflict, 409, "document %q already exists with different text", doc.ID)
	}
	return ingestion.StatusExists, nil
}

// Count returns the number of documents in the corpus table.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}
