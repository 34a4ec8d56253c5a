package report

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/postgres"
	"github.com/lib/pq"
)

// PostgresSink bulk-loads pairs into duplicate_pairs with COPY inside one
// transaction, so a run is either fully visible or absent.
type PostgresSink struct {
	db *postgres.Client
}

// NewPostgresSink creates a sink on db. The schema must already exist.
func NewPostgresSink(db *postgres.Client) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, run Run, pairs []indexer.Pair) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM duplicate_pairs WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("clearing run %s: %w", run.ID, err)
		}
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("duplicate_pairs",
			"run_id", "handle_a", "handle_b", "id_a", "id_b", "distance", "created_at"))
		if err != nil {
			return fmt.Errorf("preparing copy: %w", err)
		}
		for _, p := range pairs {
			if _, err := stmt.ExecContext(ctx, run.ID, int64(p.HandleA), int64(p.HandleB), p.A, p.B, p.Distance, run.CreatedAt); err != nil {
				stmt.Close()
				return fmt.Errorf("copying pair %s/%s: %w", p.A, p.B, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing copy: %w", err)
		}
		return stmt.Close()
	})
}

func (s *PostgresSink) Close() error { return nil }
