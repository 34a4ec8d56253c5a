// Package corpus loads the raw documents the indexer signs: a JSON-lines
// export or the documents table in PostgreSQL.
package corpus

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/postgres"
)

// Document is one raw corpus entry before cleaning.
type Document struct {
	ID   string
	Text string
}

// LoadStats counts what a source read and rejected.
type LoadStats struct {
	Read      int `json:"read"`
	Malformed int `json:"malformed"`
}

// Source yields the whole corpus in a stable order.
type Source interface {
	Load(ctx context.Context) ([]Document, LoadStats, error)
}

// Open returns the source selected by cfg. db is only used, and must be
// non-nil, for the "postgres" source.
func Open(cfg config.CorpusConfig, db *postgres.Client) (Source, error) {
	switch cfg.Source {
	case "jsonl":
		return NewJSONLSource(cfg.Path, cfg.IDField, cfg.TextField), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("%w: postgres corpus source requires postgres.enabled", apperrors.ErrConfiguration)
		}
		return NewPostgresSource(db, cfg.Query), nil
	default:
		return nil, fmt.Errorf("%w: unknown corpus source %q", apperrors.ErrConfiguration, cfg.Source)
	}
}
