// Package aggregator persists periodic snapshots of query statistics to
// PostgreSQL so match rates and latencies survive restarts and can be
// charted over time.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/postgres"
)

const (
	defaultRetention = 30 * 24 * time.Hour
	finalSaveTimeout = 5 * time.Second
)

// StatsSource yields the current aggregate.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

type snapshotWriter interface {
	SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Store reads and writes analytics_snapshots. Rows are tagged with the
// process that wrote them.
type Store struct {
	db        *postgres.Client
	source    string
	retention time.Duration
	logger    *slog.Logger
}

// NewStore creates a store writing rows tagged with source, e.g. "searcher".
func NewStore(db *postgres.Client, source string) *Store {
	return &Store{
		db:        db,
		source:    source,
		retention: defaultRetention,
		logger:    slog.Default().With("component", "analytics-store", "source", source),
	}
}

// SaveSnapshot inserts one row.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (source, total_queries, match_rate, data, captured_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.source, stats.TotalQueries, stats.MatchRate, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved", "total_queries", stats.TotalQueries, "match_rate", stats.MatchRate)
	return nil
}

// Prune deletes this source's snapshots captured before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM analytics_snapshots WHERE source = $1 AND captured_at < $2`,
		s.source, before,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning analytics snapshots: %w", err)
	}
	return res.RowsAffected()
}

// LatestSnapshot returns this source's newest snapshot, or nil when none
// exists.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots WHERE source = $1 ORDER BY captured_at DESC LIMIT 1`,
		s.source,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots of this source, newest first.
// Rows that no longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM analytics_snapshots WHERE source = $1 ORDER BY captured_at DESC LIMIT $2`,
		s.source, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]analytics.AggregatedStats, 0, limit)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

// StartPeriodicSave snapshots src every interval, pruning rows past the
// retention after each save, and saves once more when ctx is done. The
// returned channel closes after that final save.
func (s *Store) StartPeriodicSave(ctx context.Context, src StatsSource, interval time.Duration) <-chan struct{} {
	s.logger.Info("periodic snapshot started", "interval", interval, "retention", s.retention)
	return periodicSave(ctx, s, src, interval, s.retention, s.logger)
}

func periodicSave(ctx context.Context, w snapshotWriter, src StatsSource, interval, retention time.Duration, log *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := int64(-1)
		for {
			select {
			case <-ticker.C:
				stats := src.Stats()
				if stats.TotalQueries == last {
					continue
				}
				if err := w.SaveSnapshot(ctx, stats); err != nil {
					log.Error("periodic snapshot failed", "error", err)
					continue
				}
				last = stats.TotalQueries
				if retention > 0 {
					if n, err := w.Prune(ctx, time.Now().UTC().Add(-retention)); err != nil {
						log.Warn("pruning snapshots failed", "error", err)
					} else if n > 0 {
						log.Info("old snapshots pruned", "deleted", n)
					}
				}
			case <-ctx.Done():
				finalCtx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
				if err := w.SaveSnapshot(finalCtx, src.Stats()); err != nil {
					log.Error("final snapshot failed", "error", err)
				}
				cancel()
				return
			}
		}
	}()
	return done
}
