// Package report writes confirmed near-duplicate pairs to their consumers:
// a CSV file, the duplicate_pairs table and a Kafka topic.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/metrics"
)

// Run identifies one extraction so rows from different runs can coexist in
// shared sinks.
type Run struct {
	ID        string    `json:"run_id"`
	Threshold float64   `json:"threshold"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives the full pair list of a run.
type Sink interface {
	Name() string
	Write(ctx context.Context, run Run, pairs []indexer.Pair) error
	Close() error
}

// Multi fans a run out to every sink. A failing sink does not stop the
// others; all failures are joined into the returned error.
type Multi struct {
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewMulti wraps sinks. m may be nil.
func NewMulti(m *metrics.Metrics, sinks ...Sink) *Multi {
	return &Multi{
		sinks:   sinks,
		metrics: m,
		logger:  slog.Default().With("component", "report"),
	}
}

// Name implements Sink.
func (m *Multi) Name() string { return "multi" }

// Len returns the number of wrapped sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Write implements Sink.
func (m *Multi) Write(ctx context.Context, run Run, pairs []indexer.Pair) error {
	var errs []error
	for _, s := range m.sinks {
		start := time.Now()
		if err := s.Write(ctx, run, pairs); err != nil {
			m.logger.Error("report sink failed", "sink", s.Name(), "run_id", run.ID, "error", err)
			if m.metrics != nil {
				m.metrics.ReportSinkErrors.WithLabelValues(s.Name()).Inc()
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		m.logger.Info("report written",
			"sink", s.Name(),
			"run_id", run.ID,
			"pairs", len(pairs),
			"duration", time.Since(start),
		)
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
