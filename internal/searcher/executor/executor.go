// Package executor runs near-duplicate queries against the currently loaded
// index. The index can be swapped wholesale while queries are in flight;
// each query keeps the engine it started with.
package executor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
)

// Request is a query as received from a client.
type Request struct {
	ID        string
	Text      string
	Threshold float64
	Insert    bool
}

// Result is the client-facing outcome of a query.
type Result struct {
	CleanedText string         `json:"cleaned_text"`
	Threshold   float64        `json:"threshold"`
	Matched     bool           `json:"matched"`
	Match       *indexer.Match `json:"match,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Candidates  int            `json:"candidates"`
	Verified    int            `json:"verified"`
	Inserted    *uint32        `json:"inserted_handle,omitempty"`
	Shingles    int            `json:"shingles"`
	LatencyMs   float64        `json:"latency_ms"`
}

// Executor owns the active engine.
type Executor struct {
	engine    atomic.Pointer[indexer.Engine]
	threshold float64
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an executor. engine may be nil until the first snapshot is
// loaded; m may be nil.
func New(engine *indexer.Engine, threshold float64, timeout time.Duration, m *metrics.Metrics) *Executor {
	if threshold <= 0 {
		threshold = indexer.DefaultThreshold
	}
	x := &Executor{
		threshold: threshold,
		timeout:   timeout,
		metrics:   m,
		logger:    slog.Default().With("component", "query-executor"),
	}
	if engine != nil {
		x.Swap(engine)
	}
	return x
}

// DefaultThreshold is used when a request leaves Threshold at zero.
func (x *Executor) DefaultThreshold() float64 {
	return x.threshold
}

// Swap installs engine and returns the previous one.
func (x *Executor) Swap(engine *indexer.Engine) *indexer.Engine {
	prev := x.engine.Swap(engine)
	if x.metrics != nil && engine != nil {
		stats := engine.Stats()
		x.metrics.IndexedDocuments.Set(float64(stats.Documents))
		x.metrics.BandBuckets.Set(float64(stats.Index.Buckets))
	}
	return prev
}

// Engine returns the active engine or ErrIndexNotReady.
func (x *Executor) Engine() (*indexer.Engine, error) {
	e := x.engine.Load()
	if e == nil {
		return nil, apperrors.ErrIndexNotReady
	}
	return e, nil
}

// Ready reports whether an engine is loaded.
func (x *Executor) Ready() bool {
	return x.engine.Load() != nil
}

// Clean returns the normalised form of text used for cache keys.
func (x *Executor) Clean(text string) string {
	return tokenizer.Clean(text)
}

// Execute resolves req against the active engine within the configured
// query timeout.
func (x *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	engine, err := x.Engine()
	if err != nil {
		return nil, err
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = x.threshold
	}
	cleaned, set := engine.ShingleText(req.Text)

	qr, err := resilience.Bounded(ctx, x.timeout, "near-duplicate query", func(ctx context.Context) (*indexer.QueryResult, error) {
		return engine.Query(ctx, indexer.QueryRequest{
			ID:        req.ID,
			Text:      req.Text,
			Shingles:  set,
			Threshold: threshold,
			Insert:    req.Insert,
		})
	})
	if err != nil {
		x.observe("error", 0)
		return nil, err
	}

	res := &Result{
		CleanedText: cleaned,
		Threshold:   threshold,
		Matched:     qr.Matched(),
		Match:       qr.Match,
		Reason:      qr.Reason,
		Candidates:  qr.Candidates,
		Verified:    qr.Verified,
		Inserted:    qr.Inserted,
		Shingles:    set.Len(),
		LatencyMs:   float64(time.Since(start).Microseconds()) / 1000,
	}
	outcome := res.Reason
	if res.Matched {
		outcome = "match"
	}
	x.observe(outcome, res.Verified)
	if res.Inserted != nil && x.metrics != nil {
		x.metrics.DocsIndexedTotal.Inc()
		x.metrics.IndexedDocuments.Inc()
	}
	return res, nil
}

// ResolveDocument finds the nearest neighbour of an indexed document.
func (x *Executor) ResolveDocument(ctx context.Context, id string, threshold float64) (*indexer.QueryResult, error) {
	engine, err := x.Engine()
	if err != nil {
		return nil, err
	}
	if threshold == 0 {
		threshold = x.threshold
	}
	return engine.ResolveDocument(ctx, id, threshold)
}

// Duplicates extracts every near-duplicate pair of the active index.
func (x *Executor) Duplicates(ctx context.Context, threshold float64) (*indexer.PairReport, error) {
	engine, err := x.Engine()
	if err != nil {
		return nil, err
	}
	if threshold == 0 {
		threshold = x.threshold
	}
	report, err := engine.DuplicatePairs(ctx, threshold)
	if err != nil {
		return nil, err
	}
	if x.metrics != nil {
		x.metrics.DuplicatePairs.Set(float64(len(report.Pairs)))
	}
	return report, nil
}

// Stats describes the active index.
func (x *Executor) Stats() (indexer.Stats, error) {
	engine, err := x.Engine()
	if err != nil {
		return indexer.Stats{}, err
	}
	return engine.Stats(), nil
}

func (x *Executor) observe(outcome string, verified int) {
	if x.metrics == nil {
		return
	}
	x.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	x.metrics.QueryCandidates.Observe(float64(verified))
}
