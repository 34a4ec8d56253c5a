// Package analytics collects per-query events on the searcher and folds them
// into running statistics: outcome counts, latency percentiles and the most
// frequently matched documents.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/kafka"
)

const maxLatencySamples = 10000

// AggregatedStats is the JSON view served by the analytics endpoint and
// persisted by the snapshot store.
type AggregatedStats struct {
	TotalQueries     int64        `json:"total_queries"`
	Matches          int64        `json:"matches"`
	NoSignature      int64        `json:"no_signature"`
	NoCandidates     int64        `json:"no_candidates"`
	AboveThreshold   int64        `json:"above_threshold"`
	Inserted         int64        `json:"inserted"`
	CacheHits        int64        `json:"cache_hits"`
	CacheMisses      int64        `json:"cache_misses"`
	IndexReloads     int64        `json:"index_reloads"`
	MatchRate        float64      `json:"match_rate"`
	AvgCandidates    float64      `json:"avg_candidates"`
	AvgLatencyMs     float64      `json:"avg_latency_ms"`
	P50LatencyMs     float64      `json:"p50_latency_ms"`
	P95LatencyMs     float64      `json:"p95_latency_ms"`
	P99LatencyMs     float64      `json:"p99_latency_ms"`
	TopMatched       []MatchCount `json:"top_matched"`
	QueriesPerMinute float64      `json:"queries_per_minute"`
}

// MatchCount is how often a document was returned as a match.
type MatchCount struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

// Aggregator folds QueryEvents into AggregatedStats. It is safe for
// concurrent use.
type Aggregator struct {
	mu             sync.RWMutex
	totalQueries   atomic.Int64
	matches        atomic.Int64
	noSignature    atomic.Int64
	noCandidates   atomic.Int64
	aboveThreshold atomic.Int64
	inserted       atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	reloads        atomic.Int64
	candidates     atomic.Int64
	latencies      []float64
	next           int
	matchCounts    map[string]int64
	startTime      time.Time
	consumer       *kafka.Consumer
	logger         *slog.Logger
}

// NewAggregator creates an aggregator. consumer may be nil when events are
// fed in-process through a Collector.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:   make([]float64, 0, 1024),
		matchCounts: make(map[string]int64),
		startTime:   time.Now(),
		consumer:    consumer,
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// SetConsumer attaches the Kafka consumer that feeds this aggregator.
func (a *Aggregator) SetConsumer(consumer *kafka.Consumer) {
	a.consumer = consumer
}

// Start consumes events until ctx is done. Without a consumer it returns
// immediately.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		return nil
	}
	a.logger.Info("analytics aggregator consuming")
	return a.consumer.Start(ctx)
}

// HandleEvent decodes query events from Kafka into agg. Undecodable
// messages are logged and committed.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record folds one event into the running totals.
func (a *Aggregator) Record(event QueryEvent) {
	if event.Type == EventReload {
		a.reloads.Add(1)
		return
	}
	a.totalQueries.Add(1)
	a.candidates.Add(int64(event.Verified))
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.Inserted {
		a.inserted.Add(1)
	}
	switch {
	case event.Matched:
		a.matches.Add(1)
	case event.Reason == indexer.ReasonNoSignature:
		a.noSignature.Add(1)
	case event.Reason == indexer.ReasonNoCandidates:
		a.noCandidates.Add(1)
	case event.Reason == indexer.ReasonAboveThreshold:
		a.aboveThreshold.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	if event.Matched && event.MatchID != "" {
		a.matchCounts[event.MatchID]++
	}
	a.mu.Unlock()
}

// Stats returns a snapshot of the current totals.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:   a.totalQueries.Load(),
		Matches:        a.matches.Load(),
		NoSignature:    a.noSignature.Load(),
		NoCandidates:   a.noCandidates.Load(),
		AboveThreshold: a.aboveThreshold.Load(),
		Inserted:       a.inserted.Load(),
		CacheHits:      a.cacheHits.Load(),
		CacheMisses:    a.cacheMisses.Load(),
		IndexReloads:   a.reloads.Load(),
	}
	if stats.TotalQueries > 0 {
		stats.MatchRate = float64(stats.Matches) / float64(stats.TotalQueries)
		stats.AvgCandidates = float64(a.candidates.Load()) / float64(stats.TotalQueries)
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopMatched = topN(a.matchCounts, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []MatchCount {
	result := make([]MatchCount, 0, len(counts))
	for id, count := range counts {
		result = append(result, MatchCount{ID: id, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
