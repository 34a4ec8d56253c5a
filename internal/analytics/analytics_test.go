package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event kafka.Event) error {
	return p.PublishBatch(ctx, []kafka.Event{event})
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestAggregatorRecord(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(QueryEvent{Type: EventQuery, Matched: true, MatchID: "b", Verified: 3, LatencyMs: 4})
	agg.Record(QueryEvent{Type: EventQuery, Matched: true, MatchID: "a", Verified: 1, LatencyMs: 2, CacheHit: true})
	agg.Record(QueryEvent{Type: EventQuery, Matched: true, MatchID: "b", Verified: 2, LatencyMs: 6})
	agg.Record(QueryEvent{Type: EventQuery, Reason: indexer.ReasonNoSignature, LatencyMs: 1})
	agg.Record(QueryEvent{Type: EventQuery, Reason: indexer.ReasonNoCandidates, Inserted: true, LatencyMs: 1})
	agg.Record(QueryEvent{Type: EventQuery, Reason: indexer.ReasonAboveThreshold, Verified: 6, LatencyMs: 10})
	agg.Record(QueryEvent{Type: EventReload})

	s := agg.Stats()
	assert.Equal(t, int64(6), s.TotalQueries)
	assert.Equal(t, int64(3), s.Matches)
	assert.Equal(t, int64(1), s.NoSignature)
	assert.Equal(t, int64(1), s.NoCandidates)
	assert.Equal(t, int64(1), s.AboveThreshold)
	assert.Equal(t, int64(1), s.Inserted)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(5), s.CacheMisses)
	assert.Equal(t, int64(1), s.IndexReloads)
	assert.InDelta(t, 0.5, s.MatchRate, 1e-9)
	assert.InDelta(t, 2.0, s.AvgCandidates, 1e-9)
	assert.InDelta(t, 4.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, 10.0, s.P99LatencyMs)
	assert.Equal(t, []MatchCount{{ID: "b", Count: 2}, {ID: "a", Count: 1}}, s.TopMatched)
}

func TestAggregatorEmpty(t *testing.T) {
	s := NewAggregator(nil).Stats()
	assert.Zero(t, s.TotalQueries)
	assert.Zero(t, s.MatchRate)
	assert.Empty(t, s.TopMatched)
	assert.NoError(t, NewAggregator(nil).Start(context.Background()))
}

func TestLatencyRingIsBounded(t *testing.T) {
	agg := NewAggregator(nil)
	for i := 0; i < maxLatencySamples+50; i++ {
		agg.Record(QueryEvent{LatencyMs: float64(i)})
	}
	assert.Len(t, agg.latencies, maxLatencySamples)
	assert.Equal(t, int64(maxLatencySamples+50), agg.Stats().TotalQueries)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 6.0, percentile(sorted, 50))
	assert.Equal(t, 10.0, percentile(sorted, 99))
	assert.Zero(t, percentile(nil, 50))
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator(nil)
	handle := HandleEvent(agg)
	value, err := json.Marshal(QueryEvent{Type: EventQuery, Matched: true, MatchID: "x"})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("query"), value))
	require.NoError(t, handle(context.Background(), nil, []byte("not json")))
	assert.Equal(t, int64(1), agg.Stats().Matches)
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	agg := NewAggregator(nil)
	c := NewCollector(pub, agg, 16)
	c.Start(context.Background())
	for i := 0; i < 5; i++ {
		c.Track(QueryEvent{Matched: true, MatchID: "d"})
	}
	c.Close()

	assert.Equal(t, 5, pub.count())
	assert.Equal(t, int64(5), agg.Stats().Matches)
	assert.Equal(t, string(EventQuery), pub.events[0].Key)
	ev, ok := pub.events[0].Value.(QueryEvent)
	require.True(t, ok)
	assert.False(t, ev.Timestamp.IsZero())

	c.Track(QueryEvent{})
	c.Close()
	assert.Equal(t, 5, pub.count())
}

func TestCollectorFlushesFullBatches(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, nil, 1000)
	c.Start(context.Background())
	for i := 0; i < defaultBatchSize; i++ {
		c.Track(QueryEvent{})
	}
	assert.Eventually(t, func() bool { return pub.count() == defaultBatchSize }, defaultFlushInterval/2, 10*time.Millisecond)
	c.Close()
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	agg := NewAggregator(nil)
	c := NewCollector(pub, agg, 8)
	c.Start(context.Background())
	c.Track(QueryEvent{})
	c.Close()
	assert.Equal(t, int64(1), agg.Stats().TotalQueries)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(nil, nil, 2)
	c.Track(QueryEvent{})
	c.Track(QueryEvent{})
	c.Track(QueryEvent{})
	assert.Len(t, c.eventCh, 2)
}

type fakeHistory struct {
	snapshots []AggregatedStats
	err       error
	limit     int
}

func (f *fakeHistory) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snapshots, f.err
}

func TestHandler(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(QueryEvent{Matched: true, MatchID: "x"})

	rec := httptest.NewRecorder()
	NewHandler(agg, nil).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.Matches)

	rec = httptest.NewRecorder()
	NewHandler(agg, nil).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	history := &fakeHistory{}
	rec = httptest.NewRecorder()
	NewHandler(agg, history).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 24, history.limit)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = httptest.NewRecorder()
	NewHandler(agg, history).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	history.err = errors.New("db down")
	rec = httptest.NewRecorder()
	NewHandler(agg, history).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=3", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 3, history.limit)
}
