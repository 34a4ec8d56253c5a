// Package handler exposes the near-duplicate index over HTTP: single-text
// queries, lookups by document ID, duplicate-pair extraction and index
// statistics.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/report"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/searcher/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/middleware"
)

const defaultPairLimit = 1000

// QueryExecutor is the executor surface the handler needs.
type QueryExecutor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.Result, error)
	ResolveDocument(ctx context.Context, id string, threshold float64) (*indexer.QueryResult, error)
	Duplicates(ctx context.Context, threshold float64) (*indexer.PairReport, error)
	Stats() (indexer.Stats, error)
	Clean(text string) string
	DefaultThreshold() float64
}

// Handler serves the query API.
type Handler struct {
	executor  QueryExecutor
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	limits    validator.Limits
	logger    *slog.Logger
}

// New creates a Handler. queryCache, collector and m may be nil.
func New(exec QueryExecutor, queryCache *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics, limits validator.Limits) *Handler {
	return &Handler{
		executor:  exec,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		limits:    limits,
		logger:    slog.Default().With("component", "query-handler"),
	}
}

// Query handles POST /api/v1/query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req validator.QueryRequest
	var body io.Reader = r.Body
	if h.limits.MaxTextLength > 0 {
		body = io.LimitReader(r.Body, 2*int64(h.limits.MaxTextLength)+4096)
	}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateQuery(&req, h.limits); err != nil {
		h.writeValidation(w, err)
		return
	}

	threshold := req.Threshold
	if threshold == 0 {
		threshold = h.executor.DefaultThreshold()
	}
	execReq := executor.Request{ID: req.ID, Text: req.Text, Threshold: threshold, Insert: req.Insert}
	compute := func() (*executor.Result, error) {
		return h.executor.Execute(ctx, execReq)
	}

	var result *executor.Result
	var err error
	cacheHit := false
	if h.cache != nil && !req.Insert {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, h.executor.Clean(req.Text), threshold, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("query failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	if h.cache != nil && result.Inserted != nil {
		// Any cached answer may now have a closer match.
		if _, err := h.cache.Invalidate(ctx); err != nil {
			log.Warn("cache invalidation after insert failed", "error", err)
		}
	}

	elapsed := time.Since(start)
	if h.metrics != nil {
		status := "miss"
		if cacheHit {
			status = "hit"
		}
		h.metrics.QueryLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	}
	log.Info("query resolved",
		"matched", result.Matched,
		"reason", result.Reason,
		"candidates", result.Candidates,
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	if h.collector != nil {
		event := analytics.QueryEvent{
			Type:       analytics.EventQuery,
			RequestID:  middleware.GetRequestID(ctx),
			TextLength: len(req.Text),
			Shingles:   result.Shingles,
			Threshold:  threshold,
			Matched:    result.Matched,
			Reason:     result.Reason,
			Candidates: result.Candidates,
			Verified:   result.Verified,
			Inserted:   result.Inserted != nil,
			CacheHit:   cacheHit,
			LatencyMs:  float64(elapsed.Microseconds()) / 1000,
			Timestamp:  time.Now().UTC(),
		}
		if result.Match != nil {
			event.MatchID = result.Match.ID
			event.Distance = result.Match.Distance
		}
		h.collector.Track(event)
	}
	h.writeJSON(w, http.StatusOK, struct {
		*executor.Result
		CacheHit bool `json:"cache_hit"`
	}{result, cacheHit})
}

// DocumentMatch handles GET /api/v1/documents/{id}/match.
func (h *Handler) DocumentMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	threshold, err := validator.ParseThreshold(r.URL.Query().Get("threshold"))
	if err != nil {
		h.writeValidation(w, err)
		return
	}
	result, err := h.executor.ResolveDocument(r.Context(), id, threshold)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":         id,
		"matched":    result.Matched(),
		"match":      result.Match,
		"reason":     result.Reason,
		"candidates": result.Candidates,
		"verified":   result.Verified,
	})
}

// Duplicates handles GET /api/v1/duplicates. ?limit= caps the JSON pair
// list (0 for all); ?format=csv streams every pair as CSV.
func (h *Handler) Duplicates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	threshold, err := validator.ParseThreshold(q.Get("threshold"))
	if err != nil {
		h.writeValidation(w, err)
		return
	}
	limit := defaultPairLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	rep, err := h.executor.Duplicates(r.Context(), threshold)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	if q.Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="duplicates.csv"`)
		if err := report.WriteCSV(r.Context(), w, rep.Pairs, q.Get("text") == "true"); err != nil {
			h.logger.Error("failed to stream duplicates csv", "error", err)
		}
		return
	}

	pairs := rep.Pairs
	truncated := false
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
		truncated = true
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"total":           len(rep.Pairs),
		"returned":        len(pairs),
		"truncated":       truncated,
		"candidate_pairs": rep.CandidatePairs,
		"duration_ms":     rep.Duration.Milliseconds(),
		"pairs":           pairs,
	})
}

// IndexStats handles GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.executor.Stats()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
		"circuit":  h.cache.BreakerCounts(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg, "code": apperrors.Code(err)})
}
