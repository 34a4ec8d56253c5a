// Package cache memoises query results in Redis. Keys are derived from the
// cleaned query text and threshold, so texts that differ only in case,
// punctuation or spacing share an entry. Concurrent misses for the same key
// are collapsed with singleflight, and Redis failures degrade to a miss
// behind a circuit breaker.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "neardup:q:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache caches executor results.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	cbCfg := resilience.CircuitBreakerConfig{
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, pkgredis.ErrMiss) && !errors.Is(err, context.Canceled)
		},
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("redis-cache", cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for cleaned text at threshold.
func (c *QueryCache) Get(ctx context.Context, cleaned string, threshold float64) (*executor.Result, bool) {
	key := BuildKey(cleaned, threshold)
	var data []byte
	err := c.breaker.Execute(func() error {
		var gerr error
		data, gerr = c.store.Get(ctx, key)
		return gerr
	})
	switch {
	case errors.Is(err, pkgredis.ErrMiss):
		c.miss()
		return nil, false
	case err != nil:
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

// Set stores result under cleaned text and threshold.
func (c *QueryCache) Set(ctx context.Context, cleaned string, threshold float64, result *executor.Result) {
	key := BuildKey(cleaned, threshold)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs computeFn once per key
// across concurrent callers. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	cleaned string,
	threshold float64,
	computeFn func() (*executor.Result, error),
) (*executor.Result, bool, error) {
	if result, ok := c.Get(ctx, cleaned, threshold); ok {
		return result, true, nil
	}
	key := BuildKey(cleaned, threshold)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, cleaned, threshold, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Result), false, nil
}

// Invalidate drops every cached query result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var ferr error
		deleted, ferr = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns hit and miss counts since start.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the Redis circuit state.
func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

// BreakerCounts reports the Redis circuit counters.
func (c *QueryCache) BreakerCounts() resilience.Counts {
	return c.breaker.Counts()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes cleaned text and threshold into a fixed-width key.
func BuildKey(cleaned string, threshold float64) string {
	raw := cleaned + "|t=" + strconv.FormatFloat(threshold, 'g', -1, 64)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
