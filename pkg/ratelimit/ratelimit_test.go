package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(limit, window)
	l.now = clock.now
	return l, clock
}

func TestAllowExhaustsBucket(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "keys have separate buckets")
}

func TestAllowRefills(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)
	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	clock.advance(30 * time.Second)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	clock.advance(10 * time.Minute)
	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"), "refill is capped at the limit")
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
	l.Reset("k")
	assert.True(t, l.Allow("k"))
}

func TestEvictIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	l.Allow("old")
	clock.advance(90 * time.Second)
	l.Allow("fresh")
	clock.advance(60 * time.Second)

	l.evict()
	assert.Equal(t, 1, l.Len())
	l.Reset("fresh")
	assert.Equal(t, 0, l.Len())
}
