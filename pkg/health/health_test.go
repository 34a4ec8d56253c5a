package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", up)
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("redis", OptionalCheck(PingCheck(func(context.Context) error { return errors.New("refused") })))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)
	assert.NotEmpty(t, report.Components["index"].Latency)

	c.Register("index", PingCheck(func(context.Context) error { return errors.New("not loaded") }))
	report = c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Len(t, report.Components, 2)
}

func TestRunTimesOutSlowChecks(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := NewChecker()
	c.SetCheckTimeout(20 * time.Millisecond)
	c.Register("index", up)
	c.Register("postgres", func(context.Context) ComponentHealth {
		<-block
		return ComponentHealth{Status: StatusUp}
	})

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, StatusDown, report.Components["postgres"].Status)
	assert.Contains(t, report.Components["postgres"].Message, "postgres")
	assert.Equal(t, StatusUp, report.Components["index"].Status)
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	c.Register("index", up)

	rec := httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"alive"`)

	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusUp, report.Components["index"].Status)

	c.Register("redis", OptionalCheck(PingCheck(func(context.Context) error { return errors.New("down") })))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "a degraded service stays ready")

	c.Register("index", PingCheck(func(context.Context) error { return errors.New("no snapshot") }))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
