package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestContextAttributes(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "searcher", "info", "json")

	ctx := With(context.Background(), "run_id", "r1")
	ctx = WithRequestID(ctx, "req-7")
	FromContext(ctx).Info("query resolved", "matched", true)
	FromContext(context.Background()).Debug("dropped")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "searcher", rec["service"])
	assert.Equal(t, "r1", rec["run_id"])
	assert.Equal(t, "req-7", rec["request_id"])
	assert.Equal(t, true, rec["matched"])
	assert.Contains(t, rec["time"], "Z")
}

func TestTextFormat(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "", "debug", "text")
	slog.Debug("stage timing", "stage", "shingle")
	out := buf.String()
	assert.Contains(t, out, "stage=shingle")
	assert.Contains(t, out, "source=")
	assert.NotContains(t, out, "service=")
}
