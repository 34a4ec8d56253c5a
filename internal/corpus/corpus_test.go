package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCorpus = `{"reviewerID": "A1", "reviewText": "great product, works well"}
{"reviewerID": "A2", "reviewText": "terrible, broke after a day"}

not json at all
{"reviewerID": "A3"}
{"reviewText": "no id on this one"}
{"reviewerID": 42, "reviewText": "numeric id"}
{"reviewerID": "A5", "reviewText": ""}
[1, 2, 3]
`

func TestJSONLRead(t *testing.T) {
	src := NewJSONLSource("", "reviewerID", "reviewText")
	docs, stats, err := src.Read(context.Background(), strings.NewReader(sampleCorpus))
	require.NoError(t, err)

	assert.Equal(t, []Document{
		{ID: "A1", Text: "great product, works well"},
		{ID: "A2", Text: "terrible, broke after a day"},
		{ID: "5", Text: "no id on this one"},
		{ID: "42", Text: "numeric id"},
		{ID: "A5", Text: ""},
	}, docs)
	assert.Equal(t, 8, stats.Read)
	assert.Equal(t, 3, stats.Malformed)
}

func TestJSONLReadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewJSONLSource("", "id", "text").Read(ctx, strings.NewReader(`{"id":"a","text":"b"}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJSONLLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleCorpus), 0o644))
	docs, _, err := NewJSONLSource(path, "reviewerID", "reviewText").Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 5)

	_, _, err = NewJSONLSource(filepath.Join(t.TempDir(), "missing.jsonl"), "id", "text").Load(context.Background())
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	src, err := Open(config.CorpusConfig{Source: "jsonl", Path: "x.jsonl", IDField: "id", TextField: "text"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &JSONLSource{}, src)

	_, err = Open(config.CorpusConfig{Source: "postgres"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = Open(config.CorpusConfig{Source: "ftp"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
