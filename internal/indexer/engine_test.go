package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/minhash"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallParams(hashes, rows int) minhash.Params {
	p := minhash.DefaultParams()
	p.NumHashes = hashes
	p.RowsPerBand = rows
	return p
}

func newTestEngine(t *testing.T, p minhash.Params) *Engine {
	t.Helper()
	e, err := NewEngine(Options{Params: p, ShingleSize: 4, Workers: 2, KeepText: true})
	require.NoError(t, err)
	return e
}

func textInput(id, text string) Input {
	return Input{ID: id, Text: text, Shingles: shingle.Shingle(tokenizer.Clean(text), 4)}
}

func setInput(id string, lo, hi uint64) Input {
	values := make([]uint64, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		values = append(values, v)
	}
	return Input{ID: id, Shingles: shingle.FromValues(values...)}
}

func TestNewEngineRejectsBadOptions(t *testing.T) {
	_, err := NewEngine(Options{Params: smallParams(10, 3), ShingleSize: 4})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = NewEngine(Options{Params: minhash.DefaultParams(), ShingleSize: 0})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = NewEngine(Options{Params: minhash.DefaultParams(), ShingleSize: shingle.MaxK + 1})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestTwoIdenticalDocumentsFindEachOther(t *testing.T) {
	e := newTestEngine(t, smallParams(4, 2))
	_, err := e.Build(context.Background(), []Input{
		textInput("a", "the quick brown fox"),
		textInput("b", "the quick brown fox"),
	}, nil)
	require.NoError(t, err)

	res, err := e.ResolveDocument(context.Background(), "a", 0.2)
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "b", res.Match.ID)
	assert.Equal(t, uint32(1), res.Match.Handle)
	assert.Equal(t, 0.0, res.Match.Distance)
	assert.Equal(t, 1, res.Candidates)

	res, err = e.ResolveDocument(context.Background(), "b", 0.2)
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "a", res.Match.ID)
}

func TestExactDuplicateResolvesAtZeroDistance(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Build(context.Background(), []Input{
		textInput("d0", "a completely unrelated sentence about gardening"),
		textInput("d1", "near duplicate detection with minhash and lsh"),
		textInput("d2", "yet another document on a different topic"),
	}, nil)
	require.NoError(t, err)

	_, set := e.ShingleText("Near duplicate detection, with MinHash and LSH!")
	res, err := e.Resolve(context.Background(), set, 0.2)
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "d1", res.Match.ID)
	assert.Equal(t, 0.0, res.Match.Distance)
	assert.Equal(t, "near duplicate detection with minhash and lsh", res.Match.Text)
	assert.Empty(t, res.Reason)
}

func TestEmptyQueryHasNoSignature(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Build(context.Background(), []Input{textInput("d0", "some indexed text")}, nil)
	require.NoError(t, err)

	res, err := e.Resolve(context.Background(), shingle.NewSet(), 0.2)
	require.NoError(t, err)
	assert.False(t, res.Matched())
	assert.Equal(t, ReasonNoSignature, res.Reason)
	assert.Zero(t, res.Candidates)

	res, err = e.Query(context.Background(), QueryRequest{ID: "q", Shingles: shingle.NewSet(), Insert: true})
	require.NoError(t, err)
	assert.Equal(t, ReasonNoSignature, res.Reason)
	assert.Nil(t, res.Inserted)
	assert.Equal(t, 1, e.Len())
}

func TestTiesGoToLowestHandle(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Build(context.Background(), []Input{
		textInput("first", "identical text in every document"),
		textInput("second", "identical text in every document"),
		textInput("third", "identical text in every document"),
	}, nil)
	require.NoError(t, err)

	_, set := e.ShingleText("identical text in every document")
	res, err := e.Resolve(context.Background(), set, 0.2)
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, uint32(0), res.Match.Handle)
	assert.Equal(t, "first", res.Match.ID)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 3, res.Verified)

	res, err = e.ResolveDocument(context.Background(), "first", 0.2)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Match.ID)
}

func TestQueryReasons(t *testing.T) {
	e := newTestEngine(t, smallParams(50, 1))
	_, err := e.Build(context.Background(), []Input{setInput("a", 1, 10)}, nil)
	require.NoError(t, err)

	res, err := e.Resolve(context.Background(), shingle.FromValues(1, 2, 3, 4, 5, 20, 21, 22, 23, 24), 0.2)
	require.NoError(t, err)
	assert.False(t, res.Matched())
	assert.Equal(t, ReasonAboveThreshold, res.Reason)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Verified)

	e = newTestEngine(t, minhash.DefaultParams())
	_, err = e.Build(context.Background(), []Input{setInput("a", 1, 50)}, nil)
	require.NoError(t, err)
	res, err = e.Resolve(context.Background(), shingle.FromValues(1000, 1001, 1002), 0.2)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoCandidates, res.Reason)
	assert.Zero(t, res.Candidates)
}

func TestQueryRejectsOutOfRangeThreshold(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Resolve(context.Background(), shingle.FromValues(1), 1.5)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = e.DuplicatePairs(context.Background(), -0.1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestResolveUnknownDocument(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.ResolveDocument(context.Background(), "missing", 0.2)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))
}

func TestBuildSkipsEmptyDocuments(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	var progressed int
	rep, err := e.Build(context.Background(), []Input{
		textInput("a", "long enough to shingle"),
		textInput("tiny", "ab"),
		textInput("blank", "   "),
		textInput("b", "another long enough text"),
	}, func(n int) { progressed += n })
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Documents)
	assert.Equal(t, 2, rep.Indexed)
	assert.Equal(t, []string{"tiny", "blank"}, rep.Skipped)
	assert.Equal(t, 4, progressed)

	doc, ok := e.DocumentByID("b")
	require.True(t, ok)
	assert.Equal(t, uint32(1), doc.Handle)
	assert.Len(t, doc.Signature, 300)
	_, ok = e.DocumentByID("tiny")
	assert.False(t, ok)
}

func TestBuildDuplicateIDsKeepFirst(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Build(context.Background(), []Input{
		textInput("x", "first text with this id"),
		textInput("x", "second text with the same id"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Len())
	doc, ok := e.DocumentByID("x")
	require.True(t, ok)
	assert.Equal(t, uint32(0), doc.Handle)
}

func TestBuildHonoursCancellation(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Build(ctx, []Input{textInput("a", "some text to index")}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, e.Len())
}

func TestQueryHonoursCancellation(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Build(context.Background(), []Input{textInput("a", "already indexed text")}, nil)
	require.NoError(t, err)
	_, set := e.ShingleText("already indexed text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Query(ctx, QueryRequest{ID: "q", Shingles: set, Insert: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.Equal(t, 1, e.Len())

	_, err = e.Resolve(ctx, set, 0.2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInsert(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Insert(Input{ID: "empty", Shingles: shingle.NewSet()})
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)
	assert.Zero(t, e.Len())

	_, set := e.ShingleText("streaming insert of a new document")
	res, err := e.Query(context.Background(), QueryRequest{ID: "s1", Text: "raw", Shingles: set, Threshold: 0.2, Insert: true})
	require.NoError(t, err)
	assert.Equal(t, ReasonNoCandidates, res.Reason)
	require.NotNil(t, res.Inserted)
	assert.Equal(t, uint32(0), *res.Inserted)

	res, err = e.Query(context.Background(), QueryRequest{ID: "s2", Shingles: set, Threshold: 0.2, Insert: true})
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "s1", res.Match.ID)
	assert.Equal(t, "raw", res.Match.Text)
	require.NotNil(t, res.Inserted)
	assert.Equal(t, uint32(1), *res.Inserted)
	assert.Equal(t, 2, e.Len())
}

func TestQueryDoesNotModifyIndex(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Build(context.Background(), []Input{textInput("a", "indexed once and only once")}, nil)
	require.NoError(t, err)
	before := e.Stats()
	_, set := e.ShingleText("indexed once and only once")
	for i := 0; i < 3; i++ {
		_, err := e.Resolve(context.Background(), set, 0.2)
		require.NoError(t, err)
	}
	assert.Equal(t, before, e.Stats())
}

func TestDuplicatePairsAreDirectEdges(t *testing.T) {
	e := newTestEngine(t, smallParams(50, 1))
	_, err := e.Build(context.Background(), []Input{
		setInput("a", 1, 10),
		setInput("b", 2, 11),
		setInput("c", 3, 12),
		setInput("z", 500, 520),
	}, nil)
	require.NoError(t, err)

	rep, err := e.DuplicatePairs(context.Background(), 0.2)
	require.NoError(t, err)
	require.Len(t, rep.Pairs, 2)
	assert.Equal(t, "a", rep.Pairs[0].A)
	assert.Equal(t, "b", rep.Pairs[0].B)
	assert.Equal(t, "b", rep.Pairs[1].A)
	assert.Equal(t, "c", rep.Pairs[1].B)
	for _, p := range rep.Pairs {
		assert.Less(t, p.HandleA, p.HandleB)
		assert.InDelta(t, 2.0/11.0, p.Distance, 1e-12)
	}
	assert.GreaterOrEqual(t, rep.CandidatePairs, 3)
	assert.Equal(t, []uint32{0, 2}, rep.Neighbors[1])
	assert.Equal(t, []uint32{1}, rep.Neighbors[0])
	assert.NotContains(t, rep.Neighbors, uint32(3))
}

func TestDuplicatePairsEmptyIndex(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	rep, err := e.DuplicatePairs(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, rep.Pairs)
	assert.NotNil(t, rep.Pairs)
	assert.Zero(t, rep.CandidatePairs)
}

func TestCandidates(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Build(context.Background(), []Input{
		textInput("a", "candidate lookup text"),
		textInput("b", "something else entirely different"),
		textInput("c", "candidate lookup text"),
	}, nil)
	require.NoError(t, err)

	_, set := e.ShingleText("candidate lookup text")
	hs, err := e.Candidates(set)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2}, hs)

	hs, err = e.Candidates(shingle.NewSet())
	require.NoError(t, err)
	assert.Empty(t, hs)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, minhash.DefaultParams())
	var inputs []Input
	for i := 0; i < 20; i++ {
		inputs = append(inputs, textInput(fmt.Sprintf("doc-%02d", i), fmt.Sprintf("document number %d talks about topic %d", i, i%5)))
	}
	inputs = append(inputs, textInput("copy", "document number 3 talks about topic 3"))
	_, err := e.Build(context.Background(), inputs, nil)
	require.NoError(t, err)

	path, err := e.SaveSnapshot(dir)
	require.NoError(t, err)

	restored, latest, err := LoadLatestSnapshot(context.Background(), dir, Options{Workers: 2, KeepText: true})
	require.NoError(t, err)
	assert.Equal(t, path, latest)
	assert.Equal(t, e.Len(), restored.Len())
	assert.Equal(t, e.Family().Coefficients(), restored.Family().Coefficients())
	assert.Equal(t, e.ShingleSize(), restored.ShingleSize())

	for _, orig := range e.Documents() {
		doc, ok := restored.Document(orig.Handle)
		require.True(t, ok)
		assert.Equal(t, orig.ID, doc.ID)
		assert.Equal(t, orig.Text, doc.Text)
		assert.Equal(t, orig.Signature, doc.Signature)
		assert.True(t, orig.Shingles.Equal(doc.Shingles))
	}

	want, err := e.ResolveDocument(context.Background(), "copy", 0.2)
	require.NoError(t, err)
	got, err := restored.ResolveDocument(context.Background(), "copy", 0.2)
	require.NoError(t, err)
	assert.Equal(t, want.Match, got.Match)
	assert.Equal(t, "doc-03", got.Match.ID)

	wantPairs, err := e.DuplicatePairs(context.Background(), 0.2)
	require.NoError(t, err)
	gotPairs, err := restored.DuplicatePairs(context.Background(), 0.2)
	require.NoError(t, err)
	assert.Equal(t, wantPairs.Pairs, gotPairs.Pairs)
}

func TestLoadLatestSnapshotEmptyDir(t *testing.T) {
	_, _, err := LoadLatestSnapshot(context.Background(), t.TempDir(), Options{})
	assert.ErrorIs(t, err, apperrors.ErrIndexNotReady)
}

func TestPrepareKeepsOrder(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	docs := make([]corpus.Document, 1200)
	for i := range docs {
		docs[i] = corpus.Document{ID: fmt.Sprintf("d%d", i), Text: fmt.Sprintf("Text, number %d!", i)}
	}
	inputs, err := e.Prepare(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, inputs, len(docs))
	for _, i := range []int{0, 511, 512, 1199} {
		assert.Equal(t, docs[i].ID, inputs[i].ID)
		assert.Equal(t, docs[i].Text, inputs[i].Text)
		assert.True(t, shingle.Shingle(tokenizer.Clean(docs[i].Text), 4).Equal(inputs[i].Shingles))
	}
}

func TestStats(t *testing.T) {
	e := newTestEngine(t, minhash.DefaultParams())
	_, err := e.Build(context.Background(), []Input{textInput("a", "stats for a single document")}, nil)
	require.NoError(t, err)
	s := e.Stats()
	assert.Equal(t, 1, s.Documents)
	assert.Equal(t, 4, s.ShingleSize)
	assert.Equal(t, 300, s.NumHashes)
	assert.Equal(t, 30, s.Bands)
	assert.Equal(t, 10, s.RowsPerBand)
	assert.InDelta(t, 0.7117, s.ThresholdKnee, 1e-3)
	assert.Equal(t, 30, s.Index.Buckets)
}
