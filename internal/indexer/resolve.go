package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
)

// QueryRequest asks for the nearest indexed document to Shingles.
type QueryRequest struct {
	ID        string
	Text      string
	Shingles  shingle.Set
	Threshold float64
	// Insert adds the query to the index after it has been resolved.
	Insert bool
	// Exclude drops one handle from the candidate set, so an indexed
	// document can be resolved against the rest of the corpus.
	Exclude *uint32
}

// Match is the closest confirmed candidate.
type Match struct {
	Handle   uint32  `json:"handle"`
	ID       string  `json:"id"`
	Text     string  `json:"text,omitempty"`
	Distance float64 `json:"distance"`
}

// QueryResult is the outcome of Query. Match is nil when no candidate came
// strictly below the threshold; Reason then says why.
type QueryResult struct {
	Match      *Match        `json:"match,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Candidates int           `json:"candidates"`
	Verified   int           `json:"verified"`
	Inserted   *uint32       `json:"inserted,omitempty"`
	Took       time.Duration `json:"took"`
}

// Matched reports whether a near-duplicate was found.
func (r *QueryResult) Matched() bool {
	return r.Match != nil
}

// Query signs req.Shingles with the engine's family, gathers every indexed
// document sharing a band bucket with it and verifies each against the
// exact Jaccard distance. Candidates are visited in ascending handle order
// and the first one with the smallest distance strictly below the threshold
// wins. An empty shingle set is answered with Reason "no_signature" and is
// never inserted. The index is not modified unless req.Insert is set.
//
// ctx is checked before resolution and again before the insert, but an insert
// that has started always completes. A caller that gives up at that point and
// retries may index the document twice, so inserts are at-least-once.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	start := time.Now()
	threshold := req.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside (0, 1]", apperrors.ErrInvalidInput, threshold)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &QueryResult{}
	keys, err := e.bandKeys(req.Shingles)
	if errors.Is(err, apperrors.ErrEmptyInput) {
		result.Reason = ReasonNoSignature
		result.Took = time.Since(start)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.resolve(ctx, req, keys, threshold, result); err != nil {
		return nil, err
	}

	if req.Insert {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := e.Insert(Input{ID: req.ID, Text: req.Text, Shingles: req.Shingles})
		if err != nil {
			return nil, fmt.Errorf("inserting query document: %w", err)
		}
		result.Inserted = &doc.Handle
	}
	result.Took = time.Since(start)
	return result, nil
}

func (e *Engine) resolve(ctx context.Context, req QueryRequest, keys []uint64, threshold float64, result *QueryResult) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cands, err := e.bands.Lookup(keys)
	if err != nil {
		return err
	}
	if req.Exclude != nil {
		cands.Remove(*req.Exclude)
	}
	result.Candidates = int(cands.GetCardinality())
	if result.Candidates == 0 {
		result.Reason = ReasonNoCandidates
		return nil
	}

	best, bestDist, verified, err := e.nearest(ctx, req.Shingles, cands, threshold)
	result.Verified = verified
	if err != nil {
		return err
	}
	if best == nil {
		result.Reason = ReasonAboveThreshold
		return nil
	}
	result.Match = &Match{
		Handle:   best.Handle,
		ID:       best.ID,
		Text:     best.Text,
		Distance: bestDist,
	}
	return nil
}

// nearest must be called with e.mu held.
func (e *Engine) nearest(ctx context.Context, query shingle.Set, cands *roaring.Bitmap, threshold float64) (*Document, float64, int, error) {
	var best *Document
	bestDist := threshold
	verified := 0
	it := cands.Iterator()
	for it.HasNext() {
		if verified%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, verified, err
			}
		}
		doc := e.docs[it.Next()]
		verified++
		dist, err := similarity.Distance(query, doc.Shingles)
		if err != nil {
			continue
		}
		if dist < bestDist {
			best, bestDist = doc, dist
		}
	}
	return best, bestDist, verified, nil
}

// Resolve is Query without insertion.
func (e *Engine) Resolve(ctx context.Context, shingles shingle.Set, threshold float64) (*QueryResult, error) {
	return e.Query(ctx, QueryRequest{Shingles: shingles, Threshold: threshold})
}

// ResolveDocument finds the nearest neighbour of an already indexed
// document among the rest of the corpus.
func (e *Engine) ResolveDocument(ctx context.Context, id string, threshold float64) (*QueryResult, error) {
	doc, ok := e.DocumentByID(id)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %q is not indexed", id)
	}
	handle := doc.Handle
	return e.Query(ctx, QueryRequest{
		ID:        doc.ID,
		Shingles:  doc.Shingles,
		Threshold: threshold,
		Exclude:   &handle,
	})
}
