package indexer

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/tokenizer"
	"golang.org/x/sync/errgroup"
)

// Prepare cleans and shingles raw documents on parallel workers. The output
// keeps input order. Input.Text holds the uncleaned source text.
func (e *Engine) Prepare(ctx context.Context, docs []corpus.Document) ([]Input, error) {
	out := make([]Input, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	const chunk = 512
	for lo := 0; lo < len(docs); lo += chunk {
		hi := min(lo+chunk, len(docs))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				out[i] = Input{
					ID:       docs[i].ID,
					Text:     docs[i].Text,
					Shingles: shingle.Shingle(tokenizer.Clean(docs[i].Text), e.shingleSize),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
