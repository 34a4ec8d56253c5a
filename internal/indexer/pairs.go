package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Pair is a confirmed near-duplicate edge. HandleA < HandleB always holds.
type Pair struct {
	HandleA  uint32  `json:"handle_a"`
	HandleB  uint32  `json:"handle_b"`
	A        string  `json:"id_a"`
	B        string  `json:"id_b"`
	TextA    string  `json:"text_a,omitempty"`
	TextB    string  `json:"text_b,omitempty"`
	Distance float64 `json:"distance"`
}

// PairReport is the outcome of DuplicatePairs.
type PairReport struct {
	Pairs []Pair `json:"pairs"`
	// Neighbors maps every document that has at least one confirmed
	// neighbour to those neighbours, in ascending handle order.
	Neighbors      map[uint32][]uint32 `json:"-"`
	CandidatePairs int                 `json:"candidate_pairs"`
	Duration       time.Duration       `json:"duration"`
}

// pairKey packs an ordered handle pair into a single map key.
func pairKey(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

func unpackPair(k uint64) (uint32, uint32) {
	return uint32(k >> 32), uint32(k)
}

// DuplicatePairs reports every pair of indexed documents that shared a band
// bucket and whose exact distance is strictly below threshold. Each distinct
// pair is verified once no matter how many bands it collided in. Edges are
// direct: A~B and B~C never imply A~C. Pairs are sorted by (HandleA, HandleB).
func (e *Engine) DuplicatePairs(ctx context.Context, threshold float64) (*PairReport, error) {
	start := time.Now()
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside (0, 1]", apperrors.ErrInvalidInput, threshold)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[uint64]struct{})
	err := e.bands.Buckets(2, func(b index.Bucket) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < len(b.Members); i++ {
			for j := i + 1; j < len(b.Members); j++ {
				seen[pairKey(b.Members[i], b.Members[j])] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	candidates := make([]uint64, 0, len(seen))
	for k := range seen {
		candidates = append(candidates, k)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	confirmed, err := e.verifyPairs(ctx, candidates, threshold)
	if err != nil {
		return nil, err
	}

	neighbors := make(map[uint32][]uint32)
	for _, p := range confirmed {
		neighbors[p.HandleA] = append(neighbors[p.HandleA], p.HandleB)
		neighbors[p.HandleB] = append(neighbors[p.HandleB], p.HandleA)
	}
	for _, ns := range neighbors {
		sortHandles(ns)
	}

	report := &PairReport{
		Pairs:          confirmed,
		Neighbors:      neighbors,
		CandidatePairs: len(candidates),
		Duration:       time.Since(start),
	}
	e.logger.Info("duplicate pairs extracted",
		"candidate_pairs", report.CandidatePairs,
		"confirmed_pairs", len(report.Pairs),
		"threshold", threshold,
		"duration", report.Duration,
	)
	return report, nil
}

// verifyPairs checks sorted candidate keys on parallel workers. Each worker
// owns a contiguous slice of the input and its own output slot, so the
// concatenated result keeps the input order. Must be called with e.mu held.
func (e *Engine) verifyPairs(ctx context.Context, candidates []uint64, threshold float64) ([]Pair, error) {
	if len(candidates) == 0 {
		return []Pair{}, nil
	}
	parts := e.workers
	if parts > len(candidates) {
		parts = len(candidates)
	}
	size := (len(candidates) + parts - 1) / parts
	results := make([][]Pair, parts)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < parts; w++ {
		lo := w * size
		if lo >= len(candidates) {
			break
		}
		slice := candidates[lo:min(lo+size, len(candidates))]
		g.Go(func() error {
			var out []Pair
			for i, k := range slice {
				if i%ctxCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				a, b := unpackPair(k)
				da, db := e.docs[a], e.docs[b]
				dist, err := similarity.Distance(da.Shingles, db.Shingles)
				if errors.Is(err, apperrors.ErrDegenerateComparison) {
					continue
				}
				if err != nil {
					return err
				}
				if dist < threshold {
					out = append(out, Pair{
						HandleA:  a,
						HandleB:  b,
						A:        da.ID,
						B:        db.ID,
						TextA:    da.Text,
						TextB:    db.Text,
						Distance: dist,
					})
				}
			}
			results[w] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := 0
	for _, r := range results {
		total += len(r)
	}
	pairs := make([]Pair, 0, total)
	for _, r := range results {
		pairs = append(pairs, r...)
	}
	return pairs, nil
}
