// Package similarity computes exact Jaccard distances between shingle sets
// and samples the distance distribution of a corpus.
package similarity

import (
	"math"
	"math/rand"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
)

// Distance returns 1 - |a∩b|/|a∪b|. Two empty sets have no defined
// distance: Distance returns 1 (maximally dissimilar) together with
// ErrDegenerateComparison so callers can tell the cases apart.
func Distance(a, b shingle.Set) (float64, error) {
	union := a.UnionLen(b)
	if union == 0 {
		return 1, apperrors.ErrDegenerateComparison
	}
	return 1 - float64(a.IntersectionLen(b))/float64(union), nil
}

// HistogramBins is the number of equal-width bins over [0, 1] reported by
// SampleDistribution.
const HistogramBins = 10

// Distribution summarises distances between randomly drawn document pairs.
type Distribution struct {
	Pairs      int                `json:"pairs"`
	Degenerate int                `json:"degenerate"`
	Min        float64            `json:"min"`
	Max        float64            `json:"max"`
	Mean       float64            `json:"mean"`
	Histogram  [HistogramBins]int `json:"histogram"`
}

// SampleDistribution draws n random pairs (with replacement, self-pairs
// allowed) from sets using a generator seeded with seed and summarises
// their Jaccard distances. Pairs of two empty sets are counted as
// Degenerate and excluded from the statistics.
func SampleDistribution(sets []shingle.Set, n int, seed int64) Distribution {
	d := Distribution{Min: math.Inf(1), Max: math.Inf(-1)}
	if len(sets) == 0 || n <= 0 {
		d.Min, d.Max = 0, 0
		return d
	}
	rng := rand.New(rand.NewSource(seed))
	var sum float64
	for i := 0; i < n; i++ {
		a := sets[rng.Intn(len(sets))]
		b := sets[rng.Intn(len(sets))]
		dist, err := Distance(a, b)
		if err != nil {
			d.Degenerate++
			continue
		}
		d.Pairs++
		sum += dist
		d.Min = math.Min(d.Min, dist)
		d.Max = math.Max(d.Max, dist)
		bin := int(dist * HistogramBins)
		if bin >= HistogramBins {
			bin = HistogramBins - 1
		}
		d.Histogram[bin]++
	}
	if d.Pairs == 0 {
		d.Min, d.Max = 0, 0
		return d
	}
	d.Mean = sum / float64(d.Pairs)
	return d
}
