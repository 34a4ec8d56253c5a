// Package minhash computes MinHash signatures over shingle sets and folds
// them into LSH band keys.
//
// A Family fixes every random coefficient used by the pipeline: NumHashes
// pairs (a_i, b_i) modulo Prime for the signature, and RowsPerBand pairs
// (ab_r, bb_r) modulo BandPrime shared by every band. Signatures and band
// keys are only comparable between documents hashed by the same Family, so
// the coefficients are persisted with every index snapshot.
package minhash

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
)

// Params describes a Family before its coefficients are drawn.
type Params struct {
	NumHashes   int    `json:"num_hashes"`
	RowsPerBand int    `json:"rows_per_band"`
	Prime       uint64 `json:"prime"`
	BandPrime   uint64 `json:"band_prime"`
	Seeds       Seeds  `json:"seeds"`
}

// Seeds seed the four coefficient tables independently.
type Seeds struct {
	SignatureA int64 `json:"signature_a"`
	SignatureB int64 `json:"signature_b"`
	BandA      int64 `json:"band_a"`
	BandB      int64 `json:"band_b"`
}

// DefaultParams returns 30 bands of 10 rows over the 31-bit prime
// 2147482949, with band keys reduced modulo 2000001.
func DefaultParams() Params {
	return Params{
		NumHashes:   300,
		RowsPerBand: 10,
		Prime:       2147482949,
		BandPrime:   2000001,
		Seeds:       Seeds{SignatureA: 10, SignatureB: 11, BandA: 1, BandB: 7},
	}
}

// Bands returns NumHashes / RowsPerBand.
func (p Params) Bands() int {
	if p.RowsPerBand <= 0 {
		return 0
	}
	return p.NumHashes / p.RowsPerBand
}

// Validate rejects parameter sets that cannot produce a consistent index.
func (p Params) Validate() error {
	switch {
	case p.NumHashes <= 0 || p.RowsPerBand <= 0:
		return fmt.Errorf("%w: num hashes %d and rows per band %d must be positive",
			apperrors.ErrConfiguration, p.NumHashes, p.RowsPerBand)
	case p.NumHashes%p.RowsPerBand != 0:
		return fmt.Errorf("%w: signature length %d not divisible by rows per band %d",
			apperrors.ErrConfiguration, p.NumHashes, p.RowsPerBand)
	case p.Prime < 3 || p.Prime > math.MaxUint32:
		return fmt.Errorf("%w: prime %d must be in [3, 2^32)", apperrors.ErrConfiguration, p.Prime)
	case p.BandPrime < 2:
		return fmt.Errorf("%w: band prime %d must be at least 2", apperrors.ErrConfiguration, p.BandPrime)
	}
	return nil
}

// Threshold approximates the similarity at which a pair becomes more likely
// than not to share a bucket: (1/b)^(1/r). More rows per band push it up
// (fewer false positives, more false negatives); more bands pull it down.
func (p Params) Threshold() float64 {
	b, r := float64(p.Bands()), float64(p.RowsPerBand)
	if b == 0 || r == 0 {
		return 0
	}
	return math.Pow(1/b, 1/r)
}

// CandidateProbability is the chance that two documents with Jaccard
// similarity s agree on at least one whole band: 1-(1-s^r)^b.
func (p Params) CandidateProbability(s float64) float64 {
	if s <= 0 {
		return 0
	}
	if s >= 1 {
		return 1
	}
	band := math.Pow(s, float64(p.RowsPerBand))
	return 1 - math.Pow(1-band, float64(p.Bands()))
}

// Coefficients is the persisted form of a Family.
type Coefficients struct {
	Prime     uint64   `json:"prime"`
	BandPrime uint64   `json:"band_prime"`
	A         []uint64 `json:"a"`
	B         []uint64 `json:"b"`
	BandA     []uint64 `json:"band_a"`
	BandB     []uint64 `json:"band_b"`
}

// Signature holds one minimum per hash function. Values are below the
// family prime, which is capped at 2^32.
type Signature []uint32

// Family is a fixed, read-only set of hash functions. It is safe for
// concurrent use.
type Family struct {
	rows  int
	bands int
	c     Coefficients
}

// NewFamily draws coefficients from the seeded generators in p.
// Signature coefficients a_i are drawn from [1, Prime-1), b_i from
// [0, Prime-1); band coefficients from [0, BandPrime-1).
func NewFamily(p Params) (*Family, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := Coefficients{
		Prime:     p.Prime,
		BandPrime: p.BandPrime,
		A:         draw(p.Seeds.SignatureA, p.NumHashes, 1, p.Prime-1),
		B:         draw(p.Seeds.SignatureB, p.NumHashes, 0, p.Prime-1),
		BandA:     draw(p.Seeds.BandA, p.RowsPerBand, 0, p.BandPrime-1),
		BandB:     draw(p.Seeds.BandB, p.RowsPerBand, 0, p.BandPrime-1),
	}
	return FromCoefficients(c)
}

// FromCoefficients rebuilds a Family from persisted coefficients.
func FromCoefficients(c Coefficients) (*Family, error) {
	switch {
	case len(c.A) == 0 || len(c.A) != len(c.B):
		return nil, fmt.Errorf("%w: signature coefficient tables have lengths %d and %d",
			apperrors.ErrConfiguration, len(c.A), len(c.B))
	case len(c.BandA) == 0 || len(c.BandA) != len(c.BandB):
		return nil, fmt.Errorf("%w: band coefficient tables have lengths %d and %d",
			apperrors.ErrConfiguration, len(c.BandA), len(c.BandB))
	case len(c.A)%len(c.BandA) != 0:
		return nil, fmt.Errorf("%w: signature length %d not divisible by rows per band %d",
			apperrors.ErrConfiguration, len(c.A), len(c.BandA))
	case c.Prime < 3 || c.Prime > math.MaxUint32:
		return nil, fmt.Errorf("%w: prime %d must be in [3, 2^32)", apperrors.ErrConfiguration, c.Prime)
	case c.BandPrime < 2:
		return nil, fmt.Errorf("%w: band prime %d must be at least 2", apperrors.ErrConfiguration, c.BandPrime)
	}
	return &Family{
		rows:  len(c.BandA),
		bands: len(c.A) / len(c.BandA),
		c:     c,
	}, nil
}

// draw returns n values uniformly from [lo, hi).
func draw(seed int64, n int, lo, hi uint64) []uint64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]uint64, n)
	span := int64(hi - lo)
	if span <= 0 {
		span = 1
	}
	for i := range out {
		out[i] = lo + uint64(rng.Int63n(span))
	}
	return out
}

// NumHashes returns the signature length.
func (f *Family) NumHashes() int { return len(f.c.A) }

// RowsPerBand returns the band width.
func (f *Family) RowsPerBand() int { return f.rows }

// Bands returns the number of band keys per signature.
func (f *Family) Bands() int { return f.bands }

// Coefficients returns a copy of the family's coefficients for persistence.
func (f *Family) Coefficients() Coefficients {
	c := f.c
	c.A = append([]uint64(nil), f.c.A...)
	c.B = append([]uint64(nil), f.c.B...)
	c.BandA = append([]uint64(nil), f.c.BandA...)
	c.BandB = append([]uint64(nil), f.c.BandB...)
	return c
}

// Params reports the shape of the family. Seeds are not recoverable from
// coefficients and are left zero.
func (f *Family) Params() Params {
	return Params{
		NumHashes:   len(f.c.A),
		RowsPerBand: f.rows,
		Prime:       f.c.Prime,
		BandPrime:   f.c.BandPrime,
	}
}

// Signature returns, for every hash function i, the minimum of
// (a_i*s + b_i) mod Prime over all shingles s. All minima are maintained in
// a single pass over the set. An empty set has no signature and yields
// ErrEmptyInput.
func (f *Family) Signature(set shingle.Set) (Signature, error) {
	if set.IsEmpty() {
		return nil, apperrors.ErrEmptyInput
	}
	n := len(f.c.A)
	mins := make([]uint64, n)
	for i := range mins {
		mins[i] = math.MaxUint64
	}
	a, b, p := f.c.A, f.c.B, f.c.Prime
	set.Each(func(s uint64) {
		for i := 0; i < n; i++ {
			if v := mulAddMod(a[i], s, b[i], p); v < mins[i] {
				mins[i] = v
			}
		}
	})
	sig := make(Signature, n)
	for i, v := range mins {
		sig[i] = uint32(v)
	}
	return sig, nil
}

// BandKeys folds sig into one key per band. Row r of every band is hashed
// with the shared pair (ab_r, bb_r) modulo BandPrime and the band's row
// hashes are summed, so two signatures that agree on a whole band always
// share that band's key.
func (f *Family) BandKeys(sig Signature) ([]uint64, error) {
	if len(sig) != len(f.c.A) {
		return nil, fmt.Errorf("%w: signature length %d, family expects %d",
			apperrors.ErrConfiguration, len(sig), len(f.c.A))
	}
	keys := make([]uint64, f.bands)
	ab, bb, pb := f.c.BandA, f.c.BandB, f.c.BandPrime
	for j := 0; j < f.bands; j++ {
		row := sig[j*f.rows : (j+1)*f.rows]
		var sum uint64
		for r, v := range row {
			sum += mulAddMod(ab[r], uint64(v), bb[r], pb)
		}
		keys[j] = sum
	}
	return keys, nil
}

// Agreement returns the fraction of positions where x and y hold the same
// value, the MinHash estimate of their Jaccard similarity.
func Agreement(x, y Signature) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}
	match := 0
	for i := range x {
		if x[i] == y[i] {
			match++
		}
	}
	return float64(match) / float64(len(x))
}

// mulAddMod returns (a*x + b) mod m using 128-bit intermediates.
func mulAddMod(a, x, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, x)
	lo, carry := bits.Add64(lo, b, 0)
	hi += carry
	if hi == 0 {
		return lo % m
	}
	return bits.Rem64(hi, lo, m)
}
