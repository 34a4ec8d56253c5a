package minhash

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFamily(t *testing.T, p Params) *Family {
	t.Helper()
	f, err := NewFamily(p)
	require.NoError(t, err)
	return f
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, 30, p.Bands())
	assert.InDelta(t, 0.7117, p.Threshold(), 1e-3)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"zero hashes", func(p *Params) { p.NumHashes = 0 }},
		{"zero rows", func(p *Params) { p.RowsPerBand = 0 }},
		{"not divisible", func(p *Params) { p.NumHashes = 301 }},
		{"prime too small", func(p *Params) { p.Prime = 2 }},
		{"prime too large", func(p *Params) { p.Prime = 1 << 33 }},
		{"band prime too small", func(p *Params) { p.BandPrime = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), apperrors.ErrConfiguration)
			_, err := NewFamily(p)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}
}

func TestCandidateProbability(t *testing.T) {
	p := DefaultParams()
	assert.InDelta(t, 0, p.CandidateProbability(0), 1e-12)
	assert.InDelta(t, 1, p.CandidateProbability(1), 1e-12)
	assert.Greater(t, p.CandidateProbability(0.9), p.CandidateProbability(0.5))
	assert.Greater(t, p.CandidateProbability(0.9), 0.99)
}

func TestFamilyDeterministic(t *testing.T) {
	a := newFamily(t, DefaultParams())
	b := newFamily(t, DefaultParams())
	assert.Equal(t, a.Coefficients(), b.Coefficients())
	assert.Equal(t, 300, a.NumHashes())
	assert.Equal(t, 10, a.RowsPerBand())
	assert.Equal(t, 30, a.Bands())

	other := DefaultParams()
	other.Seeds.SignatureA = 99
	c := newFamily(t, other)
	assert.NotEqual(t, a.Coefficients().A, c.Coefficients().A)
}

func TestCoefficientRanges(t *testing.T) {
	f := newFamily(t, DefaultParams())
	c := f.Coefficients()
	for i := range c.A {
		assert.GreaterOrEqual(t, c.A[i], uint64(1))
		assert.Less(t, c.A[i], c.Prime-1)
		assert.Less(t, c.B[i], c.Prime-1)
	}
	for r := range c.BandA {
		assert.Less(t, c.BandA[r], c.BandPrime-1)
		assert.Less(t, c.BandB[r], c.BandPrime-1)
	}
}

func TestSignatureEmptySet(t *testing.T) {
	f := newFamily(t, DefaultParams())
	_, err := f.Signature(shingle.NewSet())
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)
}

func TestSignatureBelowPrime(t *testing.T) {
	f := newFamily(t, DefaultParams())
	sig, err := f.Signature(shingle.Shingle("values stay below the prime", 4))
	require.NoError(t, err)
	require.Len(t, sig, 300)
	for _, v := range sig {
		assert.Less(t, uint64(v), DefaultParams().Prime)
	}
}

func TestIdenticalSetsShareEveryBand(t *testing.T) {
	f := newFamily(t, DefaultParams())
	a := shingle.Shingle("identical text lands in identical buckets", 4)
	b := shingle.Shingle("identical text lands in identical buckets", 4)
	sa, err := f.Signature(a)
	require.NoError(t, err)
	sb, err := f.Signature(b)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)

	ka, err := f.BandKeys(sa)
	require.NoError(t, err)
	kb, err := f.BandKeys(sb)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
	assert.Len(t, ka, 30)
}

func TestBandKeyDependsOnlyOnItsRows(t *testing.T) {
	f := newFamily(t, Params{NumHashes: 6, RowsPerBand: 3, Prime: 2147482949, BandPrime: 2000001,
		Seeds: Seeds{SignatureA: 10, SignatureB: 11, BandA: 1, BandB: 7}})
	x := Signature{1, 2, 3, 4, 5, 6}
	y := Signature{1, 2, 3, 40, 50, 60}
	kx, err := f.BandKeys(x)
	require.NoError(t, err)
	ky, err := f.BandKeys(y)
	require.NoError(t, err)
	assert.Equal(t, kx[0], ky[0])
	assert.NotEqual(t, kx[1], ky[1])
}

func TestBandKeysLengthMismatch(t *testing.T) {
	f := newFamily(t, DefaultParams())
	_, err := f.BandKeys(make(Signature, 10))
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestAgreementApproximatesJaccard(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := make([]uint64, 1500)
	for i := range values {
		values[i] = uint64(rng.Int63n(1 << 40))
	}
	a := shingle.FromValues(values[:1000]...)
	b := shingle.FromValues(values[500:]...)
	jaccard := float64(a.IntersectionLen(b)) / float64(a.UnionLen(b))

	f := newFamily(t, DefaultParams())
	sa, err := f.Signature(a)
	require.NoError(t, err)
	sb, err := f.Signature(b)
	require.NoError(t, err)
	assert.InDelta(t, jaccard, Agreement(sa, sb), 0.12)
}

func TestAgreement(t *testing.T) {
	assert.Equal(t, 1.0, Agreement(Signature{1, 2}, Signature{1, 2}))
	assert.Equal(t, 0.5, Agreement(Signature{1, 2}, Signature{1, 3}))
	assert.Equal(t, 0.0, Agreement(Signature{1}, Signature{1, 2}))
	assert.Equal(t, 0.0, Agreement(nil, nil))
}

func TestFromCoefficientsRoundTrip(t *testing.T) {
	f := newFamily(t, DefaultParams())
	g, err := FromCoefficients(f.Coefficients())
	require.NoError(t, err)
	set := shingle.Shingle("restored families sign identically", 4)
	sf, err := f.Signature(set)
	require.NoError(t, err)
	sg, err := g.Signature(set)
	require.NoError(t, err)
	assert.Equal(t, sf, sg)
	assert.Equal(t, f.Params().Threshold(), g.Params().Threshold())
}

func TestFromCoefficientsRejectsMismatch(t *testing.T) {
	c := newFamily(t, DefaultParams()).Coefficients()
	c.B = c.B[:10]
	_, err := FromCoefficients(c)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	c = newFamily(t, DefaultParams()).Coefficients()
	c.BandA = c.BandA[:7]
	c.BandB = c.BandB[:7]
	_, err = FromCoefficients(c)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestMulAddModMatchesBigInt(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := uint64(2147482949)
	for i := 0; i < 1000; i++ {
		a, x, b := rng.Uint64(), rng.Uint64(), rng.Uint64()%m
		want := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(x))
		want.Add(want, new(big.Int).SetUint64(b))
		want.Mod(want, new(big.Int).SetUint64(m))
		assert.Equal(t, want.Uint64(), mulAddMod(a, x, b, m))
	}
}
