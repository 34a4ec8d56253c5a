package similarity

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b shingle.Set
		want float64
	}{
		{"identical", shingle.FromValues(1, 2, 3), shingle.FromValues(1, 2, 3), 0},
		{"half overlap", shingle.FromValues(1, 2, 3), shingle.FromValues(2, 3, 4), 0.5},
		{"disjoint", shingle.FromValues(1, 2), shingle.FromValues(3, 4), 1},
		{"subset", shingle.FromValues(1, 2, 3, 4), shingle.FromValues(1), 0.75},
		{"one empty", shingle.FromValues(1, 2), shingle.NewSet(), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Distance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, d, 1e-12)
			back, err := Distance(tt.b, tt.a)
			require.NoError(t, err)
			assert.Equal(t, d, back)
		})
	}
}

func TestDistanceSelfIsZero(t *testing.T) {
	s := shingle.Shingle("a document compared with itself", 4)
	d, err := Distance(s, s)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestDistanceBothEmpty(t *testing.T) {
	d, err := Distance(shingle.NewSet(), shingle.Set{})
	assert.ErrorIs(t, err, apperrors.ErrDegenerateComparison)
	assert.Equal(t, 1.0, d)
}

func TestSampleDistribution(t *testing.T) {
	sets := []shingle.Set{
		shingle.FromValues(1, 2, 3),
		shingle.FromValues(2, 3, 4),
		shingle.FromValues(7, 8),
		shingle.FromValues(1, 2, 3, 9),
	}
	d := SampleDistribution(sets, 500, 3)
	assert.Equal(t, 500, d.Pairs)
	assert.Zero(t, d.Degenerate)
	assert.GreaterOrEqual(t, d.Min, 0.0)
	assert.LessOrEqual(t, d.Max, 1.0)
	assert.GreaterOrEqual(t, d.Mean, d.Min)
	assert.LessOrEqual(t, d.Mean, d.Max)
	total := 0
	for _, n := range d.Histogram {
		total += n
	}
	assert.Equal(t, d.Pairs, total)

	assert.Equal(t, d, SampleDistribution(sets, 500, 3))
}

func TestSampleDistributionDegenerate(t *testing.T) {
	d := SampleDistribution([]shingle.Set{shingle.NewSet()}, 20, 1)
	assert.Equal(t, 0, d.Pairs)
	assert.Equal(t, 20, d.Degenerate)
	assert.Zero(t, d.Min)
	assert.Zero(t, d.Max)
}

func TestSampleDistributionEmptyInput(t *testing.T) {
	assert.Equal(t, Distribution{}, SampleDistribution(nil, 100, 1))
	assert.Equal(t, Distribution{}, SampleDistribution([]shingle.Set{shingle.FromValues(1)}, 0, 1))
}
