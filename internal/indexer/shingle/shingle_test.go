package shingle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShingleWindows(t *testing.T) {
	set := Shingle("cat sat", 4)
	require.Equal(t, 4, set.Len())
	for _, w := range []string{"cat ", "at s", "t sa", " sat"} {
		assert.True(t, set.Contains(Hash(w)), "missing window %q", w)
	}
}

func TestShingleShortText(t *testing.T) {
	assert.True(t, Shingle("cat", 4).IsEmpty())
	assert.True(t, Shingle("", 4).IsEmpty())
	assert.Equal(t, 1, Shingle("cats", 4).Len())
}

func TestShingleInvalidK(t *testing.T) {
	assert.True(t, Shingle("long enough text", 0).IsEmpty())
	assert.True(t, Shingle("long enough text", MaxK+1).IsEmpty())
}

func TestShingleDeterministic(t *testing.T) {
	text := "great product would buy again great product"
	assert.True(t, Shingle(text, DefaultK).Equal(Shingle(text, DefaultK)))
}

func TestShingleRollingMatchesDirectHash(t *testing.T) {
	text := "the rolling hash must agree with direct hashing 0123456789"
	for _, k := range []int{1, 4, 7, MaxK} {
		want := NewSet()
		for i := 0; i+k <= len(text); i++ {
			want.bm.Add(Hash(text[i : i+k]))
		}
		assert.True(t, want.Equal(Shingle(text, k)), "k=%d", k)
	}
}

func TestHashExact(t *testing.T) {
	assert.Equal(t, uint64(0), Hash("aaaa"))
	assert.Equal(t, uint64(36), Hash("a "))
	assert.NotEqual(t, Hash("ab"), Hash("ba"))
	assert.Less(t, Hash("            "), uint64(1<<63))
}

func TestSymbolIndex(t *testing.T) {
	assert.Equal(t, uint64(0), SymbolIndex('a'))
	assert.Equal(t, uint64(25), SymbolIndex('z'))
	assert.Equal(t, uint64(26), SymbolIndex('0'))
	assert.Equal(t, uint64(35), SymbolIndex('9'))
	assert.Equal(t, uint64(36), SymbolIndex(' '))
	assert.Equal(t, uint64(36), SymbolIndex('A'))
}

func TestSetOperations(t *testing.T) {
	a := FromValues(1, 2, 3)
	b := FromValues(2, 3, 4)
	assert.Equal(t, 2, a.IntersectionLen(b))
	assert.Equal(t, 4, a.UnionLen(b))
	assert.Equal(t, []uint64{1, 2, 3}, a.Values())

	var zero Set
	assert.True(t, zero.IsEmpty())
	assert.Equal(t, 0, zero.Len())
	assert.Equal(t, 3, zero.UnionLen(a))
	assert.Equal(t, 0, zero.IntersectionLen(a))
	assert.True(t, zero.Equal(NewSet()))
	assert.False(t, zero.Equal(a))
}

func TestEachAscending(t *testing.T) {
	var got []uint64
	FromValues(9, 3, 5).Each(func(h uint64) { got = append(got, h) })
	assert.Equal(t, []uint64{3, 5, 9}, got)
}

func TestMarshalDecode(t *testing.T) {
	set := Shingle("persisted shingle set", DefaultK)
	data, err := set.MarshalBinary()
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, set.Equal(back))

	_, err = Decode([]byte{0xff, 0x01})
	assert.Error(t, err)
}
