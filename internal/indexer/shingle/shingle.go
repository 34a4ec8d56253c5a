// Package shingle turns cleaned text into sets of hashed k-character
// windows. Each window is hashed with a positional base-37 polynomial over
// the alphabet a-z, 0-9 and space, so the hash is exact (collision-free) for
// every k up to MaxK.
package shingle

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

const (
	// Radix is the alphabet size: 26 letters, 10 digits, space.
	Radix = 37
	// DefaultK is the window width used by the indexer.
	DefaultK = 4
	// MaxK is the widest window whose hash fits in 64 bits.
	MaxK = 12

	spaceSymbol = 36
)

var symbolIndex [256]uint8

func init() {
	for i := range symbolIndex {
		symbolIndex[i] = spaceSymbol
	}
	for c := 'a'; c <= 'z'; c++ {
		symbolIndex[c] = uint8(c - 'a')
	}
	for c := '0'; c <= '9'; c++ {
		symbolIndex[c] = uint8(26 + c - '0')
	}
}

// SymbolIndex returns the alphabet position of c. Bytes outside the alphabet
// map to the space symbol.
func SymbolIndex(c byte) uint64 {
	return uint64(symbolIndex[c])
}

// Shingle returns the set of positional hashes of every length-k window of
// text. The set is empty when len(text) < k or k is outside [1, MaxK].
func Shingle(text string, k int) Set {
	set := NewSet()
	if k < 1 || k > MaxK || len(text) < k {
		return set
	}
	lead := uint64(1)
	for i := 1; i < k; i++ {
		lead *= Radix
	}
	var h uint64
	for i := 0; i < k; i++ {
		h = h*Radix + SymbolIndex(text[i])
	}
	set.bm.Add(h)
	for b := 1; b+k <= len(text); b++ {
		h = (h-SymbolIndex(text[b-1])*lead)*Radix + SymbolIndex(text[b+k-1])
		set.bm.Add(h)
	}
	set.bm.RunOptimize()
	return set
}

// Hash returns the positional hash of a single window. It is the value
// Shingle inserts for that window.
func Hash(window string) uint64 {
	var h uint64
	for i := 0; i < len(window); i++ {
		h = h*Radix + SymbolIndex(window[i])
	}
	return h
}

// Set is an immutable-by-convention set of shingle hashes backed by a
// compressed bitmap.
type Set struct {
	bm *roaring64.Bitmap
}

// NewSet returns an empty set.
func NewSet() Set {
	return Set{bm: roaring64.New()}
}

// FromValues builds a set from raw hash values.
func FromValues(values ...uint64) Set {
	s := NewSet()
	s.bm.AddMany(values)
	return s
}

// Len returns the number of distinct shingles.
func (s Set) Len() int {
	if s.bm == nil {
		return 0
	}
	return int(s.bm.GetCardinality())
}

// IsEmpty reports whether the set has no shingles.
func (s Set) IsEmpty() bool {
	return s.bm == nil || s.bm.IsEmpty()
}

// Contains reports whether h is in the set.
func (s Set) Contains(h uint64) bool {
	return s.bm != nil && s.bm.Contains(h)
}

// Values returns the hashes in ascending order.
func (s Set) Values() []uint64 {
	if s.bm == nil {
		return nil
	}
	return s.bm.ToArray()
}

// Each calls fn for every hash in ascending order.
func (s Set) Each(fn func(h uint64)) {
	if s.bm == nil {
		return
	}
	it := s.bm.Iterator()
	for it.HasNext() {
		fn(it.Next())
	}
}

// IntersectionLen returns |s ∩ o|.
func (s Set) IntersectionLen(o Set) int {
	if s.IsEmpty() || o.IsEmpty() {
		return 0
	}
	return int(s.bm.AndCardinality(o.bm))
}

// UnionLen returns |s ∪ o|.
func (s Set) UnionLen(o Set) int {
	switch {
	case s.IsEmpty():
		return o.Len()
	case o.IsEmpty():
		return s.Len()
	}
	return int(s.bm.OrCardinality(o.bm))
}

// Equal reports whether both sets hold the same hashes.
func (s Set) Equal(o Set) bool {
	if s.IsEmpty() || o.IsEmpty() {
		return s.IsEmpty() && o.IsEmpty()
	}
	return s.bm.Equals(o.bm)
}

// MarshalBinary encodes the set in the portable roaring format.
func (s Set) MarshalBinary() ([]byte, error) {
	if s.bm == nil {
		return roaring64.New().MarshalBinary()
	}
	return s.bm.MarshalBinary()
}

// Decode parses a set produced by MarshalBinary.
func Decode(data []byte) (Set, error) {
	s := NewSet()
	if err := s.bm.UnmarshalBinary(data); err != nil {
		return Set{}, fmt.Errorf("decoding shingle set: %w", err)
	}
	return s, nil
}
