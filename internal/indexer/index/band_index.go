// Package index holds the LSH band tables. Each band owns an independent
// bucket map from band key to the set of document handles whose signature
// produced that key, guarded by its own lock so concurrent inserts into
// different bands never contend.
package index

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
)

type table struct {
	mu      sync.RWMutex
	buckets map[uint64]*roaring.Bitmap
}

// BandIndex is a fixed number of band tables. Entries are append-only.
type BandIndex struct {
	tables []*table
}

// New creates an index with the given number of bands.
func New(bands int) (*BandIndex, error) {
	if bands <= 0 {
		return nil, fmt.Errorf("%w: band count %d must be positive", apperrors.ErrConfiguration, bands)
	}
	idx := &BandIndex{tables: make([]*table, bands)}
	for i := range idx.tables {
		idx.tables[i] = &table{buckets: make(map[uint64]*roaring.Bitmap)}
	}
	return idx, nil
}

// Bands returns the number of band tables.
func (x *BandIndex) Bands() int {
	return len(x.tables)
}

// Insert places handle into bucket keys[j] of table j for every band.
func (x *BandIndex) Insert(handle uint32, keys []uint64) error {
	if len(keys) != len(x.tables) {
		return fmt.Errorf("%w: got %d band keys for %d bands", apperrors.ErrConfiguration, len(keys), len(x.tables))
	}
	for j, key := range keys {
		t := x.tables[j]
		t.mu.Lock()
		bm, ok := t.buckets[key]
		if !ok {
			bm = roaring.New()
			t.buckets[key] = bm
		}
		bm.Add(handle)
		t.mu.Unlock()
	}
	return nil
}

// Lookup returns the union, across all bands, of the buckets matching keys.
// Bands whose key has no bucket contribute nothing.
func (x *BandIndex) Lookup(keys []uint64) (*roaring.Bitmap, error) {
	if len(keys) != len(x.tables) {
		return nil, fmt.Errorf("%w: got %d band keys for %d bands", apperrors.ErrConfiguration, len(keys), len(x.tables))
	}
	result := roaring.New()
	for j, key := range keys {
		t := x.tables[j]
		t.mu.RLock()
		if bm, ok := t.buckets[key]; ok {
			result.Or(bm)
		}
		t.mu.RUnlock()
	}
	return result, nil
}

// Bucket is a read-only view of one occupied bucket.
type Bucket struct {
	Band    int
	Key     uint64
	Members []uint32
}

// Buckets calls fn for every bucket holding at least minSize handles,
// band by band, in ascending key order. Members are copied out so fn may
// run without holding the band lock.
func (x *BandIndex) Buckets(minSize int, fn func(b Bucket) error) error {
	for j, t := range x.tables {
		t.mu.RLock()
		keys := make([]uint64, 0, len(t.buckets))
		for key, bm := range t.buckets {
			if int(bm.GetCardinality()) >= minSize {
				keys = append(keys, key)
			}
		}
		sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
		buckets := make([]Bucket, 0, len(keys))
		for _, key := range keys {
			buckets = append(buckets, Bucket{Band: j, Key: key, Members: t.buckets[key].ToArray()})
		}
		t.mu.RUnlock()
		for _, b := range buckets {
			if err := fn(b); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats summarises bucket occupancy.
type Stats struct {
	Bands          int     `json:"bands"`
	Buckets        int     `json:"buckets"`
	SharedBuckets  int     `json:"shared_buckets"`
	MaxBucketSize  int     `json:"max_bucket_size"`
	AvgBucketSize  float64 `json:"avg_bucket_size"`
	BucketsPerBand []int   `json:"buckets_per_band"`
}

// Stats returns occupancy figures across all bands.
func (x *BandIndex) Stats() Stats {
	s := Stats{
		Bands:          len(x.tables),
		BucketsPerBand: make([]int, len(x.tables)),
	}
	var members uint64
	for j, t := range x.tables {
		t.mu.RLock()
		s.BucketsPerBand[j] = len(t.buckets)
		s.Buckets += len(t.buckets)
		for _, bm := range t.buckets {
			n := bm.GetCardinality()
			members += n
			if n >= 2 {
				s.SharedBuckets++
			}
			if int(n) > s.MaxBucketSize {
				s.MaxBucketSize = int(n)
			}
		}
		t.mu.RUnlock()
	}
	if s.Buckets > 0 {
		s.AvgBucketSize = float64(members) / float64(s.Buckets)
	}
	return s
}
