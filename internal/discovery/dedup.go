package discovery

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Dedup defaults.
const (
	DefaultDedupCapacity     = 10_000
	DefaultFalsePositiveRate = 0.0001
)

// TxDedup remembers transaction hashes. The most recent Capacity hashes are
// held in an exact set; when it fills up it is rotated and older hashes stay
// covered by a bloom filter, so a very old hash may rarely be reported seen
// although it was not.
type TxDedup struct {
	mu       sync.Mutex
	capacity int
	recent   map[string]struct{}
	filter   *bloom.BloomFilter
	rotated  int
}

// NewTxDedup creates a dedup set. capacity <= 0 uses DefaultDedupCapacity.
func NewTxDedup(capacity int, fpRate float64) *TxDedup {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultFalsePositiveRate
	}
	return &TxDedup{
		capacity: capacity,
		recent:   make(map[string]struct{}, capacity),
		// Sized for ten rotations before the false-positive rate degrades.
		filter: bloom.NewWithEstimates(uint(capacity*10), fpRate),
	}
}

// Add records hash and reports whether it was new.
func (d *TxDedup) Add(hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen(hash) {
		return false
	}
	if len(d.recent) >= d.capacity {
		d.recent = make(map[string]struct{}, d.capacity)
		d.rotated++
	}
	d.recent[hash] = struct{}{}
	d.filter.AddString(hash)
	return true
}

// DedupStats describes the dedup set.
type DedupStats struct {
	Recent    int `json:"recent"`    // hashes in the exact set
	Rotations int `json:"rotations"` // times the exact set was rolled into the filter
}

// Stats returns the current set sizes.
func (d *TxDedup) Stats() DedupStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DedupStats{Recent: len(d.recent), Rotations: d.rotated}
}

func (d *TxDedup) seen(hash string) bool {
	if _, ok := d.recent[hash]; ok {
		return true
	}
	return d.rotated > 0 && d.filter.TestString(hash)
}
