// Package store holds the set of track ids already in the pending playlist.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DedupStore is a thread-safe track id set. A bloom filter answers most
// misses without touching the map; the LRU bounds how many ids added after a
// snapshot are kept.
type DedupStore struct {
	trackIDs          map[string]struct{}
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	capacity          int
	falsePositiveRate float64
}

// NewDedupStore creates a store sized for capacity ids.
func NewDedupStore(capacity int, falsePositiveRate float64) *DedupStore {
	if capacity <= 0 {
		panic("store: capacity must be positive")
	}

	ds := &DedupStore{
		trackIDs:          make(map[string]struct{}),
		bloom:             bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}

	// Every id the LRU drops leaves the map too. The callback runs under ds.mutex.
	lruCache, err := lru.NewWithEvict(capacity, func(trackID string, _ struct{}) {
		delete(ds.trackIDs, trackID)
	})
	if err != nil {
		panic(err)
	}
	ds.lru = lruCache

	return ds
}

// Has reports whether trackID is in the set. It never reports a false positive.
func (ds *DedupStore) Has(trackID string) bool {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	if !ds.bloom.TestString(trackID) {
		return false
	}

	_, exists := ds.trackIDs[trackID]
	return exists
}

// Add inserts trackID, evicting the least recently added id when full.
func (ds *DedupStore) Add(trackID string) {
	if trackID == "" {
		return
	}

	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if _, exists := ds.trackIDs[trackID]; exists {
		return
	}

	ds.insert(trackID)
}

// Remove deletes trackID. The bloom filter keeps its bit set, which only costs
// a map lookup on later misses.
func (ds *DedupStore) Remove(trackID string) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if _, exists := ds.trackIDs[trackID]; !exists {
		return
	}

	delete(ds.trackIDs, trackID)
	ds.lru.Remove(trackID)
}

// Load replaces the contents with a playlist snapshot. A snapshot larger than
// the capacity grows the store so that no snapshot id is evicted.
func (ds *DedupStore) Load(trackIDs []string) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if len(trackIDs) > ds.capacity {
		ds.capacity = len(trackIDs)
		ds.lru.Resize(ds.capacity)
	}

	ds.clear()

	for _, trackID := range trackIDs {
		if trackID == "" {
			continue
		}
		if _, exists := ds.trackIDs[trackID]; exists {
			continue
		}
		ds.insert(trackID)
	}
}

// Size returns the number of ids in the set.
func (ds *DedupStore) Size() int {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return len(ds.trackIDs)
}

// limit returns how many ids the store holds before evicting.
func (ds *DedupStore) limit() int {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return ds.capacity
}

// Clear empties the set.
func (ds *DedupStore) Clear() {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	ds.clear()
}

func (ds *DedupStore) insert(trackID string) {
	ds.trackIDs[trackID] = struct{}{}
	ds.bloom.AddString(trackID)
	ds.lru.Add(trackID, struct{}{})
}

func (ds *DedupStore) clear() {
	ds.trackIDs = make(map[string]struct{}, ds.capacity)
	ds.bloom = bloom.NewWithEstimates(uint(ds.capacity), ds.falsePositiveRate)
	ds.lru.Purge()
}
