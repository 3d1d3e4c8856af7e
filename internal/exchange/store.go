package exchange

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type CacheEntry struct {
	Key        string
	Result     domain.Result
	TypeTags   []string
	InsertedAt time.Time
	ExpiresAt  time.Time
}

func (e CacheEntry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type StoreStats struct {
	Size        int
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

// Store is a bounded LRU table of cache entries with absolute expiry.
//
// Expired entries are reclaimed when they are looked up. Every removal,
// whatever the reason, prunes the entry's tags from the dependency index.
type Store struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, CacheEntry] // nil when maxSize is 0
	index   *DependencyIndex
	// Bumped by every Invalidate and Clear
	generation uint64

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
}

// NewStore creates a store holding at most maxSize entries.
// A maxSize of 0 creates a store that never retains anything.
func NewStore(maxSize int, index *DependencyIndex) (*Store, error) {
	if maxSize < 0 {
		return nil, fmt.Errorf("%w: maxSize must not be negative (got %d)", domain.ErrInvalidConfig, maxSize)
	}
	if index == nil {
		index = NewDependencyIndex()
	}

	s := &Store{index: index}
	if maxSize == 0 {
		return s, nil
	}

	entries, err := simplelru.NewLRU[string, CacheEntry](maxSize, s.onRemove)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	s.entries = entries

	return s, nil
}

// Called by the lru with s.mu held on capacity eviction, Remove and Purge
func (s *Store) onRemove(key string, entry CacheEntry) {
	s.index.Prune(key, entry.TypeTags)
}

func (s *Store) Get(key string, now time.Time) (CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		s.misses.Add(1)
		return CacheEntry{}, false
	}

	entry, ok := s.entries.Get(key)
	if !ok {
		s.misses.Add(1)
		return CacheEntry{}, false
	}

	if entry.expired(now) {
		s.entries.Remove(key)
		s.expirations.Add(1)
		s.misses.Add(1)
		return CacheEntry{}, false
	}

	s.hits.Add(1)
	return entry, true
}

func (s *Store) Put(entry CacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(entry)
}

// Generation identifies the invalidations applied to the store so far. Pass it
// to PutIfCurrent to store a result fetched after reading it.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generation
}

// PutIfCurrent stores entry unless the store was invalidated or cleared since
// generation was read, as the entry may predate that change. Returns false if
// the entry was dropped for that reason.
func (s *Store) PutIfCurrent(entry CacheEntry, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		return false
	}
	s.put(entry)
	return true
}

func (s *Store) put(entry CacheEntry) {
	if s.entries == nil {
		return
	}

	// Dead on arrival (ttl 0). Don't push out live entries for it.
	if entry.expired(entry.InsertedAt) {
		s.entries.Remove(entry.Key)
		return
	}

	// Add on an existing key doesn't invoke the eviction callback
	if old, ok := s.entries.Peek(entry.Key); ok {
		s.index.Prune(entry.Key, old.TypeTags)
	}

	if evicted := s.entries.Add(entry.Key, entry); evicted {
		s.evictions.Add(1)
	}
	s.index.Record(entry.Key, entry.TypeTags)
}

// Delete removes the entry for key. Returns false if there was none.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return false
	}
	return s.entries.Remove(key)
}

// Invalidate deletes the entries for keys. Keys without an entry are pruned
// from tags in the index, as they can only be left over there. Returns the
// number of entries deleted.
func (s *Store) Invalidate(keys []string, tags []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++

	removed := 0
	for _, key := range keys {
		if s.entries != nil && s.entries.Remove(key) {
			removed++
			continue
		}
		s.index.Prune(key, tags)
	}
	return removed
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.entries != nil {
		s.entries.Purge()
	}
	s.index.Reset()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return 0
	}
	return s.entries.Len()
}

func (s *Store) Stats() StoreStats {
	return StoreStats{
		Size:        s.Len(),
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
	}
}
