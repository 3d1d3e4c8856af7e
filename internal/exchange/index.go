package exchange

import (
	"maps"
	"slices"
	"sync"
)

// DependencyIndex maps type tags to the keys of the cache entries that
// depend on them
type DependencyIndex struct {
	mu        sync.RWMutex
	keysByTag map[string]map[string]struct{}
}

func NewDependencyIndex() *DependencyIndex {
	return &DependencyIndex{
		keysByTag: make(map[string]map[string]struct{}),
	}
}

func (d *DependencyIndex) Record(key string, tags []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, tag := range tags {
		keys, ok := d.keysByTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			d.keysByTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (d *DependencyIndex) Prune(key string, tags []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, tag := range tags {
		keys, ok := d.keysByTag[tag]
		if !ok {
			continue
		}
		delete(keys, key)
		if len(keys) == 0 {
			delete(d.keysByTag, tag)
		}
	}
}

// KeysForTags returns the sorted union of the keys recorded under any of the tags
func (d *DependencyIndex) KeysForTags(tags []string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	union := make(map[string]struct{})
	for _, tag := range tags {
		for key := range d.keysByTag[tag] {
			union[key] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(union))
}

// Len returns the number of tags with at least one dependent key
func (d *DependencyIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.keysByTag)
}

func (d *DependencyIndex) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.keysByTag = make(map[string]map[string]struct{})
}
