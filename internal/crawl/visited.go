package crawl

import "sync"

// VisitedSet records the URLs scheduled during a run. Add is an atomic
// insert-if-absent.
type VisitedSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewVisitedSet creates an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// Add inserts u and reports whether it was absent.
func (v *VisitedSet) Add(u string) bool {
	added, _ := v.AddBounded(u, 0)
	return added
}

// AddBounded inserts u unless it is already present or the set already
// holds limit entries. capped reports that u was new but refused because of
// the limit. A limit of zero or less means unbounded.
func (v *VisitedSet) AddBounded(u string, limit int) (added, capped bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.urls[u]; ok {
		return false, false
	}
	if limit > 0 && len(v.urls) >= limit {
		return false, true
	}
	v.urls[u] = struct{}{}
	return true, false
}

// Contains reports whether u has been added.
func (v *VisitedSet) Contains(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.urls[u]
	return ok
}

// Len returns the number of URLs in the set.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.urls)
}
