package scanner

import "sync"

// VisitedSet tracks directory identities seen during one walk.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[DirID]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[DirID]struct{})}
}

// Add records id and reports whether it was new.
func (v *VisitedSet) Add(id DirID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.seen[id]; ok {
		return false
	}
	v.seen[id] = struct{}{}
	return true
}

// Len returns the number of identities recorded.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
