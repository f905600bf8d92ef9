package regime

import (
	"sort"
	"sync"
)

// Tracker remembers the last observed state per key (usually an instrument
// key) and reports transitions. It is owned by the caller, not the Engine.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]State
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]State)}
}

// Observe records s for key. It returns the previously recorded state and
// whether this is a change. The first observation for a key is not a change.
func (t *Tracker) Observe(key string, s State) (prev State, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.last[key]
	t.last[key] = s
	return prev, seen && prev != s
}

// Get returns the last recorded state for key.
func (t *Tracker) Get(key string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.last[key]
	return s, ok
}

// Forget drops key.
func (t *Tracker) Forget(key string) {
	t.mu.Lock()
	delete(t.last, key)
	t.mu.Unlock()
}

// Keys returns the tracked keys in sorted order.
func (t *Tracker) Keys() []string {
	t.mu.RLock()
	keys := make([]string, 0, len(t.last))
	for k := range t.last {
		keys = append(keys, k)
	}
	t.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
