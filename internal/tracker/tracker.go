// Package tracker records which entities have local optimistic mutations in
// flight, so the sync engine delays remote echoes instead of clobbering
// them.
package tracker

import "sync"

// Tracker is a thread-safe set of entity ids under local mutation. Begin
// and End nest: an entity stays mutating until every Begin is matched.
type Tracker struct {
	mu       sync.Mutex
	inflight map[string]int
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{inflight: make(map[string]int)}
}

// Begin marks an entity as being mutated locally.
func (t *Tracker) Begin(entityID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[entityID]++
}

// End clears one Begin for the entity.
func (t *Tracker) End(entityID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inflight[entityID] <= 1 {
		delete(t.inflight, entityID)
		return
	}
	t.inflight[entityID]--
}

// IsMutating reports whether the entity has an in-flight local mutation.
func (t *Tracker) IsMutating(entityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight[entityID] > 0
}
