package sync

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// ledger is the bounded dedup record of already-processed event ids. It is
// only touched from the processor goroutine, so it needs no locking.
type ledger struct {
	clock   clockwork.Clock
	ttl     time.Duration
	maxSize int

	entries map[string]time.Time
	order   []string // insertion order, oldest first
}

func newLedger(clock clockwork.Clock, ttl time.Duration, maxSize int) *ledger {
	return &ledger{
		clock:   clock,
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]time.Time),
	}
}

// Seen reports whether an event id has already been recorded.
func (l *ledger) Seen(eventID string) bool {
	_, ok := l.entries[eventID]
	return ok
}

// Record notes an event id as processed. When the ledger grows past its cap
// it first prunes entries older than the TTL, then evicts oldest-first until
// back under the cap.
func (l *ledger) Record(eventID string) {
	if _, ok := l.entries[eventID]; ok {
		return
	}
	l.entries[eventID] = l.clock.Now()
	l.order = append(l.order, eventID)

	if len(l.entries) > l.maxSize {
		l.cleanup()
	}
}

// Size returns the number of recorded ids.
func (l *ledger) Size() int {
	return len(l.entries)
}

func (l *ledger) cleanup() {
	cutoff := l.clock.Now().Add(-l.ttl)

	kept := l.order[:0]
	for _, id := range l.order {
		at, ok := l.entries[id]
		if !ok {
			continue
		}
		if at.Before(cutoff) {
			delete(l.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	l.order = kept

	// Still over the cap after TTL pruning: evict oldest first.
	for len(l.entries) > l.maxSize && len(l.order) > 0 {
		id := l.order[0]
		l.order = l.order[1:]
		delete(l.entries, id)
	}
}
