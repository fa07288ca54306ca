// Package cache provides the in-memory reference implementation of the
// domain.Cache contract used by syncd and the test suite.
package cache

import (
	"strings"
	"sync"
)

// Memory is a thread-safe keyed store with prefix queries. Writes are
// synchronous, which is what the sync engine relies on for serializing its
// mutations.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]any)}
}

func (c *Memory) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *Memory) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *Memory) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Memory) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *Memory) QueryByPrefix(prefix string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]any)
	for key, value := range c.entries {
		if strings.HasPrefix(key, prefix) {
			result[key] = value
		}
	}
	return result
}

// Size returns the number of cached entries.
func (c *Memory) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
