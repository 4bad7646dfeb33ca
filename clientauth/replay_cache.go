package clientauth

import (
	"sync"
	"time"
)

// ReplayCache remembers client assertion ids until they expire
type ReplayCache interface {
	// Add records the id and reports false if it was already present and unexpired
	Add(id string, exp time.Time) bool
	Cleanup() // Remove expired entries
}

// InMemoryReplayCache is a simple in-memory implementation
type InMemoryReplayCache struct {
	seen map[string]time.Time
	now  func() time.Time
	mu   sync.Mutex
}

func NewInMemoryReplayCache(now func() time.Time) *InMemoryReplayCache {
	if now == nil {
		now = time.Now
	}
	return &InMemoryReplayCache{
		seen: make(map[string]time.Time),
		now:  now,
	}
}

func (c *InMemoryReplayCache) Add(id string, exp time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, exists := c.seen[id]; exists && c.now().Before(prev) {
		return false
	}
	c.seen[id] = exp
	return true
}

func (c *InMemoryReplayCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, exp := range c.seen {
		if now.After(exp) {
			delete(c.seen, id)
		}
	}
}
