package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const DefaultNegativeTTL = 60 * time.Second

type NegativeKey struct {
	Name           string
	OrganizationID uuid.UUID
}

// NegativeCache remembers recent lookup misses so repeated misses skip the store.
type NegativeCache struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[NegativeKey]time.Time
}

func NewNegativeCache(ttl time.Duration, clock clockwork.Clock) *NegativeCache {
	if ttl <= 0 {
		ttl = DefaultNegativeTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NegativeCache{ttl: ttl, clock: clock, entries: make(map[NegativeKey]time.Time)}
}

func (c *NegativeCache) Mark(key NegativeKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = c.clock.Now().Add(c.ttl)
}

func (c *NegativeCache) WasRecentlyMissed(key NegativeKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	expires, ok := c.entries[key]
	if !ok {
		return false
	}
	if !c.clock.Now().Before(expires) {
		delete(c.entries, key)
		return false
	}
	return true
}

// Forget drops a miss once the name is known to exist.
func (c *NegativeCache) Forget(key NegativeKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *NegativeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
