package scheduling

import (
	"strings"
	"sync"
	"time"
)

// AvailabilityCache memoizes computed day schedules for a short window so a
// polling booking UI does not hammer the store. Keys are the exact ordered
// date list of the request. Entries expire after ttl; writes to the schedule
// clear the cache outright. Losing the cache is always safe, the worst case
// is recomputation.
type AvailabilityCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	storedAt time.Time
	days     map[string][]Slot
}

func NewAvailabilityCache(ttl time.Duration, now func() time.Time) *AvailabilityCache {
	if now == nil {
		now = time.Now
	}
	return &AvailabilityCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(dates []string) string {
	return strings.Join(dates, ",")
}

func (c *AvailabilityCache) Get(dates []string) (map[string][]Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(dates)]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, cacheKey(dates))
		return nil, false
	}
	return e.days, true
}

func (c *AvailabilityCache) Put(dates []string, days map[string][]Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(dates)] = cacheEntry{
		storedAt: c.now(),
		days:     days,
	}
}

// Invalidate drops every entry. Called after any write that changes
// occupancy so stale availability never outlives a booking by more than
// one request.
func (c *AvailabilityCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}
