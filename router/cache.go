package router

import (
	"time"
)

// ttlCache is a bounded, TTL-evicting set of opaque string keys shared by
// the dedup cache and the ACK/read-receipt replay caches. Eviction is
// opportunistic: every Seen call sweeps a bounded number of expired entries,
// and the single oldest entry is evicted on overflow so the cache never
// exceeds capacity.
type ttlCache struct {
	ttl      time.Duration
	capacity int
	entries  map[string]time.Time
}

func newTTLCache(ttl time.Duration, capacity int) *ttlCache {
	return &ttlCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]time.Time),
	}
}

// Seen reports whether key was already recorded and not yet expired as of
// now. If not, it records key and returns false.
func (c *ttlCache) Seen(key string, now time.Time) bool {
	c.sweepExpired(now)

	if expiry, ok := c.entries[key]; ok && now.Before(expiry) {
		return true
	}

	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = now.Add(c.ttl)
	return false
}

func (c *ttlCache) sweepExpired(now time.Time) {
	// Bound the scan so a burst of inserts can't make one call O(n) every
	// time; remaining expired entries are swept opportunistically on
	// subsequent calls.
	const maxScan = 64
	scanned := 0
	for key, expiry := range c.entries {
		if scanned >= maxScan {
			return
		}
		scanned++
		if !now.Before(expiry) {
			delete(c.entries, key)
		}
	}
}

func (c *ttlCache) evictOldest() {
	var oldestKey string
	var oldestExpiry time.Time
	found := false

	for key, expiry := range c.entries {
		if !found || expiry.Before(oldestExpiry) {
			oldestKey, oldestExpiry, found = key, expiry, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of entries currently stored (including any not yet
// opportunistically swept).
func (c *ttlCache) Len() int {
	return len(c.entries)
}
