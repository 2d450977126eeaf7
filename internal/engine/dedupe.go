package engine

import (
	"sync"
	"time"
)

const dedupeCompactAbove = 10000

// DedupeCache remembers recording fingerprints for a TTL.
type DedupeCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{seen: make(map[string]time.Time)}
}

// Seen records key and reports whether it was already recorded within ttl.
func (d *DedupeCache) Seen(key string, now time.Time, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.seen[key]; ok && now.Sub(ts) <= ttl {
		return true
	}
	d.seen[key] = now
	if len(d.seen) > dedupeCompactAbove {
		for k, ts := range d.seen {
			if now.Sub(ts) > ttl {
				delete(d.seen, k)
			}
		}
	}
	return false
}

// Forget drops key so a failed recording can be resubmitted.
func (d *DedupeCache) Forget(key string) {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}
