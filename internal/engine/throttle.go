package engine

import (
	"sync"
	"time"

	"neurogut/internal/normalize"
)

// Throttle enforces a minimum interval between recordings per device.
type Throttle struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewThrottle() *Throttle {
	return &Throttle{last: make(map[string]time.Time)}
}

func (t *Throttle) Allow(deviceID string, now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}
	key := normalize.DeviceKey(deviceID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts, ok := t.last[key]; ok && now.Sub(ts) < interval {
		return false
	}
	t.last[key] = now
	return true
}
