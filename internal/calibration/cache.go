package calibration

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"neurogut/internal/filter"
	"neurogut/internal/model"
)

type cacheEntry struct {
	cal    model.NoiseFloorCalibration
	stored time.Time
}

// Cache remembers calibrations by recording content for a short TTL so a
// session analysed twice (scoring and debug) calibrates once. Invalidate it
// when a new recording session starts.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]cacheEntry
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now, items: make(map[string]cacheEntry)}
}

func (c *Cache) Get(key string) (model.NoiseFloorCalibration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return model.NoiseFloorCalibration{}, false
	}
	if c.now().Sub(e.stored) > c.ttl {
		delete(c.items, key)
		return model.NoiseFloorCalibration{}, false
	}
	return e.cal, true
}

func (c *Cache) Put(key string, cal model.NoiseFloorCalibration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.items[key] = cacheEntry{cal: cal, stored: now}
	if len(c.items) > 256 {
		for k, e := range c.items {
			if now.Sub(e.stored) > c.ttl {
				delete(c.items, k)
			}
		}
	}
}

func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.items = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Key hashes the sample bits together with the rate and band.
func Key(samples []float64, sampleRate float64, band filter.Band) string {
	h := sha256.New()
	var buf [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	put(sampleRate)
	put(band.LowHz)
	put(band.HighHz)
	for _, v := range samples {
		put(v)
	}
	return hex.EncodeToString(h.Sum(nil))
}
