package filter

import "sync"

// Band names a passband the pipelines filter into.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

var (
	GutBand        = Band{Name: "gut", LowHz: 100, HighHz: 450}
	WideGutBand    = Band{Name: "gut_wide", LowHz: 60, HighHz: 1000}
	HummingGutBand = Band{Name: "gut_humming", LowHz: 200, HighHz: 450}
	HeartBand      = Band{Name: "heart", LowHz: 20, HighHz: 80}
)

type Key struct {
	LowHz      float64
	HighHz     float64
	SampleRate float64
	Order      int
}

// Cache memoises filter designs by band and sample rate. Entries for
// different keys never evict each other.
type Cache struct {
	mu      sync.Mutex
	filters map[Key]*Filter
}

func NewCache() *Cache {
	return &Cache{filters: make(map[Key]*Filter)}
}

func (c *Cache) Get(lowHz, highHz, sampleRate float64, order int) (*Filter, error) {
	key := Key{LowHz: lowHz, HighHz: highHz, SampleRate: sampleRate, Order: order}
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.filters[key]; ok {
		return f, nil
	}
	f, err := DesignBandpass(lowHz, highHz, sampleRate, order)
	if err != nil {
		return nil, err
	}
	c.filters[key] = f
	return f, nil
}

func (c *Cache) Band(b Band, sampleRate float64, order int) (*Filter, error) {
	return c.Get(b.LowHz, b.HighHz, sampleRate, order)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.filters)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = make(map[Key]*Filter)
}
