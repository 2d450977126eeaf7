package metrics

import (
	"sort"
	"sync"
	"time"

	"neurogut/internal/model"
	"neurogut/internal/normalize"
)

// DeviceView is the latest analytics of one device plus its rolling trends.
type DeviceView struct {
	Latest    model.SessionAnalytics `json:"latest"`
	Trends    []model.DeviceTrend    `json:"trends"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Store keeps the most recent view per device, evicting the least recently
// updated device above limit. Devices are keyed by normalize.DeviceKey.
type Store struct {
	mu       sync.RWMutex
	byDevice map[string]DeviceView
	limit    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{byDevice: make(map[string]DeviceView), limit: limit}
}

func (s *Store) Update(sa model.SessionAnalytics, trends []model.DeviceTrend) {
	key := normalize.DeviceKey(sa.DeviceID)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDevice[key] = DeviceView{
		Latest:    sa,
		Trends:    append([]model.DeviceTrend(nil), trends...),
		UpdatedAt: time.Now().UTC(),
	}
	if len(s.byDevice) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(deviceID string) (DeviceView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byDevice[normalize.DeviceKey(deviceID)]
	return v, ok
}

func (s *Store) GetAll() map[string]DeviceView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]DeviceView, len(s.byDevice))
	for id, v := range s.byDevice {
		out[id] = v
	}
	return out
}

// Devices lists known device IDs in sorted order.
func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byDevice))
	for id := range s.byDevice {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, v := range s.byDevice {
		if oldestID == "" || v.UpdatedAt.Before(oldest) {
			oldestID = id
			oldest = v.UpdatedAt
		}
	}
	if oldestID != "" {
		delete(s.byDevice, oldestID)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDevice = make(map[string]DeviceView)
}
