package traces

import (
	"sync"
	"time"

	"neurogut/internal/model"
)

// Store is a bounded ring of debug reports, newest last.
type Store struct {
	mu    sync.RWMutex
	buf   []model.DebugReport
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 500
	}
	return &Store{limit: limit}
}

func (s *Store) Add(report model.DebugReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, report)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = report
}

// List returns the most recent limit reports; limit <= 0 returns all.
func (s *Store) List(limit int) []model.DebugReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.DebugReport, limit)
	copy(out, s.buf[len(s.buf)-limit:])
	return out
}

func (s *Store) Since(ts time.Time) []model.DebugReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DebugReport, 0)
	for _, r := range s.buf {
		if !r.CreatedAt.Before(ts) {
			out = append(out, r)
		}
	}
	return out
}

// Get finds the latest report for a recording.
func (s *Store) Get(recordingID string) (model.DebugReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].RecordingID == recordingID {
			return s.buf[i], true
		}
	}
	return model.DebugReport{}, false
}

// RejectionCounts tallies rejected events by the stage that rejected them.
func (s *Store) RejectionCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, r := range s.buf {
		for _, ev := range r.Events {
			if !ev.Accepted && ev.RejectedBy != "" {
				out[ev.RejectedBy]++
			}
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
