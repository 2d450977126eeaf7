package engine

import (
	"time"

	"neurogut/internal/model"
)

type SessionEntry struct {
	CreatedAt       time.Time
	MotilityIndex   int
	EventsPerMinute float64
	Gated           bool
}

// TrendWindow keeps the sessions of one device that fall inside a rolling
// duration. Entries must be added in CreatedAt order.
type TrendWindow struct {
	duration time.Duration
	sessions []SessionEntry
	head     int
	gated    int
	sumMI    float64
	sumEPM   float64
}

func NewTrendWindow(duration time.Duration) *TrendWindow {
	return &TrendWindow{duration: duration, sessions: make([]SessionEntry, 0, 16)}
}

func (w *TrendWindow) Add(s SessionEntry) {
	w.sessions = append(w.sessions, s)
	if s.Gated {
		w.gated++
	}
	w.sumMI += float64(s.MotilityIndex)
	w.sumEPM += s.EventsPerMinute
}

// Evict drops sessions created before cutoff.
func (w *TrendWindow) Evict(cutoff time.Time) {
	for w.head < len(w.sessions) {
		s := w.sessions[w.head]
		if !s.CreatedAt.Before(cutoff) {
			break
		}
		if s.Gated {
			w.gated--
		}
		w.sumMI -= float64(s.MotilityIndex)
		w.sumEPM -= s.EventsPerMinute
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.sessions) {
		w.sessions = append([]SessionEntry{}, w.sessions[w.head:]...)
		w.head = 0
	}
}

func (w *TrendWindow) Len() int {
	return len(w.sessions) - w.head
}

func (w *TrendWindow) Trend(deviceID string) model.DeviceTrend {
	t := model.DeviceTrend{
		DeviceID:      deviceID,
		WindowSec:     int(w.duration.Seconds()),
		Sessions:      w.Len(),
		GatedSessions: w.gated,
	}
	if t.Sessions == 0 {
		return t
	}
	n := float64(t.Sessions)
	t.MeanMotilityIndex = w.sumMI / n
	t.MeanEventsPerMinute = w.sumEPM / n
	t.MotilityVariance = motilityVariance(w.sessions[w.head:])
	t.LastSessionAt = w.sessions[len(w.sessions)-1].CreatedAt
	return t
}

func motilityVariance(sessions []SessionEntry) float64 {
	var n int
	var mean, m2 float64
	for _, s := range sessions {
		x := float64(s.MotilityIndex)
		n++
		diff := x - mean
		mean += diff / float64(n)
		m2 += diff * (x - mean)
	}
	if n < 2 {
		return 0
	}
	return m2 / float64(n)
}
