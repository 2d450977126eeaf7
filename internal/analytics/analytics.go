// Package analytics turns accepted gut-sound events into session
// statistics: event rate, active time, the Motility Index, an activity
// timeline and the PFHS spectral similarity score.
package analytics

import (
	"math"

	"neurogut/internal/config"
	"neurogut/internal/dsp"
	"neurogut/internal/model"
)

// Event is an accepted burst on the recording's time axis.
type Event struct {
	StartSeconds float64
	EndSeconds   float64
	DominantHz   float64
}

type Input struct {
	DurationSeconds float64
	WindowSeconds   float64
	Events          []Event
	Quality         model.SignalQuality
	SNRDb           float64
}

// Build fills the statistical part of a SessionAnalytics. Identity fields
// such as SessionID are left to the caller.
func Build(in Input, cfg config.AnalyticsConfig) model.SessionAnalytics {
	dur := math.Max(in.DurationSeconds, 0)
	active, fraction := ActiveTime(in.Events, dur, in.WindowSeconds)
	epm := EventsPerMinute(len(in.Events), dur)
	freqs := make([]float64, 0, len(in.Events))
	for _, ev := range in.Events {
		freqs = append(freqs, ev.DominantHz)
	}
	pfhs, hist := PFHS(freqs, cfg)
	return model.SessionAnalytics{
		DurationSeconds:    dur,
		EventsPerMinute:    epm,
		EventCount:         len(in.Events),
		TotalActiveSeconds: active,
		TotalQuietSeconds:  math.Max(dur-active, 0),
		ActiveFraction:     fraction,
		MotilityIndex:      MotilityIndex(epm, fraction, in.Quality, cfg),
		ActivityTimeline:   Timeline(in.Events, dur, cfg),
		SignalQuality:      in.Quality,
		SNRDb:              dsp.Finite(in.SNRDb),
		PFHSScore:          pfhs,
		FrequencyHistogram: hist,
	}
}

// Empty is the analytics of a recording rejected before event detection.
func Empty(durationSeconds float64, quality model.SignalQuality, reason string) model.SessionAnalytics {
	dur := math.Max(durationSeconds, 0)
	return model.SessionAnalytics{
		DurationSeconds:   dur,
		TotalQuietSeconds: dur,
		SignalQuality:     quality,
		GateReason:        reason,
		ActivityTimeline:  []model.TimelineBucket{},
	}
}

func EventsPerMinute(n int, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return float64(n) / (durationSeconds / 60)
}

// ActiveTime counts the analysis windows touched by at least one event.
// Overlapping events are not double counted.
func ActiveTime(events []Event, durationSeconds, windowSeconds float64) (float64, float64) {
	if durationSeconds <= 0 || windowSeconds <= 0 {
		return 0, 0
	}
	total := max(1, int(math.Ceil(durationSeconds/windowSeconds-1e-9)))
	covered := make([]bool, total)
	n := 0
	for _, ev := range events {
		lo, hi := windowSpan(ev, windowSeconds, total)
		for w := lo; w <= hi; w++ {
			if !covered[w] {
				covered[w] = true
				n++
			}
		}
	}
	active := math.Min(float64(n)*windowSeconds, durationSeconds)
	return active, float64(n) / float64(total)
}

func windowSpan(ev Event, windowSeconds float64, total int) (int, int) {
	lo := int(math.Floor(ev.StartSeconds / windowSeconds))
	hi := int(math.Ceil(ev.EndSeconds/windowSeconds-1e-9)) - 1
	lo = min(max(lo, 0), total-1)
	hi = min(max(hi, lo), total-1)
	return lo, hi
}

// MotilityIndex blends the event rate and the active fraction into 0..100
// and scales the result by the signal quality weight.
func MotilityIndex(eventsPerMinute, activeFraction float64, quality model.SignalQuality, cfg config.AnalyticsConfig) int {
	rate := 0.0
	if cfg.MaxEventsPerMinute > 0 {
		rate = math.Min(eventsPerMinute/cfg.MaxEventsPerMinute, 1)
	}
	raw := cfg.RateWeight*rate*100 + cfg.ActiveWeight*math.Min(activeFraction, 1)*100
	mi := math.Max(0, math.Min(100, math.Round(dsp.Finite(raw))))
	return int(math.Round(mi * quality.Weight()))
}

// Timeline buckets events by start time. The level compares each bucket's
// event rate with the configured ceiling.
func Timeline(events []Event, durationSeconds float64, cfg config.AnalyticsConfig) []model.TimelineBucket {
	size := cfg.TimelineBucketSeconds
	if durationSeconds <= 0 || size <= 0 {
		return []model.TimelineBucket{}
	}
	n := max(1, int(math.Ceil(durationSeconds/size-1e-9)))
	out := make([]model.TimelineBucket, n)
	for i := range out {
		out[i].StartSeconds = float64(i) * size
		out[i].EndSeconds = math.Min(float64(i+1)*size, durationSeconds)
	}
	for _, ev := range events {
		i := min(max(int(ev.StartSeconds/size), 0), n-1)
		out[i].EventCount++
		for j := range out {
			overlap := math.Min(ev.EndSeconds, out[j].EndSeconds) - math.Max(ev.StartSeconds, out[j].StartSeconds)
			if overlap > 0 {
				out[j].ActiveSeconds += overlap
			}
		}
	}
	for i := range out {
		span := out[i].EndSeconds - out[i].StartSeconds
		out[i].Level = level(EventsPerMinute(out[i].EventCount, span), cfg.MaxEventsPerMinute)
	}
	return out
}

func level(eventsPerMinute, ceiling float64) model.ActivityLevel {
	switch {
	case eventsPerMinute <= 0:
		return model.LevelQuiet
	case eventsPerMinute < ceiling/2:
		return model.LevelLow
	case eventsPerMinute < ceiling:
		return model.LevelModerate
	}
	return model.LevelHigh
}
