package pipeline

import (
	"neurogut/internal/config"
	"neurogut/internal/dsp"
)

// Candidate is a run of analysis windows above the event threshold.
// StartWindow and EndWindow are inclusive.
type Candidate struct {
	StartWindow int
	EndWindow   int
	PeakEnergy  float64
}

// Segment groups windows above threshold, bridging up to MinGapWindows
// quiet windows, and drops groups shorter than MinEventWindows.
func Segment(energies []float64, threshold float64, cfg config.SegmentationConfig) []Candidate {
	var out []Candidate
	open := false
	var cur Candidate
	gap := 0
	flush := func() {
		if open && cur.EndWindow-cur.StartWindow+1 >= cfg.MinEventWindows {
			out = append(out, cur)
		}
		open = false
	}
	for i, e := range energies {
		if e > threshold {
			if !open {
				cur = Candidate{StartWindow: i, EndWindow: i, PeakEnergy: e}
				open = true
			} else {
				cur.EndWindow = i
				cur.PeakEnergy = max(cur.PeakEnergy, e)
			}
			gap = 0
			continue
		}
		if open {
			gap++
			if gap > cfg.MinGapWindows {
				flush()
			}
		}
	}
	flush()
	return out
}

// Refine converts a candidate to a sample range [start, end) trimmed to
// where a short smoothed envelope stays above EnvelopeFloor of its peak.
// The search covers one window either side of the candidate.
func Refine(c Candidate, signal []float64, windowSize int, sampleRate float64, cfg config.SegmentationConfig) (int, int) {
	lo := max(0, (c.StartWindow-1)*windowSize)
	hi := min(len(signal), (c.EndWindow+2)*windowSize)
	if hi <= lo {
		return lo, lo
	}
	env := dsp.MovingAverage(dsp.Abs(signal[lo:hi]), dsp.WindowSize(sampleRate, cfg.EnvelopeMs))
	_, peak := dsp.ArgMax(env)
	if peak <= 0 {
		return max(0, c.StartWindow*windowSize), min(len(signal), (c.EndWindow+1)*windowSize)
	}
	level := cfg.EnvelopeFloor * peak
	first, last := -1, -1
	for i, v := range env {
		if v >= level {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	return lo + first, lo + last + 1
}
