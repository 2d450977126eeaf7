// Package heart extracts heart rate and HRV from the 20-80 Hz band of an
// abdominal recording.
package heart

import (
	"math"
	"sort"

	"neurogut/internal/config"
	"neurogut/internal/dsp"
	"neurogut/internal/filter"
	"neurogut/internal/model"
)

// Envelope rectifies and smooths the band-filtered signal and decimates it
// to roughly cfg.EnvelopeRate. It returns the envelope and its real rate.
func Envelope(filtered []float64, sampleRate float64, cfg config.HeartConfig) ([]float64, float64) {
	if len(filtered) == 0 || sampleRate <= 0 {
		return nil, 0
	}
	smooth := dsp.MovingAverage(dsp.Abs(filtered), dsp.WindowSize(sampleRate, cfg.EnvelopeMs))
	factor := 1
	if cfg.EnvelopeRate > 0 {
		factor = max(1, int(math.Round(sampleRate/cfg.EnvelopeRate)))
	}
	return dsp.Decimate(smooth, factor), sampleRate / float64(factor)
}

// Period finds the dominant beat period in envelope samples by
// autocorrelation over the physiological interval range. confidence is the
// correlation at that lag.
func Period(env []float64, envRate float64, cfg config.HeartConfig) (period int, confidence float64) {
	minLag := max(1, int(math.Round(cfg.MinIntervalMs*envRate/1000)))
	maxLag := int(math.Round(cfg.MaxIntervalMs * envRate / 1000))
	r := dsp.AutocorrelationRange(env, minLag, maxLag)
	idx, best := dsp.ArgMax(r)
	if idx < 0 || best <= 0 {
		return 0, 0
	}
	return minLag + idx, dsp.Clamp(best, 0, 1)
}

type peak struct {
	index int
	value float64
}

// candidates are local maxima above the percentile level that stand out
// from their local mean.
func candidates(env []float64, envRate float64, cfg config.HeartConfig) []peak {
	if len(env) < 3 {
		return nil
	}
	level := dsp.Percentile(env, cfg.PeakPercentile)
	local := dsp.MovingAverage(env, 2*dsp.WindowSize(envRate, cfg.LocalWindowMs)+1)
	var out []peak
	for i := 1; i < len(env)-1; i++ {
		v := env[i]
		if v <= env[i-1] || v < env[i+1] || v <= level {
			continue
		}
		if v < cfg.Prominence*local[i] {
			continue
		}
		out = append(out, peak{i, v})
	}
	return out
}

// pickPeaks keeps the strongest candidates at least minSpacing apart.
func pickPeaks(cands []peak, minSpacing int) []peak {
	byValue := append([]peak(nil), cands...)
	sort.SliceStable(byValue, func(i, j int) bool { return byValue[i].value > byValue[j].value })
	var kept []peak
	for _, c := range byValue {
		ok := true
		for _, k := range kept {
			if abs(c.index-k.index) < minSpacing {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].index < kept[j].index })
	return kept
}

// alignPeaks walks out from the strongest candidate in steps of period,
// taking the strongest candidate within tol of each expected beat. Missing
// beats are skipped without breaking the chain.
func alignPeaks(cands []peak, period int, tol float64, n int) []peak {
	if len(cands) == 0 || period <= 0 {
		return nil
	}
	anchor := cands[0]
	for _, c := range cands {
		if c.value > anchor.value {
			anchor = c
		}
	}
	window := max(1, int(math.Round(tol*float64(period))))
	out := []peak{anchor}
	for _, dir := range []int{1, -1} {
		expected := anchor.index
		for {
			expected += dir * period
			if expected < -window || expected >= n+window {
				break
			}
			best, found := peak{}, false
			for _, c := range cands {
				if abs(c.index-expected) <= window && (!found || c.value > best.value) {
					best, found = c, true
				}
			}
			if found {
				out = append(out, best)
				expected = best.index
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// Intervals converts peak positions to beat intervals in milliseconds,
// keeping those in the physiological range and within MedianTolerance of
// their median.
func Intervals(indices []int, envRate float64, cfg config.HeartConfig) []float64 {
	if len(indices) < 2 || envRate <= 0 {
		return nil
	}
	var raw []float64
	for i := 1; i < len(indices); i++ {
		ms := 1000 * float64(indices[i]-indices[i-1]) / envRate
		if ms >= cfg.MinIntervalMs && ms <= cfg.MaxIntervalMs {
			raw = append(raw, ms)
		}
	}
	if len(raw) == 0 {
		return nil
	}
	med := dsp.Median(raw)
	out := raw[:0]
	for _, ms := range raw {
		if math.Abs(ms-med) <= cfg.MedianTolerance*med {
			out = append(out, ms)
		}
	}
	return out
}

// RMSSD is the root mean square of successive interval differences.
func RMSSD(intervals []float64) float64 {
	if len(intervals) < 2 {
		return 0
	}
	var s float64
	for i := 1; i < len(intervals); i++ {
		d := intervals[i] - intervals[i-1]
		s += d * d
	}
	return math.Sqrt(s / float64(len(intervals)-1))
}

// VagalTone maps RMSSD linearly onto 0..100 between VagalLowMs and
// VagalHighMs.
func VagalTone(rmssd float64, cfg config.HeartConfig) float64 {
	span := cfg.VagalHighMs - cfg.VagalLowMs
	if span <= 0 {
		return 0
	}
	return dsp.Clamp((rmssd-cfg.VagalLowMs)/span*100, 0, 100)
}

// Analyze runs the full extraction on raw samples with a heart band filter
// already designed for sampleRate.
func Analyze(samples []float64, sampleRate float64, band *filter.Filter, cfg config.HeartConfig) model.HeartResult {
	if band == nil || len(samples) == 0 || sampleRate <= 0 {
		return model.HeartResult{}
	}
	env, envRate := Envelope(band.ApplyZeroPhase(samples), sampleRate, cfg)
	period, conf := Period(env, envRate, cfg)

	cands := candidates(env, envRate, cfg)
	var beats []peak
	if conf >= cfg.AlignConfidence && period > 0 {
		beats = alignPeaks(cands, period, cfg.AlignTolerance, len(env))
	} else {
		beats = pickPeaks(cands, dsp.WindowSize(envRate, cfg.MinPeakSpacingMs))
	}
	indices := make([]int, len(beats))
	for i, b := range beats {
		indices[i] = b.index
	}
	intervals := Intervals(indices, envRate, cfg)

	res := model.HeartResult{
		Confidence: dsp.Finite(conf),
		BeatCount:  len(beats),
	}
	valid := len(intervals) + 1
	if len(intervals) > 0 && valid >= cfg.MinBeatsBPM {
		res.BPMValid = true
		res.BPM = dsp.Finite(60000 / dsp.Mean(intervals))
	}
	if len(intervals) >= 2 && valid >= cfg.MinBeatsHRV {
		res.HRVValid = true
		res.RMSSD = dsp.Finite(RMSSD(intervals))
		res.VagalToneScore = VagalTone(res.RMSSD, cfg)
	}
	return res
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
