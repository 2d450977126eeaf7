package veto

import (
	"math"

	"neurogut/internal/config"
	"neurogut/internal/dsp"
	"neurogut/internal/model"
)

// Pitch is an autocorrelation fundamental estimate and its harmonic
// structure.
type Pitch struct {
	F0Hz        float64
	Correlation float64
	HNRDb       float64
	Harmonics   int
}

// EstimatePitch looks for a voiced fundamental between MinF0Hz and MaxF0Hz
// on at most MaxSamples centred samples.
func EstimatePitch(samples []float64, rate float64, cfg config.HarmonicConfig) Pitch {
	seg := centerSlice(samples, cfg.MaxSamples)
	if len(seg) == 0 || rate <= 0 {
		return Pitch{}
	}
	minLag := max(1, int(math.Floor(rate/cfg.MaxF0Hz)))
	maxLag := int(math.Ceil(rate / cfg.MinF0Hz))
	r := dsp.AutocorrelationRange(seg, minLag, maxLag)
	idx, best := dsp.ArgMax(r)
	if idx < 0 || best <= 0 {
		return Pitch{}
	}
	p := Pitch{
		F0Hz:        rate / float64(minLag+idx),
		Correlation: best,
	}
	c := dsp.Clamp(best, 1e-6, 1-1e-6)
	p.HNRDb = 10 * math.Log10(c/(1-c))

	mags, size := dsp.AverageMagnitudeSpectrum(seg, dsp.NextPow2(len(seg)), 1)
	p.Harmonics = countHarmonics(mags, size, rate, p.F0Hz, cfg)
	return p
}

func centerSlice(samples []float64, limit int) []float64 {
	if limit <= 0 || len(samples) <= limit {
		return samples
	}
	start := (len(samples) - limit) / 2
	return samples[start : start+limit]
}

// countHarmonics counts multiples of f0 that are local spectral peaks
// standing well above the band median and not negligible next to the
// fundamental.
func countHarmonics(mags []float64, fftSize int, rate, f0 float64, cfg config.HarmonicConfig) int {
	if len(mags) < 3 || f0 <= 0 {
		return 0
	}
	median := dsp.Median(dsp.BandMagnitudes(mags, fftSize, rate, 50, 4000))
	res := rate / float64(fftSize)
	limitHz := math.Min(4000, rate/2)
	var fundamental float64
	n := 0
	for h := 1; h <= cfg.MaxHarmonic; h++ {
		target := float64(h) * f0
		if target >= limitHz {
			break
		}
		center := int(math.Round(target / res))
		lo := min(int(math.Floor(target*(1-cfg.Tolerance)/res)), center-1)
		hi := max(int(math.Ceil(target*(1+cfg.Tolerance)/res)), center+1)
		lo = max(lo, 1)
		hi = min(hi, len(mags)-2)
		if hi < lo {
			continue
		}
		best, mag := lo, mags[lo]
		for k := lo + 1; k <= hi; k++ {
			if mags[k] > mag {
				best, mag = k, mags[k]
			}
		}
		if h == 1 {
			fundamental = mag
		}
		isPeak := mag >= mags[best-1] && mag >= mags[best+1]
		if isPeak && mag >= cfg.PeakFactor*median && mag >= cfg.MinRelativePeak*fundamental && mag > 0 {
			n++
		}
	}
	return n
}

func harmonicStage(f *features, cfg config.HarmonicConfig, minHarmonics int) model.StageTrace {
	if f.durationMs < cfg.MinMs {
		return model.StageTrace{
			Reason:       "skipped: too short for pitch",
			Measurements: map[string]float64{"duration_ms": f.durationMs},
		}
	}
	p := EstimatePitch(f.raw, f.rate, cfg)
	tr := model.StageTrace{Measurements: map[string]float64{
		"f0_hz":     p.F0Hz,
		"hnr_db":    p.HNRDb,
		"harmonics": float64(p.Harmonics),
	}}
	if p.Harmonics >= minHarmonics && p.HNRDb >= cfg.MinHNRDb {
		tr.Rejected, tr.Reason = true, "voiced harmonic series"
	}
	return tr
}
