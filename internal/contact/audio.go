package contact

import (
	"neurogut/internal/config"
	"neurogut/internal/dsp"
)

// AudioResult carries every criterion the audio gate measured.
type AudioResult struct {
	Accepted         bool
	Reason           string
	RMS              float64
	LowFreqRatio     float64
	HighFreqRatio    float64
	RolloffHz        float64
	SpectralPasses   int
	CV               float64
	Bursts           int
	MaxMinRatio      float64
	SilentFraction   float64
	TemporalPasses   int
	AmbientSignature bool
}

func (r AudioResult) Measurements() map[string]float64 {
	ambient := 0.0
	if r.AmbientSignature {
		ambient = 1
	}
	return map[string]float64{
		"rms":              r.RMS,
		"low_freq_ratio":   r.LowFreqRatio,
		"high_freq_ratio":  r.HighFreqRatio,
		"rolloff_hz":       r.RolloffHz,
		"spectral_passes":  float64(r.SpectralPasses),
		"cv":               r.CV,
		"bursts":           float64(r.Bursts),
		"max_min_ratio":    r.MaxMinRatio,
		"silent_fraction":  r.SilentFraction,
		"temporal_passes":  float64(r.TemporalPasses),
		"ambient_detected": ambient,
	}
}

const maxEnergyRatio = 1e6

// EvaluateAudio decides body contact from raw audio. Spectral shape alone
// cannot tell skin from a quiet room, so burstiness over time must agree.
func EvaluateAudio(samples []float64, sampleRate, windowMs float64, cfg config.ContactConfig) AudioResult {
	r := AudioResult{RMS: dsp.RMS(samples)}
	if r.RMS < cfg.MinRMS || sampleRate <= 0 {
		r.Reason = "too_quiet"
		return r
	}

	mags, size := dsp.AverageMagnitudeSpectrum(samples, cfg.SpectrumFrameSize, cfg.SpectrumMaxFrames)
	r.LowFreqRatio = dsp.BandPowerRatio(mags, size, sampleRate, 0, cfg.LowFreqHz)
	r.HighFreqRatio = dsp.BandPowerRatio(mags, size, sampleRate, cfg.HighFreqHz, sampleRate/2)
	r.RolloffHz = dsp.SpectralRolloff(mags, size, sampleRate, 0.85)
	lowDominant := r.LowFreqRatio >= cfg.MinLowFreqRatio
	r.SpectralPasses = count(
		lowDominant,
		r.HighFreqRatio <= cfg.MaxHighFreqRatio,
		r.RolloffHz <= cfg.MaxRolloffHz,
	)

	energies := dsp.WindowedRMS(samples, sampleRate, windowMs)
	r.CV = dsp.CoefficientOfVariation(energies)
	r.Bursts = countBursts(energies, cfg.BurstMultiplier*dsp.Median(energies))
	lo, hi := minMax(energies)
	switch {
	case lo > 0:
		r.MaxMinRatio = min(hi/lo, maxEnergyRatio)
	case hi > 0:
		r.MaxMinRatio = maxEnergyRatio
	}
	r.SilentFraction = fractionBelow(energies, cfg.SilentLevel*hi)
	r.TemporalPasses = count(
		r.CV >= cfg.MinCV,
		r.Bursts >= cfg.MinBursts,
		r.MaxMinRatio >= cfg.MinMaxMinRatio,
		r.SilentFraction >= cfg.MinSilentFraction,
	)

	r.AmbientSignature = r.CV < cfg.AmbientCV && r.Bursts <= 1 && r.SilentFraction == 0 && lowDominant
	switch {
	case r.AmbientSignature:
		r.Reason = "ambient_signature"
	case r.SpectralPasses < cfg.MinSpectralPasses:
		r.Reason = "spectral_shape"
	case r.TemporalPasses < cfg.MinTemporalPasses:
		r.Reason = "temporal_shape"
	default:
		r.Accepted = true
	}
	return r
}

func count(conds ...bool) int {
	n := 0
	for _, c := range conds {
		if c {
			n++
		}
	}
	return n
}

// countBursts counts runs of consecutive windows above level.
func countBursts(energies []float64, level float64) int {
	n := 0
	in := false
	for _, e := range energies {
		above := e > level
		if above && !in {
			n++
		}
		in = above
	}
	return n
}

func minMax(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi := xs[0], xs[0]
	for _, v := range xs[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func fractionBelow(xs []float64, level float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	n := 0
	for _, v := range xs {
		if v < level {
			n++
		}
	}
	return float64(n) / float64(len(xs))
}
