package veto

import (
	"neurogut/internal/config"
	"neurogut/internal/dsp"
	"neurogut/internal/model"
)

func breathStage(f *features, cfg config.BreathConfig) model.StageTrace {
	env := dsp.MovingAverage(dsp.Abs(f.raw), dsp.WindowSize(f.rate, cfg.EnvelopeMs))
	peak, _ := dsp.ArgMax(env)
	onset := 0.0
	if len(env) > 0 {
		onset = float64(peak) / float64(len(env))
	}
	low := dsp.BandPowerRatio(f.mags, f.fftSize, f.rate, 0, cfg.LowFreqHz)
	tr := model.StageTrace{Measurements: map[string]float64{
		"duration_ms":    f.durationMs,
		"onset_ratio":    onset,
		"low_freq_ratio": low,
	}}
	inRange := f.durationMs >= cfg.MinMs && f.durationMs <= cfg.MaxMs
	if inRange && onset >= cfg.MinOnsetRatio && low >= cfg.MinLowFreqRatio {
		tr.Rejected = true
		tr.Reason = "gradual low-frequency envelope"
	}
	return tr
}

func noiseStage(f *features, cfg config.NoiseConfig) model.StageTrace {
	sfm := dsp.SpectralFlatness(f.mags)
	zcr := dsp.ZeroCrossingRate(f.raw)
	bowel := dsp.BandPowerRatio(f.mags, f.fftSize, f.rate, cfg.BowelLowHz, cfg.BowelHighHz)
	contrast := dsp.SpectralContrast(f.mags)
	tr := model.StageTrace{Measurements: map[string]float64{
		"sfm":         sfm,
		"zcr":         zcr,
		"bowel_ratio": bowel,
		"contrast":    contrast,
	}}
	switch {
	case sfm >= cfg.AutoRejectSFM:
		tr.Rejected, tr.Reason = true, "white noise flatness"
	case zcr >= cfg.AutoRejectZCR:
		tr.Rejected, tr.Reason = true, "white noise zero crossings"
	case sfm >= cfg.SoftSFM && bowel < cfg.MinBowelRatio:
		tr.Rejected, tr.Reason = true, "flat spectrum outside bowel band"
	case sfm >= cfg.ContrastSFM && contrast < cfg.MinContrast:
		tr.Rejected, tr.Reason = true, "flat spectrum without contrast"
	}
	return tr
}

// BurstAnalysis is the acoustic fingerprint of a single burst.
type BurstAnalysis struct {
	DurationMs      float64
	EnvelopeCV      float64
	Frames          int
	IsConstantNoise bool
	IsValidBurst    bool
	Reason          string
}

// AnalyzeBurst checks that a burst is short enough to be peristaltic and
// not a flat sustained hum. Duration is 1000·len/rate; both bounds are
// inclusive.
func AnalyzeBurst(samples []float64, sampleRate float64, cfg config.BurstConfig) BurstAnalysis {
	var a BurstAnalysis
	if len(samples) == 0 || sampleRate <= 0 {
		a.Reason = "empty"
		return a
	}
	a.DurationMs = 1000 * float64(len(samples)) / sampleRate
	frames := dsp.WindowedRMS(samples, sampleRate, cfg.FrameMs)
	a.Frames = len(frames)
	a.EnvelopeCV = dsp.CoefficientOfVariation(frames)
	a.IsConstantNoise = a.Frames >= cfg.MinFrames && a.EnvelopeCV < cfg.ConstantCV
	switch {
	case a.DurationMs < cfg.MinMs:
		a.Reason = "too short"
	case a.DurationMs > cfg.MaxMs:
		a.Reason = "too long for a gut burst"
	case a.IsConstantNoise:
		a.Reason = "constant noise envelope"
	default:
		a.IsValidBurst = true
	}
	return a
}

func burstStage(f *features, cfg config.BurstConfig) model.StageTrace {
	a := AnalyzeBurst(f.raw, f.rate, cfg)
	return model.StageTrace{
		Rejected: !a.IsValidBurst,
		Reason:   a.Reason,
		Measurements: map[string]float64{
			"duration_ms": a.DurationMs,
			"envelope_cv": a.EnvelopeCV,
			"frames":      float64(a.Frames),
		},
	}
}

func transientStage(f *features, cfg config.TransientConfig) model.StageTrace {
	rms := dsp.RMS(f.raw)
	crest := 0.0
	if rms > 0 {
		crest = dsp.PeakAbs(f.raw) / rms
	}
	attack := attackMs(f.raw, f.rate)
	share := 0.0
	onset := dsp.WindowSize(f.rate, cfg.OnsetMs)
	if len(f.raw) >= 2*onset {
		total := energy(f.raw)
		if total > 0 {
			share = energy(f.raw[:onset]) / total
		}
	}
	tr := model.StageTrace{Measurements: map[string]float64{
		"attack_ms":   attack,
		"crest":       crest,
		"onset_share": share,
	}}
	switch {
	case attack < cfg.MaxAttackMs && crest > cfg.MinCrest:
		tr.Rejected, tr.Reason = true, "impulsive click"
	case share > cfg.MaxOnsetShare:
		tr.Rejected, tr.Reason = true, "front-loaded energy"
	}
	return tr
}

// attackMs is the 10%-90% rise time of a 1 ms smoothed envelope.
func attackMs(samples []float64, rate float64) float64 {
	if len(samples) == 0 || rate <= 0 {
		return 0
	}
	env := dsp.MovingAverage(dsp.Abs(samples), dsp.WindowSize(rate, 1))
	_, peak := dsp.ArgMax(env)
	if peak <= 0 {
		return 0
	}
	t10, t90 := -1, -1
	for i, v := range env {
		if t10 < 0 && v >= 0.1*peak {
			t10 = i
		}
		if v >= 0.9*peak {
			t90 = i
			break
		}
	}
	if t10 < 0 || t90 < t10 {
		return 0
	}
	return 1000 * float64(t90-t10) / rate
}

func energy(xs []float64) float64 {
	var s float64
	for _, v := range xs {
		s += v * v
	}
	return s
}
