// Package veto holds the per-event rejection filters and the
// recording-level psychoacoustic gate.
package veto

import (
	"neurogut/internal/config"
	"neurogut/internal/dsp"
	"neurogut/internal/model"
)

const (
	StageBreath    = "breath_shape"
	StageNoise     = "spectral_noise"
	StageBurst     = "burst_fingerprint"
	StageTransient = "transient"
	StageHarmonic  = "harmonic"
)

// Order is the fixed evaluation order of the per-event stages.
var Order = []string{StageBreath, StageNoise, StageBurst, StageTransient, StageHarmonic}

const spectrumFrames = 8

// features are computed once per event and shared by the stages.
type features struct {
	raw        []float64
	rate       float64
	durationMs float64
	mags       []float64
	fftSize    int
}

func newFeatures(raw []float64, rate float64) *features {
	f := &features{raw: raw, rate: rate}
	if rate > 0 {
		f.durationMs = 1000 * float64(len(raw)) / rate
	}
	f.mags, f.fftSize = dsp.AverageMagnitudeSpectrum(raw, 4096, spectrumFrames)
	return f
}

type stage struct {
	name string
	run  func(*features) model.StageTrace
}

// Decision is the cascade outcome for one event.
type Decision struct {
	Accepted   bool
	RejectedBy string
	Stages     []model.StageTrace
}

type Cascade struct {
	cfg    config.VetoConfig
	stages []stage
}

// NewCascade builds the ordered stages. humming lowers the harmonic count
// needed for a speech rejection.
func NewCascade(cfg config.VetoConfig, humming bool) *Cascade {
	minHarmonics := cfg.Harmonic.MinHarmonics
	if humming && cfg.Harmonic.HummingHarmonics > 0 {
		minHarmonics = cfg.Harmonic.HummingHarmonics
	}
	c := &Cascade{cfg: cfg}
	c.stages = []stage{
		{StageBreath, func(f *features) model.StageTrace { return breathStage(f, cfg.Breath) }},
		{StageNoise, func(f *features) model.StageTrace { return noiseStage(f, cfg.Noise) }},
		{StageBurst, func(f *features) model.StageTrace { return burstStage(f, cfg.Burst) }},
		{StageTransient, func(f *features) model.StageTrace { return transientStage(f, cfg.Transient) }},
		{StageHarmonic, func(f *features) model.StageTrace { return harmonicStage(f, cfg.Harmonic, minHarmonics) }},
	}
	return c
}

// Evaluate runs the stages in order and stops at the first rejection. A
// stage named in bypass is still measured and traced but cannot reject.
func (c *Cascade) Evaluate(raw []float64, sampleRate float64, bypass map[string]bool) Decision {
	f := newFeatures(raw, sampleRate)
	d := Decision{Stages: make([]model.StageTrace, 0, len(c.stages))}
	for _, s := range c.stages {
		tr := s.run(f)
		tr.Stage = s.name
		if tr.Rejected && bypass[s.name] {
			tr.Bypassed = true
			d.Stages = append(d.Stages, tr)
			continue
		}
		d.Stages = append(d.Stages, tr)
		if tr.Rejected {
			d.RejectedBy = s.name
			return d
		}
	}
	d.Accepted = true
	return d
}
