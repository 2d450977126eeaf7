package calibration

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"neurogut/internal/config"
	"neurogut/internal/dsp"
	"neurogut/internal/filter"
	"neurogut/internal/model"
)

const rate = 8000.0

func noise(n int, amp float64, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * (2*r.Float64() - 1)
	}
	return out
}

func toneAt(freq float64, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func calibrate(samples []float64) model.NoiseFloorCalibration {
	cfg := config.DefaultAnalysis()
	energies := dsp.WindowedRMS(samples, rate, cfg.WindowMs)
	return Calibrate(samples, energies, rate, cfg.WindowMs, filter.GutBand, cfg.Calibration)
}

func TestThresholdStaysWithinFloorBounds(t *testing.T) {
	loudStart := noise(int(rate*5), 0.001, 1)
	for i := 0; i < int(rate); i++ {
		loudStart[i] += 0.8 * math.Sin(2*math.Pi*250*float64(i)/rate)
	}
	inputs := map[string][]float64{
		"noise":       noise(int(rate*5), 0.01, 2),
		"tone":        toneAt(250, int(rate*5), 0.2),
		"event early": loudStart,
		"short":       noise(int(rate*0.3), 0.01, 3),
	}
	for name, x := range inputs {
		cal := calibrate(x)
		if cal.EventThreshold < cal.BaseFloor || cal.EventThreshold > 5*cal.BaseFloor+1e-15 {
			t.Fatalf("%s: threshold %g outside [%g, %g]", name, cal.EventThreshold, cal.BaseFloor, 5*cal.BaseFloor)
		}
		if cal.BaseFloor < cal.MeanRMS {
			t.Fatalf("%s: base floor %g below mean %g", name, cal.BaseFloor, cal.MeanRMS)
		}
	}
}

func TestCalibrationWindowCount(t *testing.T) {
	cal := calibrate(noise(int(rate*10), 0.01, 4))
	if cal.WindowsUsed != 30 || cal.FellBack {
		t.Fatalf("expected 30 calibration windows, got %d fellBack=%v", cal.WindowsUsed, cal.FellBack)
	}
	short := calibrate(noise(int(rate*0.35), 0.01, 5))
	if !short.FellBack || short.WindowsUsed != 3 {
		t.Fatalf("expected fallback over 3 windows, got %+v", short)
	}
	empty := Calibrate(nil, nil, rate, 100, filter.GutBand, config.DefaultAnalysis().Calibration)
	if empty.EventThreshold != 1e-5 || !empty.FellBack {
		t.Fatalf("empty input should use the minimum threshold: %+v", empty)
	}
}

func TestAirNoiseBaseline(t *testing.T) {
	white := calibrate(noise(int(rate*4), 0.05, 6))
	if !white.IsAirNoiseBaseline {
		t.Fatalf("white noise baseline sfm %f not flagged", white.BaselineSFM)
	}
	tonal := calibrate(toneAt(237, int(rate*4), 0.05))
	if tonal.IsAirNoiseBaseline {
		t.Fatalf("tonal baseline flagged as air noise, sfm %f", tonal.BaselineSFM)
	}
}

func TestSNRAndQuality(t *testing.T) {
	cfg := config.DefaultAnalysis().Calibration
	energies := make([]float64, 100)
	for i := range energies {
		energies[i] = 0.001
	}
	if got := EstimateSNR(energies); got != 0 {
		t.Fatalf("flat energies snr: %f", got)
	}
	for i := 90; i < 100; i++ {
		energies[i] = 0.1
	}
	if got := EstimateSNR(energies); math.Abs(got-40) > 1e-9 {
		t.Fatalf("expected 40 dB, got %f", got)
	}
	if EstimateSNR(nil) != 0 {
		t.Fatalf("empty energies snr should be 0")
	}
	tests := []struct {
		snr  float64
		want model.SignalQuality
	}{
		{0, model.QualityPoor},
		{5.9, model.QualityPoor},
		{6, model.QualityFair},
		{11.9, model.QualityFair},
		{12, model.QualityGood},
		{20, model.QualityExcellent},
		{45, model.QualityExcellent},
	}
	for _, tc := range tests {
		if got := ClassifyQuality(tc.snr, cfg); got != tc.want {
			t.Fatalf("ClassifyQuality(%f) = %s, want %s", tc.snr, got, tc.want)
		}
	}
}

func TestCacheTTLAndInvalidate(t *testing.T) {
	c := NewCache(60 * time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	x := noise(1000, 0.01, 7)
	key := Key(x, rate, filter.GutBand)
	if key != Key(x, rate, filter.GutBand) {
		t.Fatalf("key not deterministic")
	}
	if key == Key(x, rate, filter.WideGutBand) {
		t.Fatalf("band must be part of the key")
	}
	c.Put(key, model.NoiseFloorCalibration{EventThreshold: 0.5})
	if cal, ok := c.Get(key); !ok || cal.EventThreshold != 0.5 {
		t.Fatalf("expected cached calibration")
	}
	now = now.Add(61 * time.Second)
	if _, ok := c.Get(key); ok {
		t.Fatalf("entry should expire after ttl")
	}
	c.Put(key, model.NoiseFloorCalibration{})
	c.Invalidate()
	if c.Len() != 0 {
		t.Fatalf("invalidate should clear the cache")
	}
}
