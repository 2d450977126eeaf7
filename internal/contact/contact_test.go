package contact

import (
	"math"
	"math/rand/v2"
	"testing"

	"neurogut/internal/config"
	"neurogut/internal/model"
)

const rate = 8000.0

func accelSeries(seconds, amp float64) []model.AccelerometerSample {
	n := int(seconds * 20)
	out := make([]model.AccelerometerSample, n)
	for i := range out {
		ph := 2 * math.Pi * 1.3 * float64(i) / 20
		out[i] = model.AccelerometerSample{
			X:           amp * math.Sin(ph),
			Y:           0.02,
			Z:           -0.98,
			TimestampMs: int64(i * 50),
		}
	}
	return out
}

func TestAccelerometerGate(t *testing.T) {
	cfg := config.DefaultAnalysis().Contact
	tests := []struct {
		name      string
		samples   []model.AccelerometerSample
		noContact bool
		inRange   bool
	}{
		{"breathing abdomen", accelSeries(3, 0.01), false, true},
		{"static table", accelSeries(3, 0), true, false},
		{"handling", accelSeries(3, 0.5), true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := EvaluateAccelerometer(tc.samples, cfg)
			if r.NoContact != tc.noContact || r.VarianceInBodyRange != tc.inRange {
				t.Fatalf("got %+v", r)
			}
			if !Confident(r, cfg) {
				t.Fatalf("expected confident result, got %f", r.Confidence)
			}
		})
	}
}

func TestAccelerometerInsufficientSettled(t *testing.T) {
	cfg := config.DefaultAnalysis().Contact
	r := EvaluateAccelerometer(accelSeries(1.5, 0.01), cfg)
	if r.NoContact || r.Confidence != 0 {
		t.Fatalf("expected neutral zero-confidence result, got %+v", r)
	}
	if r.SettledSamples != 10 {
		t.Fatalf("expected 10 settled samples, got %d", r.SettledSamples)
	}
	if got := EvaluateAccelerometer(nil, cfg); got.NoContact || got.Confidence != 0 {
		t.Fatalf("empty input should be neutral: %+v", got)
	}
}

func TestAccelerometerBoundsInclusive(t *testing.T) {
	cfg := config.DefaultAnalysis().Contact
	samples := accelSeries(3, 0.01)
	v := EvaluateAccelerometer(samples, cfg).TotalVariance

	atMin := cfg
	atMin.MinVariance = v
	if r := EvaluateAccelerometer(samples, atMin); !r.VarianceInBodyRange {
		t.Fatalf("variance equal to min should be in range")
	}
	atMax := cfg
	atMax.MinVariance = 0
	atMax.MaxVariance = v
	if r := EvaluateAccelerometer(samples, atMax); !r.VarianceInBodyRange {
		t.Fatalf("variance equal to max should be in range")
	}
}

func TestDetectorLifecycle(t *testing.T) {
	d := NewDetector(config.DefaultAnalysis().Contact)
	if d.Add(model.AccelerometerSample{}) {
		t.Fatalf("idle detector accepted a sample")
	}
	d.Start()
	for _, s := range accelSeries(2, 0.01) {
		d.Add(s)
	}
	d.Start()
	if got := len(d.Samples()); got != 40 {
		t.Fatalf("second Start should be a no-op, have %d samples", got)
	}
	d.Stop()
	if d.State() != StateStopped || d.Add(model.AccelerometerSample{}) {
		t.Fatalf("stopped detector should reject samples")
	}
	if got := len(d.Samples()); got != 40 {
		t.Fatalf("stop should keep the window, have %d", got)
	}
	d.Start()
	if d.State() != StateRunning || len(d.Samples()) != 0 {
		t.Fatalf("restart should clear the window")
	}
}

func TestDetectorEviction(t *testing.T) {
	cfg := config.DefaultAnalysis().Contact
	cfg.WindowSeconds = 0
	cfg.MaxSamples = 10
	d := NewDetector(cfg)
	d.Start()
	for i := range 25 {
		d.Add(model.AccelerometerSample{TimestampMs: int64(i * 50)})
	}
	got := d.Samples()
	if len(got) != 10 || got[0].TimestampMs != 750 {
		t.Fatalf("count eviction: len=%d first=%d", len(got), got[0].TimestampMs)
	}

	cfg.WindowSeconds = 1
	cfg.MaxSamples = 0
	d = NewDetector(cfg)
	d.Start()
	for i := range 30 {
		d.Add(model.AccelerometerSample{TimestampMs: int64(i * 100)})
	}
	got = d.Samples()
	if len(got) != 11 || got[0].TimestampMs != 1900 {
		t.Fatalf("time eviction: len=%d first=%d", len(got), got[0].TimestampMs)
	}
}

func bodySignal(seconds float64) []float64 {
	r := rand.New(rand.NewPCG(11, 12))
	n := int(seconds * rate)
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.001 * (2*r.Float64() - 1)
	}
	burst := int(0.08 * rate)
	for start := 0.2; start+0.08 < seconds; start += 0.5 {
		s := int(start * rate)
		for i := 0; i < burst; i++ {
			out[s+i] += 0.1 * math.Sin(2*math.Pi*150*float64(i)/rate)
		}
	}
	return out
}

func TestAudioGate(t *testing.T) {
	cfg := config.DefaultAnalysis().Contact
	r := rand.New(rand.NewPCG(3, 4))
	white := make([]float64, int(6*rate))
	for i := range white {
		white[i] = 0.05 * (2*r.Float64() - 1)
	}
	hum := make([]float64, int(6*rate))
	for i := range hum {
		hum[i] = 0.05 * math.Sin(2*math.Pi*100*float64(i)/rate)
	}
	quiet := make([]float64, int(6*rate))
	for i := range quiet {
		quiet[i] = 1e-4 * (2*r.Float64() - 1)
	}

	tests := []struct {
		name     string
		samples  []float64
		accepted bool
		reason   string
	}{
		{"bursty body contact", bodySignal(6), true, ""},
		{"room hum", hum, false, "ambient_signature"},
		{"white noise", white, false, "spectral_shape"},
		{"too quiet", quiet, false, "too_quiet"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateAudio(tc.samples, rate, 100, cfg)
			if got.Accepted != tc.accepted || got.Reason != tc.reason {
				t.Fatalf("got accepted=%v reason=%q (%+v)", got.Accepted, got.Reason, got)
			}
		})
	}
}
