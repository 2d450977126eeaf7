package veto

import (
	"math"
	"math/rand/v2"
	"testing"

	"neurogut/internal/config"
)

const rate = 44100.0

// gutBurst is a tone with a short linear attack and an exponential decay.
func gutBurst(durationMs, hz float64) []float64 {
	n := int(durationMs * rate / 1000)
	attack := math.Max(2, 0.15*durationMs)
	out := make([]float64, n)
	for i := range out {
		t := 1000 * float64(i) / rate
		env := t / attack
		if t >= attack {
			env = math.Exp(-2 * (t - attack) / (durationMs - attack))
		}
		out[i] = 0.2 * env * math.Sin(2*math.Pi*hz*float64(i)/rate)
	}
	return out
}

// breath is a slow half-sine swell of a low tone.
func breath(durationMs, hz float64) []float64 {
	n := int(durationMs * rate / 1000)
	out := make([]float64, n)
	for i := range out {
		env := math.Sin(math.Pi * float64(i) / float64(n))
		out[i] = 0.2 * env * math.Sin(2*math.Pi*hz*float64(i)/rate)
	}
	return out
}

func whiteNoise(n int, amp float64, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * (2*r.Float64() - 1)
	}
	return out
}

func TestCascadeAcceptsGutBursts(t *testing.T) {
	c := NewCascade(config.DefaultAnalysis().Veto, false)
	durations := []float64{20, 45, 80, 150, 300, 600, 1000, 1500}
	tones := []float64{163, 211, 247, 289, 337, 383}
	total, accepted := 0, 0
	for _, d := range durations {
		for _, hz := range tones {
			total++
			dec := c.Evaluate(gutBurst(d, hz), rate, nil)
			if dec.Accepted {
				accepted++
			} else {
				t.Logf("%.0f ms %.0f Hz rejected by %s", d, hz, dec.RejectedBy)
			}
		}
	}
	if float64(accepted) < 0.8*float64(total) {
		t.Fatalf("accepted %d of %d gut bursts", accepted, total)
	}
}

func TestCascadeRejectsBreaths(t *testing.T) {
	c := NewCascade(config.DefaultAnalysis().Veto, false)
	for _, d := range []float64{1600, 2200, 2800, 3400, 4000} {
		for _, hz := range []float64{120, 170, 230} {
			dec := c.Evaluate(breath(d, hz), rate, nil)
			if dec.Accepted {
				t.Fatalf("%.0f ms breath at %.0f Hz was accepted", d, hz)
			}
			if dec.RejectedBy != StageBreath && dec.RejectedBy != StageBurst {
				t.Fatalf("%.0f ms breath rejected by unexpected stage %s", d, dec.RejectedBy)
			}
		}
	}
}

func TestCascadeRejectsWhiteNoise(t *testing.T) {
	c := NewCascade(config.DefaultAnalysis().Veto, false)
	dec := c.Evaluate(whiteNoise(int(0.2*rate), 0.1, 7), rate, nil)
	if dec.Accepted || dec.RejectedBy != StageNoise {
		t.Fatalf("expected spectral noise rejection, got %+v", dec)
	}
	if n := len(dec.Stages); n != 2 {
		t.Fatalf("evaluation should stop at the rejecting stage, traced %d", n)
	}
}

func TestCascadeBypass(t *testing.T) {
	c := NewCascade(config.DefaultAnalysis().Veto, false)
	dec := c.Evaluate(whiteNoise(int(0.2*rate), 0.1, 7), rate, map[string]bool{StageNoise: true})
	if len(dec.Stages) < 2 || !dec.Stages[1].Bypassed || !dec.Stages[1].Rejected {
		t.Fatalf("bypassed stage should be traced as rejected and bypassed: %+v", dec.Stages)
	}
	if dec.RejectedBy == StageNoise {
		t.Fatalf("bypassed stage must not reject")
	}
	if dec.RejectedBy != StageBurst {
		t.Fatalf("flat noise envelope should fall to the burst stage, got %q", dec.RejectedBy)
	}
}

func speech(durationMs, f0 float64) []float64 {
	n := int(durationMs * rate / 1000)
	out := make([]float64, n)
	for i := range out {
		env := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
		var v float64
		for h := 1; h <= 6; h++ {
			v += math.Sin(2*math.Pi*float64(h)*f0*float64(i)/rate) / float64(h)
		}
		out[i] = 0.1 * env * v
	}
	return out
}

func TestCascadeRejectsVoicedSound(t *testing.T) {
	c := NewCascade(config.DefaultAnalysis().Veto, false)
	dec := c.Evaluate(speech(300, 150), rate, nil)
	if dec.RejectedBy != StageHarmonic {
		t.Fatalf("expected harmonic rejection, got %q", dec.RejectedBy)
	}
	p := EstimatePitch(speech(300, 150), rate, config.DefaultAnalysis().Veto.Harmonic)
	if math.Abs(p.F0Hz-150) > 3 || p.Harmonics < 3 {
		t.Fatalf("pitch estimate %+v", p)
	}
}

func TestHarmonicSkipsShortEvents(t *testing.T) {
	f := newFeatures(speech(60, 150), rate)
	tr := harmonicStage(f, config.DefaultAnalysis().Veto.Harmonic, 3)
	if tr.Rejected || tr.Reason == "" {
		t.Fatalf("short event should be skipped, got %+v", tr)
	}
}

func TestAnalyzeBurstDurationBounds(t *testing.T) {
	cfg := config.DefaultAnalysis().Veto.Burst
	const r = 1000.0
	hann := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			env := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
			out[i] = env * math.Sin(2*math.Pi*100*float64(i)/r)
		}
		return out
	}
	tests := []struct {
		name  string
		in    []float64
		valid bool
		ms    float64
	}{
		{"at limit", hann(1500), true, 1500},
		{"one past limit", hann(1501), false, 1501},
		{"too short", hann(5), false, 5},
		{"empty", nil, false, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := AnalyzeBurst(tc.in, r, cfg)
			if a.IsValidBurst != tc.valid || a.DurationMs != tc.ms {
				t.Fatalf("got %+v", a)
			}
		})
	}
}

func TestCascadeDurationLimit(t *testing.T) {
	c := NewCascade(config.DefaultAnalysis().Veto, false)
	for _, hz := range []float64{163, 211, 247, 289, 337, 383} {
		if dec := c.Evaluate(gutBurst(1500, hz), rate, nil); !dec.Accepted {
			t.Fatalf("%v Hz: 1500 ms burst rejected by %q", hz, dec.RejectedBy)
		}
		if dec := c.Evaluate(gutBurst(1501, hz), rate, nil); dec.Accepted || dec.RejectedBy != StageBurst {
			t.Fatalf("%v Hz: 1501 ms burst should fail %s, got accepted=%v by %q", hz, StageBurst, dec.Accepted, dec.RejectedBy)
		}
	}
}

func TestAnalyzeBurstConstantNoise(t *testing.T) {
	a := AnalyzeBurst(whiteNoise(int(0.5*rate), 0.1, 9), rate, config.DefaultAnalysis().Veto.Burst)
	if !a.IsConstantNoise || a.IsValidBurst {
		t.Fatalf("flat envelope should be constant noise: %+v", a)
	}
}

const psyRate = 8000.0

func TestPsychoacousticStationaryNoise(t *testing.T) {
	cfg := config.DefaultAnalysis().Psychoacoustic
	r := Psychoacoustic(whiteNoise(int(12*psyRate), 0.05, 21), psyRate, cfg)
	if !r.Stationary || !r.ShouldGate || r.Reasons[0] != ReasonStationary {
		t.Fatalf("white noise should gate as stationary: %+v", r)
	}
	if r.Mechanical {
		t.Fatalf("white noise is not periodic: %+v", r)
	}
}

func TestPsychoacousticMainsHum(t *testing.T) {
	cfg := config.DefaultAnalysis().Psychoacoustic
	hum := make([]float64, int(12*psyRate))
	for i := range hum {
		hum[i] = 0.05 * math.Sin(2*math.Pi*60*float64(i)/psyRate)
	}
	r := Psychoacoustic(hum, psyRate, cfg)
	if !r.Mechanical || !r.ShouldGate || r.MechanicalHz != 60 {
		t.Fatalf("60 Hz hum should gate as mechanical: %+v", r)
	}
	if r.Stationary {
		t.Fatalf("a pure tone has low entropy: %+v", r)
	}
	if r.Segments != cfg.MaxSegments {
		t.Fatalf("expected %d segments, got %d", cfg.MaxSegments, r.Segments)
	}
}

func TestPsychoacousticSparseBursts(t *testing.T) {
	cfg := config.DefaultAnalysis().Psychoacoustic
	sig := whiteNoise(int(12*psyRate), 1e-4, 5)
	burst := int(0.08 * psyRate)
	for start := 0.3; start+0.08 < 12; start += 1.5 {
		s := int(start * psyRate)
		for i := range burst {
			sig[s+i] += 0.1 * math.Sin(2*math.Pi*150*float64(i)/psyRate)
		}
	}
	if r := Psychoacoustic(sig, psyRate, cfg); r.ShouldGate {
		t.Fatalf("sparse bursts should pass the gate: %+v", r)
	}

	cfg.Enabled = false
	if r := Psychoacoustic(whiteNoise(int(12*psyRate), 0.05, 21), psyRate, cfg); r.ShouldGate {
		t.Fatalf("disabled gate must not trigger")
	}
}

func TestLongestStationaryRun(t *testing.T) {
	tests := []struct {
		in   []float64
		want int
	}{
		{nil, 0},
		{[]float64{0.9, 0.91, 0.9, 0.5, 0.9}, 3},
		{[]float64{0.9, 0.95, 0.96, 0.95}, 3},
		{[]float64{0.7, 0.7}, 0},
	}
	for _, tc := range tests {
		if got := longestStationaryRun(tc.in, 0.8, 0.03); got != tc.want {
			t.Fatalf("%v: got %d want %d", tc.in, got, tc.want)
		}
	}
}
