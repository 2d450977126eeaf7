package heart

import (
	"math"
	"testing"

	"neurogut/internal/config"
	"neurogut/internal/filter"
)

const rate = 2000.0

func heartbeats(seconds float64) []float64 {
	out := make([]float64, int(seconds*rate))
	burst := int(0.06 * rate)
	for beat := 0.5; beat+0.06 < seconds; beat++ {
		start := int(beat * rate)
		for i := range burst {
			out[start+i] = 0.3 * math.Sin(2*math.Pi*50*float64(i)/rate)
		}
	}
	return out
}

func heartFilter(t *testing.T) *filter.Filter {
	t.Helper()
	f, err := filter.NewCache().Band(filter.HeartBand, rate, 3)
	if err != nil {
		t.Fatalf("design heart band: %v", err)
	}
	return f
}

func TestAnalyzeRegularBeats(t *testing.T) {
	cfg := config.DefaultAnalysis().Heart
	res := Analyze(heartbeats(20), rate, heartFilter(t), cfg)
	if !res.BPMValid || math.Abs(res.BPM-60) > 1 {
		t.Fatalf("expected ~60 bpm, got %+v", res)
	}
	if !res.HRVValid || res.RMSSD > 15 {
		t.Fatalf("regular beats should have low RMSSD, got %+v", res)
	}
	if res.Confidence < cfg.AlignConfidence {
		t.Fatalf("periodic envelope should be confident, got %f", res.Confidence)
	}
	if res.BeatCount < 18 {
		t.Fatalf("expected about 20 beats, got %d", res.BeatCount)
	}
}

func TestAnalyzeWithoutAlignment(t *testing.T) {
	cfg := config.DefaultAnalysis().Heart
	cfg.AlignConfidence = 2
	res := Analyze(heartbeats(20), rate, heartFilter(t), cfg)
	if !res.BPMValid || math.Abs(res.BPM-60) > 1 {
		t.Fatalf("greedy peaks should still find ~60 bpm, got %+v", res)
	}
}

func TestAnalyzeSilence(t *testing.T) {
	cfg := config.DefaultAnalysis().Heart
	res := Analyze(make([]float64, int(10*rate)), rate, heartFilter(t), cfg)
	if res.BPMValid || res.HRVValid || res.BPM != 0 || res.RMSSD != 0 {
		t.Fatalf("silence should be invalid, got %+v", res)
	}
	for _, v := range []float64{res.BPM, res.RMSSD, res.VagalToneScore, res.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite value in %+v", res)
		}
	}
	if got := Analyze(nil, rate, nil, cfg); got.BPMValid {
		t.Fatalf("nil input should be invalid")
	}
}

func TestRMSSD(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"constant", []float64{800, 800, 800, 800}, 0},
		{"alternating", []float64{800, 850, 800, 850, 800}, 50},
		{"single", []float64{900}, 0},
		{"empty", nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RMSSD(tc.in); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("got %f want %f", got, tc.want)
			}
		})
	}
}

func TestIntervalsDropOutliers(t *testing.T) {
	cfg := config.DefaultAnalysis().Heart
	// 100 Hz envelope: 1000 ms beats with one missed beat and one double.
	indices := []int{0, 100, 200, 400, 500, 530, 630}
	got := Intervals(indices, 100, cfg)
	for _, ms := range got {
		if ms != 1000 {
			t.Fatalf("unexpected interval kept: %v", got)
		}
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 intervals, got %v", got)
	}
}

func TestVagalTone(t *testing.T) {
	cfg := config.DefaultAnalysis().Heart
	for _, tc := range []struct{ rmssd, want float64 }{{10, 0}, {20, 0}, {50, 50}, {80, 100}, {200, 100}} {
		if got := VagalTone(tc.rmssd, cfg); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("rmssd %f: got %f want %f", tc.rmssd, got, tc.want)
		}
	}
}
