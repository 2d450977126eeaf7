package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"neurogut/internal/config"
)

// writeTone encodes a 0.5 amplitude 200 Hz tone as 16-bit PCM.
func writeTone(t *testing.T, channels int, seconds float64) string {
	t.Helper()
	const rate = 8000
	n := int(seconds * rate)
	i := 0
	tone := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		k := 0
		for ; k < len(samples) && i < n; k, i = k+1, i+1 {
			v := 0.5 * math.Sin(2*math.Pi*200*float64(i)/rate)
			samples[k] = [2]float64{v, v}
		}
		return k, k > 0
	})
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	format := beep.Format{SampleRate: rate, NumChannels: channels, Precision: 2}
	if err := wav.Encode(f, tone, format); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func TestReadWAV(t *testing.T) {
	for _, channels := range []int{1, 2} {
		samples, rate, err := readWAV(writeTone(t, channels, 1))
		if err != nil {
			t.Fatalf("%d channels: %v", channels, err)
		}
		if rate != 8000 || len(samples) != 8000 {
			t.Fatalf("%d channels: rate %v samples %d", channels, rate, len(samples))
		}
		peak := 0.0
		for _, v := range samples {
			peak = max(peak, math.Abs(v))
		}
		if peak < 0.45 || peak > 0.55 {
			t.Fatalf("%d channels: peak %v", channels, peak)
		}
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := readWAV(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRunAnalyzePrintsAnalytics(t *testing.T) {
	configPath, logLevel = "", "error"
	t.Cleanup(func() { logLevel = "" })
	path := writeTone(t, 1, 4)
	var out bytes.Buffer
	err := runAnalyze(context.Background(), &out, path, analyzeFlags{device: "bench", debug: true})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var got analyzeOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.Analytics.DeviceID != "bench" || got.Analytics.SampleRate != 8000 {
		t.Fatalf("unexpected analytics %+v", got.Analytics)
	}
	if got.Report == nil {
		t.Fatalf("debug run should include the report")
	}
	if got.Analytics.MotilityIndex < 0 || got.Analytics.MotilityIndex > 100 {
		t.Fatalf("motility index out of range: %d", got.Analytics.MotilityIndex)
	}
}

func TestReadAccelerometerKeepsDetectorWindow(t *testing.T) {
	cfg := config.DefaultAnalysis().Contact
	var b strings.Builder
	// 75 s at 20 Hz, written newest first.
	for i := 1499; i >= 0; i-- {
		fmt.Fprintf(&b, "%d,0.01,0.02,0.98\n", i*50)
	}
	path := filepath.Join(t.TempDir(), "accel.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readAccelerometer(path, cfg)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != cfg.MaxSamples {
		t.Fatalf("window holds %d samples want %d", len(got), cfg.MaxSamples)
	}
	if first, last := got[0].TimestampMs, got[len(got)-1].TimestampMs; last != 1499*50 || last-first > int64(cfg.WindowSeconds*1000) {
		t.Fatalf("window spans %d..%d ms", first, last)
	}
}
