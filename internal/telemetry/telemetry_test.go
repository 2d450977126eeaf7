package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"neurogut/internal/config"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetrics()
	m.ObserveRecording("rest", "analyzed")
	m.ObserveEvent(true, "")
	m.ObserveEvent(false, "harmonic")
	m.ObserveGate("psychoacoustic")
	m.ObserveAnalysis(20 * time.Millisecond)
	m.SetMotility("dev-1", 42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`neurogut_recordings_total{outcome="analyzed",source="rest"} 1`,
		`neurogut_events_total{result="rejected",stage="harmonic"} 1`,
		`neurogut_events_total{result="accepted",stage="none"} 1`,
		`neurogut_recording_gates_total{reason="psychoacoustic"} 1`,
		`neurogut_motility_index{device="dev-1"} 42`,
		`neurogut_analysis_duration_seconds_count 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRecording("rest", "analyzed")
	m.ObserveEvent(true, "")
	m.ObserveGate("x")
	m.ObserveAnalysis(time.Second)
	m.SetMotility("d", 1)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	tp, err := InitTracer(context.Background(), config.TelemetryConfig{})
	if err != nil || tp != nil {
		t.Fatalf("expected no provider, got %v %v", tp, err)
	}
}
