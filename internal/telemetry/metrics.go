// Package telemetry exposes Prometheus collectors and the OpenTelemetry
// tracer provider for the analysis service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	recordings      *prometheus.CounterVec
	events          *prometheus.CounterVec
	gates           *prometheus.CounterVec
	analysisSeconds prometheus.Histogram
	motility        *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recordings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neurogut",
			Name:      "recordings_total",
			Help:      "Recordings received, by intake source and outcome.",
		}, []string{"source", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neurogut",
			Name:      "events_total",
			Help:      "Candidate events, by veto stage that decided them.",
		}, []string{"result", "stage"}),
		gates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neurogut",
			Name:      "recording_gates_total",
			Help:      "Recordings zeroed before event detection, by reason.",
		}, []string{"reason"}),
		analysisSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neurogut",
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one recording analysis.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		motility: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "neurogut",
			Name:      "motility_index",
			Help:      "Latest Motility Index per device.",
		}, []string{"device"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.recordings,
		m.events,
		m.gates,
		m.analysisSeconds,
		m.motility,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRecording(source, outcome string) {
	if m == nil {
		return
	}
	m.recordings.WithLabelValues(source, outcome).Inc()
}

// ObserveEvent counts an accepted event under stage "none" and a rejected one
// under the stage that rejected it.
func (m *Metrics) ObserveEvent(accepted bool, stage string) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result, stage = "accepted", "none"
	}
	m.events.WithLabelValues(result, stage).Inc()
}

func (m *Metrics) ObserveGate(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.gates.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveAnalysis(d time.Duration) {
	if m == nil {
		return
	}
	m.analysisSeconds.Observe(d.Seconds())
}

func (m *Metrics) SetMotility(device string, mi int) {
	if m == nil {
		return
	}
	m.motility.WithLabelValues(device).Set(float64(mi))
}
