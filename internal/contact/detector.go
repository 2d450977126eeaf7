// Package contact decides whether the phone is resting on the body, from
// accelerometer variance or, failing a confident read, from the audio itself.
package contact

import (
	"sync"

	"neurogut/internal/config"
	"neurogut/internal/dsp"
	"neurogut/internal/model"
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "idle"
}

// Detector collects accelerometer samples between Start and Stop into a
// window bounded by age and count.
type Detector struct {
	mu      sync.Mutex
	cfg     config.ContactConfig
	state   State
	samples []model.AccelerometerSample
	head    int
}

func NewDetector(cfg config.ContactConfig) *Detector {
	return &Detector{cfg: cfg, samples: make([]model.AccelerometerSample, 0, 256)}
}

// Start begins monitoring. Calling it while running does nothing; calling
// it after Stop discards the previous window.
func (d *Detector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateRunning {
		return
	}
	d.samples = d.samples[:0]
	d.head = 0
	d.state = StateRunning
}

func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateRunning {
		d.state = StateStopped
	}
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Add records a sample and reports whether it was accepted.
func (d *Detector) Add(s model.AccelerometerSample) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateRunning {
		return false
	}
	d.samples = append(d.samples, s)
	d.evict(s.TimestampMs)
	return true
}

func (d *Detector) evict(latestMs int64) {
	if d.cfg.WindowSeconds > 0 {
		cutoff := latestMs - int64(d.cfg.WindowSeconds*1000)
		for d.head < len(d.samples) && d.samples[d.head].TimestampMs < cutoff {
			d.head++
		}
	}
	if d.cfg.MaxSamples > 0 {
		if over := len(d.samples) - d.head - d.cfg.MaxSamples; over > 0 {
			d.head += over
		}
	}
	if d.head > 0 && d.head*2 >= len(d.samples) {
		d.samples = append([]model.AccelerometerSample{}, d.samples[d.head:]...)
		d.head = 0
	}
}

// Samples returns a copy of the current window.
func (d *Detector) Samples() []model.AccelerometerSample {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.AccelerometerSample(nil), d.samples[d.head:]...)
}

func (d *Detector) Result() model.ContactResult {
	return EvaluateAccelerometer(d.Samples(), d.cfg)
}

// EvaluateAccelerometer drops the unsettled lead-in and checks the summed
// per-axis variance against the body-contact range. Too few settled
// samples yields a zero-confidence result that asserts nothing.
func EvaluateAccelerometer(samples []model.AccelerometerSample, cfg config.ContactConfig) model.ContactResult {
	if len(samples) == 0 {
		return model.ContactResult{}
	}
	start := samples[0].TimestampMs
	var xs, ys, zs []float64
	for _, s := range samples {
		if s.TimestampMs-start < cfg.SettleMs {
			continue
		}
		xs = append(xs, s.X)
		ys = append(ys, s.Y)
		zs = append(zs, s.Z)
	}
	n := len(xs)
	if n < cfg.MinSettledSamples || n == 0 {
		return model.ContactResult{SettledSamples: n}
	}
	total := dsp.Variance(xs) + dsp.Variance(ys) + dsp.Variance(zs)
	inRange := total >= cfg.MinVariance && total <= cfg.MaxVariance
	return model.ContactResult{
		NoContact:           !inRange,
		VarianceInBodyRange: inRange,
		TotalVariance:       total,
		Confidence:          dsp.Clamp(float64(n)/float64(2*max(cfg.MinSettledSamples, 1)), 0, 1),
		SettledSamples:      n,
	}
}

// Confident reports whether r is authoritative enough to skip the audio
// gate.
func Confident(r model.ContactResult, cfg config.ContactConfig) bool {
	return r.Confidence >= cfg.ConfidentAt
}
