package veto

import (
	"math"

	"neurogut/internal/config"
	"neurogut/internal/dsp"
	"neurogut/internal/model"
)

const (
	ReasonStationary = "stationary_air_noise"
	ReasonMechanical = "mechanical_periodicity"
)

// PsychoacousticResult is the recording-level gate outcome. ShouldGate
// zeroes the whole recording before any event is considered.
type PsychoacousticResult struct {
	ShouldGate       bool
	Stationary       bool
	Mechanical       bool
	Windows          int
	StationaryRun    int
	MeanEntropy      float64
	Segments         int
	PeriodicFraction float64
	MechanicalHz     float64
	Reasons          []string
}

func (r PsychoacousticResult) Trace() model.StageTrace {
	tr := model.StageTrace{
		Stage:    "psychoacoustic",
		Rejected: r.ShouldGate,
		Measurements: map[string]float64{
			"windows":           float64(r.Windows),
			"stationary_run":    float64(r.StationaryRun),
			"mean_entropy":      r.MeanEntropy,
			"segments":          float64(r.Segments),
			"periodic_fraction": r.PeriodicFraction,
			"mechanical_hz":     r.MechanicalHz,
		},
	}
	if len(r.Reasons) > 0 {
		tr.Reason = r.Reasons[0]
		if len(r.Reasons) > 1 {
			tr.Reason += "," + r.Reasons[1]
		}
	}
	return tr
}

// Psychoacoustic flags constant air noise by spectral-entropy stationarity
// and fans or mains hum by autocorrelation at their periods.
func Psychoacoustic(samples []float64, rate float64, cfg config.PsychoacousticConfig) PsychoacousticResult {
	var r PsychoacousticResult
	if !cfg.Enabled || len(samples) == 0 || rate <= 0 {
		return r
	}
	entropies := windowEntropies(samples, rate, cfg)
	r.Windows = len(entropies)
	r.MeanEntropy = dsp.Mean(entropies)
	r.StationaryRun = longestStationaryRun(entropies, cfg.MinEntropy, cfg.EntropyTolerance)
	need := max(cfg.MinStationaryWindows, int(math.Ceil(cfg.StationaryFraction*float64(r.Windows))))
	r.Stationary = r.Windows >= cfg.MinStationaryWindows && r.StationaryRun >= need

	r.Segments, r.PeriodicFraction, r.MechanicalHz = periodicity(samples, rate, cfg)
	r.Mechanical = r.Segments > 0 && r.PeriodicFraction >= cfg.PeriodicFraction

	if r.Stationary {
		r.Reasons = append(r.Reasons, ReasonStationary)
	}
	if r.Mechanical {
		r.Reasons = append(r.Reasons, ReasonMechanical)
	}
	r.ShouldGate = r.Stationary || r.Mechanical
	return r
}

func windowEntropies(samples []float64, rate float64, cfg config.PsychoacousticConfig) []float64 {
	size := dsp.WindowSize(rate, cfg.EntropyWindowMs)
	n := len(samples) / size
	out := make([]float64, n)
	for i := range n {
		seg := samples[i*size : (i+1)*size]
		if cfg.MaxFFTSize > 0 && len(seg) > cfg.MaxFFTSize {
			seg = seg[:cfg.MaxFFTSize]
		}
		mags, _ := dsp.AverageMagnitudeSpectrum(seg, dsp.NextPow2(len(seg)), 1)
		out[i] = dsp.SpectralEntropy(mags)
	}
	return out
}

// longestStationaryRun returns the longest run of consecutive windows with
// entropy at least minEntropy and within tol of the run's mean.
func longestStationaryRun(entropies []float64, minEntropy, tol float64) int {
	best, run := 0, 0
	var sum float64
	for _, e := range entropies {
		if e < minEntropy {
			run, sum = 0, 0
			continue
		}
		if run > 0 && math.Abs(e-sum/float64(run)) > tol {
			run, sum = 0, 0
		}
		run++
		sum += e
		best = max(best, run)
	}
	return best
}

// periodicity checks evenly spaced segments for an autocorrelation peak
// near the period of any mechanical frequency. It returns the number of
// segments examined, the fraction found periodic and the most common
// matching frequency.
func periodicity(samples []float64, rate float64, cfg config.PsychoacousticConfig) (int, float64, float64) {
	size := dsp.WindowSize(rate, cfg.SegmentMs)
	total := len(samples) / size
	if total == 0 || len(cfg.MechanicalHz) == 0 {
		return 0, 0, 0
	}
	used := total
	if cfg.MaxSegments > 0 && used > cfg.MaxSegments {
		used = cfg.MaxSegments
	}
	hits := make(map[float64]int)
	periodic := 0
	for k := range used {
		idx := k * total / used
		seg := samples[idx*size : (idx+1)*size]
		if hz, ok := mechanicalMatch(seg, rate, cfg); ok {
			periodic++
			hits[hz]++
		}
	}
	var topHz float64
	top := 0
	for _, hz := range cfg.MechanicalHz {
		if hits[hz] > top {
			topHz, top = hz, hits[hz]
		}
	}
	return used, float64(periodic) / float64(used), topHz
}

func mechanicalMatch(seg []float64, rate float64, cfg config.PsychoacousticConfig) (float64, bool) {
	for _, hz := range cfg.MechanicalHz {
		lag := rate / hz
		lo := int(math.Floor(lag * (1 - cfg.PeriodTolerance)))
		hi := int(math.Ceil(lag * (1 + cfg.PeriodTolerance)))
		if lo < 1 || hi >= len(seg) {
			continue
		}
		_, best := dsp.ArgMax(dsp.AutocorrelationRange(seg, lo, hi))
		if best >= cfg.MinPeriodicity {
			return hz, true
		}
	}
	return 0, false
}
