package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"neurogut/internal/config"
)

const (
	histLowHz  = 100.0
	histHighHz = 450.0
	histBins   = 8
)

// ReferenceHistogram is the dominant-frequency distribution of a healthy
// fasting/postprandial gut over 100-450 Hz.
var ReferenceHistogram = []float64{0.05, 0.15, 0.25, 0.2, 0.15, 0.1, 0.06, 0.04}

// ReferencePeaksHz are the characteristic peak frequencies of the healthy
// pattern.
var ReferencePeaksHz = []float64{200, 300}

// Histogram bins dominant frequencies into eight equal bins over 100-450 Hz
// and normalises to unit sum. Frequencies outside the range are ignored.
func Histogram(freqs []float64) ([]float64, int) {
	hist := make([]float64, histBins)
	width := (histHighHz - histLowHz) / histBins
	n := 0
	for _, f := range freqs {
		if f < histLowHz || f > histHighHz || math.IsNaN(f) {
			continue
		}
		bin := min(int((f-histLowHz)/width), histBins-1)
		hist[bin]++
		n++
	}
	if n > 0 {
		for i := range hist {
			hist[i] /= float64(n)
		}
	}
	return hist, n
}

// PFHS scores how closely the session's frequency distribution follows the
// healthy reference: 80 points of positive Pearson correlation plus a bonus
// per histogram peak near a reference peak.
func PFHS(freqs []float64, cfg config.AnalyticsConfig) (float64, []float64) {
	hist, n := Histogram(freqs)
	if n < 2 {
		return 0, hist
	}
	r := stat.Correlation(hist, ReferenceHistogram, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		r = 0
	}
	score := math.Max(0, r) * 80

	bonus := 0.0
	for _, hz := range histogramPeaks(hist) {
		for _, ref := range ReferencePeaksHz {
			if math.Abs(hz-ref) <= cfg.PeakToleranceHz {
				bonus += cfg.PeakBonus
				break
			}
		}
	}
	score += math.Min(bonus, cfg.MaxPeakBonus)
	return math.Max(0, math.Min(100, score)), hist
}

// histogramPeaks returns the centre frequencies of bins strictly above
// their neighbours.
func histogramPeaks(hist []float64) []float64 {
	width := (histHighHz - histLowHz) / float64(len(hist))
	var out []float64
	for i, v := range hist {
		if v <= 0 {
			continue
		}
		if i > 0 && hist[i-1] >= v {
			continue
		}
		if i < len(hist)-1 && hist[i+1] >= v {
			continue
		}
		out = append(out, histLowHz+(float64(i)+0.5)*width)
	}
	return out
}
