package dsp

import (
	"math"
	"sort"
)

const nearZero = 1e-10

// SpectralFlatness is the geometric over arithmetic mean of the non-zero
// magnitude bins. 1 is white noise, values near 0 are tonal.
func SpectralFlatness(mags []float64) float64 {
	var logSum, sum float64
	var n int
	for _, m := range mags {
		if m <= nearZero {
			continue
		}
		logSum += math.Log(m)
		sum += m
		n++
	}
	if n == 0 || sum <= 0 {
		return 0
	}
	geo := math.Exp(logSum / float64(n))
	arith := sum / float64(n)
	return clamp01(geo / arith)
}

// ZeroCrossingRate is the number of sign changes divided by N-1.
func ZeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var crossings int
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// SpectralContrast compares the loudest 10% of bins with the quietest 50%.
func SpectralContrast(mags []float64) float64 {
	n := len(mags)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, mags)
	sort.Float64s(sorted)

	topN := max(1, n/10)
	botN := max(1, n/2)
	topMean := Mean(sorted[n-topN:])
	botMean := Mean(sorted[:botN])
	if topMean <= 0 {
		return 0
	}
	return clamp01((topMean - botMean) / topMean)
}

// SpectralEntropy is the Shannon entropy of the normalised power spectrum
// divided by log2(N), so it lies in [0,1].
func SpectralEntropy(mags []float64) float64 {
	n := len(mags)
	if n < 2 {
		return 0
	}
	var total float64
	for _, m := range mags {
		total += m * m
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, m := range mags {
		p := m * m / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return clamp01(h / math.Log2(float64(n)))
}

// Autocorrelation returns r[0..maxLag] of the mean-centred signal,
// normalised by its energy so r[0] == 1. A zero-energy signal yields all
// zeros.
func Autocorrelation(samples []float64, maxLag int) []float64 {
	n := len(samples)
	if n == 0 || maxLag < 0 {
		return nil
	}
	if maxLag > n-1 {
		maxLag = n - 1
	}
	centered, energy := center(samples)
	r := make([]float64, maxLag+1)
	if energy == 0 {
		return r
	}
	for lag := 0; lag <= maxLag; lag++ {
		r[lag] = lagProduct(centered, lag) / energy
	}
	return r
}

// AutocorrelationRange evaluates the normalised autocorrelation only for
// lags in [minLag, maxLag]. The result is indexed from minLag. It is the
// cheap form used when just a physiological or mains lag band matters.
func AutocorrelationRange(samples []float64, minLag, maxLag int) []float64 {
	n := len(samples)
	if minLag < 0 {
		minLag = 0
	}
	if maxLag > n-1 {
		maxLag = n - 1
	}
	if n == 0 || maxLag < minLag {
		return nil
	}
	centered, energy := center(samples)
	r := make([]float64, maxLag-minLag+1)
	if energy == 0 {
		return r
	}
	for lag := minLag; lag <= maxLag; lag++ {
		r[lag-minLag] = lagProduct(centered, lag) / energy
	}
	return r
}

func center(samples []float64) ([]float64, float64) {
	mean := Mean(samples)
	centered := make([]float64, len(samples))
	var energy float64
	for i, v := range samples {
		c := v - mean
		centered[i] = c
		energy += c * c
	}
	return centered, energy
}

func lagProduct(c []float64, lag int) float64 {
	var s float64
	for i := 0; i+lag < len(c); i++ {
		s += c[i] * c[i+lag]
	}
	return s
}

// ArgMax returns the index and value of the largest element, or -1 for an
// empty slice.
func ArgMax(xs []float64) (int, float64) {
	if len(xs) == 0 {
		return -1, 0
	}
	best, bestVal := 0, xs[0]
	for i, v := range xs {
		if v > bestVal {
			best, bestVal = i, v
		}
	}
	return best, bestVal
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
