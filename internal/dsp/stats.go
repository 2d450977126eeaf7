package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Variance is the population variance.
func Variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.PopVariance(xs, nil)
}

func StdDev(xs []float64) float64 {
	return math.Sqrt(Variance(xs))
}

// CoefficientOfVariation is std/mean, 0 when the mean is not positive.
func CoefficientOfVariation(xs []float64) float64 {
	mu := Mean(xs)
	if mu <= 0 {
		return 0
	}
	return StdDev(xs) / mu
}

func RMS(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, v := range xs {
		s += v * v
	}
	return math.Sqrt(s / float64(len(xs)))
}

func PeakAbs(xs []float64) float64 {
	var pk float64
	for _, v := range xs {
		if a := math.Abs(v); a > pk {
			pk = a
		}
	}
	return pk
}

// Percentile uses linear interpolation between closest ranks; p is in
// [0,100].
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func Median(xs []float64) float64 {
	return Percentile(xs, 50)
}

// WindowSize converts a window length in milliseconds to samples (min 1).
func WindowSize(sampleRate float64, windowMs float64) int {
	return max(1, int(sampleRate*windowMs/1000))
}

// WindowedRMS splits samples into consecutive non-overlapping windows and
// returns each window's RMS. A trailing partial window is dropped unless it
// is the only one.
func WindowedRMS(samples []float64, sampleRate float64, windowMs float64) []float64 {
	if len(samples) == 0 {
		return nil
	}
	size := WindowSize(sampleRate, windowMs)
	n := len(samples) / size
	if n == 0 {
		return []float64{RMS(samples)}
	}
	out := make([]float64, n)
	for i := range n {
		out[i] = RMS(samples[i*size : (i+1)*size])
	}
	return out
}

// MovingAverage is a centred box filter of the given width, shrinking at the
// edges.
func MovingAverage(xs []float64, width int) []float64 {
	n := len(xs)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if width <= 1 {
		copy(out, xs)
		return out
	}
	prefix := make([]float64, n+1)
	for i, v := range xs {
		prefix[i+1] = prefix[i] + v
	}
	left := width / 2
	right := width - left - 1
	for i := range n {
		lo := max(0, i-left)
		hi := min(n-1, i+right)
		out[i] = (prefix[hi+1] - prefix[lo]) / float64(hi-lo+1)
	}
	return out
}

func Abs(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = math.Abs(v)
	}
	return out
}

// Reverse returns a reversed copy.
func Reverse(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[len(xs)-1-i] = v
	}
	return out
}

// Decimate averages consecutive blocks of factor samples.
func Decimate(xs []float64, factor int) []float64 {
	if factor <= 1 {
		out := make([]float64, len(xs))
		copy(out, xs)
		return out
	}
	n := len(xs) / factor
	out := make([]float64, n)
	for i := range n {
		out[i] = Mean(xs[i*factor : (i+1)*factor])
	}
	return out
}

// Finite replaces NaN and infinities with 0.
func Finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
