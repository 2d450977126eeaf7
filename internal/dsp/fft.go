// Package dsp holds the pure spectral and statistical primitives shared by
// the gut-sound and heart pipelines. Nothing in this package keeps state;
// identical input always produces identical output.
package dsp

import (
	"math"
	"math/cmplx"
)

// NextPow2 returns the smallest power of two >= n (1 for n <= 1).
func NextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// FFT computes the discrete Fourier transform with a recursive radix-2
// Cooley-Tukey. Input that is not a power of two is zero-padded.
func FFT(samples []float64) []complex128 {
	if len(samples) == 0 {
		return nil
	}
	n := NextPow2(len(samples))
	in := make([]complex128, n)
	for i, v := range samples {
		in[i] = complex(v, 0)
	}
	return fftRec(in)
}

func fftRec(x []complex128) []complex128 {
	n := len(x)
	if n == 1 {
		return []complex128{x[0]}
	}
	half := n / 2
	even := make([]complex128, half)
	odd := make([]complex128, half)
	for i := range half {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}
	e := fftRec(even)
	o := fftRec(odd)
	out := make([]complex128, n)
	for k := range half {
		t := cmplx.Rect(1, -2*math.Pi*float64(k)/float64(n)) * o[k]
		out[k] = e[k] + t
		out[k+half] = e[k] - t
	}
	return out
}

// MagnitudeSpectrum returns |X[k]| for the positive-frequency half of the
// (zero-padded) spectrum.
func MagnitudeSpectrum(samples []float64) []float64 {
	spec := FFT(samples)
	if len(spec) == 0 {
		return nil
	}
	half := len(spec) / 2
	if half == 0 {
		return []float64{cmplx.Abs(spec[0])}
	}
	mags := make([]float64, half)
	for k := range half {
		mags[k] = cmplx.Abs(spec[k])
	}
	return mags
}

// Hann returns a Hann window of length n.
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// AverageMagnitudeSpectrum averages Hann-windowed magnitude spectra of
// non-overlapping frames. At most maxFrames evenly spaced frames are used.
// Input shorter than frameSize is analysed as one zero-padded frame. The
// returned fftSize is needed to map bins to frequencies.
func AverageMagnitudeSpectrum(samples []float64, frameSize, maxFrames int) (mags []float64, fftSize int) {
	if len(samples) == 0 || frameSize <= 0 {
		return nil, 0
	}
	frameSize = NextPow2(frameSize)
	if len(samples) < frameSize {
		size := NextPow2(len(samples))
		frame := applyWindow(samples, Hann(len(samples)))
		return MagnitudeSpectrum(frame), size
	}
	total := len(samples) / frameSize
	if maxFrames <= 0 || maxFrames > total {
		maxFrames = total
	}
	win := Hann(frameSize)
	acc := make([]float64, frameSize/2)
	for f := range maxFrames {
		idx := f
		if maxFrames < total {
			idx = f * total / maxFrames
		}
		start := idx * frameSize
		frame := applyWindow(samples[start:start+frameSize], win)
		for k, m := range MagnitudeSpectrum(frame) {
			acc[k] += m
		}
	}
	for k := range acc {
		acc[k] /= float64(maxFrames)
	}
	return acc, frameSize
}

func applyWindow(samples, win []float64) []float64 {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = v * win[i]
	}
	return out
}

// BinFrequency maps an FFT bin to its centre frequency in Hz.
func BinFrequency(bin, fftSize int, sampleRate float64) float64 {
	if fftSize <= 0 {
		return 0
	}
	return float64(bin) * sampleRate / float64(fftSize)
}

func binRange(n, fftSize int, sampleRate, lo, hi float64) (int, int) {
	if fftSize <= 0 || sampleRate <= 0 {
		return 0, 0
	}
	res := sampleRate / float64(fftSize)
	start := int(math.Ceil(lo / res))
	end := int(math.Floor(hi / res))
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	return start, end
}

// BandMagnitudes returns the bins whose frequency lies in [lo, hi].
func BandMagnitudes(mags []float64, fftSize int, sampleRate, lo, hi float64) []float64 {
	start, end := binRange(len(mags), fftSize, sampleRate, lo, hi)
	if end < start {
		return nil
	}
	return mags[start : end+1]
}

// BandPowerRatio is the share of spectral power between lo and hi Hz.
func BandPowerRatio(mags []float64, fftSize int, sampleRate, lo, hi float64) float64 {
	var total float64
	for _, m := range mags {
		total += m * m
	}
	if total <= 0 {
		return 0
	}
	var band float64
	for _, m := range BandMagnitudes(mags, fftSize, sampleRate, lo, hi) {
		band += m * m
	}
	return band / total
}

// SpectralRolloff returns the frequency below which fraction of the spectral
// power lies.
func SpectralRolloff(mags []float64, fftSize int, sampleRate, fraction float64) float64 {
	var total float64
	for _, m := range mags {
		total += m * m
	}
	if total <= 0 {
		return 0
	}
	target := fraction * total
	var cum float64
	for k, m := range mags {
		cum += m * m
		if cum >= target {
			return BinFrequency(k, fftSize, sampleRate)
		}
	}
	return BinFrequency(len(mags)-1, fftSize, sampleRate)
}

// DominantFrequency returns the frequency of the strongest bin in [lo, hi],
// or 0 when the band is empty or silent.
func DominantFrequency(mags []float64, fftSize int, sampleRate, lo, hi float64) float64 {
	start, end := binRange(len(mags), fftSize, sampleRate, lo, hi)
	best := -1
	var bestMag float64
	for k := start; k <= end; k++ {
		if mags[k] > bestMag {
			bestMag = mags[k]
			best = k
		}
	}
	if best < 0 {
		return 0
	}
	return BinFrequency(best, fftSize, sampleRate)
}
