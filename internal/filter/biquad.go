package filter

import (
	"errors"
	"fmt"
	"math"

	"neurogut/internal/dsp"
)

var ErrInvalidBand = errors.New("invalid filter band")

// butterworthQ gives each second-order section a maximally flat response.
const butterworthQ = 1 / math.Sqrt2

// Biquad is one second-order IIR section with a0 normalised to 1.
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

type Filter struct {
	Sections   []Biquad
	SampleRate float64
	LowHz      float64
	HighHz     float64
	Order      int
}

func lowpass(cutoff, rate float64) Biquad {
	w0 := 2 * math.Pi * cutoff / rate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * butterworthQ)
	a0 := 1 + alpha
	return Biquad{
		B0: (1 - cosw) / 2 / a0,
		B1: (1 - cosw) / a0,
		B2: (1 - cosw) / 2 / a0,
		A1: -2 * cosw / a0,
		A2: (1 - alpha) / a0,
	}
}

func highpass(cutoff, rate float64) Biquad {
	w0 := 2 * math.Pi * cutoff / rate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * butterworthQ)
	a0 := 1 + alpha
	return Biquad{
		B0: (1 + cosw) / 2 / a0,
		B1: -(1 + cosw) / a0,
		B2: (1 + cosw) / 2 / a0,
		A1: -2 * cosw / a0,
		A2: (1 - alpha) / a0,
	}
}

// DesignBandpass cascades order highpass sections at lowHz with order
// lowpass sections at highHz.
func DesignBandpass(lowHz, highHz, sampleRate float64, order int) (*Filter, error) {
	nyquist := sampleRate / 2
	switch {
	case sampleRate <= 0:
		return nil, fmt.Errorf("%w: sample rate %.1f", ErrInvalidBand, sampleRate)
	case order < 1:
		return nil, fmt.Errorf("%w: order %d", ErrInvalidBand, order)
	case lowHz <= 0 || lowHz >= highHz:
		return nil, fmt.Errorf("%w: low %.1f Hz must be positive and below high %.1f Hz", ErrInvalidBand, lowHz, highHz)
	case lowHz >= nyquist || highHz >= nyquist:
		return nil, fmt.Errorf("%w: %.1f-%.1f Hz exceeds nyquist %.1f Hz", ErrInvalidBand, lowHz, highHz, nyquist)
	}
	sections := make([]Biquad, 0, 2*order)
	for range order {
		sections = append(sections, highpass(lowHz, sampleRate))
	}
	for range order {
		sections = append(sections, lowpass(highHz, sampleRate))
	}
	return &Filter{
		Sections:   sections,
		SampleRate: sampleRate,
		LowHz:      lowHz,
		HighHz:     highHz,
		Order:      order,
	}, nil
}

// Apply runs the cascade once and returns a new buffer.
func (f *Filter) Apply(samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	for _, s := range f.Sections {
		s.process(out)
	}
	return out
}

// ApplyZeroPhase filters forward, then backward, cancelling the phase shift
// so burst onsets stay where they were.
func (f *Filter) ApplyZeroPhase(samples []float64) []float64 {
	fwd := f.Apply(samples)
	back := f.Apply(dsp.Reverse(fwd))
	return dsp.Reverse(back)
}

func (s Biquad) process(buf []float64) {
	var x1, x2, y1, y2 float64
	for i, x := range buf {
		y := s.B0*x + s.B1*x1 + s.B2*x2 - s.A1*y1 - s.A2*y2
		x2, x1 = x1, x
		y2, y1 = y1, y
		buf[i] = y
	}
}
