package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/dsp/fourier"
)

func testSignal(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i)
		out[i] = math.Sin(2*math.Pi*t/16) + 0.5*math.Cos(2*math.Pi*t/5.3) + 0.25*math.Sin(t*t/97)
	}
	return out
}

func TestFFTMatchesGonum(t *testing.T) {
	x := testSignal(256)
	ours := FFT(x)
	ref := fourier.NewFFT(len(x)).Coefficients(nil, x)
	for k := 0; k < len(x)/2; k++ {
		a := cmplx.Abs(ours[k])
		b := cmplx.Abs(ref[k])
		if math.Abs(a-b) > 1e-8*(1+b) {
			t.Fatalf("bin %d: got %f want %f", k, a, b)
		}
	}
}

func TestFFTZeroPads(t *testing.T) {
	if got := len(FFT(make([]float64, 100))); got != 128 {
		t.Fatalf("expected 128 bins, got %d", got)
	}
	if FFT(nil) != nil {
		t.Fatalf("expected nil spectrum for empty input")
	}
	if got := len(MagnitudeSpectrum(testSignal(300))); got != 256 {
		t.Fatalf("expected 256 magnitude bins, got %d", got)
	}
}

func TestFFTDeterministic(t *testing.T) {
	x := testSignal(1000)
	a := MagnitudeSpectrum(x)
	b := MagnitudeSpectrum(x)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bin %d differs between runs", i)
		}
	}
}

func TestSpectralFlatness(t *testing.T) {
	flat := make([]float64, 64)
	for i := range flat {
		flat[i] = 2
	}
	if got := SpectralFlatness(flat); math.Abs(got-1) > 1e-12 {
		t.Fatalf("flat spectrum sfm: %f", got)
	}
	tonal := make([]float64, 64)
	for i := range tonal {
		tonal[i] = 1e-3
	}
	tonal[10] = 1
	if got := SpectralFlatness(tonal); got > 0.2 {
		t.Fatalf("tonal spectrum sfm too high: %f", got)
	}
	if got := SpectralFlatness(make([]float64, 8)); got != 0 {
		t.Fatalf("silent spectrum sfm: %f", got)
	}
}

func TestZeroCrossingRate(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"alternating", []float64{1, -1, 1, -1}, 1},
		{"constant", []float64{1, 1, 1}, 0},
		{"single", []float64{1}, 0},
		{"empty", nil, 0},
		{"one crossing", []float64{-1, -1, 1, 1, 1}, 0.25},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ZeroCrossingRate(tc.in); got != tc.want {
				t.Fatalf("got %f want %f", got, tc.want)
			}
		})
	}
}

func TestSpectralContrastAndEntropy(t *testing.T) {
	uniform := make([]float64, 100)
	for i := range uniform {
		uniform[i] = 1
	}
	if got := SpectralContrast(uniform); got != 0 {
		t.Fatalf("uniform contrast: %f", got)
	}
	if got := SpectralEntropy(uniform); math.Abs(got-1) > 1e-9 {
		t.Fatalf("uniform entropy: %f", got)
	}
	peaky := make([]float64, 100)
	peaky[3] = 5
	if got := SpectralEntropy(peaky); got != 0 {
		t.Fatalf("single-bin entropy: %f", got)
	}
	if got := SpectralContrast(peaky); got != 1 {
		t.Fatalf("single-bin contrast: %f", got)
	}
	if SpectralEntropy(nil) != 0 || SpectralContrast(nil) != 0 {
		t.Fatalf("empty input should be neutral")
	}
}

func TestAutocorrelation(t *testing.T) {
	x := make([]float64, 400)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * float64(i) / 20)
	}
	r := Autocorrelation(x, 40)
	if math.Abs(r[0]-1) > 1e-12 {
		t.Fatalf("r[0] = %f", r[0])
	}
	idx, _ := ArgMax(r[10:31])
	if idx+10 != 20 {
		t.Fatalf("expected period 20, got %d", idx+10)
	}
	zero := Autocorrelation(make([]float64, 50), 10)
	for i, v := range zero {
		if v != 0 {
			t.Fatalf("zero-energy r[%d] = %f", i, v)
		}
	}
	if got := len(Autocorrelation(x[:5], 10)); got != 5 {
		t.Fatalf("maxLag should clamp to n-1, got len %d", got)
	}
	part := AutocorrelationRange(x, 15, 25)
	for lag := 15; lag <= 25; lag++ {
		if math.Abs(part[lag-15]-r[lag]) > 1e-12 {
			t.Fatalf("range autocorrelation mismatch at lag %d", lag)
		}
	}
}

func TestStats(t *testing.T) {
	xs := []float64{5, 1, 4, 2, 3}
	if got := Median(xs); got != 3 {
		t.Fatalf("median: %f", got)
	}
	if got := Percentile(xs, 25); got != 2 {
		t.Fatalf("p25: %f", got)
	}
	if got := Variance([]float64{1, 1, 1}); got != 0 {
		t.Fatalf("variance: %f", got)
	}
	if got := CoefficientOfVariation(nil); got != 0 {
		t.Fatalf("cv of empty: %f", got)
	}
	ma := MovingAverage([]float64{2, 2, 2, 2, 2}, 3)
	for _, v := range ma {
		if v != 2 {
			t.Fatalf("moving average of constant changed: %v", ma)
		}
	}
	if got := Reverse([]float64{1, 2, 3}); got[0] != 3 || got[2] != 1 {
		t.Fatalf("reverse: %v", got)
	}
}

func TestWindowedRMS(t *testing.T) {
	x := make([]float64, 1050)
	for i := range x {
		x[i] = 0.5
	}
	w := WindowedRMS(x, 1000, 100)
	if len(w) != 10 {
		t.Fatalf("expected 10 windows, got %d", len(w))
	}
	for _, v := range w {
		if math.Abs(v-0.5) > 1e-12 {
			t.Fatalf("window rms: %f", v)
		}
	}
	if got := WindowedRMS(x[:40], 1000, 100); len(got) != 1 {
		t.Fatalf("short input should yield one window, got %d", len(got))
	}
	if WindowedRMS(nil, 1000, 100) != nil {
		t.Fatalf("empty input should yield no windows")
	}
}

func TestBandHelpers(t *testing.T) {
	rate := 8000.0
	x := make([]float64, 4096)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 250 * float64(i) / rate)
	}
	mags, size := AverageMagnitudeSpectrum(x, 1024, 4)
	if size != 1024 {
		t.Fatalf("fft size: %d", size)
	}
	if f := DominantFrequency(mags, size, rate, 100, 450); math.Abs(f-250) > rate/float64(size) {
		t.Fatalf("dominant frequency: %f", f)
	}
	if r := BandPowerRatio(mags, size, rate, 200, 300); r < 0.95 {
		t.Fatalf("band ratio: %f", r)
	}
	if f := SpectralRolloff(mags, size, rate, 0.85); f > 300 {
		t.Fatalf("rolloff: %f", f)
	}
}
