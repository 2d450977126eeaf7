// Package calibration estimates the ambient noise floor of a recording and
// grades its signal quality.
package calibration

import (
	"math"

	"neurogut/internal/config"
	"neurogut/internal/dsp"
	"neurogut/internal/filter"
	"neurogut/internal/model"
)

type weightedBand struct {
	lowHz, highHz, weight float64
}

var floorBands = []weightedBand{
	{100, 300, 0.6},
	{300, 600, 0.3},
	{600, 1000, 0.1},
}

const maxFloorFrames = 16

// Calibrate derives the event threshold from the leading calibration
// segment of a band-filtered recording. energies are the windowMs RMS
// windows of filtered.
func Calibrate(filtered, energies []float64, sampleRate, windowMs float64, band filter.Band, cfg config.CalibrationConfig) model.NoiseFloorCalibration {
	if len(energies) == 0 || sampleRate <= 0 {
		return model.NoiseFloorCalibration{
			BaseFloor:      cfg.MinEventThreshold,
			EventThreshold: cfg.MinEventThreshold,
			FellBack:       true,
		}
	}
	want := int(math.Round(cfg.CalibrationSeconds * 1000 / windowMs))
	n := min(len(energies), max(want, 1))
	fellBack := false
	if n < cfg.MinWindows {
		n = len(energies)
		fellBack = true
	}
	used := energies[:n]
	segment := filtered
	if !fellBack {
		end := min(len(filtered), n*dsp.WindowSize(sampleRate, windowMs))
		segment = filtered[:end]
	}

	cal := model.NoiseFloorCalibration{
		MeanRMS:     dsp.Mean(used),
		StdDevRMS:   dsp.StdDev(used),
		WindowsUsed: n,
		FellBack:    fellBack,
	}
	cal.FrequencyWeightedFloor = weightedFloor(segment, sampleRate, cfg.FrameSize)

	mags, size := dsp.AverageMagnitudeSpectrum(segment, cfg.FrameSize, 8)
	cal.BaselineSFM = dsp.SpectralFlatness(dsp.BandMagnitudes(mags, size, sampleRate, band.LowHz, band.HighHz))
	cal.IsAirNoiseBaseline = cal.BaselineSFM >= cfg.WhiteNoiseSFM

	base := math.Max(math.Max(cal.MeanRMS, cal.FrequencyWeightedFloor), cfg.MinEventThreshold)
	threshold := base + cfg.ThresholdMultiplier*cal.StdDevRMS
	if cal.IsAirNoiseBaseline {
		threshold *= cfg.AirNoiseFactor
	}
	factor := math.Max(cfg.MaxThresholdFactor, 1)
	cal.BaseFloor = base
	cal.EventThreshold = dsp.Clamp(threshold, base, factor*base)
	return cal
}

// weightedFloor averages, over frames, the frame RMS scaled by the
// weighted share of power in each floor band.
func weightedFloor(segment []float64, sampleRate float64, frameSize int) float64 {
	if len(segment) == 0 {
		return 0
	}
	frameSize = max(frameSize, 16)
	frames := max(1, min(len(segment)/frameSize, maxFloorFrames))
	step := len(segment) / frames
	var total float64
	for i := range frames {
		start := i * step
		end := min(len(segment), start+frameSize)
		frame := segment[start:end]
		mags, size := dsp.AverageMagnitudeSpectrum(frame, frameSize, 1)
		var share float64
		for _, b := range floorBands {
			share += b.weight * dsp.BandPowerRatio(mags, size, sampleRate, b.lowHz, b.highHz)
		}
		total += dsp.RMS(frame) * share
	}
	return total / float64(frames)
}

// EstimateSNR compares loud and quiet windows: 20·log10(p95/p20).
func EstimateSNR(energies []float64) float64 {
	if len(energies) < 2 {
		return 0
	}
	signal := dsp.Percentile(energies, 95)
	if signal <= 0 {
		return 0
	}
	noise := math.Max(dsp.Percentile(energies, 20), 1e-9)
	return dsp.Finite(20 * math.Log10(signal/noise))
}

func ClassifyQuality(snrDb float64, cfg config.CalibrationConfig) model.SignalQuality {
	switch {
	case snrDb < cfg.PoorBelowDb:
		return model.QualityPoor
	case snrDb < cfg.FairBelowDb:
		return model.QualityFair
	case snrDb < cfg.GoodBelowDb:
		return model.QualityGood
	}
	return model.QualityExcellent
}
