// Package pipeline runs a recording through the contact gate, band
// filter, noise calibration, psychoacoustic gate, event segmentation and
// veto cascade, and aggregates the accepted events.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"neurogut/internal/analytics"
	"neurogut/internal/calibration"
	"neurogut/internal/config"
	"neurogut/internal/contact"
	"neurogut/internal/dsp"
	"neurogut/internal/filter"
	"neurogut/internal/heart"
	"neurogut/internal/logging"
	"neurogut/internal/model"
	"neurogut/internal/telemetry"
	"neurogut/internal/veto"
)

const (
	GateEmpty          = "empty_input"
	GateNoContact      = "no_contact"
	GateNoContactAudio = "no_contact_audio"
	GateFilterDesign   = "filter_design"
	GatePsychoacoustic = "psychoacoustic"
)

type Options struct {
	ApplyBirdFilter bool
	IsHummingPhase  bool
	Accelerometer   *model.ContactResult
	IncludeHeart    bool
}

func DefaultOptions() Options {
	return Options{ApplyBirdFilter: true}
}

// Band is the gut passband these options select.
func (o Options) Band() filter.Band {
	b := filter.GutBand
	if !o.ApplyBirdFilter {
		b = filter.WideGutBand
	}
	if o.IsHummingPhase && b.LowHz < filter.HummingGutBand.LowHz {
		b.LowHz = filter.HummingGutBand.LowHz
		b.Name += "_humming"
	}
	return b
}

type Analyzer struct {
	cfg          atomic.Pointer[config.AnalysisConfig]
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
	filters      *filter.Cache
	calibrations *calibration.Cache
}

// NewAnalyzer owns its filter and calibration caches. logger and metrics
// may be nil.
func NewAnalyzer(cfg config.AnalysisConfig, logger *slog.Logger, metrics *telemetry.Metrics) *Analyzer {
	if logger == nil {
		logger = logging.Discard()
	}
	a := &Analyzer{
		logger:       logger,
		metrics:      metrics,
		tracer:       otel.Tracer("neurogut/pipeline"),
		filters:      filter.NewCache(),
		calibrations: calibration.NewCache(cfg.Calibration.CacheTTL),
	}
	a.cfg.Store(&cfg)
	return a
}

func (a *Analyzer) Config() config.AnalysisConfig {
	return *a.cfg.Load()
}

func (a *Analyzer) UpdateConfig(cfg config.AnalysisConfig) {
	a.cfg.Store(&cfg)
	a.calibrations.Invalidate()
}

// StartSession drops cached calibrations so a new session recalibrates.
func (a *Analyzer) StartSession() {
	a.calibrations.Invalidate()
}

// ClearFilters drops cached filter designs.
func (a *Analyzer) ClearFilters() {
	a.filters.Clear()
}

// Analyze scores a recording. durationSeconds <= 0 derives the duration
// from the sample count.
func (a *Analyzer) Analyze(samples []float64, durationSeconds, sampleRate float64, opts Options) model.SessionAnalytics {
	sa, _ := a.run(context.Background(), samples, durationSeconds, sampleRate, opts, nil)
	return sa
}

// AnalyzeWithDebug scores a recording and returns the full rejection trace.
// Stages named in bypass are measured but cannot reject.
func (a *Analyzer) AnalyzeWithDebug(samples []float64, durationSeconds, sampleRate float64, opts Options, bypass []string) (model.SessionAnalytics, model.DebugReport) {
	return a.run(context.Background(), samples, durationSeconds, sampleRate, opts, bypass)
}

// AnalyzeRecording is the service entry point: it derives options from the
// recording, fills identity fields and returns a report only for debug
// recordings.
func (a *Analyzer) AnalyzeRecording(ctx context.Context, rec model.Recording) (model.SessionAnalytics, *model.DebugReport) {
	cfg := a.Config()
	opts := DefaultOptions()
	if rec.ApplyBirdFilter != nil {
		opts.ApplyBirdFilter = *rec.ApplyBirdFilter
	}
	opts.IsHummingPhase = rec.IsHummingPhase
	opts.IncludeHeart = rec.IncludeHeart
	if len(rec.Accelerometer) > 0 {
		res := contact.EvaluateAccelerometer(rec.Accelerometer, cfg.Contact)
		opts.Accelerometer = &res
	}

	sa, report := a.run(ctx, rec.Samples, rec.DurationSeconds(), rec.SampleRate, opts, rec.Bypass)
	created := rec.ReceivedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	sa.SessionID, sa.DeviceID, sa.CreatedAt = rec.ID, rec.DeviceID, created
	if !rec.Debug {
		return sa, nil
	}
	report.RecordingID, report.DeviceID = rec.ID, rec.DeviceID
	return sa, &report
}

// AnalyzeHeartRate extracts BPM and HRV from the heart band.
func (a *Analyzer) AnalyzeHeartRate(samples []float64, durationSeconds, sampleRate float64) model.HeartResult {
	cfg := a.Config()
	if durationSeconds > 0 && sampleRate > 0 {
		if n := int(durationSeconds * sampleRate); n < len(samples) {
			samples = samples[:n]
		}
	}
	f, err := a.filters.Band(filter.HeartBand, sampleRate, cfg.FilterOrder)
	if err != nil {
		a.logger.Warn("heart band filter", "sample_rate", sampleRate, "error", err)
		return model.HeartResult{}
	}
	return heart.Analyze(samples, sampleRate, f, cfg.Heart)
}

func (a *Analyzer) run(ctx context.Context, samples []float64, dur, rate float64, opts Options, bypass []string) (model.SessionAnalytics, model.DebugReport) {
	cfg := a.Config()
	began := time.Now()
	_, span := a.tracer.Start(ctx, "pipeline.analyze", trace.WithAttributes(
		attribute.Float64("sample_rate", rate),
		attribute.Int("samples", len(samples)),
	))
	defer span.End()
	defer func() { a.metrics.ObserveAnalysis(time.Since(began)) }()

	if dur <= 0 && rate > 0 {
		dur = float64(len(samples)) / rate
	}
	bypassSet := make(map[string]bool, len(bypass))
	for _, s := range bypass {
		bypassSet[s] = true
	}
	report := model.DebugReport{
		CreatedAt: time.Now().UTC(),
		Events:    []model.EventTrace{},
		Bypassed:  sortedKeys(bypassSet),
	}

	gated := func(sa model.SessionAnalytics, reason string) (model.SessionAnalytics, model.DebugReport) {
		sa.GateReason = reason
		sa.SampleRate = rate
		a.metrics.ObserveGate(reason)
		span.SetAttributes(attribute.String("gate", reason))
		a.logger.Debug("recording gated", "reason", reason, "duration_s", dur)
		return sa, report
	}

	if len(samples) == 0 || rate <= 0 {
		return gated(analytics.Empty(dur, model.QualityPoor, ""), GateEmpty)
	}

	var ok bool
	report.Contact, ok = a.contactGate(samples, rate, opts, cfg)
	if !ok {
		reason := GateNoContactAudio
		if opts.Accelerometer != nil && contact.Confident(*opts.Accelerometer, cfg.Contact) {
			reason = GateNoContact
		}
		return gated(analytics.Empty(dur, model.QualityPoor, ""), reason)
	}

	band := opts.Band()
	bp, err := a.filters.Band(band, rate, cfg.FilterOrder)
	if err != nil {
		a.logger.Warn("band filter design failed", "band", band.Name, "sample_rate", rate, "error", err)
		span.RecordError(err)
		sa := analytics.Empty(dur, model.QualityPoor, "")
		sa.ContactDetected = true
		return gated(sa, GateFilterDesign)
	}
	filtered := bp.ApplyZeroPhase(samples)
	energies := dsp.WindowedRMS(filtered, rate, cfg.WindowMs)

	key := calibration.Key(samples, rate, band)
	cal, cached := a.calibrations.Get(key)
	if !cached {
		cal = calibration.Calibrate(filtered, energies, rate, cfg.WindowMs, band, cfg.Calibration)
		a.calibrations.Put(key, cal)
	}
	report.Calibration = cal
	snr := calibration.EstimateSNR(energies)
	quality := calibration.ClassifyQuality(snr, cfg.Calibration)

	psy := veto.Psychoacoustic(samples, rate, cfg.Psychoacoustic)
	report.Psychoacoustic = psy.Trace()
	if psy.ShouldGate {
		sa := analytics.Empty(dur, quality, "")
		sa.SNRDb = dsp.Finite(snr)
		sa.ContactDetected = true
		a.attachHeart(&sa, samples, dur, rate, opts)
		return gated(sa, GatePsychoacoustic)
	}

	cascade := veto.NewCascade(cfg.Veto, opts.IsHummingPhase)
	windowSize := dsp.WindowSize(rate, cfg.WindowMs)
	var accepted []analytics.Event
	for i, c := range Segment(energies, cal.EventThreshold, cfg.Segmentation) {
		start, end := Refine(c, filtered, windowSize, rate, cfg.Segmentation)
		if end <= start {
			continue
		}
		d := cascade.Evaluate(samples[start:end], rate, bypassSet)
		a.metrics.ObserveEvent(d.Accepted, d.RejectedBy)
		report.Events = append(report.Events, model.EventTrace{
			Index:      i,
			StartMs:    1000 * float64(start) / rate,
			EndMs:      1000 * float64(end) / rate,
			DurationMs: 1000 * float64(end-start) / rate,
			PeakEnergy: c.PeakEnergy,
			Accepted:   d.Accepted,
			RejectedBy: d.RejectedBy,
			Stages:     d.Stages,
		})
		if !d.Accepted {
			continue
		}
		mags, size := dsp.AverageMagnitudeSpectrum(filtered[start:end], 4096, 8)
		accepted = append(accepted, analytics.Event{
			StartSeconds: float64(start) / rate,
			EndSeconds:   float64(end) / rate,
			DominantHz:   dsp.DominantFrequency(mags, size, rate, band.LowHz, band.HighHz),
		})
	}

	sa := analytics.Build(analytics.Input{
		DurationSeconds: dur,
		WindowSeconds:   cfg.WindowMs / 1000,
		Events:          accepted,
		Quality:         quality,
		SNRDb:           snr,
	}, cfg.Analytics)
	sa.SampleRate = rate
	sa.ContactDetected = true
	a.attachHeart(&sa, samples, dur, rate, opts)

	span.SetAttributes(
		attribute.Int("events.candidates", len(report.Events)),
		attribute.Int("events.accepted", len(accepted)),
		attribute.Int("motility_index", sa.MotilityIndex),
	)
	a.logger.Debug("recording analyzed",
		"candidates", len(report.Events),
		"accepted", len(accepted),
		"threshold", cal.EventThreshold,
		"quality", quality,
		"motility_index", sa.MotilityIndex,
	)
	return sa, report
}

func (a *Analyzer) contactGate(samples []float64, rate float64, opts Options, cfg config.AnalysisConfig) (model.StageTrace, bool) {
	if acc := opts.Accelerometer; acc != nil && contact.Confident(*acc, cfg.Contact) {
		tr := model.StageTrace{
			Stage:    "contact_accelerometer",
			Rejected: acc.NoContact,
			Measurements: map[string]float64{
				"total_variance":  acc.TotalVariance,
				"confidence":      acc.Confidence,
				"settled_samples": float64(acc.SettledSamples),
			},
		}
		if acc.NoContact {
			tr.Reason = "variance outside body range"
		}
		return tr, !acc.NoContact
	}
	res := contact.EvaluateAudio(samples, rate, cfg.WindowMs, cfg.Contact)
	return model.StageTrace{
		Stage:        "contact_audio",
		Rejected:     !res.Accepted,
		Reason:       res.Reason,
		Measurements: res.Measurements(),
	}, res.Accepted
}

func (a *Analyzer) attachHeart(sa *model.SessionAnalytics, samples []float64, dur, rate float64, opts Options) {
	if !opts.IncludeHeart {
		return
	}
	hr := a.AnalyzeHeartRate(samples, dur, rate)
	if hr.BPMValid {
		bpm := hr.BPM
		sa.HeartBPM = &bpm
	}
	if hr.HRVValid {
		rmssd, vagal := hr.RMSSD, hr.VagalToneScore
		sa.HeartRMSSD, sa.VagalToneScore = &rmssd, &vagal
	}
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
