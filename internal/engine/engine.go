package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"neurogut/internal/config"
	"neurogut/internal/logging"
	"neurogut/internal/metrics"
	"neurogut/internal/model"
	"neurogut/internal/normalize"
	"neurogut/internal/pipeline"
	"neurogut/internal/storage"
	"neurogut/internal/telemetry"
	"neurogut/internal/traces"
)

var (
	ErrDuplicate    = errors.New("duplicate recording")
	ErrDeviceDenied = errors.New("device not permitted")
	ErrThrottled    = errors.New("device submitting too often")
)

// Result is what the engine produced for one recording.
type Result struct {
	Analytics model.SessionAnalytics `json:"analytics"`
	Report    *model.DebugReport     `json:"report,omitempty"`
	Trends    []model.DeviceTrend    `json:"trends"`
}

// Engine is the recording worker: it filters resubmissions and unknown
// devices, runs the analyzer and publishes the outcome.
type Engine struct {
	logger    *slog.Logger
	analyzer  *pipeline.Analyzer
	metrics   *metrics.Store
	traces    *traces.Store
	store     storage.Store
	telemetry *telemetry.Metrics
	cfg       atomic.Value
	access    atomic.Value
	devices   map[string]*DeviceState
	mu        sync.Mutex
	started   time.Time
	processed atomic.Int64
	throttle  *Throttle
	deDupe    *DedupeCache
	now       func() time.Time
}

type DeviceState struct {
	id      string
	windows map[int]*TrendWindow
}

// NewEngine wires the worker. store and tm may be nil.
func NewEngine(cfg *config.Config, logger *slog.Logger, analyzer *pipeline.Analyzer, metricsStore *metrics.Store, tracesStore *traces.Store, store storage.Store, tm *telemetry.Metrics) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	if analyzer == nil {
		analyzer = pipeline.NewAnalyzer(cfg.Analysis, logger, tm)
	}
	e := &Engine{
		logger:    logger,
		analyzer:  analyzer,
		metrics:   metricsStore,
		traces:    tracesStore,
		store:     store,
		telemetry: tm,
		devices:   make(map[string]*DeviceState),
		started:   time.Now().UTC(),
		throttle:  NewThrottle(),
		deDupe:    NewDedupeCache(),
		now:       time.Now,
	}
	e.cfg.Store(cfg)
	e.access.Store(buildDeviceAccess(cfg))
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.access.Store(buildDeviceAccess(cfg))
	e.analyzer.UpdateConfig(cfg.Analysis)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) Analyzer() *pipeline.Analyzer {
	return e.analyzer
}

func (e *Engine) Started() time.Time {
	return e.started
}

func (e *Engine) Processed() int64 {
	return e.processed.Load()
}

// InvalidateCalibration forces the next recording to recalibrate.
func (e *Engine) InvalidateCalibration() {
	e.analyzer.StartSession()
}

func (e *Engine) Start(ctx context.Context, in <-chan model.Recording) {
	go func() {
		for {
			select {
			case rec := <-in:
				if _, err := e.ProcessRecording(ctx, rec); err != nil {
					level := slog.LevelWarn
					if errors.Is(err, ErrDuplicate) {
						level = slog.LevelDebug
					}
					e.logger.Log(ctx, level, "recording not analyzed",
						"recording_id", rec.ID,
						"device_id", rec.DeviceID,
						"source", rec.Source,
						"error", err,
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ProcessRecording validates, analyzes and publishes one recording. The
// returned error wraps ErrDuplicate, ErrDeviceDenied or ErrThrottled when
// the recording was skipped.
func (e *Engine) ProcessRecording(ctx context.Context, rec model.Recording) (Result, error) {
	cfg := e.config()
	now := e.now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = now
	}
	if rec.Source == "" {
		rec.Source = "direct"
	}
	if err := normalize.Recording(&rec, cfg.Ingest.Parser); err != nil {
		e.telemetry.ObserveRecording(rec.Source, "invalid")
		return Result{}, fmt.Errorf("recording %s: %w", rec.ID, err)
	}

	e.mu.Lock()
	deDupe, throttle := e.deDupe, e.throttle
	e.mu.Unlock()

	if ok, reason := e.accessSet().Permit(rec.DeviceID); !ok {
		e.telemetry.ObserveRecording(rec.Source, "denied")
		return Result{}, fmt.Errorf("device %q %s: %w", rec.DeviceID, reason, ErrDeviceDenied)
	}
	// A fingerprint only counts once the recording gets past the throttle,
	// so a throttled recording can be resubmitted later.
	key := ""
	if window := cfg.Analysis.DedupeWindow; window > 0 {
		key = fingerprint(rec)
		if deDupe.Seen(key, now, window) {
			e.telemetry.ObserveRecording(rec.Source, "duplicate")
			return Result{}, fmt.Errorf("recording %s: %w", rec.ID, ErrDuplicate)
		}
	}
	if !throttle.Allow(rec.DeviceID, now, cfg.Devices.MinInterval) {
		if key != "" {
			deDupe.Forget(key)
		}
		e.telemetry.ObserveRecording(rec.Source, "throttled")
		return Result{}, fmt.Errorf("device %q: %w", rec.DeviceID, ErrThrottled)
	}

	// Debug reruns of a recording reuse its calibration.
	if !rec.Debug {
		e.analyzer.StartSession()
	}
	sa, report := e.analyzer.AnalyzeRecording(ctx, rec)
	e.processed.Add(1)

	res := Result{Analytics: sa, Report: report}
	if report != nil && e.traces != nil {
		e.traces.Add(*report)
	}
	res.Trends = e.updateTrends(cfg, sa)
	if e.metrics != nil {
		e.metrics.Update(sa, res.Trends)
	}
	outcome := "analyzed"
	if sa.GateReason != "" {
		outcome = "gated"
	}
	e.telemetry.ObserveRecording(rec.Source, outcome)
	e.telemetry.SetMotility(sa.DeviceID, sa.MotilityIndex)

	e.logger.Info("recording analyzed",
		"recording_id", rec.ID,
		"device_id", sa.DeviceID,
		"duration_s", sa.DurationSeconds,
		"events", sa.EventCount,
		"motility_index", sa.MotilityIndex,
		"quality", sa.SignalQuality,
		"gate", sa.GateReason,
	)

	if e.store != nil {
		if err := e.store.SaveSession(ctx, sa); err != nil {
			if key != "" {
				deDupe.Forget(key)
			}
			return res, fmt.Errorf("save session %s: %w", sa.SessionID, err)
		}
		if report != nil {
			if err := e.store.SaveReport(ctx, *report); err != nil {
				e.logger.Warn("save debug report", "recording_id", rec.ID, "error", err)
			}
		}
	}
	return res, nil
}

// Reset forgets device windows, fingerprints and throttle state.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.devices = make(map[string]*DeviceState)
	e.throttle = NewThrottle()
	e.deDupe = NewDedupeCache()
	e.mu.Unlock()
	e.analyzer.StartSession()
	e.analyzer.ClearFilters()
}

func (e *Engine) updateTrends(cfg *config.Config, sa model.SessionAnalytics) []model.DeviceTrend {
	dev := e.getDevice(sa.DeviceID, cfg)
	e.mu.Lock()
	defer e.mu.Unlock()
	entry := SessionEntry{
		CreatedAt:       sa.CreatedAt,
		MotilityIndex:   sa.MotilityIndex,
		EventsPerMinute: sa.EventsPerMinute,
		Gated:           sa.GateReason != "",
	}
	out := make([]model.DeviceTrend, 0, len(dev.windows))
	for _, w := range dev.sortedWindows() {
		w.Evict(sa.CreatedAt.Add(-w.duration))
		w.Add(entry)
		out = append(out, w.Trend(dev.id))
	}
	return out
}

func (e *Engine) getDevice(deviceID string, cfg *config.Config) *DeviceState {
	key := normalize.DeviceKey(deviceID)
	if key == "" {
		key = "unknown"
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.devices[key]
	if !ok {
		d = &DeviceState{id: key, windows: make(map[int]*TrendWindow)}
		e.devices[key] = d
	}
	for _, win := range cfg.Devices.TrendWindows {
		sec := int(win.Seconds())
		if _, exists := d.windows[sec]; !exists {
			d.windows[sec] = NewTrendWindow(win)
		}
	}
	return d
}

func (d *DeviceState) sortedWindows() []*TrendWindow {
	keys := make([]int, 0, len(d.windows))
	for k := range d.windows {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]*TrendWindow, 0, len(keys))
	for _, k := range keys {
		out = append(out, d.windows[k])
	}
	return out
}

func (e *Engine) accessSet() *DeviceAccess {
	if v := e.access.Load(); v != nil {
		if da, ok := v.(*DeviceAccess); ok {
			return da
		}
	}
	return nil
}

// fingerprint identifies a submission by content, so the same capture sent
// twice is analyzed once. Debug options are part of the key.
func fingerprint(rec model.Recording) string {
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{
		normalize.DeviceKey(rec.DeviceID),
		fmt.Sprintf("%t|%t|%t|%t", rec.Debug, rec.IsHummingPhase, rec.IncludeHeart, rec.ApplyBirdFilter == nil || *rec.ApplyBirdFilter),
		strings.Join(rec.Bypass, ","),
	}, "|")))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(rec.SampleRate))
	h.Write(buf[:])
	for _, s := range rec.Samples {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(s))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
