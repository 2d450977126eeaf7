package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Analysis  AnalysisConfig  `json:"analysis" yaml:"analysis"`
	Devices   DevicesConfig   `json:"devices" yaml:"devices"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Traces    TracesConfig    `json:"traces" yaml:"traces"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

type LoggingConfig struct {
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	MaxBodyBytes  int64           `json:"max_body_bytes" yaml:"max_body_bytes"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type ParserConfig struct {
	DefaultDeviceID   string  `json:"default_device_id" yaml:"default_device_id"`
	DefaultSampleRate float64 `json:"default_sample_rate" yaml:"default_sample_rate"`
	MaxSeconds        float64 `json:"max_seconds" yaml:"max_seconds"`
}

// AnalysisConfig holds every threshold the analysis pipeline uses.
type AnalysisConfig struct {
	FilterOrder    int                  `json:"filter_order" yaml:"filter_order"`
	WindowMs       float64              `json:"window_ms" yaml:"window_ms"`
	DedupeWindow   time.Duration        `json:"dedupe_window" yaml:"dedupe_window"`
	Calibration    CalibrationConfig    `json:"calibration" yaml:"calibration"`
	Contact        ContactConfig        `json:"contact" yaml:"contact"`
	Segmentation   SegmentationConfig   `json:"segmentation" yaml:"segmentation"`
	Veto           VetoConfig           `json:"veto" yaml:"veto"`
	Psychoacoustic PsychoacousticConfig `json:"psychoacoustic" yaml:"psychoacoustic"`
	Analytics      AnalyticsConfig      `json:"analytics" yaml:"analytics"`
	Heart          HeartConfig          `json:"heart" yaml:"heart"`
}

type CalibrationConfig struct {
	CalibrationSeconds  float64       `json:"calibration_seconds" yaml:"calibration_seconds"`
	MinWindows          int           `json:"min_windows" yaml:"min_windows"`
	ThresholdMultiplier float64       `json:"threshold_multiplier" yaml:"threshold_multiplier"`
	MaxThresholdFactor  float64       `json:"max_threshold_factor" yaml:"max_threshold_factor"`
	MinEventThreshold   float64       `json:"min_event_threshold" yaml:"min_event_threshold"`
	WhiteNoiseSFM       float64       `json:"white_noise_sfm" yaml:"white_noise_sfm"`
	AirNoiseFactor      float64       `json:"air_noise_factor" yaml:"air_noise_factor"`
	FrameSize           int           `json:"frame_size" yaml:"frame_size"`
	CacheTTL            time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	PoorBelowDb         float64       `json:"poor_below_db" yaml:"poor_below_db"`
	FairBelowDb         float64       `json:"fair_below_db" yaml:"fair_below_db"`
	GoodBelowDb         float64       `json:"good_below_db" yaml:"good_below_db"`
}

type ContactConfig struct {
	SettleMs          int64   `json:"settle_ms" yaml:"settle_ms"`
	MinSettledSamples int     `json:"min_settled_samples" yaml:"min_settled_samples"`
	MinVariance       float64 `json:"min_variance" yaml:"min_variance"`
	MaxVariance       float64 `json:"max_variance" yaml:"max_variance"`
	ConfidentAt       float64 `json:"confident_at" yaml:"confident_at"`
	WindowSeconds     float64 `json:"window_seconds" yaml:"window_seconds"`
	MaxSamples        int     `json:"max_samples" yaml:"max_samples"`

	MinRMS            float64 `json:"min_rms" yaml:"min_rms"`
	LowFreqHz         float64 `json:"low_freq_hz" yaml:"low_freq_hz"`
	MinLowFreqRatio   float64 `json:"min_low_freq_ratio" yaml:"min_low_freq_ratio"`
	HighFreqHz        float64 `json:"high_freq_hz" yaml:"high_freq_hz"`
	MaxHighFreqRatio  float64 `json:"max_high_freq_ratio" yaml:"max_high_freq_ratio"`
	MaxRolloffHz      float64 `json:"max_rolloff_hz" yaml:"max_rolloff_hz"`
	MinCV             float64 `json:"min_cv" yaml:"min_cv"`
	BurstMultiplier   float64 `json:"burst_multiplier" yaml:"burst_multiplier"`
	MinBursts         int     `json:"min_bursts" yaml:"min_bursts"`
	MinMaxMinRatio    float64 `json:"min_max_min_ratio" yaml:"min_max_min_ratio"`
	SilentLevel       float64 `json:"silent_level" yaml:"silent_level"`
	MinSilentFraction float64 `json:"min_silent_fraction" yaml:"min_silent_fraction"`
	AmbientCV         float64 `json:"ambient_cv" yaml:"ambient_cv"`
	MinSpectralPasses int     `json:"min_spectral_passes" yaml:"min_spectral_passes"`
	MinTemporalPasses int     `json:"min_temporal_passes" yaml:"min_temporal_passes"`
	SpectrumFrameSize int     `json:"spectrum_frame_size" yaml:"spectrum_frame_size"`
	SpectrumMaxFrames int     `json:"spectrum_max_frames" yaml:"spectrum_max_frames"`
}

type SegmentationConfig struct {
	MinGapWindows   int     `json:"min_gap_windows" yaml:"min_gap_windows"`
	MinEventWindows int     `json:"min_event_windows" yaml:"min_event_windows"`
	EnvelopeMs      float64 `json:"envelope_ms" yaml:"envelope_ms"`
	EnvelopeFloor   float64 `json:"envelope_floor" yaml:"envelope_floor"`
}

type VetoConfig struct {
	Breath    BreathConfig    `json:"breath" yaml:"breath"`
	Noise     NoiseConfig     `json:"noise" yaml:"noise"`
	Burst     BurstConfig     `json:"burst" yaml:"burst"`
	Transient TransientConfig `json:"transient" yaml:"transient"`
	Harmonic  HarmonicConfig  `json:"harmonic" yaml:"harmonic"`
}

type BreathConfig struct {
	MinMs           float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs           float64 `json:"max_ms" yaml:"max_ms"`
	MinOnsetRatio   float64 `json:"min_onset_ratio" yaml:"min_onset_ratio"`
	LowFreqHz       float64 `json:"low_freq_hz" yaml:"low_freq_hz"`
	MinLowFreqRatio float64 `json:"min_low_freq_ratio" yaml:"min_low_freq_ratio"`
	EnvelopeMs      float64 `json:"envelope_ms" yaml:"envelope_ms"`
}

type NoiseConfig struct {
	AutoRejectSFM float64 `json:"auto_reject_sfm" yaml:"auto_reject_sfm"`
	AutoRejectZCR float64 `json:"auto_reject_zcr" yaml:"auto_reject_zcr"`
	SoftSFM       float64 `json:"soft_sfm" yaml:"soft_sfm"`
	MinBowelRatio float64 `json:"min_bowel_ratio" yaml:"min_bowel_ratio"`
	ContrastSFM   float64 `json:"contrast_sfm" yaml:"contrast_sfm"`
	MinContrast   float64 `json:"min_contrast" yaml:"min_contrast"`
	BowelLowHz    float64 `json:"bowel_low_hz" yaml:"bowel_low_hz"`
	BowelHighHz   float64 `json:"bowel_high_hz" yaml:"bowel_high_hz"`
}

type BurstConfig struct {
	MinMs      float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs      float64 `json:"max_ms" yaml:"max_ms"`
	FrameMs    float64 `json:"frame_ms" yaml:"frame_ms"`
	ConstantCV float64 `json:"constant_cv" yaml:"constant_cv"`
	MinFrames  int     `json:"min_frames" yaml:"min_frames"`
}

type TransientConfig struct {
	MaxAttackMs   float64 `json:"max_attack_ms" yaml:"max_attack_ms"`
	MinCrest      float64 `json:"min_crest" yaml:"min_crest"`
	OnsetMs       float64 `json:"onset_ms" yaml:"onset_ms"`
	MaxOnsetShare float64 `json:"max_onset_share" yaml:"max_onset_share"`
}

type HarmonicConfig struct {
	MinMs            float64 `json:"min_ms" yaml:"min_ms"`
	MinF0Hz          float64 `json:"min_f0_hz" yaml:"min_f0_hz"`
	MaxF0Hz          float64 `json:"max_f0_hz" yaml:"max_f0_hz"`
	MinHarmonics     int     `json:"min_harmonics" yaml:"min_harmonics"`
	HummingHarmonics int     `json:"humming_harmonics" yaml:"humming_harmonics"`
	MinHNRDb         float64 `json:"min_hnr_db" yaml:"min_hnr_db"`
	PeakFactor       float64 `json:"peak_factor" yaml:"peak_factor"`
	MinRelativePeak  float64 `json:"min_relative_peak" yaml:"min_relative_peak"`
	Tolerance        float64 `json:"tolerance" yaml:"tolerance"`
	MaxHarmonic      int     `json:"max_harmonic" yaml:"max_harmonic"`
	MaxSamples       int     `json:"max_samples" yaml:"max_samples"`
}

type PsychoacousticConfig struct {
	Enabled              bool      `json:"enabled" yaml:"enabled"`
	EntropyWindowMs      float64   `json:"entropy_window_ms" yaml:"entropy_window_ms"`
	MaxFFTSize           int       `json:"max_fft_size" yaml:"max_fft_size"`
	MinEntropy           float64   `json:"min_entropy" yaml:"min_entropy"`
	EntropyTolerance     float64   `json:"entropy_tolerance" yaml:"entropy_tolerance"`
	MinStationaryWindows int       `json:"min_stationary_windows" yaml:"min_stationary_windows"`
	StationaryFraction   float64   `json:"stationary_fraction" yaml:"stationary_fraction"`
	SegmentMs            float64   `json:"segment_ms" yaml:"segment_ms"`
	MaxSegments          int       `json:"max_segments" yaml:"max_segments"`
	MechanicalHz         []float64 `json:"mechanical_hz" yaml:"mechanical_hz"`
	PeriodTolerance      float64   `json:"period_tolerance" yaml:"period_tolerance"`
	MinPeriodicity       float64   `json:"min_periodicity" yaml:"min_periodicity"`
	PeriodicFraction     float64   `json:"periodic_fraction" yaml:"periodic_fraction"`
}

type AnalyticsConfig struct {
	MaxEventsPerMinute    float64 `json:"max_events_per_minute" yaml:"max_events_per_minute"`
	RateWeight            float64 `json:"rate_weight" yaml:"rate_weight"`
	ActiveWeight          float64 `json:"active_weight" yaml:"active_weight"`
	TimelineBucketSeconds float64 `json:"timeline_bucket_seconds" yaml:"timeline_bucket_seconds"`
	PeakToleranceHz       float64 `json:"peak_tolerance_hz" yaml:"peak_tolerance_hz"`
	PeakBonus             float64 `json:"peak_bonus" yaml:"peak_bonus"`
	MaxPeakBonus          float64 `json:"max_peak_bonus" yaml:"max_peak_bonus"`
}

type HeartConfig struct {
	EnvelopeMs       float64 `json:"envelope_ms" yaml:"envelope_ms"`
	EnvelopeRate     float64 `json:"envelope_rate" yaml:"envelope_rate"`
	MinIntervalMs    float64 `json:"min_interval_ms" yaml:"min_interval_ms"`
	MaxIntervalMs    float64 `json:"max_interval_ms" yaml:"max_interval_ms"`
	PeakPercentile   float64 `json:"peak_percentile" yaml:"peak_percentile"`
	Prominence       float64 `json:"prominence" yaml:"prominence"`
	LocalWindowMs    float64 `json:"local_window_ms" yaml:"local_window_ms"`
	MinPeakSpacingMs float64 `json:"min_peak_spacing_ms" yaml:"min_peak_spacing_ms"`
	AlignConfidence  float64 `json:"align_confidence" yaml:"align_confidence"`
	AlignTolerance   float64 `json:"align_tolerance" yaml:"align_tolerance"`
	MedianTolerance  float64 `json:"median_tolerance" yaml:"median_tolerance"`
	MinBeatsBPM      int     `json:"min_beats_bpm" yaml:"min_beats_bpm"`
	MinBeatsHRV      int     `json:"min_beats_hrv" yaml:"min_beats_hrv"`
	VagalLowMs       float64 `json:"vagal_low_ms" yaml:"vagal_low_ms"`
	VagalHighMs      float64 `json:"vagal_high_ms" yaml:"vagal_high_ms"`
}

type DevicesConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	AllowlistOnly bool          `json:"allowlist_only" yaml:"allowlist_only"`
	Allowlist     []string      `json:"allowlist" yaml:"allowlist"`
	Blocklist     []string      `json:"blocklist" yaml:"blocklist"`
	MinInterval   time.Duration `json:"min_interval" yaml:"min_interval"`
	// TrendWindows are the rolling spans over which per-device session
	// summaries are kept.
	TrendWindows []time.Duration `json:"trend_windows" yaml:"trend_windows"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type MetricsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type TracesConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type TelemetryConfig struct {
	Prometheus   bool    `json:"prometheus" yaml:"prometheus"`
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool    `json:"otlp_insecure" yaml:"otlp_insecure"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Logging:  LoggingConfig{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 14, Compress: true},
		Ingest: IngestConfig{
			ChannelBuffer: 64,
			MaxBodyBytes:  64 << 20,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			Kafka:         KafkaConfig{Enabled: false},
			Parser:        ParserConfig{DefaultDeviceID: "unknown", DefaultSampleRate: 44100, MaxSeconds: 600},
		},
		Analysis: DefaultAnalysis(),
		Devices:  DevicesConfig{Enabled: false, TrendWindows: []time.Duration{24 * time.Hour, 7 * 24 * time.Hour}},
		API:      APIConfig{Enabled: true, Addr: ":8081"},
		Storage:  StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:neurogut.db?_pragma=busy_timeout(5000)"},
		Metrics:  MetricsConfig{StoreLimit: 5000},
		Traces:   TracesConfig{StoreLimit: 500},
		Telemetry: TelemetryConfig{
			Prometheus:  true,
			ServiceName: "neurogut",
			SampleRatio: 1,
		},
	}
}

// DefaultAnalysis returns the calibrated pipeline thresholds.
func DefaultAnalysis() AnalysisConfig {
	return AnalysisConfig{
		FilterOrder:  3,
		WindowMs:     100,
		DedupeWindow: 10 * time.Minute,
		Calibration: CalibrationConfig{
			CalibrationSeconds:  3,
			MinWindows:          5,
			ThresholdMultiplier: 2.0,
			MaxThresholdFactor:  5,
			MinEventThreshold:   1e-5,
			WhiteNoiseSFM:       0.6,
			AirNoiseFactor:      1.5,
			FrameSize:           4096,
			CacheTTL:            60 * time.Second,
			PoorBelowDb:         6,
			FairBelowDb:         12,
			GoodBelowDb:         20,
		},
		Contact: ContactConfig{
			SettleMs:          1000,
			MinSettledSamples: 20,
			MinVariance:       5e-6,
			MaxVariance:       5e-3,
			ConfidentAt:       0.7,
			WindowSeconds:     60,
			MaxSamples:        1200,
			MinRMS:            0.0005,
			LowFreqHz:         200,
			MinLowFreqRatio:   0.5,
			HighFreqHz:        400,
			MaxHighFreqRatio:  0.3,
			MaxRolloffHz:      800,
			MinCV:             0.3,
			BurstMultiplier:   2,
			MinBursts:         2,
			MinMaxMinRatio:    4,
			SilentLevel:       0.1,
			MinSilentFraction: 0.2,
			AmbientCV:         0.15,
			MinSpectralPasses: 2,
			MinTemporalPasses: 2,
			SpectrumFrameSize: 4096,
			SpectrumMaxFrames: 32,
		},
		Segmentation: SegmentationConfig{
			MinGapWindows:   2,
			MinEventWindows: 1,
			EnvelopeMs:      5,
			EnvelopeFloor:   0.1,
		},
		Veto: VetoConfig{
			Breath: BreathConfig{
				MinMs:           400,
				MaxMs:           3000,
				MinOnsetRatio:   0.25,
				LowFreqHz:       300,
				MinLowFreqRatio: 0.5,
				EnvelopeMs:      20,
			},
			Noise: NoiseConfig{
				AutoRejectSFM: 0.75,
				AutoRejectZCR: 0.25,
				SoftSFM:       0.55,
				MinBowelRatio: 0.4,
				ContrastSFM:   0.5,
				MinContrast:   0.3,
				BowelLowHz:    100,
				BowelHighHz:   1000,
			},
			Burst: BurstConfig{
				MinMs:      10,
				MaxMs:      1500,
				FrameMs:    10,
				ConstantCV: 0.15,
				MinFrames:  5,
			},
			Transient: TransientConfig{
				MaxAttackMs:   1,
				MinCrest:      8,
				OnsetMs:       5,
				MaxOnsetShare: 0.6,
			},
			Harmonic: HarmonicConfig{
				MinMs:            100,
				MinF0Hz:          80,
				MaxF0Hz:          400,
				MinHarmonics:     3,
				HummingHarmonics: 2,
				MinHNRDb:         5,
				PeakFactor:       5,
				MinRelativePeak:  0.1,
				Tolerance:        0.03,
				MaxHarmonic:      10,
				MaxSamples:       8192,
			},
		},
		Psychoacoustic: PsychoacousticConfig{
			Enabled:              true,
			EntropyWindowMs:      400,
			MaxFFTSize:           16384,
			MinEntropy:           0.8,
			EntropyTolerance:     0.03,
			MinStationaryWindows: 4,
			StationaryFraction:   0.8,
			SegmentMs:            250,
			MaxSegments:          20,
			MechanicalHz:         []float64{50, 60, 100, 120},
			PeriodTolerance:      0.05,
			MinPeriodicity:       0.7,
			PeriodicFraction:     0.8,
		},
		Analytics: AnalyticsConfig{
			MaxEventsPerMinute:    20,
			RateWeight:            0.7,
			ActiveWeight:          0.3,
			TimelineBucketSeconds: 10,
			PeakToleranceHz:       30,
			PeakBonus:             10,
			MaxPeakBonus:          20,
		},
		Heart: HeartConfig{
			EnvelopeMs:       50,
			EnvelopeRate:     100,
			MinIntervalMs:    400,
			MaxIntervalMs:    1500,
			PeakPercentile:   75,
			Prominence:       1.2,
			LocalWindowMs:    500,
			MinPeakSpacingMs: 300,
			AlignConfidence:  0.5,
			AlignTolerance:   0.15,
			MedianTolerance:  0.3,
			MinBeatsBPM:      5,
			MinBeatsHRV:      8,
			VagalLowMs:       20,
			VagalHighMs:      80,
		},
	}
}

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return nil, errors.New("config file is empty")
	}
	cfg := DefaultConfig()
	if looksLikeJSON(trimmed) {
		err = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		err = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Metrics.StoreLimit <= 0 {
		cfg.Metrics.StoreLimit = def.Metrics.StoreLimit
	}
	if cfg.Traces.StoreLimit <= 0 {
		cfg.Traces.StoreLimit = def.Traces.StoreLimit
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = def.Ingest.ChannelBuffer
	}
	if cfg.Ingest.MaxBodyBytes <= 0 {
		cfg.Ingest.MaxBodyBytes = def.Ingest.MaxBodyBytes
	}
	if cfg.Ingest.Parser.DefaultDeviceID == "" {
		cfg.Ingest.Parser.DefaultDeviceID = def.Ingest.Parser.DefaultDeviceID
	}
	if cfg.Ingest.Parser.DefaultSampleRate <= 0 {
		cfg.Ingest.Parser.DefaultSampleRate = def.Ingest.Parser.DefaultSampleRate
	}
	if cfg.Analysis.FilterOrder <= 0 {
		cfg.Analysis.FilterOrder = def.Analysis.FilterOrder
	}
	if cfg.Analysis.WindowMs <= 0 {
		cfg.Analysis.WindowMs = def.Analysis.WindowMs
	}
	if len(cfg.Analysis.Psychoacoustic.MechanicalHz) == 0 {
		cfg.Analysis.Psychoacoustic.MechanicalHz = def.Analysis.Psychoacoustic.MechanicalHz
	}
	if cfg.Analysis.Calibration.CacheTTL <= 0 {
		cfg.Analysis.Calibration.CacheTTL = def.Analysis.Calibration.CacheTTL
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
	if len(cfg.Devices.TrendWindows) == 0 {
		cfg.Devices.TrendWindows = def.Devices.TrendWindows
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	for _, w := range cfg.Devices.TrendWindows {
		if w <= 0 {
			return errors.New("devices.trend_windows must be positive")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "pgx", "badger":
		default:
			return fmt.Errorf("storage.driver %q not supported", cfg.Storage.Driver)
		}
	}
	return ValidateAnalysis(cfg.Analysis)
}

// ValidateAnalysis rejects threshold sets the pipeline cannot run with.
func ValidateAnalysis(a AnalysisConfig) error {
	if a.FilterOrder < 1 {
		return errors.New("analysis.filter_order must be >= 1")
	}
	if a.WindowMs <= 0 {
		return errors.New("analysis.window_ms must be > 0")
	}
	c := a.Calibration
	if c.ThresholdMultiplier < 0 {
		return errors.New("analysis.calibration.threshold_multiplier must be >= 0")
	}
	if c.MaxThresholdFactor < 1 {
		return errors.New("analysis.calibration.max_threshold_factor must be >= 1")
	}
	if !(c.PoorBelowDb <= c.FairBelowDb && c.FairBelowDb <= c.GoodBelowDb) {
		return errors.New("analysis.calibration quality bounds must be ascending")
	}
	ct := a.Contact
	if ct.MinVariance < 0 || ct.MaxVariance < ct.MinVariance {
		return fmt.Errorf("analysis.contact variance range [%g, %g] is invalid", ct.MinVariance, ct.MaxVariance)
	}
	if ct.MinSettledSamples < 1 {
		return errors.New("analysis.contact.min_settled_samples must be >= 1")
	}
	b := a.Veto.Burst
	if b.MinMs < 0 || b.MaxMs <= b.MinMs {
		return fmt.Errorf("analysis.veto.burst duration range [%g, %g] is invalid", b.MinMs, b.MaxMs)
	}
	br := a.Veto.Breath
	if br.MaxMs < br.MinMs {
		return fmt.Errorf("analysis.veto.breath duration range [%g, %g] is invalid", br.MinMs, br.MaxMs)
	}
	h := a.Veto.Harmonic
	if h.MinF0Hz <= 0 || h.MaxF0Hz <= h.MinF0Hz {
		return fmt.Errorf("analysis.veto.harmonic f0 range [%g, %g] is invalid", h.MinF0Hz, h.MaxF0Hz)
	}
	for _, hz := range a.Psychoacoustic.MechanicalHz {
		if hz <= 0 {
			return fmt.Errorf("analysis.psychoacoustic.mechanical_hz contains non-positive frequency: %g", hz)
		}
	}
	hr := a.Heart
	if hr.MinIntervalMs <= 0 || hr.MaxIntervalMs <= hr.MinIntervalMs {
		return fmt.Errorf("analysis.heart interval range [%g, %g] is invalid", hr.MinIntervalMs, hr.MaxIntervalMs)
	}
	if hr.EnvelopeRate <= 0 {
		return errors.New("analysis.heart.envelope_rate must be > 0")
	}
	if a.Analytics.MaxEventsPerMinute <= 0 {
		return errors.New("analysis.analytics.max_events_per_minute must be > 0")
	}
	return nil
}

func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
