package model

import "time"

type SignalQuality string

const (
	QualityPoor      SignalQuality = "poor"
	QualityFair      SignalQuality = "fair"
	QualityGood      SignalQuality = "good"
	QualityExcellent SignalQuality = "excellent"
)

// Weight is the multiplier applied to the Motility Index.
func (q SignalQuality) Weight() float64 {
	switch q {
	case QualityPoor:
		return 0
	case QualityFair:
		return 0.5
	case QualityGood, QualityExcellent:
		return 1
	}
	return 0
}

type ActivityLevel string

const (
	LevelQuiet    ActivityLevel = "quiet"
	LevelLow      ActivityLevel = "low"
	LevelModerate ActivityLevel = "moderate"
	LevelHigh     ActivityLevel = "high"
)

type AccelerometerSample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	TimestampMs int64   `json:"timestamp_ms"`
}

type ContactResult struct {
	NoContact           bool    `json:"no_contact"`
	VarianceInBodyRange bool    `json:"variance_in_body_range"`
	TotalVariance       float64 `json:"total_variance"`
	Confidence          float64 `json:"confidence"`
	SettledSamples      int     `json:"settled_samples"`
}

type NoiseFloorCalibration struct {
	MeanRMS                float64 `json:"mean_rms"`
	StdDevRMS              float64 `json:"std_dev_rms"`
	EventThreshold         float64 `json:"event_threshold"`
	FrequencyWeightedFloor float64 `json:"frequency_weighted_floor"`
	BaseFloor              float64 `json:"base_floor"`
	BaselineSFM            float64 `json:"baseline_sfm"`
	IsAirNoiseBaseline     bool    `json:"is_air_noise_baseline"`
	WindowsUsed            int     `json:"windows_used"`
	FellBack               bool    `json:"fell_back"`
}

type TimelineBucket struct {
	StartSeconds  float64       `json:"start_seconds"`
	EndSeconds    float64       `json:"end_seconds"`
	EventCount    int           `json:"event_count"`
	ActiveSeconds float64       `json:"active_seconds"`
	Level         ActivityLevel `json:"level"`
}

type SessionAnalytics struct {
	SessionID          string           `json:"session_id"`
	DeviceID           string           `json:"device_id"`
	CreatedAt          time.Time        `json:"created_at"`
	DurationSeconds    float64          `json:"duration_seconds"`
	SampleRate         float64          `json:"sample_rate"`
	EventsPerMinute    float64          `json:"events_per_minute"`
	EventCount         int              `json:"event_count"`
	TotalActiveSeconds float64          `json:"total_active_seconds"`
	TotalQuietSeconds  float64          `json:"total_quiet_seconds"`
	ActiveFraction     float64          `json:"active_fraction"`
	MotilityIndex      int              `json:"motility_index"`
	ActivityTimeline   []TimelineBucket `json:"activity_timeline"`
	SignalQuality      SignalQuality    `json:"signal_quality"`
	SNRDb              float64          `json:"snr_db"`
	ContactDetected    bool             `json:"contact_detected"`
	GateReason         string           `json:"gate_reason,omitempty"`
	PFHSScore          float64          `json:"pfhs_score"`
	FrequencyHistogram []float64        `json:"frequency_histogram,omitempty"`
	HeartBPM           *float64         `json:"heart_bpm,omitempty"`
	HeartRMSSD         *float64         `json:"heart_rmssd,omitempty"`
	VagalToneScore     *float64         `json:"vagal_tone_score,omitempty"`
}

type HeartResult struct {
	BPM            float64 `json:"bpm"`
	RMSSD          float64 `json:"rmssd"`
	VagalToneScore float64 `json:"vagal_tone_score"`
	Confidence     float64 `json:"confidence"`
	BeatCount      int     `json:"beat_count"`
	BPMValid       bool    `json:"bpm_valid"`
	HRVValid       bool    `json:"hrv_valid"`
}

// StageTrace is one measured gate or veto decision.
type StageTrace struct {
	Stage        string             `json:"stage"`
	Rejected     bool               `json:"rejected"`
	Bypassed     bool               `json:"bypassed,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

type EventTrace struct {
	Index      int          `json:"index"`
	StartMs    float64      `json:"start_ms"`
	EndMs      float64      `json:"end_ms"`
	DurationMs float64      `json:"duration_ms"`
	PeakEnergy float64      `json:"peak_energy"`
	Accepted   bool         `json:"accepted"`
	RejectedBy string       `json:"rejected_by,omitempty"`
	Stages     []StageTrace `json:"stages"`
}

type DebugReport struct {
	RecordingID    string                `json:"recording_id,omitempty"`
	DeviceID       string                `json:"device_id,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	Contact        StageTrace            `json:"contact"`
	Calibration    NoiseFloorCalibration `json:"calibration"`
	Psychoacoustic StageTrace            `json:"psychoacoustic"`
	Events         []EventTrace          `json:"events"`
	Bypassed       []string              `json:"bypassed,omitempty"`
}

// Recording is one submitted capture awaiting analysis.
type Recording struct {
	ID              string                `json:"id"`
	DeviceID        string                `json:"device_id"`
	ReceivedAt      time.Time             `json:"received_at"`
	SampleRate      float64               `json:"sample_rate"`
	Samples         []float64             `json:"samples"`
	Accelerometer   []AccelerometerSample `json:"accelerometer,omitempty"`
	ApplyBirdFilter *bool                 `json:"apply_bird_filter,omitempty"`
	IsHummingPhase  bool                  `json:"is_humming_phase,omitempty"`
	IncludeHeart    bool                  `json:"include_heart,omitempty"`
	Debug           bool                  `json:"debug,omitempty"`
	Bypass          []string              `json:"bypass,omitempty"`
	Source          string                `json:"source,omitempty"`
}

func (r Recording) DurationSeconds() float64 {
	if r.SampleRate <= 0 {
		return 0
	}
	return float64(len(r.Samples)) / r.SampleRate
}

// DeviceTrend summarises the sessions a device produced inside one rolling
// window.
type DeviceTrend struct {
	DeviceID            string    `json:"device_id"`
	WindowSec           int       `json:"window_sec"`
	Sessions            int       `json:"sessions"`
	GatedSessions       int       `json:"gated_sessions"`
	MeanMotilityIndex   float64   `json:"mean_motility_index"`
	MeanEventsPerMinute float64   `json:"mean_events_per_minute"`
	MotilityVariance    float64   `json:"motility_variance"`
	LastSessionAt       time.Time `json:"last_session_at"`
}
