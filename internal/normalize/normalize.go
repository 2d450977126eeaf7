package normalize

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"neurogut/internal/config"
	"neurogut/internal/model"
)

const maxSampleRate = 384000

// ErrInvalid is wrapped by every error that rejects a recording's content.
var ErrInvalid = errors.New("invalid recording")

var (
	ErrNoSamples   = fmt.Errorf("%w: no samples", ErrInvalid)
	ErrSampleRate  = fmt.Errorf("%w: sample rate out of range", ErrInvalid)
	ErrTooLong     = fmt.Errorf("%w: exceeds maximum duration", ErrInvalid)
	ErrOddPCMBytes = fmt.Errorf("%w: pcm16 payload has an odd byte count", ErrInvalid)
)

// Recording fills defaults, clamps samples into [-1, 1] and checks that the
// recording can be analyzed. Accelerometer samples are sorted by time.
func Recording(rec *model.Recording, cfg config.ParserConfig) error {
	rec.DeviceID = strings.TrimSpace(rec.DeviceID)
	if rec.DeviceID == "" {
		rec.DeviceID = cfg.DefaultDeviceID
	}
	if rec.SampleRate == 0 {
		rec.SampleRate = cfg.DefaultSampleRate
	}
	if len(rec.Samples) == 0 {
		return ErrNoSamples
	}
	if rec.SampleRate <= 0 || rec.SampleRate > maxSampleRate || math.IsNaN(rec.SampleRate) {
		return fmt.Errorf("%w: %v", ErrSampleRate, rec.SampleRate)
	}
	if cfg.MaxSeconds > 0 {
		if d := rec.DurationSeconds(); d > cfg.MaxSeconds {
			return fmt.Errorf("%w: %.1fs > %.1fs", ErrTooLong, d, cfg.MaxSeconds)
		}
	}
	Clamp(rec.Samples)
	if !sort.SliceIsSorted(rec.Accelerometer, func(i, j int) bool {
		return rec.Accelerometer[i].TimestampMs < rec.Accelerometer[j].TimestampMs
	}) {
		sort.SliceStable(rec.Accelerometer, func(i, j int) bool {
			return rec.Accelerometer[i].TimestampMs < rec.Accelerometer[j].TimestampMs
		})
	}
	return nil
}

// Clamp limits samples to [-1, 1] in place, replacing NaN with 0. It returns
// how many samples were changed.
func Clamp(samples []float64) int {
	changed := 0
	for i, s := range samples {
		switch {
		case math.IsNaN(s):
			samples[i] = 0
		case s > 1:
			samples[i] = 1
		case s < -1:
			samples[i] = -1
		default:
			continue
		}
		changed++
	}
	return changed
}

// PCM16 converts signed 16-bit samples to [-1, 1).
func PCM16(pcm []int16) []float64 {
	out := make([]float64, len(pcm))
	for i, v := range pcm {
		out[i] = float64(v) / 32768
	}
	return out
}

// PCM16LE decodes little-endian signed 16-bit mono PCM.
func PCM16LE(data []byte) ([]float64, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddPCMBytes
	}
	out := make([]float64, len(data)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768
	}
	return out, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// ParseTimestamp accepts unix seconds, unix milliseconds (13+ digits) or the
// common ISO layouts. Layouts without a zone are read in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		return parseUnix(value)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if len(value) >= 13 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}

// DeviceKey lowercases and drops separators so "Phone-07" and "phone07"
// name the same device. Access lists, throttling, trends and the per-device
// view are all keyed by it.
func DeviceKey(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
		}
	}
	return b.String()
}
