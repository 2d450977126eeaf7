package ingest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"neurogut/internal/model"
	"neurogut/internal/normalize"
)

// recordingPayload is the wire form of a recording. Audio may arrive as
// float samples or as base64 little-endian PCM16; accelerometer data as a
// list or as CSV text.
type recordingPayload struct {
	model.Recording
	PCM16            string `json:"pcm16,omitempty"`
	AccelerometerCSV string `json:"accelerometer_csv,omitempty"`
}

// DecodeRecording parses one JSON recording.
func DecodeRecording(data []byte) (model.Recording, error) {
	var p recordingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Recording{}, fmt.Errorf("decode recording: %w", err)
	}
	return p.resolve()
}

// DecodeRecordings parses a single JSON recording or an array of them.
func DecodeRecordings(data []byte) ([]model.Recording, error) {
	trim := bytesTrim(data)
	if len(trim) == 0 {
		return nil, fmt.Errorf("decode recording: empty body")
	}
	if trim[0] != '[' {
		rec, err := DecodeRecording(trim)
		if err != nil {
			return nil, err
		}
		return []model.Recording{rec}, nil
	}
	var list []recordingPayload
	if err := json.Unmarshal(trim, &list); err != nil {
		return nil, fmt.Errorf("decode recordings: %w", err)
	}
	out := make([]model.Recording, 0, len(list))
	for i, p := range list {
		rec, err := p.resolve()
		if err != nil {
			return nil, fmt.Errorf("recording %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p recordingPayload) resolve() (model.Recording, error) {
	rec := p.Recording
	if len(rec.Samples) == 0 && p.PCM16 != "" {
		raw, err := base64.StdEncoding.DecodeString(p.PCM16)
		if err != nil {
			return model.Recording{}, fmt.Errorf("decode pcm16: %w", err)
		}
		if rec.Samples, err = normalize.PCM16LE(raw); err != nil {
			return model.Recording{}, err
		}
	}
	if len(rec.Accelerometer) == 0 && strings.TrimSpace(p.AccelerometerCSV) != "" {
		acc, err := ParseAccelerometerCSV(strings.NewReader(p.AccelerometerCSV))
		if err != nil {
			return model.Recording{}, err
		}
		rec.Accelerometer = acc
	}
	return rec, nil
}

func bytesTrim(b []byte) []byte {
	start := 0
	for start < len(b) && isSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
