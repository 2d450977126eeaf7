package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"neurogut/internal/model"
	"neurogut/internal/normalize"
)

// AccelerometerParser reads timestamp,x,y,z rows. A header row, when
// present, may reorder the columns.
type AccelerometerParser struct {
	columns map[string]int
}

func NewAccelerometerParser() *AccelerometerParser {
	return &AccelerometerParser{}
}

// ParseAccelerometerCSV parses a whole CSV document.
func ParseAccelerometerCSV(r io.Reader) ([]model.AccelerometerSample, error) {
	p := NewAccelerometerParser()
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	var out []model.AccelerometerSample
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("accelerometer csv: %w", err)
		}
		s, ok, err := p.Parse(record)
		if err != nil {
			return nil, fmt.Errorf("accelerometer csv line %d: %w", line, err)
		}
		if ok {
			out = append(out, s)
		}
	}
}

// Parse converts one record. It returns ok=false for a header row.
func (p *AccelerometerParser) Parse(record []string) (model.AccelerometerSample, bool, error) {
	if p.columns == nil && looksLikeHeader(record) {
		p.columns = headerColumns(record)
		return model.AccelerometerSample{}, false, nil
	}
	get := func(name string, pos int) string {
		if p.columns != nil {
			i, ok := p.columns[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		if pos < len(record) {
			return record[pos]
		}
		return ""
	}
	var s model.AccelerometerSample
	ts, err := parseTimestampMs(get("timestamp", 0))
	if err != nil {
		return s, false, err
	}
	s.TimestampMs = ts
	for _, axis := range []struct {
		name string
		pos  int
		dst  *float64
	}{{"x", 1, &s.X}, {"y", 2, &s.Y}, {"z", 3, &s.Z}} {
		v, err := strconv.ParseFloat(strings.TrimSpace(get(axis.name, axis.pos)), 64)
		if err != nil {
			return s, false, fmt.Errorf("axis %s: %w", axis.name, err)
		}
		*axis.dst = v
	}
	return s, true, nil
}

// parseTimestampMs reads plain numbers as milliseconds and anything else as
// a wall-clock timestamp.
func parseTimestampMs(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		return int64(v), nil
	}
	t, err := normalize.ParseTimestamp(value, time.UTC)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		if _, ok := columnAliases[strings.ToLower(strings.TrimSpace(v))]; ok {
			return true
		}
	}
	return false
}

var columnAliases = map[string]string{
	"timestamp":    "timestamp",
	"timestamp_ms": "timestamp",
	"ts":           "timestamp",
	"time":         "timestamp",
	"t":            "timestamp",
	"x":            "x",
	"ax":           "x",
	"accel_x":      "x",
	"y":            "y",
	"ay":           "y",
	"accel_y":      "y",
	"z":            "z",
	"az":           "z",
	"accel_z":      "z",
}

func headerColumns(record []string) map[string]int {
	out := make(map[string]int, len(record))
	for i, v := range record {
		if name, ok := columnAliases[strings.ToLower(strings.TrimSpace(v))]; ok {
			out[name] = i
		}
	}
	return out
}
