package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"neurogut/internal/config"
	"neurogut/internal/model"
)

// Store persists session analytics and debug reports.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveSession(ctx context.Context, sa model.SessionAnalytics) error
	// ListSessions returns sessions newest first; an empty deviceID lists
	// every device. limit <= 0 means no limit.
	ListSessions(ctx context.Context, deviceID string, limit int) ([]model.SessionAnalytics, error)
	SaveReport(ctx context.Context, report model.DebugReport) error
}

var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// NewStore returns nil, nil when storage is disabled.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "pgx":
		return NewPostgres(cfg.DSN)
	case "badger":
		return NewBadger(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// sqlStore holds the queries shared by the database/sql drivers. Queries
// are written with ? placeholders and rewritten by bind.
type sqlStore struct {
	db     *sql.DB
	schema []string
	bind   func(string) string
}

func (s *sqlStore) Init(ctx context.Context) error {
	for _, stmt := range s.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqlStore) SaveSession(ctx context.Context, sa model.SessionAnalytics) error {
	body, err := json.Marshal(sa)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO sessions (session_id, device_id, created_ms, duration_s, events_per_minute, event_count, motility_index, signal_quality, gate_reason, analytics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			device_id = excluded.device_id,
			created_ms = excluded.created_ms,
			duration_s = excluded.duration_s,
			events_per_minute = excluded.events_per_minute,
			event_count = excluded.event_count,
			motility_index = excluded.motility_index,
			signal_quality = excluded.signal_quality,
			gate_reason = excluded.gate_reason,
			analytics_json = excluded.analytics_json`),
		sa.SessionID,
		sa.DeviceID,
		sa.CreatedAt.UTC().UnixMilli(),
		sa.DurationSeconds,
		sa.EventsPerMinute,
		sa.EventCount,
		sa.MotilityIndex,
		string(sa.SignalQuality),
		sa.GateReason,
		string(body),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *sqlStore) ListSessions(ctx context.Context, deviceID string, limit int) ([]model.SessionAnalytics, error) {
	query := `SELECT analytics_json FROM sessions`
	var args []any
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY created_ms DESC, session_id`
	if limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(limit)
	}
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	out := make([]model.SessionAnalytics, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var sa model.SessionAnalytics
		if err := json.Unmarshal([]byte(body), &sa); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

func (s *sqlStore) SaveReport(ctx context.Context, report model.DebugReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO debug_reports (recording_id, device_id, created_ms, report_json) VALUES (?, ?, ?, ?)`),
		report.RecordingID,
		report.DeviceID,
		report.CreatedAt.UTC().UnixMilli(),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func questionMarks(q string) string {
	return q
}

// dollarPlaceholders rewrites ? placeholders as $1, $2, ...
func dollarPlaceholders(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
