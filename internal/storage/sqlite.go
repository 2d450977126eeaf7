package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:neurogut.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &sqlStore{
		db:   db,
		bind: questionMarks,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				session_id TEXT PRIMARY KEY,
				device_id TEXT NOT NULL,
				created_ms INTEGER NOT NULL,
				duration_s REAL NOT NULL,
				events_per_minute REAL NOT NULL,
				event_count INTEGER NOT NULL,
				motility_index INTEGER NOT NULL,
				signal_quality TEXT NOT NULL,
				gate_reason TEXT NOT NULL,
				analytics_json TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_device_created ON sessions(device_id, created_ms)`,
			`CREATE TABLE IF NOT EXISTS debug_reports (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				recording_id TEXT NOT NULL,
				device_id TEXT NOT NULL,
				created_ms INTEGER NOT NULL,
				report_json TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_reports_recording ON debug_reports(recording_id)`,
		},
	}, nil
}
