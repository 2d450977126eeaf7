package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/neurogut?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &sqlStore{
		db:   db,
		bind: dollarPlaceholders,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				session_id TEXT PRIMARY KEY,
				device_id TEXT NOT NULL,
				created_ms BIGINT NOT NULL,
				duration_s DOUBLE PRECISION NOT NULL,
				events_per_minute DOUBLE PRECISION NOT NULL,
				event_count INTEGER NOT NULL,
				motility_index INTEGER NOT NULL,
				signal_quality TEXT NOT NULL,
				gate_reason TEXT NOT NULL,
				analytics_json JSONB NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_device_created ON sessions(device_id, created_ms)`,
			`CREATE TABLE IF NOT EXISTS debug_reports (
				id BIGSERIAL PRIMARY KEY,
				recording_id TEXT NOT NULL,
				device_id TEXT NOT NULL,
				created_ms BIGINT NOT NULL,
				report_json JSONB NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_reports_recording ON debug_reports(recording_id)`,
		},
	}, nil
}
