package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadAnalysis(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"variance range", func(c *Config) { c.Analysis.Contact.MaxVariance = c.Analysis.Contact.MinVariance / 2 }},
		{"burst range", func(c *Config) { c.Analysis.Veto.Burst.MaxMs = 5 }},
		{"f0 range", func(c *Config) { c.Analysis.Veto.Harmonic.MaxF0Hz = 50 }},
		{"quality bounds", func(c *Config) { c.Analysis.Calibration.FairBelowDb = 30 }},
		{"mechanical freq", func(c *Config) { c.Analysis.Psychoacoustic.MechanicalHz = []float64{60, 0} }},
		{"heart interval", func(c *Config) { c.Analysis.Heart.MaxIntervalMs = 100 }},
		{"storage driver", func(c *Config) { c.Storage.Enabled = true; c.Storage.Driver = "mysql" }},
		{"kafka", func(c *Config) { c.Ingest.Kafka.Enabled = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "neurogut.yaml")
	body := `
log_level: debug
analysis:
  calibration:
    calibration_seconds: 2
  contact:
    min_variance: 0.00001
    max_variance: 0.004
storage:
  enabled: true
  driver: badger
  dsn: ` + filepath.Join(dir, "db") + `
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Analysis.Calibration.CalibrationSeconds != 2 {
		t.Fatalf("overrides not applied: %+v", cfg.Analysis.Calibration)
	}
	if cfg.Analysis.Contact.MinVariance != 0.00001 || cfg.Analysis.Contact.MaxVariance != 0.004 {
		t.Fatalf("contact overrides not applied: %+v", cfg.Analysis.Contact)
	}
	if cfg.Analysis.Veto.Burst.MaxMs != 1500 {
		t.Fatalf("expected default burst max, got %f", cfg.Analysis.Veto.Burst.MaxMs)
	}
	if cfg.Analysis.Calibration.CacheTTL != 60*time.Second {
		t.Fatalf("expected default cache ttl, got %s", cfg.Analysis.Calibration.CacheTTL)
	}
}

func TestLoadJSONAndEmpty(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	_ = os.WriteFile(empty, []byte("  \n"), 0o644)
	if _, err := Load(empty); err == nil {
		t.Fatalf("expected error for empty config")
	}
	js := filepath.Join(dir, "cfg.json")
	_ = os.WriteFile(js, []byte(`{"log_level":"warn","traces":{"store_limit":0}}`), 0o644)
	cfg, err := Load(js)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.Traces.StoreLimit != 500 {
		t.Fatalf("unexpected json config: %s %d", cfg.LogLevel, cfg.Traces.StoreLimit)
	}
}

func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Analysis.Veto.Harmonic.MinHarmonics = 4
	if err := m.Update(cfg); err != nil {
		t.Fatalf("update: %v", err)
	}
	reloaded, err := m.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Analysis.Veto.Harmonic.MinHarmonics != 4 {
		t.Fatalf("reload lost update: %d", reloaded.Analysis.Veto.Harmonic.MinHarmonics)
	}
	if m.Get() != reloaded {
		t.Fatalf("manager should serve reloaded config")
	}
}
