package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"neurogut/internal/config"
	"neurogut/internal/engine"
	"neurogut/internal/ingest"
	"neurogut/internal/metrics"
	"neurogut/internal/model"
	"neurogut/internal/normalize"
	"neurogut/internal/storage"
	"neurogut/internal/telemetry"
	"neurogut/internal/traces"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
	InvalidateCalibration()
	ProcessRecording(ctx context.Context, rec model.Recording) (engine.Result, error)
	Processed() int64
}

type Server struct {
	cfg       *config.Manager
	metrics   *metrics.Store
	traces    *traces.Store
	store     storage.Store
	telemetry *telemetry.Metrics
	engine    EngineControl
	logger    *slog.Logger
	version   string
	started   time.Time
}

type Deps struct {
	Metrics   *metrics.Store
	Traces    *traces.Store
	Store     storage.Store
	Telemetry *telemetry.Metrics
	Engine    EngineControl
}

type statusResponse struct {
	Status     string               `json:"status"`
	Time       string               `json:"time"`
	Version    string               `json:"version"`
	ConfigPath string               `json:"config_path"`
	Uptime     string               `json:"uptime"`
	Processed  int64                `json:"processed"`
	Devices    int                  `json:"devices"`
	Access     config.DevicesConfig `json:"devices_config"`
	Ingest     ingestStatus         `json:"ingest"`
	Storage    storageStatus        `json:"storage"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
}

type storageStatus struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"`
}

func NewServer(cfg *config.Manager, deps Deps, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:       cfg,
		metrics:   deps.Metrics,
		traces:    deps.Traces,
		store:     deps.Store,
		telemetry: deps.Telemetry,
		engine:    deps.Engine,
		logger:    logger,
		version:   version,
		started:   time.Now().UTC(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessions)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/devices/", s.handleDevices)
	mux.HandleFunc("/traces", s.handleTraces)
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/config/devices", s.handleDevicesConfig)
	mux.HandleFunc("/admin/invalidate", s.handleInvalidate)
	mux.HandleFunc("/admin/clear", s.handleClear)
	mux.HandleFunc("/admin/reset", s.handleReset)
	if s.cfg.Get().Telemetry.Prometheus {
		mux.Handle("/metrics", s.telemetry.Handler())
	}
	return mux
}

func Start(ctx context.Context, cfg *config.Manager, deps Deps, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           NewServer(cfg, deps, logger, version).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Access:     cfg.Devices,
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		Storage: storageStatus{Enabled: s.store != nil},
	}
	if s.store != nil {
		resp.Storage.Driver = cfg.Storage.Driver
	}
	if s.engine != nil {
		resp.Processed = s.engine.Processed()
	}
	if s.metrics != nil {
		resp.Devices = len(s.metrics.Devices())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSessions lists persisted sessions, newest first. Without storage it
// falls back to the latest session of each device held in memory.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	device := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions"), "/")
	limit := queryInt(r, "limit", 100)
	var list []model.SessionAnalytics
	if s.store != nil {
		var err error
		list, err = s.store.ListSessions(r.Context(), device, limit)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("list sessions", "device_id", device, "err", err)
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list sessions failed"})
			return
		}
	} else if s.metrics != nil && device != "" {
		if v, ok := s.metrics.Get(device); ok {
			list = append(list, v.Latest)
		}
	} else if s.metrics != nil {
		for _, v := range s.metrics.GetAll() {
			list = append(list, v.Latest)
		}
	}
	if list == nil {
		list = []model.SessionAnalytics{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": list,
		"count":    len(list),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.metrics == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	device := strings.Trim(strings.TrimPrefix(r.URL.Path, "/devices"), "/")
	if device != "" {
		view, ok := s.metrics.Get(device)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}
	all := s.metrics.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": all,
		"count":   len(all),
	})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.traces == nil {
		writeJSON(w, http.StatusOK, map[string]any{"traces": []model.DebugReport{}, "count": 0})
		return
	}
	q := r.URL.Query()
	if id := q.Get("recording"); id != "" {
		report, ok := s.traces.Get(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}
	var list []model.DebugReport
	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.traces.Since(ts)
	} else {
		list = s.traces.List(queryInt(r, "limit", 0))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"traces":     list,
		"count":      len(list),
		"rejections": s.traces.RejectionCounts(),
	})
}

// handleAnalyze runs one recording synchronously and returns its analytics.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Get().Ingest.MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return
	}
	rec, err := ingest.DecodeRecording(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	rec.Source = "api"
	res, err := s.engine.ProcessRecording(r.Context(), rec)
	if err != nil {
		writeJSON(w, analyzeStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func analyzeStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, engine.ErrDeviceDenied):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, normalize.ErrInvalid):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) handleDevicesConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"devices": s.cfg.Get().Devices})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var dc config.DevicesConfig
		if err := json.Unmarshal(body, &dc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		dc.Allowlist = sanitizeList(dc.Allowlist)
		dc.Blocklist = sanitizeList(dc.Blocklist)
		current := s.cfg.Get()
		next := *current
		if len(dc.TrendWindows) == 0 {
			dc.TrendWindows = current.Devices.TrendWindows
		}
		next.Devices = dc
		if err := config.Validate(&next); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := s.cfg.Update(&next); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if s.engine != nil {
			s.engine.UpdateConfig(&next)
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleInvalidate drops cached calibrations so the next recording
// recalibrates against its own first seconds.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine != nil {
		s.engine.InvalidateCalibration()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.clearMetrics()
		s.clearTraces()
	case "traces":
		s.clearTraces()
	case "metrics", "devices":
		s.clearMetrics()
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine != nil {
		s.engine.Reset()
	}
	s.clearMetrics()
	s.clearTraces()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) clearMetrics() {
	if s.metrics != nil {
		s.metrics.Clear()
	}
}

func (s *Server) clearTraces() {
	if s.traces != nil {
		s.traces.Clear()
	}
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func sanitizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
