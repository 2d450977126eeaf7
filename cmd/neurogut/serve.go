package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"neurogut/internal/api"
	"neurogut/internal/config"
	"neurogut/internal/engine"
	"neurogut/internal/ingest"
	"neurogut/internal/logging"
	"neurogut/internal/metrics"
	"neurogut/internal/model"
	"neurogut/internal/pipeline"
	"neurogut/internal/storage"
	"neurogut/internal/telemetry"
	"neurogut/internal/traces"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest service and API",
		Long: `serve starts the recording worker, the enabled intake sources
(REST, Kafka, TCP NDJSON) and the HTTP API. The config file is created
with defaults when missing and reloaded when it changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	path, err := ensureConfigFile(configPath)
	if err != nil {
		return err
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := mgr.Get()

	logger, closer, err := logging.NewLoggerWithFile(level(cfg), cfg.Logging)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	tp, err := telemetry.InitTracer(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}
	tm := telemetry.NewMetrics()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	if store != nil {
		defer closeQuietly(store)
		if err := store.Init(ctx); err != nil {
			return err
		}
	}

	metricsStore := metrics.NewStore(cfg.Metrics.StoreLimit)
	tracesStore := traces.NewStore(cfg.Traces.StoreLimit)
	analyzer := pipeline.NewAnalyzer(cfg.Analysis, logger, tm)
	eng := engine.NewEngine(cfg, logger, analyzer, metricsStore, tracesStore, store, tm)

	recordings := make(chan model.Recording, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, recordings)
	ingest.StartREST(ctx, mgr, recordings, logger)
	ingest.StartKafka(ctx, mgr, recordings, logger)
	ingest.StartTCPStream(ctx, mgr, recordings, logger)
	api.Start(ctx, mgr, api.Deps{
		Metrics:   metricsStore,
		Traces:    tracesStore,
		Store:     store,
		Telemetry: tm,
		Engine:    eng,
	}, logger, version)

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go mgr.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", mgr.Path())
		eng.UpdateConfig(next)
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, stopWatch)

	logger.Info("neurogut started", "version", version, "config", path)
	<-ctx.Done()
	logger.Info("neurogut stopping")
	return nil
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
