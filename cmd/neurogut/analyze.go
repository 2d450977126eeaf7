package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"neurogut/internal/config"
	"neurogut/internal/contact"
	"neurogut/internal/ingest"
	"neurogut/internal/logging"
	"neurogut/internal/model"
	"neurogut/internal/normalize"
	"neurogut/internal/pipeline"
)

type analyzeFlags struct {
	device        string
	noBirdFilter  bool
	humming       bool
	heart         bool
	debug         bool
	bypass        []string
	accelerometer string
}

type analyzeOutput struct {
	File      string                 `json:"file"`
	Analytics model.SessionAnalytics `json:"analytics"`
	Report    *model.DebugReport     `json:"report,omitempty"`
}

func analyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Score a WAV recording and print the session analytics",
		Long: `analyze runs one WAV file through the same pipeline the service uses
and prints the session analytics as JSON. Multi-channel files are mixed
down to mono. Pass --debug to include the per-event rejection trace.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.device, "device", "", "device id recorded with the session")
	cmd.Flags().BoolVar(&f.noBirdFilter, "no-bird-filter", false, "use the wide 60-1000 Hz band")
	cmd.Flags().BoolVar(&f.humming, "humming", false, "recording was taken during the humming phase")
	cmd.Flags().BoolVar(&f.heart, "heart", false, "also extract heart rate and HRV")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "include the rejection trace")
	cmd.Flags().StringSliceVar(&f.bypass, "bypass", nil, "veto stages to measure without rejecting")
	cmd.Flags().StringVar(&f.accelerometer, "accelerometer", "", "accelerometer CSV captured alongside the audio")
	return cmd
}

func runAnalyze(ctx context.Context, w io.Writer, path string, f analyzeFlags) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	samples, rate, err := readWAV(path)
	if err != nil {
		return err
	}
	rec := model.Recording{
		ID:             uuid.NewString(),
		DeviceID:       f.device,
		SampleRate:     rate,
		Samples:        samples,
		IsHummingPhase: f.humming,
		IncludeHeart:   f.heart,
		Debug:          f.debug || len(f.bypass) > 0,
		Bypass:         f.bypass,
		Source:         "cli",
	}
	if f.device == "" {
		rec.DeviceID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if f.noBirdFilter {
		apply := false
		rec.ApplyBirdFilter = &apply
	}
	if f.accelerometer != "" {
		accel, err := readAccelerometer(f.accelerometer, cfg.Analysis.Contact)
		if err != nil {
			return err
		}
		rec.Accelerometer = accel
	}
	if err := normalize.Recording(&rec, cfg.Ingest.Parser); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	analyzer := pipeline.NewAnalyzer(cfg.Analysis, logging.NewLogger(level(cfg)), nil)
	sa, report := analyzer.AnalyzeRecording(ctx, rec)
	return writeJSON(w, analyzeOutput{File: path, Analytics: sa, Report: report})
}

// readAccelerometer replays a CSV capture through a contact detector, so
// the recording carries the same bounded window a live capture would.
func readAccelerometer(path string, cfg config.ContactConfig) ([]model.AccelerometerSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := ingest.ParseAccelerometerCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].TimestampMs < samples[j].TimestampMs })

	d := contact.NewDetector(cfg)
	d.Start()
	defer d.Stop()
	for _, s := range samples {
		d.Add(s)
	}
	return d.Samples(), nil
}

func heartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heart <file.wav>",
		Short: "Extract heart rate and HRV from a WAV recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			samples, rate, err := readWAV(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), heartOf(cfg, samples, rate))
		},
	}
}

func heartOf(cfg *config.Config, samples []float64, rate float64) model.HeartResult {
	analyzer := pipeline.NewAnalyzer(cfg.Analysis, logging.NewLogger(level(cfg)), nil)
	return analyzer.AnalyzeHeartRate(samples, 0, rate)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
