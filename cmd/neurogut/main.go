// neurogut analyzes abdominal recordings for gut sounds, either as a
// service fed by REST, Kafka or TCP, or offline against WAV files.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"neurogut/internal/config"
)

var version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "neurogut",
		Short: "Gut sound analysis service",
		Long:  `neurogut listens to recordings taken with a phone resting on the abdomen,
separates gut sounds from breathing, speech and mechanical noise, and
reports a Motility Index per session.

Run "neurogut serve" for the ingest service or "neurogut analyze" to
score a WAV file offline.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.AddCommand(serveCmd(), analyzeCmd(), heartCmd())

	if err := fang.Execute(context.Background(), root); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads path, or returns defaults when no path was given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(config.ResolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// ensureConfigFile writes the defaults to path when it does not exist yet.
func ensureConfigFile(path string) (string, error) {
	if path == "" {
		path = "neurogut.yaml"
	}
	path = config.ResolvePath(path)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			return "", fmt.Errorf("writing default config: %w", err)
		}
	} else if err != nil {
		return "", err
	}
	return path, nil
}

func level(cfg *config.Config) string {
	if logLevel != "" {
		return logLevel
	}
	return cfg.LogLevel
}
