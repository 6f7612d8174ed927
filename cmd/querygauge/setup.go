package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/neox5/querygauge/internal/app"
	"github.com/neox5/querygauge/internal/config"
	"github.com/neox5/querygauge/internal/manifest"
	"github.com/neox5/querygauge/internal/version"
	"github.com/urfave/cli/v3"
)

const (
	logFormatText = "text"
	logFormatJSON = "json"
)

// newLogger creates the process logger and installs it as default.
func newLogger(w io.Writer, format string, debug bool) (*slog.Logger, error) {
	// Configure logging level
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	switch format {
	case logFormatText:
		handler = slog.NewTextHandler(w, opts)
	case logFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be text or json)", format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// loadManifest reads the manifest from --manifest or the manifest
// environment variable and applies the group filter.
func loadManifest(cmd *cli.Command) (*manifest.Manifest, error) {
	var (
		m   *manifest.Manifest
		err error
	)
	if path := cmd.String("manifest"); path != "" {
		m, err = manifest.Load(path)
	} else {
		m, err = manifest.FromEnv(cmd.String("manifest-env"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	if groups := cmd.StringSlice("group"); len(groups) > 0 {
		m, err = m.Filter(groups)
		if err != nil {
			return nil, fmt.Errorf("failed to filter manifest: %w", err)
		}
	}

	return m, nil
}

// setup performs every startup step shared by the commands. Any error it
// returns is fatal.
func setup(ctx context.Context, cmd *cli.Command, opts ...app.Option) (*app.App, *slog.Logger, error) {
	logger, err := newLogger(os.Stdout, cmd.String("log-format"), cmd.Bool("debug"))
	if err != nil {
		return nil, nil, err
	}

	configPath := cmd.String("config")
	logger.Info("starting querygauge", "version", version.String(), "command", cmd.Name, "config", configPath)

	// Load configuration
	logger.Debug("--- Configuration Loading ---")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Debug("--- Manifest Loading ---")
	m, err := loadManifest(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("loaded manifest", "groups", len(m.Groups), "gauges", m.Len())

	logger.Debug("--- Application Initialization ---")
	a, err := app.New(ctx, cfg, m, logger, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("initialization failed: %w", err)
	}

	return a, logger, nil
}

// closeApp releases the application with a fresh context so shutdown
// still flushes after the run context is cancelled.
func closeApp(a *app.App, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Close(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
