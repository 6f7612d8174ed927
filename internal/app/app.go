// Package app wires configuration, manifest, engine and sinks into a runnable
// application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neox5/querygauge/internal/config"
	"github.com/neox5/querygauge/internal/gauge"
	"github.com/neox5/querygauge/internal/manifest"
	"github.com/neox5/querygauge/internal/monitor"
	"github.com/neox5/querygauge/internal/runner"
	"github.com/neox5/querygauge/internal/sink"
	"github.com/neox5/querygauge/internal/table"
)

// App holds initialized application components.
type App struct {
	Config     *config.Config
	Manifest   *manifest.Manifest
	Engine     table.Engine
	Sink       sink.Sink
	Prometheus *sink.Prometheus
	Runner     *runner.Runner
	Monitor    *monitor.Monitor

	logger *slog.Logger
}

// Option configures application construction.
type Option func(*options)

type options struct {
	engine    table.Engine
	sink      sink.Sink
	logOnly   bool
	batchHook gauge.BatchHook
}

// WithEngine uses engine instead of opening DuckDB from config.
func WithEngine(engine table.Engine) Option {
	return func(o *options) { o.engine = engine }
}

// WithSink uses s instead of the sinks from config.
func WithSink(s sink.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithLogOnly ignores configured exporters and writes points to the log.
func WithLogOnly() Option {
	return func(o *options) { o.logOnly = true }
}

// WithBatchHook observes every dimensional result before projection.
func WithBatchHook(hook gauge.BatchHook) Option {
	return func(o *options) { o.batchHook = hook }
}

// New initializes the application. Any error is a startup failure.
func New(ctx context.Context, cfg *config.Config, m *manifest.Manifest, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config:   cfg,
		Manifest: m,
		logger:   logger,
	}

	// Create engine
	a.Engine = o.engine
	if a.Engine == nil {
		engine, err := table.NewDuckDB(table.DuckDBConfig{
			Path: cfg.Engine.Path,
			Init: cfg.Engine.Init,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create engine: %w", err)
		}
		a.Engine = engine
	}

	// Create sinks
	a.Sink = o.sink
	if a.Sink == nil {
		s, prom, err := newSink(ctx, cfg, o.logOnly, logger)
		if err != nil {
			a.Engine.Close()
			return nil, err
		}
		a.Sink = s
		a.Prometheus = prom
	}

	// Create runner
	executorOpts := []gauge.Option{gauge.WithNamespacePrefix(cfg.Settings.Prefix())}
	if o.batchHook != nil {
		executorOpts = append(executorOpts, gauge.WithBatchHook(o.batchHook))
	}
	executor := gauge.New(a.Engine, a.Sink, logger, executorOpts...)

	runnerOpts := []runner.Option{runner.WithConcurrency(cfg.Settings.Concurrency)}
	if cfg.Settings.InternalMetrics.Enabled {
		if a.Prometheus == nil {
			logger.Warn("internal metrics require the prometheus exporter, ignoring")
		} else {
			telemetry, err := runner.NewTelemetry(a.Prometheus.Registry())
			if err != nil {
				a.close(ctx)
				return nil, err
			}
			runnerOpts = append(runnerOpts, runner.WithTelemetry(telemetry))
		}
	}
	a.Runner = runner.New(executor, logger, runnerOpts...)

	// Create monitor
	if cfg.Settings.Monitor.Enabled {
		mon, err := monitor.New(logger)
		if err != nil {
			logger.Warn("resource monitor disabled", "error", err)
		} else {
			a.Monitor = mon
		}
	}

	return a, nil
}

// newSink builds the configured sinks. The Prometheus sink is returned
// separately so its registry can be served and extended.
func newSink(ctx context.Context, cfg *config.Config, logOnly bool, logger *slog.Logger) (sink.Sink, *sink.Prometheus, error) {
	if logOnly {
		return sink.NewLog(logger), nil, nil
	}

	var (
		sinks sink.Multi
		prom  *sink.Prometheus
	)

	if cfg.Export.CloudWatchEnabled() {
		cw, err := sink.NewCloudWatch(ctx, cfg.Export.CloudWatch, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create cloudwatch sink: %w", err)
		}
		sinks = append(sinks, cw)
	}

	if cfg.Export.OTELEnabled() {
		otel, err := sink.NewOTEL(ctx, cfg.Export.OTEL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create otel sink: %w", err)
		}
		sinks = append(sinks, otel)
	}

	if cfg.Export.PrometheusEnabled() {
		prom = sink.NewPrometheus(cfg.Export.Prometheus, logger)
		sinks = append(sinks, prom)
	}

	if cfg.Export.LogEnabled() {
		sinks = append(sinks, sink.NewLog(logger))
	}

	switch len(sinks) {
	case 0:
		return nil, nil, errors.New("no exporter enabled")
	case 1:
		return sinks[0], prom, nil
	default:
		return sinks, prom, nil
	}
}

// RunOnce evaluates the manifest, then flushes the sinks. Gauge and
// delivery failures are logged and reported, never returned.
func (a *App) RunOnce(ctx context.Context) runner.Report {
	report := a.Runner.Run(ctx, a.Manifest)

	if err := a.Sink.Flush(ctx); err != nil {
		a.logger.Error("failed to flush metrics", "run_id", report.RunID, "error", err)
	}

	if a.Monitor != nil {
		a.Monitor.Log(ctx)
	}

	return report
}

// Close releases sinks and the engine.
func (a *App) Close(ctx context.Context) error {
	return a.close(ctx)
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.Sink != nil {
		if err := a.Sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sink: %w", err))
		}
	}
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close engine: %w", err))
		}
	}
	return errors.Join(errs...)
}
