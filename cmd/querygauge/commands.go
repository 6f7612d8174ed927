package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/neox5/querygauge/internal/app"
	"github.com/neox5/querygauge/internal/manifest"
	"github.com/neox5/querygauge/internal/server"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "evaluate every gauge once and publish the results",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, logger, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, logger)

			// Gauge failures are reported in the log, not in the exit status.
			a.RunOnce(ctx)
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "evaluate every gauge, log results and batches without exporting",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var logger *slog.Logger
			hook := func(group string, spec manifest.GaugeSpec, batches []arrow.Record) {
				logBatches(logger, group, spec, batches)
			}

			a, l, err := setup(ctx, cmd, app.WithLogOnly(), app.WithBatchHook(hook))
			if err != nil {
				return err
			}
			logger = l
			defer closeApp(a, logger)

			report := a.RunOnce(ctx)
			if failed := report.Failed(); failed > 0 {
				return fmt.Errorf("%d of %d gauges failed", failed, report.Attempted())
			}
			return nil
		},
	}
}

// logBatches writes every collected batch, cell by cell at debug level.
func logBatches(logger *slog.Logger, group string, spec manifest.GaugeSpec, batches []arrow.Record) {
	for i, rec := range batches {
		logger.Info("batch",
			"group", group,
			"metric", spec.Metric,
			"index", i,
			"rows", rec.NumRows(),
			"schema", rec.Schema().String())

		if !logger.Enabled(context.Background(), slog.LevelDebug) {
			continue
		}
		for c, field := range rec.Schema().Fields() {
			logger.Debug("column",
				"group", group,
				"metric", spec.Metric,
				"index", i,
				"name", field.Name,
				"values", fmt.Sprint(rec.Column(c)))
		}
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "evaluate every gauge on a cron schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "cron",
				Usage:    "cron expression or descriptor, e.g. \"*/5 * * * *\" or \"@every 5m\"",
				Required: true,
				Sources:  cli.EnvVars("QUERYGAUGE_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "run-now",
				Usage:   "run once immediately before the first scheduled run",
				Sources: cli.EnvVars("QUERYGAUGE_RUN_NOW"),
			},
		},
		Action: schedule,
	}
}

func schedule(ctx context.Context, cmd *cli.Command) error {
	// Setup graceful shutdown
	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, logger, err := setup(shutdownCtx, cmd)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	spec := cmd.String("cron")
	if _, err := c.AddFunc(spec, func() { a.RunOnce(shutdownCtx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	errChan := make(chan error, 1)
	if a.Prometheus != nil {
		cfg := a.Config.Export.Prometheus
		var opts []server.Option
		if a.Config.Settings.InternalMetrics.Enabled {
			opts = append(opts, server.WithInstrumentation())
		}
		srv := server.New(cfg.Port, cfg.Path, a.Prometheus.Registry(), logger, opts...)
		go func() {
			if err := srv.Start(shutdownCtx); err != nil {
				errChan <- err
			}
		}()
	}

	if cmd.Bool("run-now") {
		a.RunOnce(shutdownCtx)
	}

	logger.Info("scheduler started", "cron", spec)
	c.Start()

	// Wait for shutdown or error
	select {
	case err := <-errChan:
		logger.Error("server error", "error", err)
		stop()
	case <-shutdownCtx.Done():
	}

	logger.Debug("--- Shutdown Initiated ---")
	<-c.Stop().Done()
	logger.Info("shutdown complete")
	return nil
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

func lambdaCommand() *cli.Command {
	return &cli.Command{
		Name:  "lambda",
		Usage: "serve AWS Lambda invocations from a scheduled CloudWatch event",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, logger, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, logger)

			lambda.StartWithOptions(lambdaHandler(a, logger), lambda.WithContext(ctx))
			return nil
		},
	}
}

// lambdaHandler evaluates the manifest once per invocation. The event is
// only logged; gauge failures never fail the invocation.
func lambdaHandler(a *app.App, logger *slog.Logger) func(context.Context, events.CloudWatchEvent) error {
	return func(ctx context.Context, event events.CloudWatchEvent) error {
		logger.Info("received scheduled event", "event_id", event.ID, "source", event.Source, "time", event.Time)
		a.RunOnce(ctx)
		return nil
	}
}
