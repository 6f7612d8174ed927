// Package runner drives a manifest through the gauge executor.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/neox5/querygauge/internal/gauge"
	"github.com/neox5/querygauge/internal/manifest"
	"golang.org/x/sync/errgroup"
)

// Executor evaluates one gauge.
type Executor interface {
	Execute(ctx context.Context, group string, spec manifest.GaugeSpec) (gauge.Result, error)
}

// Runner evaluates every gauge of a manifest, isolating failures.
type Runner struct {
	executor    Executor
	logger      *slog.Logger
	concurrency int
	telemetry   *Telemetry
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets how many gauges may run at once. Values below 2 run
// gauges one at a time.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

// WithTelemetry records run outcomes as internal metrics.
func WithTelemetry(t *Telemetry) Option {
	return func(r *Runner) { r.telemetry = t }
}

// New creates a runner.
func New(executor Executor, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		executor:    executor,
		logger:      logger,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// job is one gauge in manifest order.
type job struct {
	group string
	spec  manifest.GaugeSpec
}

// Run evaluates m. Gauge failures are logged and recorded in the report;
// they never stop the run. Gauges not started before ctx is done are
// reported as skipped.
func (r *Runner) Run(ctx context.Context, m *manifest.Manifest) Report {
	report := Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	logger := r.logger.With("run_id", report.RunID)

	var jobs []job
	for _, g := range m.Groups {
		for _, spec := range g.Gauges {
			jobs = append(jobs, job{group: g.Name, spec: spec})
		}
	}

	logger.Info("starting run", "groups", len(m.Groups), "gauges", len(jobs), "concurrency", r.concurrency)

	report.Outcomes = make([]Outcome, len(jobs))
	if r.concurrency > 1 {
		var eg errgroup.Group
		eg.SetLimit(r.concurrency)
		for i, j := range jobs {
			eg.Go(func() error {
				report.Outcomes[i] = r.runOne(ctx, logger, j)
				return nil
			})
		}
		eg.Wait()
	} else {
		for i, j := range jobs {
			report.Outcomes[i] = r.runOne(ctx, logger, j)
		}
	}

	report.Duration = time.Since(report.Started)
	if r.telemetry != nil {
		r.telemetry.observeRun(report)
	}

	logger.Info("run complete",
		"attempted", report.Attempted(),
		"failed", report.Failed(),
		"skipped", report.Skipped(),
		"points", report.Points(),
		"publish_failures", report.PublishFailures(),
		"duration", report.Duration)

	return report
}

func (r *Runner) runOne(ctx context.Context, logger *slog.Logger, j job) Outcome {
	outcome := Outcome{Group: j.group, Metric: j.spec.Metric}

	if err := ctx.Err(); err != nil {
		outcome.Skipped = true
		outcome.Err = err
		logger.Warn("skipping gauge, run cancelled", "group", j.group, "metric", j.spec.Metric)
		r.observe(outcome)
		return outcome
	}

	result, err := r.executor.Execute(ctx, j.group, j.spec)
	outcome.Result = result
	outcome.Err = err

	if err != nil {
		attrs := []any{"group", j.group, "metric", j.spec.Metric, "error", err}
		var gerr *gauge.Error
		if errors.As(err, &gerr) {
			attrs = append(attrs, "stage", string(gerr.Stage))
		}
		logger.Error("gauge failed", attrs...)
	}

	r.observe(outcome)
	return outcome
}

func (r *Runner) observe(o Outcome) {
	if r.telemetry != nil {
		r.telemetry.observeGauge(o)
	}
}
