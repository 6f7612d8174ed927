// Package gauge evaluates a single gauge: it runs the query, projects the
// result and publishes the data points.
package gauge

import (
	"context"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/neox5/querygauge/internal/manifest"
	"github.com/neox5/querygauge/internal/metric"
	"github.com/neox5/querygauge/internal/projector"
	"github.com/neox5/querygauge/internal/sink"
	"github.com/neox5/querygauge/internal/table"
)

// DefaultNamespacePrefix prefixes every group namespace.
const DefaultNamespacePrefix = "DataLake"

// Result summarizes one gauge evaluation.
type Result struct {
	Group           string
	Metric          string
	Mode            manifest.Mode
	Points          int
	PublishFailures int
	Stats           projector.Stats
	Duration        time.Duration
}

// BatchHook observes collected batches before projection.
type BatchHook func(group string, spec manifest.GaugeSpec, batches []arrow.Record)

// Executor evaluates gauges against an engine and publishes to a sink.
type Executor struct {
	engine          table.Engine
	sink            sink.Sink
	logger          *slog.Logger
	namespacePrefix string
	now             func() time.Time
	batchHook       BatchHook
}

// Option configures an Executor.
type Option func(*Executor)

// WithNamespacePrefix sets the prefix of every namespace.
func WithNamespacePrefix(prefix string) Option {
	return func(e *Executor) { e.namespacePrefix = prefix }
}

// WithClock sets the timestamp source of emitted points.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithBatchHook registers a hook called with each dimensional result.
func WithBatchHook(hook BatchHook) Option {
	return func(e *Executor) { e.batchHook = hook }
}

// New creates an executor.
func New(engine table.Engine, s sink.Sink, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		engine:          engine,
		sink:            s,
		logger:          logger,
		namespacePrefix: DefaultNamespacePrefix,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute evaluates spec for group. Errors are gauge-scoped *Error values;
// publish failures are logged and counted in the result.
func (e *Executor) Execute(ctx context.Context, group string, spec manifest.GaugeSpec) (Result, error) {
	start := time.Now()
	logger := e.logger.With("group", group, "metric", spec.Metric)
	result := Result{Group: group, Metric: spec.Metric, Mode: spec.Mode}

	fail := func(stage Stage, err error) (Result, error) {
		result.Duration = time.Since(start)
		return result, &Error{Group: group, Metric: spec.Metric, Stage: stage, Err: err}
	}

	session, err := e.engine.NewSession(ctx)
	if err != nil {
		return fail(StageSession, err)
	}
	defer session.Close()

	logger.Debug("opening table", "url", spec.URL, "format", spec.Format)
	tbl, err := session.OpenTable(ctx, spec.URL, spec.Format)
	if err != nil {
		return fail(StageOpen, err)
	}
	if err := session.RegisterTable(ctx, table.SourceName, tbl); err != nil {
		return fail(StageRegister, err)
	}

	logger.Debug("running query", "query", spec.Query)
	res, err := session.Query(ctx, spec.Query)
	if err != nil {
		return fail(StageCompile, err)
	}

	namespace := metric.Namespace(e.namespacePrefix, group)
	proj := projector.New(spec.Metric, namespace,
		projector.WithClock(e.now),
		projector.WithDiagnostics(func(d projector.Diagnostic) {
			logDiagnostic(logger, d)
		}),
	)

	var input projector.Input
	switch spec.Mode {
	case manifest.ModeCount:
		count, err := res.RowCount(ctx)
		if err != nil {
			return fail(StageCount, err)
		}
		logger.Debug("counted rows", "rows", count)
		input.RowCount = count

	case manifest.ModeDimensionalCount:
		batches, err := res.CollectBatches(ctx)
		if err != nil {
			return fail(StageCollect, err)
		}
		defer table.ReleaseBatches(batches)
		logger.Debug("collected batches", "batches", len(batches))
		if e.batchHook != nil {
			e.batchHook(group, spec, batches)
		}
		input.Batches = batches
	}

	points, stats, err := proj.Project(spec.Mode, input)
	if err != nil {
		return fail(StageProject, err)
	}
	result.Stats = stats

	for _, p := range points {
		if err := e.sink.Publish(ctx, namespace, p); err != nil {
			result.PublishFailures++
			logger.Error("failed to publish metric",
				"namespace", namespace,
				"value", p.Value,
				"dimensions", p.Dimensions.String(),
				"error", err)
			continue
		}
		result.Points++
	}

	result.Duration = time.Since(start)
	logger.Info("gauge evaluated",
		"mode", spec.Mode,
		"points", result.Points,
		"publish_failures", result.PublishFailures,
		"rows_dropped", stats.Dropped,
		"batches_skipped", stats.SkippedBatches,
		"duration", result.Duration)

	return result, nil
}

func logDiagnostic(logger *slog.Logger, d projector.Diagnostic) {
	switch d.Kind {
	case projector.MissingCountColumn:
		logger.Warn("result set must have a column named `count`, skipping batch", "batch", d.Batch)
	case projector.RowDropped:
		logger.Warn("dropping row", "batch", d.Batch, "row", d.Row, "error", d.Err)
	default:
		logger.Warn("projection diagnostic", "kind", d.Kind, "batch", d.Batch, "row", d.Row, "error", d.Err)
	}
}
