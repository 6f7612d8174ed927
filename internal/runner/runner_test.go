package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/neox5/querygauge/internal/gauge"
	"github.com/neox5/querygauge/internal/manifest"
	"github.com/neox5/querygauge/internal/sink/sinktest"
	"github.com/neox5/querygauge/internal/table/tabletest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spec(url, metric string, mode manifest.Mode) manifest.GaugeSpec {
	return manifest.GaugeSpec{URL: url, Metric: metric, Mode: mode, Query: "SELECT * FROM source", Format: manifest.FormatDelta}
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestRun_GaugeIsolation(t *testing.T) {
	engine := tabletest.NewEngine().
		Add("broken", tabletest.Fixture{CompileErr: errors.New("syntax error at or near SELEC")}).
		Add("orders", tabletest.Fixture{RowCount: 7})
	rec := &sinktest.Recorder{}
	var logs bytes.Buffer
	logger := newLogger(&logs)

	m := &manifest.Manifest{Groups: []manifest.Group{
		{Name: "lake", Gauges: []manifest.GaugeSpec{
			spec("broken", "broken_count", manifest.ModeCount),
			spec("orders", "order_count", manifest.ModeCount),
		}},
	}}

	r := New(gauge.New(engine, rec, logger), logger)
	report := r.Run(context.Background(), m)

	assert.Equal(t, 2, report.Attempted())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Points())
	assert.NotEmpty(t, report.RunID)

	require.Len(t, rec.Published(), 1)
	assert.Equal(t, "order_count", rec.Published()[0].Point.Name)
	assert.Equal(t, int64(7), rec.Published()[0].Point.Value)

	assert.Contains(t, logs.String(), "gauge failed")
	assert.Contains(t, logs.String(), "metric=broken_count")
	assert.Contains(t, logs.String(), `stage="compile query"`)
}

func TestRun_DeclarationOrder(t *testing.T) {
	engine := tabletest.NewEngine().Add("t", tabletest.Fixture{RowCount: 1})
	rec := &sinktest.Recorder{}
	logger := newLogger(&bytes.Buffer{})

	m := &manifest.Manifest{Groups: []manifest.Group{
		{Name: "zeta", Gauges: []manifest.GaugeSpec{spec("t", "z1", manifest.ModeCount), spec("t", "z2", manifest.ModeCount)}},
		{Name: "alpha", Gauges: []manifest.GaugeSpec{spec("t", "a1", manifest.ModeCount)}},
	}}

	report := New(gauge.New(engine, rec, logger), logger).Run(context.Background(), m)

	assert.Equal(t, []string{"z1", "z2", "a1"}, rec.Metrics())
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, "zeta", report.Outcomes[0].Group)
	assert.Equal(t, "alpha", report.Outcomes[2].Group)
	assert.Equal(t, "DataLake/alpha", rec.Published()[2].Namespace)
}

// blockingExecutor records the maximum number of concurrent executions.
type blockingExecutor struct {
	mu      sync.Mutex
	running int
	max     int
	release chan struct{}
	fail    map[string]bool
}

func (b *blockingExecutor) Execute(ctx context.Context, group string, s manifest.GaugeSpec) (gauge.Result, error) {
	b.mu.Lock()
	b.running++
	if b.running > b.max {
		b.max = b.running
	}
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.running--
	b.mu.Unlock()

	if b.fail[s.Metric] {
		return gauge.Result{Group: group, Metric: s.Metric}, &gauge.Error{Group: group, Metric: s.Metric, Stage: gauge.StageCompile, Err: errors.New("bad")}
	}
	return gauge.Result{Group: group, Metric: s.Metric, Points: 1}, nil
}

func TestRun_Concurrency(t *testing.T) {
	exec := &blockingExecutor{release: make(chan struct{}), fail: map[string]bool{"m2": true}}
	logger := newLogger(&bytes.Buffer{})

	var gauges []manifest.GaugeSpec
	for _, name := range []string{"m0", "m1", "m2", "m3", "m4"} {
		gauges = append(gauges, spec("t", name, manifest.ModeCount))
	}
	m := &manifest.Manifest{Groups: []manifest.Group{{Name: "g", Gauges: gauges}}}

	done := make(chan Report)
	go func() {
		done <- New(exec, logger, WithConcurrency(2)).Run(context.Background(), m)
	}()
	for range gauges {
		exec.release <- struct{}{}
	}
	report := <-done

	assert.LessOrEqual(t, exec.max, 2)
	assert.Equal(t, 5, report.Attempted())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 4, report.Points())

	var metrics []string
	for _, o := range report.Outcomes {
		metrics = append(metrics, o.Metric)
	}
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, metrics)
	assert.True(t, report.Outcomes[2].Failed())
}

func TestRun_CancelledSkipsGauges(t *testing.T) {
	engine := tabletest.NewEngine().Add("t", tabletest.Fixture{RowCount: 1})
	rec := &sinktest.Recorder{}
	logger := newLogger(&bytes.Buffer{})

	m := &manifest.Manifest{Groups: []manifest.Group{
		{Name: "g", Gauges: []manifest.GaugeSpec{spec("t", "a", manifest.ModeCount), spec("t", "b", manifest.ModeCount)}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := New(gauge.New(engine, rec, logger), logger).Run(ctx, m)

	assert.Equal(t, 0, report.Attempted())
	assert.Equal(t, 2, report.Skipped())
	assert.Equal(t, 0, report.Failed())
	assert.Empty(t, rec.Published())
}

func TestRun_Telemetry(t *testing.T) {
	engine := tabletest.NewEngine().
		Add("broken", tabletest.Fixture{OpenErr: errors.New("no such table")}).
		Add("orders", tabletest.Fixture{RowCount: 3})
	rec := &sinktest.Recorder{}
	logger := newLogger(&bytes.Buffer{})

	reg := prometheus.NewRegistry()
	tel, err := NewTelemetry(reg)
	require.NoError(t, err)

	m := &manifest.Manifest{Groups: []manifest.Group{
		{Name: "lake", Gauges: []manifest.GaugeSpec{
			spec("broken", "a", manifest.ModeCount),
			spec("orders", "b", manifest.ModeCount),
		}},
	}}

	New(gauge.New(engine, rec, logger), logger, WithTelemetry(tel)).Run(context.Background(), m)

	assert.Equal(t, 1.0, testutil.ToFloat64(tel.gauges.WithLabelValues("lake", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.gauges.WithLabelValues("lake", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.points))
	assert.Equal(t, 1, testutil.CollectAndCount(tel.runDuration))

	_, err = NewTelemetry(reg)
	require.Error(t, err, "duplicate registration")
}
