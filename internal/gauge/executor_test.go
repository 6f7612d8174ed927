package gauge

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/neox5/querygauge/internal/manifest"
	"github.com/neox5/querygauge/internal/metric"
	"github.com/neox5/querygauge/internal/sink/sinktest"
	"github.com/neox5/querygauge/internal/table/tabletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	countField  = arrow.Field{Name: "count", Type: arrow.PrimitiveTypes.Int64}
	regionField = arrow.Field{Name: "region", Type: arrow.BinaryTypes.String}
)

func rows(t *testing.T, fields []arrow.Field, values ...[]any) arrow.Record {
	t.Helper()
	rec, err := tabletest.Rows(fields, values...)
	require.NoError(t, err)
	t.Cleanup(rec.Release)
	return rec
}

func newTestExecutor(engine *tabletest.Engine, rec *sinktest.Recorder, opts ...Option) (*Executor, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(engine, rec, logger, opts...), &logs
}

func countSpec(url string) manifest.GaugeSpec {
	return manifest.GaugeSpec{URL: url, Metric: "order_count", Mode: manifest.ModeCount, Query: "SELECT * FROM source", Format: manifest.FormatDelta}
}

func dimensionalSpec(url string) manifest.GaugeSpec {
	return manifest.GaugeSpec{URL: url, Metric: "orders_by_region", Mode: manifest.ModeDimensionalCount, Query: "SELECT region, count(*) AS count FROM source GROUP BY region", Format: manifest.FormatDelta}
}

func TestExecute_Count(t *testing.T) {
	engine := tabletest.NewEngine().Add("s3://lake/orders", tabletest.Fixture{RowCount: 42})
	rec := &sinktest.Recorder{}
	exec, _ := newTestExecutor(engine, rec)

	result, err := exec.Execute(context.Background(), "orders", countSpec("s3://lake/orders"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Points)
	assert.Equal(t, "orders", result.Group)
	assert.Equal(t, "order_count", result.Metric)

	published := rec.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "DataLake/orders", published[0].Namespace)
	assert.Equal(t, int64(42), published[0].Point.Value)
	assert.Equal(t, "DataLake/orders", published[0].Point.Namespace)
	assert.Empty(t, published[0].Point.Dimensions)
	assert.Equal(t, metric.UnitCount, published[0].Point.Unit)

	assert.Equal(t, []string{"SELECT * FROM source"}, engine.Queries())
	assert.Zero(t, engine.OpenSessions())
}

func TestExecute_Dimensional(t *testing.T) {
	batches := []arrow.Record{
		rows(t, []arrow.Field{countField, regionField}),
		rows(t, []arrow.Field{countField, regionField}, []any{int64(5), "us"}, []any{int64(3), "eu"}),
	}
	engine := tabletest.NewEngine().Add("s3://lake/orders", tabletest.Fixture{Batches: batches})
	rec := &sinktest.Recorder{}

	var hooked int
	exec, _ := newTestExecutor(engine, rec,
		WithNamespacePrefix("Lake"),
		WithBatchHook(func(group string, spec manifest.GaugeSpec, b []arrow.Record) {
			hooked = len(b)
		}),
	)

	result, err := exec.Execute(context.Background(), "orders", dimensionalSpec("s3://lake/orders"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Points)
	assert.Equal(t, 2, result.Stats.Batches)
	assert.Equal(t, 1, result.Stats.EmptyBatches)
	assert.Equal(t, 2, hooked)

	published := rec.Published()
	require.Len(t, published, 2)
	assert.Equal(t, "Lake/orders", published[0].Namespace)
	assert.Equal(t, int64(5), published[0].Point.Value)
	assert.Equal(t, metric.Dimensions{"region": "us"}, published[0].Point.Dimensions)
	assert.Equal(t, int64(3), published[1].Point.Value)
	assert.Equal(t, metric.Dimensions{"region": "eu"}, published[1].Point.Dimensions)
}

func TestExecute_MissingCountColumnLogsOneWarning(t *testing.T) {
	batch := rows(t, []arrow.Field{regionField}, []any{"us"}, []any{"eu"})
	engine := tabletest.NewEngine().Add("u", tabletest.Fixture{Batches: []arrow.Record{batch}})
	rec := &sinktest.Recorder{}
	exec, logs := newTestExecutor(engine, rec)

	result, err := exec.Execute(context.Background(), "g", dimensionalSpec("u"))
	require.NoError(t, err)

	assert.Zero(t, result.Points)
	assert.Empty(t, rec.Published())
	assert.Equal(t, 1, strings.Count(logs.String(), "level=WARN"))
	assert.Contains(t, logs.String(), "column named `count`")
}

func TestExecute_GaugeScopedErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		fixture tabletest.Fixture
		spec    func(string) manifest.GaugeSpec
		stage   Stage
	}{
		{"open failure", tabletest.Fixture{OpenErr: boom}, countSpec, StageOpen},
		{"compile failure", tabletest.Fixture{CompileErr: boom}, countSpec, StageCompile},
		{"count failure", tabletest.Fixture{CountErr: boom}, countSpec, StageCount},
		{"collect failure", tabletest.Fixture{CollectErr: boom}, dimensionalSpec, StageCollect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := tabletest.NewEngine().Add("u", tt.fixture)
			rec := &sinktest.Recorder{}
			exec, _ := newTestExecutor(engine, rec)

			_, err := exec.Execute(context.Background(), "g", tt.spec("u"))
			require.Error(t, err)

			var gerr *Error
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, tt.stage, gerr.Stage)
			assert.Equal(t, "g", gerr.Group)
			assert.ErrorIs(t, err, boom)
			assert.Empty(t, rec.Published())
			assert.Zero(t, engine.OpenSessions())
		})
	}
}

func TestExecute_MissingTable(t *testing.T) {
	exec, _ := newTestExecutor(tabletest.NewEngine(), &sinktest.Recorder{})

	_, err := exec.Execute(context.Background(), "g", countSpec("s3://missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, tabletest.ErrNoTable)
	assert.Contains(t, err.Error(), "gauge g/order_count: open table")
}

func TestExecute_PublishFailuresAreNotFatal(t *testing.T) {
	batch := rows(t, []arrow.Field{countField, regionField},
		[]any{int64(1), "us"}, []any{int64(2), "eu"}, []any{int64(3), "ap"})
	engine := tabletest.NewEngine().Add("u", tabletest.Fixture{Batches: []arrow.Record{batch}})
	rec := &sinktest.Recorder{Fail: func(p metric.DataPoint) error {
		if p.Dimensions["region"] == "eu" {
			return errors.New("throttled")
		}
		return nil
	}}
	exec, logs := newTestExecutor(engine, rec)

	result, err := exec.Execute(context.Background(), "g", dimensionalSpec("u"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Points)
	assert.Equal(t, 1, result.PublishFailures)
	assert.Len(t, rec.Published(), 2)
	assert.Contains(t, logs.String(), "failed to publish metric")
}

func TestExecute_Clock(t *testing.T) {
	fixed := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	engine := tabletest.NewEngine().Add("u", tabletest.Fixture{RowCount: 1})
	rec := &sinktest.Recorder{}
	exec, _ := newTestExecutor(engine, rec, WithClock(func() time.Time { return fixed }))

	_, err := exec.Execute(context.Background(), "g", countSpec("u"))
	require.NoError(t, err)
	require.Len(t, rec.Published(), 1)
	assert.Equal(t, fixed, rec.Published()[0].Point.Timestamp)
}
