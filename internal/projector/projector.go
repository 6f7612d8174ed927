// Package projector turns gauge query results into metric data points.
package projector

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/neox5/querygauge/internal/manifest"
	"github.com/neox5/querygauge/internal/metric"
)

// CountColumn is the column holding the value in dimensional mode.
const CountColumn = "count"

// Input is the query result handed to the projector. Count mode reads
// RowCount; dimensional mode reads Batches.
type Input struct {
	RowCount int64
	Batches  []arrow.Record
}

// Stats summarizes a projection pass.
type Stats struct {
	Batches        int
	EmptyBatches   int
	SkippedBatches int
	Rows           int
	Emitted        int

	// Dropped counts rows whose count or a dimension could not be read,
	// including rows with a null count.
	Dropped int
}

// Projector builds data points for one gauge.
type Projector struct {
	name        string
	namespace   string
	now         func() time.Time
	diagnostics DiagnosticFunc
}

// Option configures a Projector.
type Option func(*Projector)

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Projector) { p.now = now }
}

// WithDiagnostics sets the callback receiving recoverable problems.
func WithDiagnostics(fn DiagnosticFunc) Option {
	return func(p *Projector) { p.diagnostics = fn }
}

// New creates a projector for metric name in namespace.
func New(name, namespace string, opts ...Option) *Projector {
	p := &Projector{
		name:        name,
		namespace:   namespace,
		now:         time.Now,
		diagnostics: func(Diagnostic) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Project converts in according to mode.
func (p *Projector) Project(mode manifest.Mode, in Input) ([]metric.DataPoint, Stats, error) {
	switch mode {
	case manifest.ModeCount:
		return []metric.DataPoint{p.Count(in.RowCount)}, Stats{Emitted: 1}, nil
	case manifest.ModeDimensionalCount:
		points, stats := p.Dimensional(in.Batches)
		return points, stats, nil
	default:
		return nil, Stats{}, fmt.Errorf("unsupported measurement mode %s", mode)
	}
}

// Count returns the single point for a row count.
func (p *Projector) Count(rows int64) metric.DataPoint {
	return p.point(rows, metric.Dimensions{})
}

// Dimensional returns one point per counted row, in batch then row order.
func (p *Projector) Dimensional(batches []arrow.Record) ([]metric.DataPoint, Stats) {
	var (
		points []metric.DataPoint
		stats  Stats
	)

	for bi, batch := range batches {
		stats.Batches++

		// Engines emit zero-row batches routinely.
		if batch.NumRows() == 0 {
			stats.EmptyBatches++
			continue
		}

		columns := batchColumns(batch)
		if !hasColumn(columns, CountColumn) {
			stats.SkippedBatches++
			p.diagnostics(Diagnostic{Kind: MissingCountColumn, Batch: bi, Row: -1})
			continue
		}

		rows := int(batch.NumRows())
		for row := 0; row < rows; row++ {
			stats.Rows++

			value, dims, err := readRow(columns, row)
			if err != nil {
				stats.Dropped++
				p.diagnostics(Diagnostic{Kind: RowDropped, Batch: bi, Row: row, Err: err})
				continue
			}

			points = append(points, p.point(value, dims))
			stats.Emitted++
		}
	}

	return points, stats
}

func (p *Projector) point(value int64, dims metric.Dimensions) metric.DataPoint {
	return metric.DataPoint{
		Name:       p.name,
		Namespace:  p.namespace,
		Value:      value,
		Timestamp:  p.now(),
		Dimensions: dims,
		Unit:       metric.UnitCount,
	}
}

// readRow reads the count and dimensions of one row, in schema order.
// The caller guarantees a count column.
func readRow(columns []Column, row int) (int64, metric.Dimensions, error) {
	var value int64
	dims := make(metric.Dimensions, len(columns))

	for _, col := range columns {
		if col.Name() == CountColumn {
			v, err := col.AsInt64(row)
			if err != nil {
				return 0, nil, err
			}
			value = v
			continue
		}

		s, err := col.AsString(row)
		if err != nil {
			return 0, nil, err
		}
		dims[col.Name()] = s
	}

	return value, dims, nil
}

func batchColumns(batch arrow.Record) []Column {
	n := int(batch.NumCols())
	columns := make([]Column, n)
	for i := 0; i < n; i++ {
		columns[i] = NewColumn(batch.ColumnName(i), batch.Column(i))
	}
	return columns
}

func hasColumn(columns []Column, name string) bool {
	for _, c := range columns {
		if c.Name() == name {
			return true
		}
	}
	return false
}
