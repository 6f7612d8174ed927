// Package table runs gauge queries against registered tables and returns
// results as Arrow record batches.
package table

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/neox5/querygauge/internal/manifest"
)

// SourceName is the name a gauge query uses for its table.
const SourceName = "source"

// Engine creates isolated query sessions.
type Engine interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session holds the tables registered for one gauge evaluation.
type Session interface {
	// OpenTable opens the table at uri, failing if it cannot be read.
	OpenTable(ctx context.Context, uri string, format manifest.Format) (*Table, error)

	// RegisterTable makes t queryable under name.
	RegisterTable(ctx context.Context, name string, t *Table) error

	// Query compiles text against the registered tables.
	Query(ctx context.Context, text string) (Result, error)

	Close() error
}

// Result is a compiled query that has not yet been executed.
type Result interface {
	// RowCount returns the number of rows without materializing them.
	RowCount(ctx context.Context) (int64, error)

	// CollectBatches executes the query and returns every batch.
	// Callers release the records with ReleaseBatches.
	CollectBatches(ctx context.Context) ([]arrow.Record, error)
}

// Table is an opened table handle.
type Table struct {
	URI    string
	Format manifest.Format

	// scan is the engine-specific expression reading the table.
	scan string
}

// ReleaseBatches releases every record in batches.
func ReleaseBatches(batches []arrow.Record) {
	for _, b := range batches {
		if b != nil {
			b.Release()
		}
	}
}
