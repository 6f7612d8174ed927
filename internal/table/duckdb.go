package table

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/marcboeker/go-duckdb"
	"github.com/neox5/querygauge/internal/manifest"
)

// DuckDBConfig configures the embedded DuckDB engine.
type DuckDBConfig struct {
	// Path of the database file; empty for in-memory.
	Path string

	// Init statements run on every new connection (extensions, secrets).
	Init []string
}

// DuckDB is an Engine backed by an embedded DuckDB database.
type DuckDB struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDuckDB opens the embedded database.
func NewDuckDB(cfg DuckDBConfig, logger *slog.Logger) (*DuckDB, error) {
	connector, err := duckdb.NewConnector(cfg.Path, func(execer driver.ExecerContext) error {
		for _, stmt := range cfg.Init {
			if _, err := execer.ExecContext(context.Background(), stmt, nil); err != nil {
				return fmt.Errorf("init statement %q: %w", stmt, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create duckdb connector: %w", err)
	}

	logger.Debug("duckdb engine opened", "path", cfg.Path, "init_statements", len(cfg.Init))

	return &DuckDB{
		db:     sql.OpenDB(connector),
		logger: logger,
	}, nil
}

// NewSession reserves a dedicated connection; temporary views registered
// on it are invisible to other sessions.
func (e *DuckDB) NewSession(ctx context.Context) (Session, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	var ar *duckdb.Arrow
	err = conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		var err error
		ar, err = duckdb.NewArrowFromConn(dc)
		return err
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open arrow interface: %w", err)
	}

	return &duckSession{
		conn:   conn,
		arrow:  ar,
		loaded: make(map[string]bool),
		logger: e.logger,
	}, nil
}

// Close closes the database.
func (e *DuckDB) Close() error {
	return e.db.Close()
}

type duckSession struct {
	conn   *sql.Conn
	arrow  *duckdb.Arrow
	loaded map[string]bool
	logger *slog.Logger
}

func (s *duckSession) OpenTable(ctx context.Context, uri string, format manifest.Format) (*Table, error) {
	if err := s.loadExtensions(ctx, uri, format); err != nil {
		return nil, err
	}

	scan, err := scanExpr(uri, format)
	if err != nil {
		return nil, err
	}

	// Probe the table so missing or unreadable tables fail here.
	rows, err := s.conn.QueryContext(ctx, "SELECT * FROM "+scan+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("failed to open table %s: %w", uri, err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to open table %s: %w", uri, err)
	}

	return &Table{URI: uri, Format: format, scan: scan}, nil
}

func (s *duckSession) RegisterTable(ctx context.Context, name string, t *Table) error {
	if t == nil || t.scan == "" {
		return fmt.Errorf("table %q was not opened by this engine", name)
	}
	stmt := fmt.Sprintf("CREATE OR REPLACE TEMP VIEW %s AS SELECT * FROM %s", quoteIdent(name), t.scan)
	if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to register table %q: %w", name, err)
	}
	return nil
}

func (s *duckSession) Query(ctx context.Context, text string) (Result, error) {
	query := normalizeQuery(text)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	// EXPLAIN binds and plans without executing.
	rows, err := s.conn.QueryContext(ctx, "EXPLAIN "+query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to compile query: %w", err)
	}

	return &duckResult{session: s, query: query}, nil
}

func (s *duckSession) Close() error {
	return s.conn.Close()
}

// loadExtensions installs the extensions a table needs, once per session.
func (s *duckSession) loadExtensions(ctx context.Context, uri string, format manifest.Format) error {
	var exts []string
	switch format {
	case manifest.FormatDelta:
		exts = append(exts, "delta")
	case manifest.FormatJSON:
		exts = append(exts, "json")
	}
	if isRemote(uri) {
		exts = append(exts, "httpfs")
	}

	for _, ext := range exts {
		if s.loaded[ext] {
			continue
		}
		for _, stmt := range []string{"INSTALL " + ext, "LOAD " + ext} {
			if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to load extension %s: %w", ext, err)
			}
		}
		s.loaded[ext] = true
		s.logger.Debug("loaded duckdb extension", "extension", ext)
	}
	return nil
}

type duckResult struct {
	session *duckSession
	query   string
}

func (r *duckResult) RowCount(ctx context.Context) (int64, error) {
	var count int64
	row := r.session.conn.QueryRowContext(ctx, countQuery(r.query))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

func (r *duckResult) CollectBatches(ctx context.Context) ([]arrow.Record, error) {
	rdr, err := r.session.arrow.QueryContext(ctx, r.query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rdr.Release()

	var batches []arrow.Record
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		batches = append(batches, rec)
	}
	if err := rdr.Err(); err != nil {
		ReleaseBatches(batches)
		return nil, fmt.Errorf("failed to read batches: %w", err)
	}

	return batches, nil
}

func scanExpr(uri string, format manifest.Format) (string, error) {
	lit := quoteLiteral(strings.TrimPrefix(uri, "file://"))
	switch format {
	case manifest.FormatDelta, "":
		return "delta_scan(" + lit + ")", nil
	case manifest.FormatParquet:
		return "read_parquet(" + lit + ")", nil
	case manifest.FormatCSV:
		return "read_csv_auto(" + lit + ")", nil
	case manifest.FormatJSON:
		return "read_json_auto(" + lit + ")", nil
	default:
		return "", fmt.Errorf("unsupported table format %q", format)
	}
}

func isRemote(uri string) bool {
	for _, prefix := range []string{"s3://", "s3a://", "gs://", "gcs://", "http://", "https://", "az://", "abfss://"} {
		if strings.HasPrefix(uri, prefix) {
			return true
		}
	}
	return false
}

// countQuery wraps query on its own lines so a trailing line comment
// cannot swallow the closing parenthesis.
func countQuery(query string) string {
	return "SELECT count(*) FROM (\n" + query + "\n) AS q"
}

func normalizeQuery(text string) string {
	return strings.TrimRight(strings.TrimSpace(text), "; \t\n")
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
