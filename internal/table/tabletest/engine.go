// Package tabletest provides an in-memory table.Engine for tests.
package tabletest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/neox5/querygauge/internal/manifest"
	"github.com/neox5/querygauge/internal/table"
)

// ErrNoTable is returned when opening a URI with no registered fixture.
var ErrNoTable = errors.New("no such table")

// Fixture is the canned behavior of one table URI.
type Fixture struct {
	OpenErr    error
	CompileErr error
	CountErr   error
	CollectErr error

	RowCount int64
	Batches  []arrow.Record
}

// Engine serves fixtures keyed by table URI.
type Engine struct {
	mu       sync.Mutex
	fixtures map[string]Fixture
	queries  []string
	sessions int
	closed   int

	engineClosed bool
}

// NewEngine creates an engine with no tables.
func NewEngine() *Engine {
	return &Engine{fixtures: make(map[string]Fixture)}
}

// Add registers f under uri.
func (e *Engine) Add(uri string, f Fixture) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixtures[uri] = f
	return e
}

// Queries returns every compiled query text in order.
func (e *Engine) Queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queries...)
}

// OpenSessions returns sessions created but not closed.
func (e *Engine) OpenSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions - e.closed
}

func (e *Engine) NewSession(context.Context) (table.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions++
	return &session{engine: e}, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.engineClosed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.engineClosed
}

type session struct {
	engine     *Engine
	registered map[string]Fixture
}

func (s *session) OpenTable(_ context.Context, uri string, format manifest.Format) (*table.Table, error) {
	s.engine.mu.Lock()
	f, ok := s.engine.fixtures[uri]
	s.engine.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", uri, ErrNoTable)
	}
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return &table.Table{URI: uri, Format: format}, nil
}

func (s *session) RegisterTable(_ context.Context, name string, t *table.Table) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.registered == nil {
		s.registered = make(map[string]Fixture)
	}
	s.registered[name] = s.engine.fixtures[t.URI]
	return nil
}

func (s *session) Query(_ context.Context, text string) (table.Result, error) {
	s.engine.mu.Lock()
	s.engine.queries = append(s.engine.queries, text)
	f, ok := s.registered[table.SourceName]
	s.engine.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("table %q is not registered", table.SourceName)
	}
	if f.CompileErr != nil {
		return nil, f.CompileErr
	}
	return result{fixture: f}, nil
}

func (s *session) Close() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.engine.closed++
	return nil
}

type result struct {
	fixture Fixture
}

func (r result) RowCount(context.Context) (int64, error) {
	if r.fixture.CountErr != nil {
		return 0, r.fixture.CountErr
	}
	return r.fixture.RowCount, nil
}

// CollectBatches retains each fixture record; callers release them.
func (r result) CollectBatches(context.Context) ([]arrow.Record, error) {
	if r.fixture.CollectErr != nil {
		return nil, r.fixture.CollectErr
	}
	out := make([]arrow.Record, len(r.fixture.Batches))
	for i, b := range r.fixture.Batches {
		b.Retain()
		out[i] = b
	}
	return out, nil
}
