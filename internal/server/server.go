// Package server exposes the Prometheus registry over HTTP for
// long-running commands.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Server provides HTTP server for Prometheus metrics.
type Server struct {
	addr   string
	path   string
	logger *slog.Logger
	server *http.Server
}

// Option configures a Server.
type Option func(*options)

type options struct {
	instrument bool
}

// WithInstrumentation adds the promhttp handler metrics to registry.
func WithInstrumentation() Option {
	return func(o *options) { o.instrument = true }
}

// New creates a new HTTP server serving registry on path.
func New(port int, path string, registry *prometheus.Registry, logger *slog.Logger, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var handler http.Handler = promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
		},
	)
	if o.instrument {
		handler = promhttp.InstrumentMetricHandler(registry, handler)
	}

	mux := http.NewServeMux()
	mux.Handle(path, loggingMiddleware(logger, handler))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	addr := fmt.Sprintf(":%d", port)

	return &Server{
		addr:   addr,
		path:   path,
		logger: logger,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving HTTP requests. It blocks until ctx is done or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.addr, "path", s.path)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to serve metrics: %w", err)
	case <-ctx.Done():
		return s.shutdown()
	}
}

// shutdown gracefully stops the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs scrape requests at debug level.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("prometheus scrape", "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
