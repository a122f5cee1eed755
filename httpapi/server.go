// Package httpapi exposes a host controller over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/history"
	"github.com/wippyai/wasm-offload/host"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	defaultRunWait    = time.Minute
)

// Controller is the subset of *host.Controller the server drives.
type Controller interface {
	State() host.State
	Pending() bool
	TriggerRun() (*host.Request, error)
	Retry() error
}

// Server wraps the chi router and its dependencies.
type Server struct {
	router      *chi.Mux
	ctrl        Controller
	store       history.Store
	logger      *zap.Logger
	registry    *prometheus.Registry
	metrics     *httpMetrics
	addr        string
	corsOrigins []string
	runWait     time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the run history endpoints.
func WithStore(s history.Store) Option {
	return func(srv *Server) {
		srv.store = s
	}
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(srv *Server) {
		srv.logger = l
	}
}

// WithRegistry serves and registers metrics in reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(srv *Server) {
		srv.registry = reg
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(srv *Server) {
		srv.corsOrigins = origins
	}
}

// WithRunWait bounds how long POST /v1/runs waits for the outcome before
// answering 202 with the pending id.
func WithRunWait(d time.Duration) Option {
	return func(srv *Server) {
		srv.runWait = d
	}
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, ctrl Controller, opts ...Option) *Server {
	srv := &Server{
		router:      chi.NewRouter(),
		ctrl:        ctrl,
		logger:      zap.NewNop(),
		addr:        addr,
		corsOrigins: []string{"*"},
		runWait:     defaultRunWait,
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.registry == nil {
		srv.registry = prometheus.NewRegistry()
	}
	srv.metrics = newHTTPMetrics(srv.registry)

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(srv.metrics.middleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   srv.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler(s.registry))

	s.router.Get("/v1/status", s.handleStatus)
	s.router.Post("/v1/init", s.handleRetryInit)
	s.router.Get("/v1/stats", s.handleStats)

	s.router.Route("/v1/runs", func(r chi.Router) {
		r.Post("/", s.handleTriggerRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
	})
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "listen on "+s.addr)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindContextLost, err, "shutdown")
	}
	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
