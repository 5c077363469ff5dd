// Package server implements the drivesearch HTTP API: the OAuth routes, the
// bearer-token request gate, Drive file routes, and the ingest and search
// pipelines, plus health, readiness and Prometheus endpoints.
// The server is started by the `drivesearch serve` CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultFrontendCallbackURL is where the shipped frontend listens for the
// OAuth redirect.
const defaultFrontendCallbackURL = "http://localhost:5173/google/callback"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// New constructs a Server from deps and cfg. All deps except Runs are
// required.
func New(deps Deps, cfg *Config) (*Server, error) {
	switch {
	case deps.Auth == nil:
		return nil, fmt.Errorf("server: token manager must not be nil")
	case deps.Drive == nil:
		return nil, fmt.Errorf("server: drive reader must not be nil")
	case deps.Ingest == nil:
		return nil, fmt.Errorf("server: ingester must not be nil")
	case deps.Search == nil:
		return nil, fmt.Errorf("server: searcher must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	s := &Server{
		auth:    deps.Auth,
		drive:   deps.Drive,
		ingest:  deps.Ingest,
		search:  deps.Search,
		runs:    deps.Runs,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	gate := newClientGate(cfg.RateLimit, cfg.RateBurst, func(r *http.Request) {
		s.metrics.rateLimitedTotal.WithLabelValues(r.Pattern).Inc()
	})
	limited := gate.wrap

	mux := http.NewServeMux()
	mux.Handle("GET /api/auth/url", s.handle(s.handleAuthURL))
	mux.Handle("GET /api/auth/callback", s.handle(s.handleAuthCallback))
	mux.Handle("GET /api/auth/google/callback", s.handle(s.handleAuthCallback))
	mux.Handle("POST /api/auth/refresh", s.handle(s.handleAuthRefresh))
	mux.Handle("GET /api/files", s.requireToken(s.handle(s.handleListFiles)))
	mux.Handle("GET /api/files/{fileId}/content", s.requireToken(s.handle(s.handleFileContent)))
	mux.Handle("POST /api/ingest", limited(s.requireToken(s.handle(s.handleIngest))))
	mux.Handle("POST /api/search", limited(s.requireToken(s.handle(s.handleSearch))))
	mux.Handle("GET /api/ingest/runs", s.requireToken(s.handle(s.handleIngestRuns)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.handler = requestLogger(s.log, recoverer(cors(cfg.AllowedOrigin, s.instrument(mux))))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s, nil
}

// applyDefaults fills zero-valued fields of cfg.
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 3001
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.FrontendCallbackURL == "" {
		cfg.FrontendCallbackURL = defaultFrontendCallbackURL
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}
