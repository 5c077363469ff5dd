package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/ingestion"
	"github.com/54b3r/drivesearch-go/internal/rag"
	"github.com/54b3r/drivesearch-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 3001).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Ingest runs inside one request, so this must cover a full run.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	Pingers []Pinger
	// RateLimit is the sustained per-IP request rate on /api/ingest and
	// /api/search (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// FrontendCallbackURL receives the browser after a successful OAuth
	// exchange, with the access token in the "token" query parameter.
	FrontendCallbackURL string
	// AllowedOrigin is sent as Access-Control-Allow-Origin (default "*").
	AllowedOrigin string
	// MetricsRegistry registers server metrics. Nil uses the default registerer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Nil uses the default gatherer.
	MetricsGatherer prometheus.Gatherer
}

// TokenManager drives the OAuth flow and resolves bearer tokens.
// *auth.Manager satisfies it.
type TokenManager interface {
	AuthURL() string
	Exchange(ctx context.Context, code string) (credential.Record, error)
	Resolve(ctx context.Context, accessToken string) (credential.Record, error)
}

// DriveReader lists and downloads the caller's Drive files.
// *drive.Fetcher satisfies it.
type DriveReader interface {
	ListTextFiles(ctx context.Context, rec credential.Record) ([]rag.DriveFile, error)
	FetchContent(ctx context.Context, rec credential.Record, fileID string) (string, error)
}

// Ingester runs the ingest pipeline. *ingestion.Pipeline satisfies it.
type Ingester interface {
	Run(ctx context.Context, rec credential.Record) (ingestion.Result, error)
}

// Searcher runs the search pipeline. *rag.Searcher satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]rag.SearchResult, error)
}

// RunLister reads ingest history. *store.SQLiteStore satisfies it.
type RunLister interface {
	Recent(ctx context.Context, n int) ([]store.Run, error)
}

// Deps are the collaborators behind the HTTP surface. Runs may be nil when
// history is disabled; everything else is required.
type Deps struct {
	Auth   TokenManager
	Drive  DriveReader
	Ingest Ingester
	Search Searcher
	Runs   RunLister
}

// Server is the drivesearch HTTP API.
type Server struct {
	// auth resolves bearer tokens and runs the OAuth exchange.
	auth TokenManager
	// drive serves the file listing and content routes.
	drive DriveReader
	// ingest runs the ingest pipeline.
	ingest Ingester
	// search runs the search pipeline.
	search Searcher
	// runs lists ingest history; nil when history is disabled.
	runs RunLister
	// cfg holds the resolved server configuration.
	cfg *Config
	// handler is the fully wrapped root handler.
	handler http.Handler
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
}

// refreshRequest is the JSON body for POST /api/auth/refresh.
type refreshRequest struct {
	Token string `json:"token"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the natural-language search text.
	Query string `json:"query"`
	// Limit is the number of results; zero or absent uses the default.
	Limit int `json:"limit"`
}

// ingestData is the success payload of POST /api/ingest.
type ingestData struct {
	RunID   string                   `json:"runId"`
	Count   int                      `json:"count"`
	Files   []ingestion.IngestedFile `json:"files"`
	Skipped []rag.Skipped            `json:"skipped"`
}
