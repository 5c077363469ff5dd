package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/drivesearch-go/internal/ingestion"
	"github.com/54b3r/drivesearch-go/internal/logging"
	"github.com/54b3r/drivesearch-go/internal/rag"
	"github.com/54b3r/drivesearch-go/internal/server"
)

// NewServeCmd constructs the `drivesearch serve` command, which starts the
// HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the drivesearch HTTP API",
		Long: `Start the drivesearch HTTP API.

Routes are mounted under /api: the Google sign-in flow (auth/url,
auth/callback, auth/refresh), Drive file listing and content, ingest and
search. GET /metrics serves Prometheus metrics.

Examples:
  drivesearch serve
  drivesearch serve --port 8080
  CREDENTIAL_STORE=redis drivesearch serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			// Flag defaults are resolved here so .env and YAML values apply.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("DRIVESEARCH_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("DRIVESEARCH_PORT", port)
			}

			creds, err := buildCredentialStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = creds.store.Close() }()

			manager, err := buildAuthManager(creds.store, true)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			fetcher := buildFetcher(manager)

			generator, dims, err := buildGenerator(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			vectors, err := buildVectorStore(ctx, log, dims)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = vectors.Close() }()

			searcher, err := rag.NewSearcher(generator, vectors, getEnvInt("SEARCH_DEFAULT_LIMIT", rag.DefaultSearchLimit))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{server.NewQdrantPinger(vectors.Client())}
			if creds.redis != nil {
				pingers = append(pingers, server.NewPinger("redis", creds.redis))
			}

			pipeCfg := &ingestion.Config{}
			deps := server.Deps{Auth: manager, Drive: fetcher, Search: searcher}
			if history := openHistory(log); history != nil {
				defer func() { _ = history.Close() }()
				pipeCfg.Recorder = history
				deps.Runs = history
				pingers = append(pingers, server.NewPinger("history", history))
			}

			pipeline, err := ingestion.NewPipeline(fetcher, generator, vectors, pipeCfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			deps.Ingest = pipeline

			srv, err := server.New(deps, &server.Config{
				Host:                host,
				Port:                port,
				Logger:              log,
				Pingers:             pingers,
				RateLimit:           getEnvFloat("RATE_LIMIT_RPS", 0),
				RateBurst:           getEnvInt("RATE_LIMIT_BURST", 0),
				FrontendCallbackURL: os.Getenv("OAUTH_FRONTEND_CALLBACK_URL"),
				AllowedOrigin:       os.Getenv("CORS_ALLOWED_ORIGIN"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting", slog.String("addr", srv.Addr()))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: DRIVESEARCH_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 3001, "TCP port to listen on (env: DRIVESEARCH_PORT)")

	return cmd
}
