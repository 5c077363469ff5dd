package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/54b3r/drivesearch-go/internal/auth"
	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/drive"
	"github.com/54b3r/drivesearch-go/internal/embedder"
	"github.com/54b3r/drivesearch-go/internal/rag"
	"github.com/54b3r/drivesearch-go/internal/store"
)

const (
	// defaultRedirectURI matches the callback route of `drivesearch serve`.
	defaultRedirectURI = "http://localhost:3001/api/auth/callback"
	// defaultCollection is the Qdrant collection used when none is configured.
	defaultCollection = "drive-files"
	// defaultTokenTTL bounds Redis-held sessions.
	defaultTokenTTL = 30 * 24 * time.Hour
)

// credentials bundles the credential store and, when Redis backs it, the
// typed store for readiness probes.
type credentials struct {
	store credential.Store
	redis *credential.RedisStore
}

// buildCredentialStore selects the credential store from CREDENTIAL_STORE
// (memory or redis, default memory).
func buildCredentialStore(ctx context.Context, log *slog.Logger) (*credentials, error) {
	kind := strings.ToLower(getEnvOrDefault("CREDENTIAL_STORE", "memory"))
	switch kind {
	case "memory":
		log.Info("credentials: in-memory store")
		return &credentials{store: credential.NewMemoryStore()}, nil

	case "redis":
		addr := getEnvOrDefault("REDIS_ADDR", "localhost:6379")
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		})
		rs := credential.NewRedisStore(client, &credential.RedisConfig{
			TTL: getEnvDuration("REDIS_TOKEN_TTL", defaultTokenTTL),
		})
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("credentials: redis at %s unreachable: %w", addr, err)
		}
		log.Info("credentials: redis store", slog.String("addr", addr))
		return &credentials{store: rs, redis: rs}, nil

	default:
		return nil, fmt.Errorf("credentials: unknown CREDENTIAL_STORE %q (valid: memory, redis)", kind)
	}
}

// buildAuthManager constructs the token manager from OAUTH_* variables.
// requireSecret is false for commands that only render the consent URL.
func buildAuthManager(creds credential.Store, requireSecret bool) (*auth.Manager, error) {
	clientID := os.Getenv("OAUTH_CLIENT_ID")
	secret := os.Getenv("OAUTH_CLIENT_SECRET")
	if clientID == "" {
		return nil, errors.New("auth: OAUTH_CLIENT_ID is required")
	}
	if requireSecret && secret == "" {
		return nil, errors.New("auth: OAUTH_CLIENT_SECRET is required")
	}
	return auth.NewManager(&auth.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		RedirectURL:  getEnvOrDefault("OAUTH_REDIRECT_URI", defaultRedirectURI),
		State:        os.Getenv("OAUTH_STATE"),
	}, creds), nil
}

// buildFetcher constructs the Drive fetcher on top of the manager's
// per-user clients.
func buildFetcher(manager *auth.Manager) *drive.Fetcher {
	return drive.NewFetcher(manager, &drive.Config{
		Concurrency: getEnvInt("DRIVE_FETCH_CONCURRENCY", drive.DefaultConcurrency),
		Timeout:     getEnvDuration("DRIVE_FETCH_TIMEOUT", drive.DefaultTimeout),
	})
}

// buildGenerator validates the embedding configuration and returns the
// generator and the vector size the collection must use.
func buildGenerator(ctx context.Context, log *slog.Logger) (*embedder.Generator, int, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, 0, err
	}
	backend, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, 0, err
	}
	name := embedder.Backend()
	dims := embedder.DefaultDimensions(name)
	rps := getEnvFloat("EMBEDDING_RPS", 0)
	log.Info("embedder initialised",
		slog.String("provider", name),
		slog.Int("dimensions", dims),
		slog.Float64("rps", rps),
	)
	return embedder.NewGenerator(backend, &embedder.GeneratorConfig{Dimensions: dims, RPS: rps}), dims, nil
}

// buildVectorStore connects to Qdrant and ensures the collection exists.
func buildVectorStore(ctx context.Context, log *slog.Logger, dims int) (*rag.QdrantStore, error) {
	cfg := &rag.QdrantConfig{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", defaultCollection),
		VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	}
	vs, err := rag.NewQdrantStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("collection", cfg.Collection),
	)
	return vs, nil
}

// openHistory opens the ingest run history. DRIVESEARCH_HISTORY_DB overrides
// the default path; "disabled" turns history off. Failures disable history
// rather than failing the command. Returns nil when disabled.
func openHistory(log *slog.Logger) *store.SQLiteStore {
	dbPath := os.Getenv("DRIVESEARCH_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via DRIVESEARCH_HISTORY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
		dbPath = p
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs
}

// getEnvOrDefault returns the value of key, or fallback if unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns key parsed as an int, or fallback if unset or invalid.
func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

// getEnvFloat returns key parsed as a float64, or fallback if unset or invalid.
func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

// getEnvDuration returns key parsed as a Go duration, or fallback if unset
// or invalid.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
