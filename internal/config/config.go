// Package config provides layered configuration for drivesearch.
// Precedence: defaults → .env file → YAML file → environment variables.
// Environment variables always win; the .env and YAML layers only fill keys
// that are still unset.
//
// YAML file search order:
//  1. --config CLI flag (explicit path)
//  2. DRIVESEARCH_CONFIG environment variable
//  3. ~/.drivesearch/config.yaml
//  4. ./drivesearch.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// OAuth configures the Google OAuth client.
	OAuth OAuthConfig `yaml:"oauth"`

	// Embedding configures the embedding backend.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Search configures the search pipeline.
	Search SearchConfig `yaml:"search"`

	// Drive configures Drive content fetching.
	Drive DriveConfig `yaml:"drive"`

	// Credentials configures where session tokens are kept.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures ingest run persistence.
	History HistoryConfig `yaml:"history"`
}

// OAuthConfig holds the Google OAuth client registration.
type OAuthConfig struct {
	// ClientID is the OAuth client id.
	ClientID string `yaml:"client_id"`
	// ClientSecret is the OAuth client secret. Prefer env var OAUTH_CLIENT_SECRET.
	ClientSecret string `yaml:"client_secret"`
	// RedirectURI is the callback URL registered with Google.
	RedirectURI string `yaml:"redirect_uri"`
	// FrontendCallbackURL receives the browser after a successful sign-in.
	FrontendCallbackURL string `yaml:"frontend_callback_url"`
	// State is the fixed state parameter on the consent URL.
	State string `yaml:"state"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	// Provider selects the backend: openai, azure, ollama, gemini.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// RPS paces embedding calls (0 = unlimited).
	RPS float64 `yaml:"rps"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`
	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`
}

// OpenAIConfig holds OpenAI settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
}

// AzureConfig holds Azure OpenAI settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
}

// OllamaConfig holds Ollama settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// SearchConfig holds search pipeline settings.
type SearchConfig struct {
	// DefaultLimit is the result count when a request gives none.
	DefaultLimit int `yaml:"default_limit"`
}

// DriveConfig holds Drive fetch settings.
type DriveConfig struct {
	// FetchConcurrency bounds parallel downloads.
	FetchConcurrency int `yaml:"fetch_concurrency"`
	// FetchTimeout bounds a single download (Go duration, e.g. "30s").
	FetchTimeout string `yaml:"fetch_timeout"`
}

// CredentialsConfig selects and configures the credential store.
type CredentialsConfig struct {
	// Store is memory (default) or redis.
	Store string `yaml:"store"`
	// Redis holds Redis connection settings.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis settings for the credential store.
type RedisConfig struct {
	// Addr is host:port.
	Addr string `yaml:"addr"`
	// Password is the Redis password. Prefer env var REDIS_PASSWORD.
	Password string `yaml:"password"`
	// DB is the Redis database number.
	DB int `yaml:"db"`
	// TokenTTL bounds how long records are kept (Go duration).
	TokenTTL string `yaml:"token_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimitRPS is the per-IP request rate on ingest and search.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	// RateLimitBurst is the per-IP burst size.
	RateLimitBurst int `yaml:"rate_limit_burst"`
	// AllowedOrigin is the CORS origin allowed to call the API.
	AllowedOrigin string `yaml:"allowed_origin"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds ingest run history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"OAUTH_CLIENT_ID", func(c *Config) string { return c.OAuth.ClientID }},
	{"OAUTH_CLIENT_SECRET", func(c *Config) string { return c.OAuth.ClientSecret }},
	{"OAUTH_REDIRECT_URI", func(c *Config) string { return c.OAuth.RedirectURI }},
	{"OAUTH_FRONTEND_CALLBACK_URL", func(c *Config) string { return c.OAuth.FrontendCallbackURL }},
	{"OAUTH_STATE", func(c *Config) string { return c.OAuth.State }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_RPS", func(c *Config) string { return floatStr(c.Embedding.RPS) }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Embedding.OpenAI.APIKey }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Embedding.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Embedding.Azure.Endpoint }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Embedding.Azure.APIVersion }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Embedding.Gemini.APIKey }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Embedding.Ollama.Host }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"SEARCH_DEFAULT_LIMIT", func(c *Config) string { return intStr(c.Search.DefaultLimit) }},
	{"DRIVE_FETCH_CONCURRENCY", func(c *Config) string { return intStr(c.Drive.FetchConcurrency) }},
	{"DRIVE_FETCH_TIMEOUT", func(c *Config) string { return c.Drive.FetchTimeout }},
	{"CREDENTIAL_STORE", func(c *Config) string { return c.Credentials.Store }},
	{"REDIS_ADDR", func(c *Config) string { return c.Credentials.Redis.Addr }},
	{"REDIS_PASSWORD", func(c *Config) string { return c.Credentials.Redis.Password }},
	{"REDIS_DB", func(c *Config) string { return intStr(c.Credentials.Redis.DB) }},
	{"REDIS_TOKEN_TTL", func(c *Config) string { return c.Credentials.Redis.TokenTTL }},
	{"DRIVESEARCH_HOST", func(c *Config) string { return c.Server.Host }},
	{"DRIVESEARCH_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RATE_LIMIT_RPS", func(c *Config) string { return floatStr(c.Server.RateLimitRPS) }},
	{"RATE_LIMIT_BURST", func(c *Config) string { return intStr(c.Server.RateLimitBurst) }},
	{"CORS_ALLOWED_ORIGIN", func(c *Config) string { return c.Server.AllowedOrigin }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"DRIVESEARCH_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
}

// LoadDotEnv reads KEY=VALUE pairs from path (default ".env") into the
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) (bool, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return true, nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("DRIVESEARCH_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".drivesearch", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("drivesearch.yaml"); err == nil {
		return "drivesearch.yaml"
	}
	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float64 to its shortest string form, returning "" for zero.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
