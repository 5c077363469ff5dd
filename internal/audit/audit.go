// Package audit writes one structured entry per CLI command so operators can
// see which configuration a run used. Secrets appear as "set" or "unset",
// never as values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// entry is one environment variable included in the audit record.
type entry struct {
	key    string
	secret bool
}

// keys is the ordered list of env vars logged on every command start.
var keys = []entry{
	{"OAUTH_CLIENT_ID", false},
	{"OAUTH_CLIENT_SECRET", true},
	{"OAUTH_REDIRECT_URI", false},
	{"OAUTH_FRONTEND_CALLBACK_URL", false},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_DIMENSIONS", false},
	{"EMBEDDING_API_KEY", true},
	{"EMBEDDING_ENDPOINT", false},
	{"EMBEDDING_RPS", false},
	{"OPENAI_API_KEY", true},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"GOOGLE_API_KEY", true},
	{"OLLAMA_HOST", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"QDRANT_TLS", false},
	{"CREDENTIAL_STORE", false},
	{"REDIS_ADDR", false},
	{"REDIS_PASSWORD", true},
	{"DRIVESEARCH_HISTORY_DB", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
}

// secretKeys is derived from keys.
var secretKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, e := range keys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart emits the audit entry for command. configPath and dotenv
// name the YAML and .env files that were loaded, if any.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string, dotenv bool) {
	attrs := make([]slog.Attr, 0, len(keys)+3)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
		slog.Bool("dotenv", dotenv),
	)
	for _, e := range keys {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for secret keys, or the value
// (or "unset") for everything else.
func SanitiseKey(key, value string) string {
	if secretKeys[key] {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath returns "none" for an empty path and abbreviates the
// home directory to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
