package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultRedisPrefix namespaces token keys when no prefix is configured.
const defaultRedisPrefix = "drivesearch"

// RedisConfig holds the settings for a RedisStore.
type RedisConfig struct {
	// Prefix namespaces keys (default: "drivesearch").
	Prefix string
	// TTL bounds how long a record is kept after its last write. It must be
	// longer than the refresh window; zero keeps records until replaced.
	TTL time.Duration
}

// RedisStore is a Store backed by Redis. It lets several server replicas
// (and the CLI) resolve the same sessions. Raw access tokens never appear in
// key names; keys carry a SHA-256 of the token.
type RedisStore struct {
	// client is the shared Redis client.
	client redis.UniversalClient
	// prefix namespaces all keys written by this store.
	prefix string
	// ttl is applied on every write; zero disables expiry.
	ttl time.Duration
}

// NewRedisStore wraps client as a Store.
func NewRedisStore(client redis.UniversalClient, cfg *RedisConfig) *RedisStore {
	if cfg == nil {
		cfg = &RedisConfig{}
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL}
}

// key returns the Redis key for accessToken.
func (s *RedisStore) key(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return fmt.Sprintf("%s:token:%s", s.prefix, hex.EncodeToString(sum[:]))
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("credential: marshal record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.AccessToken), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("credential: redis set: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, accessToken string) (Record, error) {
	data, err := s.client.Get(ctx, s.key(accessToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("credential: redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("credential: decode record: %w", err)
	}
	return rec, nil
}

// Remove implements Store.
func (s *RedisStore) Remove(ctx context.Context, accessToken string) error {
	if err := s.client.Del(ctx, s.key(accessToken)).Err(); err != nil {
		return fmt.Errorf("credential: redis del: %w", err)
	}
	return nil
}

// Replace implements Store. DEL and SET run in one MULTI/EXEC block.
func (s *RedisStore) Replace(ctx context.Context, oldAccessToken string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("credential: marshal record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(oldAccessToken))
		pipe.Set(ctx, s.key(rec.AccessToken), data, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("credential: redis replace: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
