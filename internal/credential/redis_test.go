package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestRedisStore runs an in-process Redis and wraps it in a RedisStore.
func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, &RedisConfig{Prefix: "test", TTL: ttl})
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_PutGetRemove(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	rec := Record{AccessToken: "ya29.at-1", RefreshToken: "1//rt-1", ExpiryDate: 1_700_000_000_000}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, rec.AccessToken)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != rec {
		t.Errorf("want %+v, got %+v", rec, got)
	}

	raw, err := mr.Get(s.key(rec.AccessToken))
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if raw != `{"access_token":"ya29.at-1","refresh_token":"1//rt-1","expiry_date":1700000000000}` {
		t.Errorf("unexpected stored JSON %s", raw)
	}

	if err := s.Remove(ctx, rec.AccessToken); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Get(ctx, rec.AccessToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound after remove, got %v", err)
	}
}

func TestRedisStore_GetMissingIsNotFound(t *testing.T) {
	t.Parallel()
	s, _ := newTestRedisStore(t, 0)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if err := s.Remove(context.Background(), "nope"); err != nil {
		t.Errorf("remove of missing key should not error, got %v", err)
	}
}

func TestRedisStore_CorruptRecord(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t, 0)
	if err := mr.Set(s.key("at"), "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := s.Get(context.Background(), "at")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("want decode error, got %v", err)
	}
}

func TestRedisStore_TTLAppliedOnWrites(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	_ = s.Put(ctx, Record{AccessToken: "old", RefreshToken: "rt"})
	if got := mr.TTL(s.key("old")); got != time.Hour {
		t.Errorf("put: want TTL 1h, got %v", got)
	}

	_ = s.Replace(ctx, "old", Record{AccessToken: "new", RefreshToken: "rt"})
	if got := mr.TTL(s.key("new")); got != time.Hour {
		t.Errorf("replace: want TTL 1h, got %v", got)
	}

	mr.FastForward(time.Hour + time.Second)
	if _, err := s.Get(ctx, "new"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound after TTL, got %v", err)
	}
}

func TestRedisStore_NoTTLKeepsRecords(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t, 0)
	_ = s.Put(context.Background(), Record{AccessToken: "at"})
	if got := mr.TTL(s.key("at")); got != 0 {
		t.Errorf("want no TTL, got %v", got)
	}
}

func TestRedisStore_Replace(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	_ = s.Put(ctx, Record{AccessToken: "old", RefreshToken: "rt"})
	next := Record{AccessToken: "new", RefreshToken: "rt", ExpiryDate: 42}
	if err := s.Replace(ctx, "old", next); err != nil {
		t.Fatalf("replace: %v", err)
	}

	if _, err := s.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old key should be gone, got %v", err)
	}
	got, err := s.Get(ctx, "new")
	if err != nil || got != next {
		t.Errorf("want %+v, got %+v (err=%v)", next, got, err)
	}
	if n := len(mr.Keys()); n != 1 {
		t.Errorf("want 1 key, got %d", n)
	}
}

// TestRedisStore_ReplaceIsAtomic checks that a reader racing a chain of
// replacements always finds exactly one live key.
func TestRedisStore_ReplaceIsAtomic(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()
	_ = s.Put(ctx, Record{AccessToken: "k0"})

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range rounds {
			_ = s.Replace(ctx, keyN(i), Record{AccessToken: keyN(i + 1)})
		}
	}()

	for range rounds {
		if n := len(mr.Keys()); n != 1 {
			t.Fatalf("observed %d live keys, want 1", n)
		}
	}
	wg.Wait()

	if _, err := s.Get(ctx, keyN(rounds)); err != nil {
		t.Errorf("final record missing: %v", err)
	}
}

func TestRedisStore_UnreachableServer(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t, 0)
	mr.Close()
	ctx := context.Background()

	if err := s.Ping(ctx); err == nil {
		t.Error("ping: want error with server down")
	}
	if _, err := s.Get(ctx, "at"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("get: want transport error, got %v", err)
	}
	if err := s.Replace(ctx, "old", Record{AccessToken: "new"}); err == nil {
		t.Error("replace: want error with server down")
	}
}
