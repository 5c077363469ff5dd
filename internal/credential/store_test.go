package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_PutGetRemove(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	rec := Record{AccessToken: "at-1", RefreshToken: "rt-1", ExpiryDate: 1000}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "at-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != rec {
		t.Errorf("want %+v, got %+v", rec, got)
	}

	if err := s.Remove(ctx, "at-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Get(ctx, "at-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound after remove, got %v", err)
	}
}

func TestMemoryStore_RemoveMissingKey(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	if err := s.Remove(context.Background(), "nope"); err != nil {
		t.Errorf("remove of missing key should not error, got %v", err)
	}
}

func TestMemoryStore_Replace(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
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
	if s.Len() != 1 {
		t.Errorf("want 1 record, got %d", s.Len())
	}
}

// TestMemoryStore_ReplaceIsAtomic checks that a reader racing a chain of
// replacements always finds exactly one live key.
func TestMemoryStore_ReplaceIsAtomic(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Put(ctx, Record{AccessToken: "k0"})

	const rounds = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range rounds {
			_ = s.Replace(ctx, keyN(i), Record{AccessToken: keyN(i + 1)})
		}
	}()

	for range rounds {
		if n := s.Len(); n != 1 {
			t.Fatalf("observed %d live records, want 1", n)
		}
	}
	wg.Wait()
}

func keyN(i int) string {
	return fmt.Sprintf("k%d", i)
}

func TestRecord_Expired(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(10_000)

	cases := []struct {
		name   string
		expiry int64
		want   bool
	}{
		{"future", 10_001, false},
		{"exactly now", 10_000, true},
		{"past", 9_999, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := Record{ExpiryDate: tc.expiry}
			if got := rec.Expired(now); got != tc.want {
				t.Errorf("Expired() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRecord_OAuth2Token(t *testing.T) {
	t.Parallel()
	rec := Record{AccessToken: "at", RefreshToken: "rt", ExpiryDate: 5_000}
	tok := rec.OAuth2Token()
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" {
		t.Errorf("unexpected token %+v", tok)
	}
	if !tok.Expiry.Equal(time.UnixMilli(5_000)) {
		t.Errorf("expiry: want %v, got %v", time.UnixMilli(5_000), tok.Expiry)
	}
}

func TestContext_RoundTrip(t *testing.T) {
	t.Parallel()
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should carry no record")
	}
	rec := Record{AccessToken: "at"}
	got, ok := FromContext(NewContext(context.Background(), rec))
	if !ok || got != rec {
		t.Errorf("want %+v, got %+v (ok=%v)", rec, got, ok)
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	if Fingerprint("") != "" {
		t.Error("empty token should have empty fingerprint")
	}
	fp := Fingerprint("ya29.secret-token")
	if len(fp) != 8 {
		t.Errorf("want 8 hex chars, got %q", fp)
	}
	if strings.Contains(fp, "secret") {
		t.Error("fingerprint must not contain the token")
	}
}

func TestRedisStore_KeyHidesToken(t *testing.T) {
	t.Parallel()
	s := NewRedisStore(nil, &RedisConfig{Prefix: "test"})
	k := s.key("ya29.raw-access-token")
	if !strings.HasPrefix(k, "test:token:") {
		t.Errorf("unexpected key prefix: %q", k)
	}
	if strings.Contains(k, "raw-access-token") {
		t.Errorf("key leaks the raw token: %q", k)
	}
	if k != s.key("ya29.raw-access-token") {
		t.Error("key derivation must be deterministic")
	}
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	t.Parallel()
	s := NewRedisStore(nil, nil)
	if !strings.HasPrefix(s.key("x"), defaultRedisPrefix+":token:") {
		t.Errorf("want default prefix, got %q", s.key("x"))
	}
}
