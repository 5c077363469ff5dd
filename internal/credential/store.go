package credential

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Store.Get when no record exists for the key.
var ErrNotFound = errors.New("credential: record not found")

// Store persists token records keyed by access token.
// Implementations must be safe for concurrent use. Staleness is not the
// store's concern; callers evaluate expiry on read.
type Store interface {
	// Put inserts or overwrites the record under rec.AccessToken.
	Put(ctx context.Context, rec Record) error
	// Get returns the record for accessToken, or ErrNotFound.
	Get(ctx context.Context, accessToken string) (Record, error)
	// Remove deletes the record for accessToken. Removing a missing key is not an error.
	Remove(ctx context.Context, accessToken string) error
	// Replace removes oldAccessToken and inserts rec as a single update.
	// A concurrent reader observes either the old record or the new one,
	// never a state with both or neither.
	Replace(ctx context.Context, oldAccessToken string, rec Record) error
	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore is the default Store. Records live in process memory and are
// lost on restart.
type MemoryStore struct {
	// mu guards records. Replace holds the write lock across delete+insert.
	mu sync.RWMutex
	// records maps access token to record.
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.AccessToken] = rec
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, accessToken string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[accessToken]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, accessToken)
	return nil
}

// Replace implements Store.
func (s *MemoryStore) Replace(_ context.Context, oldAccessToken string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, oldAccessToken)
	s.records[rec.AccessToken] = rec
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements Store. It is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }
