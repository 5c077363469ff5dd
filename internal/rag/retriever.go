package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSearchLimit is used when the caller passes no positive limit.
	DefaultSearchLimit = 10

	// MaxSearchLimit caps the number of results a single search may request.
	MaxSearchLimit = 100
)

// ErrEmptyQuery is returned when the query is empty or whitespace only.
var ErrEmptyQuery = errors.New("rag: search query is required")

// Searcher embeds a query and asks the vector store for the closest files.
type Searcher struct {
	// embedder converts query text to a dense vector.
	embedder QueryEmbedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultLimit is the result count when Search is called with limit <= 0.
	defaultLimit int
}

// NewSearcher constructs a Searcher. defaultLimit <= 0 selects
// DefaultSearchLimit.
func NewSearcher(embedder QueryEmbedder, store VectorStore, defaultLimit int) (*Searcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultSearchLimit
	}
	return &Searcher{
		embedder:     embedder,
		store:        store,
		defaultLimit: min(defaultLimit, MaxSearchLimit),
	}, nil
}

// Search returns up to limit results for query, in index order. An empty
// query fails before any network call.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	limit = s.EffectiveLimit(limit)

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}

	results, err := s.store.QueryTopK(ctx, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return results, nil
}

// EffectiveLimit resolves the limit a search will use.
func (s *Searcher) EffectiveLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	return min(limit, MaxSearchLimit)
}
