// Package rag defines the domain types that flow between Drive, the embedding
// backends and the vector index, plus the Qdrant adapter and the search
// pipeline built on them. Concrete backends satisfy the interfaces here so
// pipelines never depend on a specific provider.
package rag

import (
	"context"
	"errors"
)

// ErrVectorStore is returned when the vector index rejects or fails a call.
var ErrVectorStore = errors.New("rag: vector store operation failed")

// DriveFile is a Drive file reference, optionally carrying its text content.
type DriveFile struct {
	// ID is the Drive file id.
	ID string `json:"id"`

	// Name is the file name shown in Drive.
	Name string `json:"name"`

	// MimeType is text/plain or text/markdown.
	MimeType string `json:"mimeType"`

	// WebViewLink opens the file in the Drive UI. May be empty.
	WebViewLink string `json:"webViewLink,omitempty"`

	// Content is the downloaded text. Empty until fetched; an empty value
	// after fetching means the file is excluded downstream.
	Content string `json:"content,omitempty"`
}

// FileVector is one embedded file ready for the index.
type FileVector struct {
	// ID equals the Drive file id.
	ID string

	// FileName is the Drive file name.
	FileName string

	// FileID is the Drive file id, repeated into the payload.
	FileID string

	// WebViewLink is the Drive UI link.
	WebViewLink string

	// Content is the full text. Only a preview is persisted.
	Content string

	// Embedding is the dense vector. Never empty.
	Embedding []float32
}

// SearchResult is one match returned by the index, in index order.
type SearchResult struct {
	FileName    string  `json:"fileName"`
	FileID      string  `json:"fileId"`
	WebViewLink string  `json:"webViewLink,omitempty"`
	Content     string  `json:"content"`
	Score       float32 `json:"score"`
}

// Stage names the pipeline step at which a file was dropped.
type Stage string

const (
	// StageFetch means the content download failed or returned nothing.
	StageFetch Stage = "fetch"
	// StageEmbed means the embedding call failed.
	StageEmbed Stage = "embed"
)

// Skipped records a file that was dropped from an ingest run.
type Skipped struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Stage    Stage  `json:"stage"`
	Reason   string `json:"reason"`
}

// VectorStore persists file vectors and answers top-K similarity queries.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// UpsertAll writes vectors in fixed-size batches, in order. A failing
	// batch aborts the call; earlier batches stay committed.
	UpsertAll(ctx context.Context, vectors []FileVector) error

	// QueryTopK returns at most k results ordered by the index's similarity.
	QueryTopK(ctx context.Context, embedding []float32, k int) ([]SearchResult, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder turns a search query into one vector in the same space as
// the stored documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// TruncateRunes returns s cut to at most n characters. It never splits a
// multi-byte character.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
