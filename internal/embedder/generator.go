package embedder

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/54b3r/drivesearch-go/internal/batch"
	"github.com/54b3r/drivesearch-go/internal/logging"
	"github.com/54b3r/drivesearch-go/internal/rag"
)

// MaxInputChars is the number of characters sent to the backend per text.
// Longer inputs are truncated.
const MaxInputChars = 8000

// ErrEmbedding is returned when a text could not be turned into a vector.
var ErrEmbedding = errors.New("embedder: embedding generation failed")

// GeneratorConfig tunes a Generator.
type GeneratorConfig struct {
	// Dimensions, when > 0, is enforced on every returned vector.
	Dimensions int
	// RPS paces backend calls. Zero disables pacing.
	RPS float64
}

// Generator produces one vector per text on top of a batch backend.
type Generator struct {
	// backend performs the provider call.
	backend rag.Embedder
	// dimensions is the expected vector size; 0 skips the check.
	dimensions int
	// limiter paces backend calls; nil when unlimited.
	limiter *rate.Limiter
}

// NewGenerator wraps backend. cfg may be nil.
func NewGenerator(backend rag.Embedder, cfg *GeneratorConfig) *Generator {
	if cfg == nil {
		cfg = &GeneratorConfig{}
	}
	g := &Generator{backend: backend, dimensions: cfg.Dimensions}
	if cfg.RPS > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return g
}

// queryBackend is implemented by backends that embed search queries
// differently from stored documents.
type queryBackend interface {
	EmbedQueries(ctx context.Context, queries []string) ([][]float32, error)
}

// Embed returns the document embedding of text, truncated to MaxInputChars.
// Exactly one backend call is made.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.embedOne(ctx, text, g.backend.Embed)
}

// EmbedQuery returns the embedding of a search query. Backends without a
// query mode embed it like a document.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if qb, ok := g.backend.(queryBackend); ok {
		return g.embedOne(ctx, query, qb.EmbedQueries)
	}
	return g.embedOne(ctx, query, g.backend.Embed)
}

// embedOne paces, calls and validates one backend request.
func (g *Generator) embedOne(ctx context.Context, text string, call func(context.Context, []string) ([][]float32, error)) ([]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
	}

	vectors, err := call(ctx, []string{rag.TruncateRunes(text, MaxInputChars)})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: backend returned %d vectors for 1 input", ErrEmbedding, len(vectors))
	}
	vec := vectors[0]
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: backend returned an empty vector", ErrEmbedding)
	}
	if g.dimensions > 0 && len(vec) != g.dimensions {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", ErrEmbedding, g.dimensions, len(vec))
	}
	return vec, nil
}

// EmbedFiles embeds each file in order, one at a time. Files with empty
// content or a failing embed call are reported as skipped and never abort
// the batch.
func (g *Generator) EmbedFiles(ctx context.Context, files []rag.DriveFile) ([]rag.FileVector, []rag.Skipped) {
	log := logging.FromContext(ctx)

	results := batch.SettleSequential(ctx, files, func(ctx context.Context, df rag.DriveFile) (rag.FileVector, error) {
		if df.Content == "" {
			return rag.FileVector{}, errors.New("empty content")
		}
		vec, err := g.Embed(ctx, df.Content)
		if err != nil {
			return rag.FileVector{}, err
		}
		return rag.FileVector{
			ID:          df.ID,
			FileName:    df.Name,
			FileID:      df.ID,
			WebViewLink: df.WebViewLink,
			Content:     df.Content,
			Embedding:   vec,
		}, nil
	})

	vectors, failed := batch.Partition(results)
	skipped := make([]rag.Skipped, 0, len(failed))
	for _, r := range failed {
		df := files[r.Index]
		log.Warn("embedder: skipping file",
			"file_id", df.ID, "file_name", df.Name, "error", r.Err)
		skipped = append(skipped, rag.Skipped{
			FileID:   df.ID,
			FileName: df.Name,
			Stage:    rag.StageEmbed,
			Reason:   r.Err.Error(),
		})
	}
	return vectors, skipped
}

var _ rag.QueryEmbedder = (*Generator)(nil)
