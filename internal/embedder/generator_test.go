package embedder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/54b3r/drivesearch-go/internal/rag"
)

// fakeBackend is a rag.Embedder that records inputs and can be told to fail
// on specific texts.
type fakeBackend struct {
	inputs  []string
	failOn  string
	vector  []float32
	batches int
}

func (f *fakeBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.batches++
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		f.inputs = append(f.inputs, t)
		if f.failOn != "" && strings.Contains(t, f.failOn) {
			return nil, errors.New("backend exploded")
		}
		out = append(out, f.vector)
	}
	return out, nil
}

func TestGenerator_EmbedTruncates(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{vector: []float32{1, 2, 3}}
	g := NewGenerator(be, nil)

	long := strings.Repeat("ü", MaxInputChars+123)
	vec, err := g.Embed(context.Background(), long)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("unexpected vector %v", vec)
	}
	if be.batches != 1 {
		t.Errorf("expected exactly 1 backend call, got %d", be.batches)
	}
	if n := len([]rune(be.inputs[0])); n != MaxInputChars {
		t.Errorf("expected input truncated to %d chars, got %d", MaxInputChars, n)
	}
}

func TestGenerator_EmbedQueryFallsBackToEmbed(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{vector: []float32{1, 2}}
	g := NewGenerator(be, &GeneratorConfig{Dimensions: 2})

	vec, err := g.EmbedQuery(context.Background(), "release process")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	if len(vec) != 2 || be.batches != 1 || be.inputs[0] != "release process" {
		t.Errorf("unexpected call: vec=%v batches=%d inputs=%v", vec, be.batches, be.inputs)
	}

	be.vector = []float32{1}
	if _, err := g.EmbedQuery(context.Background(), "x"); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected dimension check on queries, got %v", err)
	}
}

func TestGenerator_EmbedShortInputUntouched(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{vector: []float32{1}}
	g := NewGenerator(be, nil)
	if _, err := g.Embed(context.Background(), "short"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if be.inputs[0] != "short" {
		t.Errorf("expected input unchanged, got %q", be.inputs[0])
	}
}

func TestGenerator_EmbedErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		be   rag.Embedder
		dims int
	}{
		{"backend failure", &fakeBackend{failOn: "x"}, 0},
		{"empty vector", &fakeBackend{vector: []float32{}}, 0},
		{"dimension mismatch", &fakeBackend{vector: []float32{1, 2}}, 3},
		{"wrong count", countBackend{n: 2}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := NewGenerator(tc.be, &GeneratorConfig{Dimensions: tc.dims})
			if _, err := g.Embed(context.Background(), "x"); !errors.Is(err, ErrEmbedding) {
				t.Errorf("expected ErrEmbedding, got %v", err)
			}
		})
	}
}

// countBackend returns n vectors regardless of input.
type countBackend struct{ n int }

func (c countBackend) Embed(context.Context, []string) ([][]float32, error) {
	out := make([][]float32, c.n)
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestGenerator_EmbedFilesIsolatesFailures(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{vector: []float32{0.5, 0.5}, failOn: "poison"}
	g := NewGenerator(be, nil)

	files := []rag.DriveFile{
		{ID: "1", Name: "a.txt", Content: "alpha", WebViewLink: "https://drive/1"},
		{ID: "2", Name: "b.txt", Content: "poison pill"},
		{ID: "3", Name: "c.txt", Content: ""},
		{ID: "4", Name: "d.txt", Content: "delta"},
	}
	vectors, skipped := g.EmbedFiles(context.Background(), files)

	if len(vectors) != 2 || vectors[0].ID != "1" || vectors[1].ID != "4" {
		t.Fatalf("unexpected vectors %+v", vectors)
	}
	v := vectors[0]
	if v.FileID != "1" || v.FileName != "a.txt" || v.WebViewLink != "https://drive/1" || v.Content != "alpha" {
		t.Errorf("unexpected vector fields %+v", v)
	}
	if len(skipped) != 2 || skipped[0].FileID != "2" || skipped[1].FileID != "3" {
		t.Fatalf("unexpected skipped %+v", skipped)
	}
	for _, s := range skipped {
		if s.Stage != rag.StageEmbed {
			t.Errorf("expected embed stage, got %q", s.Stage)
		}
	}
	// Empty content never reaches the backend.
	if len(be.inputs) != 3 {
		t.Errorf("expected 3 backend inputs, got %d", len(be.inputs))
	}
}

func TestGenerator_EmbedFilesEmpty(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{vector: []float32{1}}
	vectors, skipped := NewGenerator(be, nil).EmbedFiles(context.Background(), nil)
	if len(vectors) != 0 || len(skipped) != 0 || be.batches != 0 {
		t.Errorf("expected no work, got vectors=%d skipped=%d calls=%d", len(vectors), len(skipped), be.batches)
	}
}

func TestGenerator_RateLimitHonoursCancel(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{vector: []float32{1}}
	g := NewGenerator(be, &GeneratorConfig{RPS: 0.001})

	// The first call consumes the single burst token.
	if _, err := g.Embed(context.Background(), "first"); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Embed(ctx, "second"); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding on cancelled wait, got %v", err)
	}
	if be.batches != 1 {
		t.Errorf("expected the second call to never reach the backend, got %d calls", be.batches)
	}
}
