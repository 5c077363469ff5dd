package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// UpsertBatchSize is the number of points sent per upsert call.
	UpsertBatchSize = 100

	// PreviewLength is the maximum number of characters of content kept in
	// the point payload.
	PreviewLength = 1000
)

// Payload keys written on every point.
const (
	payloadFileName    = "fileName"
	payloadFileID      = "fileId"
	payloadWebViewLink = "webViewLink"
	payloadContent     = "content"
)

// pointNamespace seeds the deterministic point ids derived from Drive file ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://drive.google.com/"))

// PointID returns the Qdrant point id for a Drive file id. The same file
// always maps to the same point, so re-ingesting overwrites in place.
func PointID(fileID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(fileID)).String()
}

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// pointsClient is the subset of *qdrant.Client used by QdrantStore.
type pointsClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	// client is the Qdrant gRPC client or a test double.
	client pointsClient

	// raw is the concrete client when connected for real; nil in tests.
	raw *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore connects to Qdrant, creates the collection if it does not
// exist, and returns a ready-to-use store.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, raw: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// newQdrantStoreWithClient wires a store around an existing client.
func newQdrantStoreWithClient(ctx context.Context, client pointsClient, cfg *QdrantConfig) (*QdrantStore, error) {
	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Client returns the underlying gRPC client, or nil when the store was not
// created by NewQdrantStore.
func (s *QdrantStore) Client() *qdrant.Client { return s.raw }

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// UpsertAll implements VectorStore. Points are sent in batches of
// UpsertBatchSize, in input order, waiting for each batch to be applied.
func (s *QdrantStore) UpsertAll(ctx context.Context, vectors []FileVector) error {
	wait := true
	for start := 0; start < len(vectors); start += UpsertBatchSize {
		end := min(start+UpsertBatchSize, len(vectors))

		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, v := range vectors[start:end] {
			payload, err := pointPayload(v)
			if err != nil {
				return fmt.Errorf("%w: payload for %s: %w", ErrVectorStore, v.FileID, err)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(PointID(v.ID)),
				Vectors: qdrant.NewVectors(v.Embedding...),
				Payload: payload,
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("%w: upsert batch %d-%d of %d: %w", ErrVectorStore, start, end, len(vectors), err)
		}
	}
	return nil
}

// pointPayload builds the stored payload for v. Strings are forced to valid
// UTF-8 since protobuf rejects anything else.
func pointPayload(v FileVector) (map[string]*qdrant.Value, error) {
	valid := func(s string) string { return strings.ToValidUTF8(s, "\uFFFD") }
	return qdrant.TryValueMap(map[string]any{
		payloadFileName:    valid(v.FileName),
		payloadFileID:      valid(v.FileID),
		payloadWebViewLink: valid(v.WebViewLink),
		payloadContent:     TruncateRunes(valid(v.Content), PreviewLength),
	})
}

// QueryTopK implements VectorStore. Points without a payload or without a
// fileId are dropped from the result.
func (s *QdrantStore) QueryTopK(ctx context.Context, embedding []float32, k int) ([]SearchResult, error) {
	limit := uint64(k)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrVectorStore, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		if len(p.GetPayload()) == 0 {
			continue
		}
		payload := p.GetPayload()
		fileID := payload[payloadFileID].GetStringValue()
		if fileID == "" {
			continue
		}
		results = append(results, SearchResult{
			FileName:    payload[payloadFileName].GetStringValue(),
			FileID:      fileID,
			WebViewLink: payload[payloadWebViewLink].GetStringValue(),
			Content:     payload[payloadContent].GetStringValue(),
			Score:       p.GetScore(),
		})
	}
	return results, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ VectorStore = (*QdrantStore)(nil)
