package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload field names written with every Qdrant point.
const (
	payloadDocumentID = "document_id"
	payloadOrdinal    = "ordinal"
	payloadText       = "text"
	payloadStart      = "start"
	payloadEnd        = "end"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection (index) name.
	Collection string

	// APIKey is the optional API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index over Qdrant's gRPC API using cosine distance.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantIndex dials Qdrant. The collection is created by EnsureCollection.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
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
	return &QdrantIndex{client: client, collection: cfg.Collection}, nil
}

// EnsureCollection creates the collection if it does not already exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.collection, err)
	}
	return nil
}

// Upsert writes points and waits until they are applied.
func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocumentID: p.Chunk.DocumentID,
				payloadOrdinal:    p.Chunk.Ordinal,
				payloadText:       p.Chunk.Text,
				payloadStart:      p.Chunk.Start,
				payloadEnd:        p.Chunk.End,
			}),
		})
	}

	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// DeleteDocument removes every point whose payload matches documentID.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete of document %q failed: %w", documentID, err)
	}
	return nil
}

// Search performs a cosine similarity query.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		results = append(results, Result{
			Chunk: chunkFromPayload(p.GetPayload()),
			Score: NormalizeScore(float64(p.GetScore())),
		})
	}
	SortResults(results)
	return results, nil
}

// Sample uses Qdrant's random sampling query.
func (q *QdrantIndex) Sample(ctx context.Context, n int) ([]Chunk, error) {
	if n <= 0 {
		return nil, nil
	}
	limit := uint64(n)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuerySample(qdrant.Sample_Random),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: sample failed: %w", err)
	}
	chunks := make([]Chunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, chunkFromPayload(p.GetPayload()))
	}
	return chunks, nil
}

// Ping calls the Qdrant health endpoint.
func (q *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func chunkFromPayload(p map[string]*qdrant.Value) Chunk {
	return Chunk{
		DocumentID: p[payloadDocumentID].GetStringValue(),
		Ordinal:    int(p[payloadOrdinal].GetIntegerValue()),
		Text:       p[payloadText].GetStringValue(),
		Start:      int(p[payloadStart].GetIntegerValue()),
		End:        int(p[payloadEnd].GetIntegerValue()),
	}
}
