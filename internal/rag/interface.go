// Package rag implements the retrieval side of raga: the chunk/vector model,
// vector index backends, the Retrieval Store that owns the index lifecycle,
// and the Retriever that turns a query into a relevance-ranked context bundle.
package rag

import (
	"context"
)

// Chunk is a contiguous span of an ingested document, the unit of embedding
// and retrieval.
type Chunk struct {
	// DocumentID is the identifier (source name) of the parent document.
	DocumentID string `json:"document_id"`

	// Ordinal is the zero-based position of the chunk within its document.
	Ordinal int `json:"ordinal"`

	// Text is the passage text.
	Text string `json:"text"`

	// Start is the character offset of the passage in the preprocessed document.
	Start int `json:"start"`

	// End is the character offset one past the end of the passage.
	End int `json:"end"`
}

// Point is a chunk paired with its embedding, as written to an Index.
type Point struct {
	// ID is the stable point identifier derived from document id and ordinal.
	ID string

	// Chunk is the stored passage and its metadata.
	Chunk Chunk

	// Vector is the chunk embedding.
	Vector []float32
}

// Result is a chunk with its relevance to a query. Results are produced per
// query and never persisted.
type Result struct {
	Chunk

	// Score is the relevance in [0,1]; higher is more relevant.
	Score float32 `json:"score"`
}

// Source returns the identifier of the document the result came from.
func (r Result) Source() string { return r.DocumentID }

// Index is the narrow contract every vector index backend implements.
// Implementations must be safe for concurrent use.
type Index interface {
	// EnsureCollection creates the backing collection for vectors of the given
	// dimension if it does not exist.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert writes points, replacing any point with the same ID.
	Upsert(ctx context.Context, points []Point) error

	// DeleteDocument removes every point belonging to documentID.
	DeleteDocument(ctx context.Context, documentID string) error

	// Search returns at most k results ordered by descending score.
	Search(ctx context.Context, vector []float32, k int) ([]Result, error)

	// Sample returns up to n stored chunks chosen at random.
	Sample(ctx context.Context, n int) ([]Chunk, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Replacer is implemented by backends that can swap a document's points in a
// single atomic operation. The Retrieval Store prefers it over
// DeleteDocument followed by Upsert.
type Replacer interface {
	ReplaceDocument(ctx context.Context, documentID string, points []Point) error
}

// Embedder converts text to dense vectors. Implementations live in
// internal/embedder.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
