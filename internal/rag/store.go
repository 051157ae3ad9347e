package rag

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/retry"
)

// pointNamespace scopes the name-based UUIDs used as point identifiers.
var pointNamespace = uuid.MustParse("6f1c1f0e-2a8e-4f43-9d7b-3c2b8e0a5d11")

// PointID returns the stable identifier of a document's chunk.
func PointID(documentID string, ordinal int) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID+"#"+strconv.Itoa(ordinal))).String()
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Dimension is the embedding dimensionality the index is created with.
	Dimension int

	// Retry governs calls to the backing index.
	Retry retry.Policy
}

// Store is the Retrieval Store. It owns the index lifecycle and is the only
// component that writes to it.
//
// Writes hold mu exclusively and queries hold it shared, so a query running
// concurrently with an upsert observes either the document's old chunk set or
// its new one. Backends implementing Replacer additionally swap the set in
// one backend operation, which keeps other processes sharing the index
// consistent as well.
type Store struct {
	index  Index
	dim    int
	policy retry.Policy
	mu     sync.RWMutex
}

// NewStore ensures the backing collection exists and returns a Store.
func NewStore(ctx context.Context, index Index, cfg StoreConfig) (*Store, error) {
	if index == nil {
		return nil, apperr.New(apperr.KindConfiguration, "rag: index must not be nil")
	}
	if cfg.Dimension <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "rag: embedding dimension must be positive, got %d", cfg.Dimension)
	}
	s := &Store{index: index, dim: cfg.Dimension, policy: cfg.Retry}
	_, err := retry.Do(ctx, s.policy, "index.ensure_collection", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, index.EnsureCollection(ctx, cfg.Dimension)
	})
	if err != nil {
		return nil, apperr.Ensure(err, apperr.KindRetrievalUnavailable, "rag: failed to prepare index")
	}
	return s, nil
}

// Dimension returns the configured embedding dimensionality.
func (s *Store) Dimension() int { return s.dim }

// Upsert replaces every chunk of documentID with chunks. embeddings[i] is the
// vector of chunks[i]. A dimension mismatch is a configuration error and is
// never retried.
func (s *Store) Upsert(ctx context.Context, documentID string, chunks []Chunk, embeddings [][]float32) error {
	if documentID == "" {
		return apperr.New(apperr.KindValidation, "rag: document id is required")
	}
	if len(chunks) != len(embeddings) {
		return apperr.Newf(apperr.KindValidation, "rag: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	points := make([]Point, len(chunks))
	for i, c := range chunks {
		if err := s.checkDimension(embeddings[i]); err != nil {
			return fmt.Errorf("rag: chunk %d of %q: %w", c.Ordinal, documentID, err)
		}
		c.DocumentID = documentID
		points[i] = Point{ID: PointID(documentID, c.Ordinal), Chunk: c, Vector: embeddings[i]}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.index.(Replacer); ok {
		_, err := retry.Do(ctx, s.policy, "index.replace", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.ReplaceDocument(ctx, documentID, points)
		})
		return apperr.Ensure(err, apperr.KindRetrievalUnavailable, "rag: upsert failed")
	}

	if err := s.deleteLocked(ctx, documentID); err != nil {
		return err
	}
	_, err := retry.Do(ctx, s.policy, "index.upsert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.index.Upsert(ctx, points)
	})
	if err != nil {
		logging.FromContext(ctx).Error("document left without chunks after failed upsert",
			"document_id", documentID, "error", err)
		return apperr.Ensure(err, apperr.KindRetrievalUnavailable, "rag: upsert failed")
	}
	return nil
}

// Delete removes every chunk of documentID.
func (s *Store) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(ctx, documentID)
}

// Query returns at most k results ordered by descending relevance.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	if err := s.checkDimension(embedding); err != nil {
		return nil, fmt.Errorf("rag: query: %w", err)
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := retry.Do(ctx, s.policy, "index.search", func(ctx context.Context) ([]Result, error) {
		return s.index.Search(ctx, embedding, k)
	})
	if err != nil {
		return nil, apperr.Ensure(err, apperr.KindRetrievalUnavailable, "rag: query failed")
	}
	SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Sample returns up to n random stored chunks.
func (s *Store) Sample(ctx context.Context, n int) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, err := retry.Do(ctx, s.policy, "index.sample", func(ctx context.Context) ([]Chunk, error) {
		return s.index.Sample(ctx, n)
	})
	if err != nil {
		return nil, apperr.Ensure(err, apperr.KindRetrievalUnavailable, "rag: sample failed")
	}
	return chunks, nil
}

// Ping checks the backing index without retrying.
func (s *Store) Ping(ctx context.Context) error {
	return s.index.Ping(ctx)
}

// Close releases the backing index.
func (s *Store) Close() error {
	return s.index.Close()
}

func (s *Store) deleteLocked(ctx context.Context, documentID string) error {
	_, err := retry.Do(ctx, s.policy, "index.delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.index.DeleteDocument(ctx, documentID)
	})
	return apperr.Ensure(err, apperr.KindRetrievalUnavailable, "rag: delete failed")
}

func (s *Store) checkDimension(v []float32) error {
	if len(v) != s.dim {
		return apperr.Newf(apperr.KindConfiguration,
			"embedding has dimension %d, index is configured for %d", len(v), s.dim)
	}
	return nil
}
