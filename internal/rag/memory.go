package rag

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
)

// MemoryIndex is an in-process Index using brute-force cosine similarity.
// It backs tests and single-process deployments that do not need durability.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string][]Point
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string][]Point)}
}

// EnsureCollection records the vector dimension.
func (m *MemoryIndex) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("memory: invalid dimension %d", dimension)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimension != 0 && m.dimension != dimension {
		return fmt.Errorf("memory: collection has dimension %d, requested %d", m.dimension, dimension)
	}
	m.dimension = dimension
	return nil
}

// Upsert writes points, replacing any point with the same ID.
func (m *MemoryIndex) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if err := m.check(p); err != nil {
			return err
		}
	}
	for _, p := range points {
		pts := m.docs[p.Chunk.DocumentID]
		if i := slices.IndexFunc(pts, func(q Point) bool { return q.ID == p.ID }); i >= 0 {
			pts[i] = p
			continue
		}
		m.docs[p.Chunk.DocumentID] = append(pts, p)
	}
	return nil
}

// ReplaceDocument swaps the points of documentID under a single lock.
func (m *MemoryIndex) ReplaceDocument(_ context.Context, documentID string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if err := m.check(p); err != nil {
			return err
		}
		if p.Chunk.DocumentID != documentID {
			return fmt.Errorf("memory: point %s belongs to %q, not %q", p.ID, p.Chunk.DocumentID, documentID)
		}
	}
	if len(points) == 0 {
		delete(m.docs, documentID)
		return nil
	}
	m.docs[documentID] = slices.Clone(points)
	return nil
}

// DeleteDocument removes every point of documentID.
func (m *MemoryIndex) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
	return nil
}

// Search scores every stored point against vector.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	var results []Result
	for _, pts := range m.docs {
		for _, p := range pts {
			results = append(results, Result{
				Chunk: p.Chunk,
				Score: NormalizeScore(CosineSimilarity(vector, p.Vector)),
			})
		}
	}
	SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Sample returns up to n random chunks.
func (m *MemoryIndex) Sample(_ context.Context, n int) ([]Chunk, error) {
	m.mu.RLock()
	var all []Chunk
	for _, pts := range m.docs {
		for _, p := range pts {
			all = append(all, p.Chunk)
		}
	}
	m.mu.RUnlock()

	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if len(all) > n {
		all = all[:max(n, 0)]
	}
	return all, nil
}

// Len returns the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, pts := range m.docs {
		n += len(pts)
	}
	return n
}

// Ping always succeeds.
func (m *MemoryIndex) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

func (m *MemoryIndex) check(p Point) error {
	if m.dimension != 0 && len(p.Vector) != m.dimension {
		return fmt.Errorf("memory: point %s has dimension %d, collection expects %d", p.ID, len(p.Vector), m.dimension)
	}
	return nil
}
