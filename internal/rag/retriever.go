package rag

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/retry"
)

const (
	// DefaultTopK is the maximum number of context snippets per query.
	DefaultTopK = 3
	// DefaultMinScore is the relevance threshold below which results are dropped.
	DefaultMinScore float32 = 0.5
)

var (
	queryPunct = regexp.MustCompile(`[^\p{L}\p{N}\s?]+`)
	querySpace = regexp.MustCompile(`\s+`)
)

// Searcher is the read side of the Retrieval Store.
type Searcher interface {
	Query(ctx context.Context, embedding []float32, k int) ([]Result, error)
}

// RetrieverConfig configures a Retriever.
type RetrieverConfig struct {
	// TopK is used when Retrieve is called with k <= 0.
	TopK int

	// MinScore is used when Retrieve is called with a negative minScore.
	MinScore float32

	// CacheSize bounds the exact-query embedding cache. Zero disables it.
	CacheSize int

	// Retry governs embedding calls.
	Retry retry.Policy
}

// Retriever turns a query into a context bundle. It only reads the store.
type Retriever struct {
	embedder Embedder
	store    Searcher
	cfg      RetrieverConfig
	cache    *lru.Cache[string, []float32]
}

// NewRetriever constructs a Retriever.
func NewRetriever(embedder Embedder, store Searcher, cfg RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinScore < 0 || cfg.MinScore > 1 {
		return nil, apperr.Newf(apperr.KindConfiguration, "rag: min score must be in [0,1], got %g", cfg.MinScore)
	}
	r := &Retriever{embedder: embedder, store: store, cfg: cfg}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("rag: failed to create embedding cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// TopK returns the configured default result count.
func (r *Retriever) TopK() int { return r.cfg.TopK }

// MinScore returns the configured default relevance threshold.
func (r *Retriever) MinScore() float32 { return r.cfg.MinScore }

// Retrieve embeds query, fetches the k nearest chunks and drops those scoring
// below minScore. An empty bundle is a valid "no relevant context" outcome.
// k <= 0 and minScore < 0 select the configured defaults.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float32) ([]Result, error) {
	if k <= 0 {
		k = r.cfg.TopK
	}
	if minScore < 0 {
		minScore = r.cfg.MinScore
	}
	text := PreprocessQuery(query)
	if text == "" {
		return nil, apperr.New(apperr.KindValidation, "query must not be empty")
	}

	vec, err := r.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	results, err := r.store.Query(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	kept := make([]Result, 0, len(results))
	for _, res := range results {
		if res.Score >= minScore {
			kept = append(kept, res)
		}
	}
	SortResults(kept)

	logging.FromContext(ctx).Debug("retrieved context",
		"candidates", len(results),
		"kept", len(kept),
		"k", k,
		"min_score", minScore,
	)
	return kept, nil
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float32, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(text); ok {
			return v, nil
		}
	}
	vecs, err := retry.Do(ctx, r.cfg.Retry, "embed.query", func(ctx context.Context) ([][]float32, error) {
		return r.embedder.Embed(ctx, []string{text})
	})
	if err != nil {
		return nil, apperr.Ensure(err, apperr.KindRetrievalUnavailable, "rag: embedding query failed")
	}
	if len(vecs) != 1 {
		return nil, apperr.Newf(apperr.KindRetrievalUnavailable, "rag: embedder returned %d vectors for one query", len(vecs))
	}
	if r.cache != nil {
		r.cache.Add(text, vecs[0])
	}
	return vecs[0], nil
}

// PreprocessQuery collapses whitespace and strips punctuation other than "?".
func PreprocessQuery(q string) string {
	q = queryPunct.ReplaceAllString(q, "")
	return strings.TrimSpace(querySpace.ReplaceAllString(q, " "))
}

// SortResults orders results by descending score. Ties go to the earlier
// chunk ordinal, then to the document id, so ordering is deterministic.
func SortResults(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Ordinal != b.Ordinal:
			return a.Ordinal - b.Ordinal
		}
		return strings.Compare(a.DocumentID, b.DocumentID)
	})
}
