// Package ingestion implements the document ingestion pipeline:
// preprocess → chunk → embed → store upsert → registry put.
// Documents are processed concurrently and one document's failure never
// aborts the others.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/chunker"
	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/rag"
	"github.com/54b3r/raga-go/internal/retry"
	"github.com/54b3r/raga-go/internal/store"
)

const (
	// DefaultConcurrency is the number of documents processed at once.
	DefaultConcurrency = 4
	// DefaultBatchSize is the number of chunks sent per embedding call.
	DefaultBatchSize = 64
	// maxFetchBytes caps a fetched document body.
	maxFetchBytes = 10 << 20
)

// Document is one named plain-text document.
type Document struct {
	// Name identifies the document; re-ingesting a name replaces it.
	Name string `json:"name"`
	// Text is the raw document text.
	Text string `json:"text"`
}

// Report lists the outcome of an Ingest call.
type Report struct {
	// Succeeded holds the ingested document names in input order.
	Succeeded []string
	// Failed maps document names to their failure.
	Failed map[string]error
}

// Writer is the write side of the Retrieval Store.
type Writer interface {
	Upsert(ctx context.Context, documentID string, chunks []rag.Chunk, embeddings [][]float32) error
	Delete(ctx context.Context, documentID string) error
}

// Observer receives per-document outcomes, e.g. for metrics. Optional.
type Observer interface {
	ObserveIngest(status string, chunks int)
}

// Config holds the dependencies and tuning of a Pipeline.
type Config struct {
	Chunker  *chunker.Chunker
	Embedder rag.Embedder
	Store    Writer
	// Registry keeps the raw text of ingested documents. Optional.
	Registry store.DocumentRegistry
	// Observer receives outcomes. Optional.
	Observer Observer
	// Retry governs embedding calls.
	Retry retry.Policy
	// Concurrency defaults to DefaultConcurrency.
	Concurrency int
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// HTTPTimeout bounds Fetch. Defaults to 30s.
	HTTPTimeout time.Duration
}

// Pipeline ingests documents into the Retrieval Store.
type Pipeline struct {
	cfg        Config
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Chunker == nil:
		return nil, apperr.New(apperr.KindConfiguration, "ingestion: chunker must not be nil")
	case cfg.Embedder == nil:
		return nil, apperr.New(apperr.KindConfiguration, "ingestion: embedder must not be nil")
	case cfg.Store == nil:
		return nil, apperr.New(apperr.KindConfiguration, "ingestion: store must not be nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Pipeline{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// Ingest processes docs concurrently. Every document ends up in exactly one
// of the report's lists. A document name repeated within one call is
// ingested once; later copies are reported as failed.
func (p *Pipeline) Ingest(ctx context.Context, docs []Document, progress func(msg string)) Report {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)

	docs = slices.Clone(docs)
	for i := range docs {
		docs[i].Name = strings.TrimSpace(docs[i].Name)
	}
	errs := make([]error, len(docs))
	seen := make(map[string]bool, len(docs))
	repeated := make([]bool, len(docs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	var mu sync.Mutex

	for i, doc := range docs {
		if seen[doc.Name] && doc.Name != "" {
			errs[i] = apperr.Newf(apperr.KindValidation, "document %q appears more than once", doc.Name)
			repeated[i] = true
			continue
		}
		seen[doc.Name] = true
		g.Go(func() error {
			n, err := p.ingestOne(ctx, doc)
			errs[i] = err
			status := "succeeded"
			if err != nil {
				status = "failed"
				log.Warn("ingestion: document failed", "document_id", doc.Name, "kind", apperr.KindOf(err), "error", err)
			} else {
				mu.Lock()
				progress(fmt.Sprintf("ingested %d chunks from %s", n, doc.Name))
				mu.Unlock()
			}
			if p.cfg.Observer != nil {
				p.cfg.Observer.ObserveIngest(status, n)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Succeeded: []string{}, Failed: map[string]error{}}
	for i, doc := range docs {
		if errs[i] == nil {
			rep.Succeeded = append(rep.Succeeded, doc.Name)
			continue
		}
		name := doc.Name
		if _, dup := rep.Failed[name]; dup || name == "" || repeated[i] {
			name = fmt.Sprintf("%s#%d", doc.Name, i)
		}
		rep.Failed[name] = errs[i]
	}
	log.Info("ingestion finished", "succeeded", len(rep.Succeeded), "failed", len(rep.Failed))
	return rep
}

func (p *Pipeline) ingestOne(ctx context.Context, doc Document) (int, error) {
	name := doc.Name
	if name == "" {
		return 0, apperr.New(apperr.KindValidation, "document name must not be empty")
	}
	text := chunker.Preprocess(doc.Text)
	if text == "" {
		return 0, apperr.Newf(apperr.KindValidation, "document %q has no text", name)
	}

	parts := p.cfg.Chunker.Split(text)
	chunks := make([]rag.Chunk, len(parts))
	texts := make([]string, len(parts))
	for i, c := range parts {
		chunks[i] = rag.Chunk{DocumentID: name, Ordinal: c.Ordinal, Text: c.Text, Start: c.Start, End: c.End}
		texts[i] = c.Text
	}

	embeddings, err := p.embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("ingestion: embedding %s: %w", name, err)
	}
	if err := p.cfg.Store.Upsert(ctx, name, chunks, embeddings); err != nil {
		return 0, fmt.Errorf("ingestion: storing %s: %w", name, err)
	}
	if p.cfg.Registry != nil {
		rec := store.Document{ID: name, Content: doc.Text, ChunkCount: len(chunks), IngestedAt: time.Now()}
		if err := p.cfg.Registry.Put(ctx, rec); err != nil {
			return 0, fmt.Errorf("ingestion: registering %s: %w", name, err)
		}
	}
	return len(chunks), nil
}

// embed vectorizes texts in batches, retrying each batch under the policy.
func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		batch := texts[start:min(start+p.cfg.BatchSize, len(texts))]
		vecs, err := retry.Do(ctx, p.cfg.Retry, "embed.documents", func(ctx context.Context) ([][]float32, error) {
			return p.cfg.Embedder.Embed(ctx, batch)
		})
		if err != nil {
			return nil, apperr.Ensure(err, apperr.KindRetrievalUnavailable, "embedding service failed")
		}
		if len(vecs) != len(batch) {
			return nil, apperr.Newf(apperr.KindRetrievalUnavailable, "embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Delete removes a document from the index and the registry.
func (p *Pipeline) Delete(ctx context.Context, name string) error {
	if p.cfg.Registry != nil {
		if _, err := p.cfg.Registry.Get(ctx, name); err != nil {
			return err
		}
	}
	if err := p.cfg.Store.Delete(ctx, name); err != nil {
		return fmt.Errorf("ingestion: deleting %s from index: %w", name, err)
	}
	if p.cfg.Registry != nil {
		if err := p.cfg.Registry.Delete(ctx, name); err != nil {
			return fmt.Errorf("ingestion: deleting %s from registry: %w", name, err)
		}
	}
	return nil
}

// Reindex re-ingests every registered document, e.g. after switching the
// index backend or the chunking parameters.
func (p *Pipeline) Reindex(ctx context.Context, progress func(msg string)) (Report, error) {
	if p.cfg.Registry == nil {
		return Report{}, apperr.New(apperr.KindConfiguration, "ingestion: reindex needs a document registry")
	}
	stored, err := p.cfg.Registry.List(ctx)
	if err != nil {
		return Report{}, err
	}
	docs := make([]Document, len(stored))
	for i, d := range stored {
		docs[i] = Document{Name: d.ID, Text: d.Content}
	}
	return p.Ingest(ctx, docs, progress), nil
}

// Fetch downloads a plain-text document. Its name is the last path segment
// of the URL.
func (p *Pipeline) Fetch(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, apperr.Wrap(err, apperr.KindValidation, "invalid document URL")
	}
	req.Header.Set("User-Agent", "raga-go/1.0 (document ingestion)")
	req.Header.Set("Accept", "text/plain")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("ingestion: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("ingestion: unexpected status %d for %s", resp.StatusCode, url)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "text/plain" {
			return Document{}, apperr.Newf(apperr.KindValidation, "%s is %s, only text/plain is supported", url, mt)
		}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Document{}, fmt.Errorf("ingestion: reading %s: %w", url, err)
	}

	name := path.Base(req.URL.Path)
	if name == "/" || name == "." || name == "" {
		name = req.URL.Host
	}
	return Document{Name: name, Text: string(body)}, nil
}
