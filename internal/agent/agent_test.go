package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/chunker"
	"github.com/54b3r/raga-go/internal/embedder"
	"github.com/54b3r/raga-go/internal/generator"
	"github.com/54b3r/raga-go/internal/ingestion"
	"github.com/54b3r/raga-go/internal/rag"
	"github.com/54b3r/raga-go/internal/retry"
	"github.com/54b3r/raga-go/internal/router"
	"github.com/54b3r/raga-go/internal/store"
	"github.com/54b3r/raga-go/internal/tools"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

type fakeRetriever struct {
	results []rag.Result
	err     error
	block   bool
	calls   int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, _ string, _ int, _ float32) ([]rag.Result, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.results, f.err
}

type fakeAnswerer struct {
	answer     string
	err        error
	completion string
	calls      int
	// shown, when set, caps how many results the model is said to have seen.
	shown *int
}

func (f *fakeAnswerer) Answer(_ context.Context, _ string, results []rag.Result) (string, []rag.Result, error) {
	f.calls++
	if f.err != nil {
		return "", nil, f.err
	}
	if f.shown != nil {
		results = results[:min(*f.shown, len(results))]
	}
	if len(results) == 0 {
		return generator.NoContextAnswer, nil, nil
	}
	return f.answer, results, nil
}

func (f *fakeAnswerer) Complete(context.Context, string) (string, error) {
	f.calls++
	return f.completion, f.err
}

type fakeDefiner struct {
	def   tools.Definition
	err   error
	terms []string
}

func (f *fakeDefiner) Define(_ context.Context, term string) (tools.Definition, error) {
	f.terms = append(f.terms, term)
	if f.err != nil {
		return tools.Definition{}, f.err
	}
	d := f.def
	d.Term = term
	return d, nil
}

type fakeObserver struct {
	mu        sync.Mutex
	queries   []string
	retrieved []int
}

func (f *fakeObserver) ObserveQuery(tool, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, tool+"/"+status)
}

func (f *fakeObserver) ObserveRetrieval(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieved = append(f.retrieved, n)
}

type fakeSampler struct {
	chunks []rag.Chunk
	err    error
}

func (f *fakeSampler) Sample(context.Context, int) ([]rag.Chunk, error) { return f.chunks, f.err }

type deps struct {
	retriever *fakeRetriever
	answerer  *fakeAnswerer
	definer   *fakeDefiner
	observer  *fakeObserver
	log       *store.SQLiteStore
}

func newOrchestrator(t *testing.T, mutate ...func(*Config)) (*Orchestrator, *deps) {
	t.Helper()
	calc, err := tools.NewCalculator()
	require.NoError(t, err)
	log, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	d := &deps{
		retriever: &fakeRetriever{results: []rag.Result{
			{Chunk: rag.Chunk{DocumentID: "company.txt", Ordinal: 0, Text: "RAG Technologies has 50 employees."}, Score: 0.8},
		}},
		answerer: &fakeAnswerer{answer: "RAG Technologies has 50 employees."},
		definer:  &fakeDefiner{def: tools.Definition{Text: "Noun\n  a. A test definition.", Source: tools.SourceLookup}},
		observer: &fakeObserver{},
		log:      log,
	}
	cfg := Config{
		Retriever:  d.retriever,
		Generator:  d.answerer,
		Calculator: calc,
		Dictionary: d.definer,
		Log:        log,
		Observer:   d.observer,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	o, err := New(cfg)
	require.NoError(t, err)
	return o, d
}

func TestQuery_Calculator(t *testing.T) {
	t.Parallel()
	o, d := newOrchestrator(t)

	resp, err := o.Query(context.Background(), "What is 15% of 240?")
	require.NoError(t, err)
	assert.Equal(t, router.RouteCalculator, resp.Tool)
	assert.Contains(t, resp.Answer, "36")
	assert.NotEmpty(t, resp.Rationale)
	assert.Equal(t, StateCompleted, resp.State)
	assert.Empty(t, resp.Snippets)
	assert.Zero(t, d.retriever.calls)
	assert.Zero(t, d.answerer.calls)
}

func TestQuery_Dictionary(t *testing.T) {
	t.Parallel()
	o, d := newOrchestrator(t)

	resp, err := o.Query(context.Background(), "Define photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, router.RouteDictionary, resp.Tool)
	assert.Equal(t, []string{"photosynthesis"}, d.definer.terms)
	assert.Equal(t, string(tools.SourceLookup), resp.Source)
	assert.Contains(t, resp.Answer, "A test definition.")
	assert.Zero(t, d.retriever.calls)
}

func TestQuery_DocumentQA(t *testing.T) {
	t.Parallel()
	o, d := newOrchestrator(t)

	resp, err := o.Query(context.Background(), "How many employees does RAG Technologies have?")
	require.NoError(t, err)
	assert.Equal(t, router.RouteDocumentQA, resp.Tool)
	assert.Equal(t, SourceDocuments, resp.Source)
	assert.Equal(t, "RAG Technologies has 50 employees.", resp.Answer)
	require.Len(t, resp.Snippets, 1)
	assert.Equal(t, "company.txt", resp.Snippets[0].Source)
	assert.InDelta(t, 0.8, resp.Snippets[0].Score, 1e-6)
	assert.Equal(t, []int{1}, d.observer.retrieved)
}

func TestQuery_NoContext(t *testing.T) {
	t.Parallel()
	o, d := newOrchestrator(t)
	d.retriever.results = nil

	resp, err := o.Query(context.Background(), "Who is the CEO?")
	require.NoError(t, err)
	assert.Equal(t, generator.NoContextAnswer, resp.Answer)
	assert.Equal(t, SourceNoContext, resp.Source)
	assert.Empty(t, resp.Snippets)
}

func TestQuery_SnippetsAreWhatTheModelSaw(t *testing.T) {
	t.Parallel()

	results := []rag.Result{
		{Chunk: rag.Chunk{DocumentID: "company.txt", Text: "RAG Technologies has 50 employees."}, Score: 0.8},
		{Chunk: rag.Chunk{DocumentID: "history.txt", Ordinal: 3, Text: "Founded in 2015."}, Score: 0.5},
	}
	cases := []struct {
		name       string
		shown      int
		wantSource string
		wantAnswer string
		wantDocs   []string
	}{
		{name: "budget keeps top result", shown: 1, wantSource: SourceDocuments, wantAnswer: "fifty", wantDocs: []string{"company.txt"}},
		{name: "budget keeps nothing", shown: 0, wantSource: SourceNoContext, wantAnswer: generator.NoContextAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o, d := newOrchestrator(t)
			d.retriever.results = results
			d.answerer.answer = "fifty"
			d.answerer.shown = &tc.shown

			resp, err := o.Query(context.Background(), "How many employees does RAG Technologies have?")
			require.NoError(t, err)
			assert.Equal(t, tc.wantSource, resp.Source)
			assert.Equal(t, tc.wantAnswer, resp.Answer)
			var docs []string
			for _, s := range resp.Snippets {
				docs = append(docs, s.Source)
			}
			assert.Equal(t, tc.wantDocs, docs)
		})
	}
}

func TestQuery_EmptyQuery(t *testing.T) {
	t.Parallel()
	o, _ := newOrchestrator(t)

	resp, err := o.Query(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, StateFailed, resp.State)
	assert.Empty(t, resp.Tool)
}

func TestQuery_FailureKeepsToolAndDoesNotFallBack(t *testing.T) {
	t.Parallel()
	o, d := newOrchestrator(t)

	resp, err := o.Query(context.Background(), "What is 10 / 0?")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDivisionByZero))
	assert.Equal(t, "calculator", apperr.ToolOf(err))
	assert.Equal(t, router.RouteCalculator, resp.Tool)
	assert.NotEmpty(t, resp.Rationale)
	assert.Equal(t, StateFailed, resp.State)
	assert.Empty(t, resp.Answer)
	assert.Zero(t, d.retriever.calls)
	assert.Zero(t, d.answerer.calls)
	assert.Empty(t, d.definer.terms)
}

func TestQuery_GenerationFailureClearsSnippets(t *testing.T) {
	t.Parallel()
	o, d := newOrchestrator(t)
	d.answerer.err = apperr.New(apperr.KindGenerationUnavailable, "model down")

	resp, err := o.Query(context.Background(), "Where is the office?")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindGenerationUnavailable))
	assert.Equal(t, "document_qa", apperr.ToolOf(err))
	assert.Empty(t, resp.Snippets)
	assert.Empty(t, resp.Source)
}

func TestQuery_Timeout(t *testing.T) {
	t.Parallel()
	o, d := newOrchestrator(t, func(c *Config) { c.Timeout = 20 * time.Millisecond })
	d.retriever.block = true

	resp, err := o.Query(context.Background(), "Where is the office?")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTimeout))
	assert.Equal(t, "document_qa", apperr.ToolOf(err))
	assert.Equal(t, StateFailed, resp.State)
}

func TestQuery_RecordsOutcomes(t *testing.T) {
	t.Parallel()
	o, d := newOrchestrator(t)
	ctx := context.Background()

	_, err := o.Query(ctx, "What is 2 + 2?")
	require.NoError(t, err)
	_, err = o.Query(ctx, "What is 1 / 0?")
	require.Error(t, err)

	recs, err := d.log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "calculator", recs[0].Tool)
	assert.Equal(t, store.StatusCompleted, recs[0].Status)
	assert.Equal(t, store.StatusFailed, recs[1].Status)
	assert.Equal(t, string(apperr.KindDivisionByZero), recs[1].Kind)

	assert.Equal(t, []string{"calculator/completed", "calculator/failed"}, d.observer.queries)
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestSuggest(t *testing.T) {
	t.Parallel()
	chunks := []rag.Chunk{{DocumentID: "company.txt", Text: "RAG Technologies has 50 employees."}}

	tests := []struct {
		name       string
		sampler    *fakeSampler
		completion string
		genErr     error
		want       int
		wantKind   apperr.Kind
	}{
		{
			name:       "parsed",
			sampler:    &fakeSampler{chunks: chunks},
			completion: "```json\n[{\"question\":\"How many employees?\",\"context\":\"headcount\"}]\n```",
			want:       1,
		},
		{name: "empty index", sampler: &fakeSampler{}, want: 0},
		{name: "unparseable output", sampler: &fakeSampler{chunks: chunks}, completion: "sorry, no", want: 0},
		{
			name:     "generation failure",
			sampler:  &fakeSampler{chunks: chunks},
			genErr:   errors.New("connection refused"),
			wantKind: apperr.KindGenerationUnavailable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o, d := newOrchestrator(t, func(c *Config) { c.Sampler = tc.sampler })
			d.answerer.completion = tc.completion
			d.answerer.err = tc.genErr

			got, err := o.Suggest(context.Background())
			if tc.wantKind != "" {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, tc.wantKind))
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}
}

// echoChat answers every prompt with a fixed reply and counts calls.
type echoChat struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (e *echoChat) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return schema.AssistantMessage(e.reply, nil), nil
}

func (e *echoChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

// pipeline wires the real chunker, hash embedder, in-memory index, retriever,
// generator and calculator around a scripted chat model.
func pipeline(t *testing.T) (*Orchestrator, *ingestion.Pipeline, *echoChat) {
	t.Helper()
	ctx := context.Background()
	const dim = 128

	ch, err := chunker.New(200, 40)
	require.NoError(t, err)
	emb := embedder.NewHashEmbedder(dim)
	st, err := rag.NewStore(ctx, rag.NewMemoryIndex(), rag.StoreConfig{Dimension: dim, Retry: testPolicy()})
	require.NoError(t, err)
	ret, err := rag.NewRetriever(emb, st, rag.RetrieverConfig{TopK: 3, Retry: testPolicy()})
	require.NoError(t, err)
	chat := &echoChat{reply: "RAG Technologies has 50 employees."}
	gen, err := generator.New(generator.Config{ChatModel: chat, Retry: testPolicy()})
	require.NoError(t, err)
	calc, err := tools.NewCalculator()
	require.NoError(t, err)

	ing, err := ingestion.NewPipeline(ingestion.Config{Chunker: ch, Embedder: emb, Store: st, Retry: testPolicy()})
	require.NoError(t, err)
	o, err := New(Config{
		Retriever:  ret,
		Generator:  gen,
		Calculator: calc,
		Dictionary: &fakeDefiner{},
		Sampler:    st,
	})
	require.NoError(t, err)
	return o, ing, chat
}

func TestEndToEnd_DocumentAnswer(t *testing.T) {
	t.Parallel()
	o, ing, chat := pipeline(t)
	ctx := context.Background()

	rep := ing.Ingest(ctx, []ingestion.Document{
		{Name: "company.txt", Text: "RAG Technologies has 50 employees. The company builds retrieval systems."},
		{Name: "history.txt", Text: "The company was founded in 2015 in Lisbon."},
	}, nil)
	require.Empty(t, rep.Failed)

	resp, err := o.Query(ctx, "How many employees does RAG Technologies have?")
	require.NoError(t, err)
	assert.Equal(t, router.RouteDocumentQA, resp.Tool)
	assert.Equal(t, "RAG Technologies has 50 employees.", resp.Answer)
	require.NotEmpty(t, resp.Snippets)
	assert.Equal(t, "company.txt", resp.Snippets[0].Source)
	for i := 1; i < len(resp.Snippets); i++ {
		assert.GreaterOrEqual(t, resp.Snippets[i-1].Score, resp.Snippets[i].Score)
	}
	assert.Equal(t, 1, chat.calls)

	calc, err := o.Query(ctx, "What is 3 * (4 + 5)?")
	require.NoError(t, err)
	assert.Equal(t, router.RouteCalculator, calc.Tool)
	assert.Contains(t, calc.Answer, "27")
	assert.Equal(t, 1, chat.calls)
}

func TestEndToEnd_EmptyIndexAnswersWithoutModel(t *testing.T) {
	t.Parallel()
	o, _, chat := pipeline(t)

	resp, err := o.Query(context.Background(), "How many employees does RAG Technologies have?")
	require.NoError(t, err)
	assert.Equal(t, generator.NoContextAnswer, resp.Answer)
	assert.Equal(t, SourceNoContext, resp.Source)
	assert.Zero(t, chat.calls)

	suggestions, err := o.Suggest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}
