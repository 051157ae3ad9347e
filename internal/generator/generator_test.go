package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/rag"
	"github.com/54b3r/raga-go/internal/retry"
)

// fakeChat is a scripted chat model. Each call pops the next reply; errs[i]
// takes precedence over replies[i].
type fakeChat struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	last    []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.last = input
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.replies) {
		return schema.AssistantMessage(f.replies[i], nil), nil
	}
	return schema.AssistantMessage("", nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

func results() []rag.Result {
	return []rag.Result{
		{Chunk: rag.Chunk{DocumentID: "company.txt", Ordinal: 0, Text: "RAG Technologies has 50 employees."}, Score: 0.91},
		{Chunk: rag.Chunk{DocumentID: "history.txt", Ordinal: 2, Text: "The company was founded in 2015."}, Score: 0.62},
	}
}

func TestBuildPrompt_TagsSourcesInOrder(t *testing.T) {
	t.Parallel()
	p := BuildPrompt("How many employees?", results())

	first := strings.Index(p, "Source: company.txt")
	second := strings.Index(p, "Source: history.txt")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
	assert.Contains(t, p, "Relevance: 0.91")
	assert.Contains(t, p, "Content: RAG Technologies has 50 employees.")
	assert.Contains(t, p, snippetSeparator)
	assert.True(t, strings.HasSuffix(p, "QUESTION:\nHow many employees?\n\nANSWER:"))
}

func TestBuildPrompt_EmptyContext(t *testing.T) {
	t.Parallel()
	p := BuildPrompt("How many employees?", nil)
	assert.Contains(t, p, "No relevant context was found")
	assert.Contains(t, p, NoContextAnswer)
	assert.Contains(t, p, "QUESTION:\nHow many employees?")
	assert.NotContains(t, p, "Source:")
}

func TestAnswer_UsesModel(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{replies: []string{"  RAG Technologies has 50 employees.  "}}
	g, err := New(Config{ChatModel: chat, Retry: testPolicy()})
	require.NoError(t, err)

	got, used, err := g.Answer(context.Background(), "How many employees?", results())
	require.NoError(t, err)
	assert.Equal(t, "RAG Technologies has 50 employees.", got)
	assert.Equal(t, results(), used)
	require.Len(t, chat.last, 2)
	assert.Equal(t, schema.System, chat.last[0].Role)
	assert.Contains(t, chat.last[1].Content, "Source: company.txt")
}

func TestAnswer_NoContextSkipsModel(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	g, err := New(Config{ChatModel: chat, Retry: testPolicy()})
	require.NoError(t, err)

	got, used, err := g.Answer(context.Background(), "How many employees?", nil)
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, got)
	assert.Nil(t, used)
	assert.Zero(t, chat.calls)
}

func TestAnswer_NothingFitsBudgetSkipsModel(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{replies: []string{"should not be used"}}
	g, err := New(Config{ChatModel: chat, Retry: testPolicy(), MaxContextTokens: 250})
	require.NoError(t, err)

	long := []rag.Result{{Chunk: rag.Chunk{DocumentID: "a", Text: strings.Repeat("x", 1200)}, Score: 0.9}}
	got, used, err := g.Answer(context.Background(), "q", long)
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, got)
	assert.Empty(t, used)
	assert.Zero(t, chat.calls)
}

func TestGenerate_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{
		errs:    []error{errors.New("503 upstream"), errors.New("timeout")},
		replies: []string{"", "", "fifty"},
	}
	g, err := New(Config{ChatModel: chat, Retry: testPolicy()})
	require.NoError(t, err)

	got, err := g.Complete(context.Background(), "how many?")
	require.NoError(t, err)
	assert.Equal(t, "fifty", got)
	assert.Equal(t, 3, chat.calls)
}

func TestGenerate_ExhaustionIsGenerationUnavailable(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	chat := &fakeChat{errs: []error{boom, boom, boom, boom}}
	g, err := New(Config{ChatModel: chat, Retry: testPolicy()})
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindGenerationUnavailable))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, chat.calls)
}

func TestGenerate_EmptyResponseIsRetried(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{replies: []string{"   ", "ok"}}
	g, err := New(Config{ChatModel: chat, Retry: testPolicy()})
	require.NoError(t, err)

	got, err := g.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestMessages_DropsLowestRankedToFitBudget(t *testing.T) {
	t.Parallel()
	long := []rag.Result{
		{Chunk: rag.Chunk{DocumentID: "a", Text: strings.Repeat("alpha ", 200)}, Score: 0.9},
		{Chunk: rag.Chunk{DocumentID: "b", Text: strings.Repeat("beta ", 200)}, Score: 0.8},
	}
	// The fixed prompt costs roughly 200 tokens and each snippet roughly 300.
	g, err := New(Config{ChatModel: &fakeChat{}, Retry: testPolicy(), MaxContextTokens: 600})
	require.NoError(t, err)

	msgs, kept := g.Messages(context.Background(), "q", long)
	require.Len(t, kept, 1)
	assert.Equal(t, "a", kept[0].DocumentID)
	assert.Contains(t, msgs[1].Content, "Source: a")
	assert.NotContains(t, msgs[1].Content, "Source: b")
}

func TestNew_RequiresModel(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Retry: testPolicy()})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}
