// Package generator assembles grounded prompts from retrieved context and
// calls the chat model with bounded retry.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/budget"
	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/rag"
	"github.com/54b3r/raga-go/internal/retry"
)

// NoContextAnswer is returned for document questions when retrieval found
// nothing relevant. No model call is made in that case.
const NoContextAnswer = "I don't have enough information to answer that question based on the available documents."

const systemPrompt = `You are a helpful assistant that answers questions using only the context provided to you.

Guidelines:
1. Use only the information in the CONTEXT section. Do not rely on outside knowledge.
2. If the context does not contain the answer, reply exactly: "` + NoContextAnswer + `"
3. If pieces of context conflict, say so and describe each position.
4. Mention the source of the facts you use, e.g. (source: handbook.txt).
5. Answer clearly and concisely in a professional tone.`

const noContextBlock = `No relevant context was found in the indexed documents.
Do not make claims about the documents. Reply exactly: "` + NoContextAnswer + `"`

// snippetSeparator divides context snippets in the prompt.
const snippetSeparator = "\n---\n"

// Config holds the dependencies of a Generator.
type Config struct {
	// ChatModel is the backend constructed by the provider factory.
	ChatModel model.BaseChatModel
	// Retry bounds repeated model calls.
	Retry retry.Policy
	// MaxContextTokens is the estimated input budget. Lowest ranked snippets
	// are left out to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Generator owns prompt construction and answer generation.
type Generator struct {
	chat      model.BaseChatModel
	policy    retry.Policy
	maxTokens int
}

// New constructs a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.ChatModel == nil {
		return nil, apperr.New(apperr.KindConfiguration, "generator: ChatModel must not be nil")
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}
	maxTokens := cfg.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	return &Generator{chat: cfg.ChatModel, policy: cfg.Retry, maxTokens: maxTokens}, nil
}

// FormatSnippet renders one retrieved chunk with its source tag.
func FormatSnippet(r rag.Result) string {
	return fmt.Sprintf("Source: %s\nRelevance: %.2f\nContent: %s", r.Source(), r.Score, r.Text)
}

// BuildPrompt concatenates the question with the context snippets in the
// order given. An empty bundle still yields a well-formed prompt that tells
// the model not to make document claims.
func BuildPrompt(query string, results []rag.Result) string {
	snippets := make([]string, len(results))
	for i, r := range results {
		snippets[i] = FormatSnippet(r)
	}
	return renderPrompt(query, snippets)
}

func renderPrompt(query string, snippets []string) string {
	var sb strings.Builder
	sb.WriteString("CONTEXT:\n")
	if len(snippets) == 0 {
		sb.WriteString(noContextBlock)
	} else {
		sb.WriteString(strings.Join(snippets, snippetSeparator))
	}
	sb.WriteString("\n\nQUESTION:\n")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\nANSWER:")
	return sb.String()
}

// Messages builds the chat messages for a grounded answer, leaving out the
// lowest ranked snippets when the context budget would be exceeded. It
// returns the results that made it into the prompt.
func (g *Generator) Messages(ctx context.Context, query string, results []rag.Result) ([]*schema.Message, []rag.Result) {
	snippets := make([]string, len(results))
	for i, r := range results {
		snippets[i] = FormatSnippet(r)
	}
	fixed := budget.EstimateMessages([]*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(renderPrompt(query, nil)),
	})
	n := budget.FitSnippets(fixed, snippets, g.maxTokens)
	if n < len(snippets) {
		logging.FromContext(ctx).Warn("budget: dropped context snippets to fit context window",
			"dropped", len(snippets)-n,
			"retained", n,
			"max_tokens", g.maxTokens,
		)
	}
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(renderPrompt(query, snippets[:n])),
	}, results[:n]
}

// Answer generates a grounded answer for query and returns the results the
// model was shown. When nothing survives the context budget, or the bundle
// was empty to begin with, it returns NoContextAnswer and no results without
// calling the model.
func (g *Generator) Answer(ctx context.Context, query string, results []rag.Result) (string, []rag.Result, error) {
	if len(results) == 0 {
		return NoContextAnswer, nil, nil
	}
	msgs, kept := g.Messages(ctx, query, results)
	if len(kept) == 0 {
		return NoContextAnswer, nil, nil
	}
	answer, err := g.Generate(ctx, msgs)
	if err != nil {
		return "", nil, err
	}
	return answer, kept, nil
}

// Complete sends a single free-form prompt to the model.
func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	return g.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
}

// Generate calls the chat model under the retry policy. Exhaustion surfaces a
// generation-unavailable error, never a partial answer.
func (g *Generator) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	answer, err := retry.Do(ctx, g.policy, "chat.generate", func(ctx context.Context) (string, error) {
		out, err := g.chat.Generate(ctx, msgs)
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(out.Content)
		if text == "" {
			return "", apperr.New(apperr.KindGenerationUnavailable, "model returned an empty response")
		}
		return text, nil
	})
	if err != nil {
		return "", apperr.Ensure(err, apperr.KindGenerationUnavailable, "generator: chat model failed")
	}
	return answer, nil
}
