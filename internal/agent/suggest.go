package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/rag"
)

// suggestionSamples is the number of random chunks the model sees.
const suggestionSamples = 3

// Suggestion is a question the indexed documents can answer.
type Suggestion struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

// Suggest proposes questions about the indexed content. An empty index
// yields an empty list. Model output that cannot be parsed is logged and
// also yields an empty list. Results are not deterministic.
func (o *Orchestrator) Suggest(ctx context.Context) ([]Suggestion, error) {
	if o.cfg.Sampler == nil {
		return []Suggestion{}, nil
	}
	log := logging.FromContext(ctx)

	chunks, err := o.cfg.Sampler.Sample(ctx, suggestionSamples)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		log.Info("suggestions: index is empty")
		return []Suggestion{}, nil
	}

	out, err := o.cfg.Generator.Complete(ctx, suggestionPrompt(chunks))
	if err != nil {
		return nil, apperr.Ensure(err, apperr.KindGenerationUnavailable, "agent: suggestion generation failed")
	}
	suggestions, err := parseSuggestions(out)
	if err != nil {
		log.Warn("suggestions: could not parse model output", "error", err, "raw", truncate(out, 200))
		return []Suggestion{}, nil
	}
	return suggestions, nil
}

func suggestionPrompt(chunks []rag.Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&sb, "- %s\n", c.Text)
	}
	return fmt.Sprintf(`Based on the following text snippets from documents, generate 3 relevant questions that could be asked about this content.
For each question, also provide a brief context about what part of the text it relates to.
Return ONLY the JSON array of objects with "question" and "context" fields, without any markdown formatting or code block markers.

Text snippets:
%s
Return the questions in this exact format:
[
  {
    "question": "What is the main topic discussed in the first snippet?",
    "context": "Based on the introduction section"
  }
]`, sb.String())
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
