// Package budget estimates prompt size and decides how much retrieved context
// fits in the model's input window. Backends use different tokenizers, so the
// estimate is a character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4

	// perMessageOverhead approximates the role and framing tokens most chat
	// APIs add to each message.
	perMessageOverhead = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// 8k-context models (Llama 3 8B, GPT-3.5) with room left for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of msgs, role and
// content included.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitSnippets returns how many leading snippets can be added to a prompt that
// already costs fixedTokens without exceeding maxTokens. Snippets arrive in
// relevance order, so the lowest ranked are the ones left out. A non-positive
// maxTokens disables the limit.
func FitSnippets(fixedTokens int, snippets []string, maxTokens int) int {
	if maxTokens <= 0 {
		return len(snippets)
	}
	used := fixedTokens
	for i, s := range snippets {
		used += Estimate(s)
		if used > maxTokens {
			return i
		}
	}
	return len(snippets)
}
