// Package embedder provides the Embedding Gateway implementations: clients
// that turn text into fixed-length vectors. Ollama is called over plain HTTP,
// OpenAI and Azure OpenAI through github.com/sashabaranov/go-openai, and the
// "hash" backend embeds locally without any service.
package embedder

import (
	"context"
	"net/http"

	"github.com/54b3r/raga-go/internal/apperr"
)

// Embedder converts a batch of texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// classifyStatus maps an HTTP status from an embedding service to an error
// kind. Auth and missing-model failures will not heal on retry.
func classifyStatus(status int) apperr.Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return apperr.KindConfiguration
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge:
		return apperr.KindValidation
	default:
		return apperr.KindRetrievalUnavailable
	}
}
