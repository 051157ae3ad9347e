package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/raga-go/internal/apperr"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-large"
)

// Config selects and configures an embedding backend.
type Config struct {
	// Provider is one of ollama, openai, azure, hash.
	Provider string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Dimensions is the vector size the index is created with.
	Dimensions int
	// APIKey authenticates openai and azure.
	APIKey string
	// Endpoint is the Ollama host, an OpenAI-compatible base URL, or the Azure resource endpoint.
	Endpoint string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
}

// ConfigFromEnv resolves embedding settings, inheriting from the chat
// provider configuration when embedding-specific overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER (ollama and gemini/bedrock chat fall back to ollama embeddings)
//  2. EMBEDDING_MODEL, else the backend default
//  3. EMBEDDING_API_KEY, else OPENAI_API_KEY / AZURE_OPENAI_API_KEY
//  4. EMBEDDING_ENDPOINT, else OLLAMA_HOST / AZURE_OPENAI_ENDPOINT
//  5. EMBEDDING_DIMENSIONS, else the model's native size
func ConfigFromEnv() Config {
	provider := getEnv("EMBEDDING_PROVIDER")
	if provider == "" {
		switch p := getEnvOrDefault("MODEL_PROVIDER", "ollama"); p {
		case "openai", "azure":
			provider = p
		default:
			provider = "ollama"
		}
	}

	cfg := Config{Provider: provider, Model: getEnv("EMBEDDING_MODEL"), APIKey: getEnv("EMBEDDING_API_KEY"),
		Endpoint: getEnv("EMBEDDING_ENDPOINT")}

	switch provider {
	case "ollama":
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOllamaModel
		}
	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("OPENAI_API_KEY")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
	case "azure":
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if cfg.Model == "" {
			cfg.Model = getEnvOrDefault("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", defaultOpenAIModel)
		}
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-10-21")
	}

	cfg.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", DefaultDimensions(cfg.Provider, cfg.Model))
	return cfg
}

// DefaultDimensions returns the native vector size of a backend/model pair.
func DefaultDimensions(provider, model string) int {
	switch {
	case provider == "hash":
		return DefaultHashDimensions
	case strings.Contains(model, "text-embedding-3-large"):
		return 3072
	case strings.Contains(model, "text-embedding-3-small"), strings.Contains(model, "ada-002"):
		return 1536
	case strings.Contains(model, "mxbai-embed-large"):
		return 1024
	case strings.Contains(model, "all-minilm"):
		return 384
	case provider == "ollama":
		return 768
	default:
		return 1536
	}
}

// New constructs the embedder selected by cfg after validating it.
func New(cfg Config) (Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model}), nil
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	case "azure":
		return NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		}), nil
	case "hash":
		return NewHashEmbedder(cfg.Dimensions), nil
	}
	return nil, apperr.Newf(apperr.KindConfiguration,
		"embedder: unknown provider %q (valid: ollama, openai, azure, hash)", cfg.Provider)
}

// Validate fails fast on missing credentials so operators get a clear error at
// startup rather than on the first embed call.
func (c Config) Validate() error {
	if c.Dimensions <= 0 {
		return apperr.Newf(apperr.KindConfiguration, "embedder: dimensions must be positive, got %d", c.Dimensions)
	}
	switch c.Provider {
	case "openai":
		if c.APIKey == "" {
			return apperr.New(apperr.KindConfiguration, "embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if c.APIKey == "" {
			return apperr.New(apperr.KindConfiguration, "embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if c.Endpoint == "" {
			return apperr.New(apperr.KindConfiguration, "embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "ollama":
		if c.Endpoint == "" {
			return apperr.New(apperr.KindConfiguration, "embedder: ollama requires OLLAMA_HOST or EMBEDDING_ENDPOINT")
		}
	case "hash":
	default:
		return apperr.Newf(apperr.KindConfiguration,
			"embedder: unknown provider %q (valid: ollama, openai, azure, hash)", c.Provider)
	}
	return nil
}

// WarnIfChatModel logs a warning when the configured model name looks like a
// chat model rather than a dedicated embedding model.
func (c Config) WarnIfChatModel(log *slog.Logger) {
	if c.Model != "" && looksLikeChatModel(c.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", c.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-large"),
		)
	}
}

// knownChatModelPrefixes identify chat/completion models that are not
// suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3", "llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3", "claude", "command-r", "deepseek",
	"qwen", "solar", "vicuna", "falcon", "yi-",
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

func getEnv(key string) string {
	return os.Getenv(key)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// String renders the config without secrets.
func (c Config) String() string {
	key := "unset"
	if c.APIKey != "" {
		key = "set"
	}
	return fmt.Sprintf("provider=%s model=%s dimensions=%d api_key=%s", c.Provider, c.Model, c.Dimensions, key)
}
