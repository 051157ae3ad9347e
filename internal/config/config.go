// Package config provides layered configuration for raga.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win. An optional .env file in the working
// directory is read first and never overrides variables already set.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGA_CONFIG environment variable
//  3. ~/.raga/config.yaml
//  4. ./raga.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/54b3r/raga-go/internal/apperr"
)

// Config mirrors the environment variables as a YAML document. Every leaf
// maps to exactly one variable through envMapping.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	RAG        RAGConfig        `yaml:"rag"`
	Retry      RetryConfig      `yaml:"retry"`
	Server     ServerConfig     `yaml:"server"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ModelConfig selects the chat model that writes answers and definitions.
type ModelConfig struct {
	// Provider is one of ollama, openai, azure, ark, gemini.
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ark    ArkConfig    `yaml:"ark"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, hash).
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Backend is qdrant, pgvector or memory.
	Backend string `yaml:"backend"`
	// Name is the collection (qdrant) or table (pgvector) name.
	Name     string         `yaml:"name"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Pgvector PgvectorConfig `yaml:"pgvector"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// PgvectorConfig holds PostgreSQL connection settings.
type PgvectorConfig struct {
	// DSN is the lib/pq connection string. Prefer env var PGVECTOR_DSN.
	DSN string `yaml:"dsn"`
}

// RAGConfig holds chunking and retrieval settings.
type RAGConfig struct {
	ChunkSize      int     `yaml:"chunk_size"`
	ChunkOverlap   int     `yaml:"chunk_overlap"`
	TopK           int     `yaml:"top_k"`
	MinScore       float32 `yaml:"min_score"`
	EmbedCacheSize int     `yaml:"embed_cache_size"`
}

// RetryConfig holds the retry policy. Intervals use Go duration syntax.
type RetryConfig struct {
	MaxAttempts     int    `yaml:"max_attempts"`
	InitialInterval string `yaml:"initial_interval"`
	MaxInterval     string `yaml:"max_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGA_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimitRPM is the per-IP request budget per minute.
	RateLimitRPM int `yaml:"rate_limit_rpm"`
	// RequestTimeout bounds one query, e.g. "60s".
	RequestTimeout string `yaml:"request_timeout"`
}

// DictionaryConfig holds definition lookup settings.
type DictionaryConfig struct {
	APIURL string `yaml:"api_url"`
}

// StoreConfig holds SQLite settings.
type StoreConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"INDEX_NAME", func(c *Config) string { return c.Index.Name }},
	{"QDRANT_HOST", func(c *Config) string { return c.Index.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Index.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Index.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Index.Qdrant.TLS) }},
	{"PGVECTOR_DSN", func(c *Config) string { return c.Index.Pgvector.DSN }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.RAG.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.RAG.ChunkOverlap) }},
	{"RAG_TOP_K", func(c *Config) string { return intStr(c.RAG.TopK) }},
	{"RAG_MIN_SCORE", func(c *Config) string { return float32Str(c.RAG.MinScore) }},
	{"EMBED_CACHE_SIZE", func(c *Config) string { return intStr(c.RAG.EmbedCacheSize) }},
	{"RETRY_MAX_ATTEMPTS", func(c *Config) string { return intStr(c.Retry.MaxAttempts) }},
	{"RETRY_INITIAL_INTERVAL", func(c *Config) string { return c.Retry.InitialInterval }},
	{"RETRY_MAX_INTERVAL", func(c *Config) string { return c.Retry.MaxInterval }},
	{"RAGA_HOST", func(c *Config) string { return c.Server.Host }},
	{"RAGA_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGA_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"RAGA_RATE_LIMIT_RPM", func(c *Config) string { return intStr(c.Server.RateLimitRPM) }},
	{"REQUEST_TIMEOUT", func(c *Config) string { return c.Server.RequestTimeout }},
	{"DICTIONARY_API_URL", func(c *Config) string { return c.Dictionary.APIURL }},
	{"RAGA_DB_PATH", func(c *Config) string { return c.Store.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv reads path (default ".env") into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load %s: %w", path, err)
}

// Load finds a YAML file (see the package doc for the search order) and
// exports each value it sets into the environment, unless that variable is
// already set. It returns the file used, or "" when there was none.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, ok := findConfigFile(explicitPath)
	if !ok {
		log.Debug("config: no YAML file, environment only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", apperr.Wrap(err, apperr.KindConfiguration, "config: parse "+path)
	}

	applied, err := exportUnset(&cfg)
	if err != nil {
		return "", err
	}
	log.Info("config: loaded YAML config", slog.String("path", path), slog.Int("keys_applied", applied))
	return path, nil
}

// exportUnset copies every non-zero YAML value into its environment
// variable when that variable is empty, and counts the ones it wrote.
func exportUnset(cfg *Config) (int, error) {
	n := 0
	for _, m := range envMapping {
		v := m.value(cfg)
		if v == "" || os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, v); err != nil {
			return n, fmt.Errorf("config: export %s: %w", m.envKey, err)
		}
		n++
	}
	return n, nil
}

// findConfigFile returns the first existing candidate. An explicit path
// that does not exist disables the search instead of falling through.
func findConfigFile(explicit string) (string, bool) {
	candidates := []string{explicit}
	if explicit == "" {
		candidates = []string{os.Getenv("RAGA_CONFIG")}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".raga", "config.yaml"))
		}
		candidates = append(candidates, "raga.yaml")
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			return c, true
		}
	}
	return "", false
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// parseDuration is a helper shared by the settings readers.
func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, apperr.Newf(apperr.KindConfiguration, "config: %s=%q is not a duration", key, raw)
	}
	return d, nil
}
