package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/rag"
	"github.com/54b3r/raga-go/internal/retry"
)

// Index backends.
const (
	IndexQdrant   = "qdrant"
	IndexPgvector = "pgvector"
	IndexMemory   = "memory"
)

// Defaults for the settings read by SettingsFromEnv.
const (
	DefaultIndexName      = "rag-agent-index"
	DefaultChunkSize      = 300
	DefaultChunkOverlap   = 50
	DefaultTopK           = 3
	DefaultMinScore       = 0.5
	DefaultEmbedCacheSize = 1024
	DefaultRequestTimeout = 60 * time.Second
	DefaultRateLimitRPM   = 600
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8080
)

// Settings are the typed, validated runtime options that are not owned by
// the provider or embedder packages.
type Settings struct {
	ChunkSize      int
	ChunkOverlap   int
	TopK           int
	MinScore       float32
	EmbedCacheSize int
	Retry          retry.Policy
	RequestTimeout time.Duration

	Index IndexSettings

	DictionaryURL string
	// DBPath is empty for the default location and "disabled" to run
	// without a registry or query log.
	DBPath string

	Host         string
	Port         int
	APIKey       string
	RateLimitRPM int
}

// IndexSettings selects and configures the vector index.
type IndexSettings struct {
	Backend     string
	Name        string
	Qdrant      rag.QdrantConfig
	PgvectorDSN string
}

// SettingsFromEnv reads Settings from the environment and validates them.
// Malformed values are configuration errors naming the variable.
func SettingsFromEnv() (Settings, error) {
	r := envReader{}
	s := Settings{
		ChunkSize:      r.integer("CHUNK_SIZE", DefaultChunkSize),
		ChunkOverlap:   r.integer("CHUNK_OVERLAP", DefaultChunkOverlap),
		TopK:           r.integer("RAG_TOP_K", DefaultTopK),
		MinScore:       r.number("RAG_MIN_SCORE", DefaultMinScore),
		EmbedCacheSize: r.integer("EMBED_CACHE_SIZE", DefaultEmbedCacheSize),
		RequestTimeout: r.duration("REQUEST_TIMEOUT", DefaultRequestTimeout),
		Index: IndexSettings{
			Backend: strings.ToLower(r.text("INDEX_BACKEND", IndexQdrant)),
			Name:    r.text("INDEX_NAME", DefaultIndexName),
			Qdrant: rag.QdrantConfig{
				Host:   r.text("QDRANT_HOST", "localhost"),
				Port:   r.integer("QDRANT_PORT", 6334),
				APIKey: os.Getenv("QDRANT_API_KEY"),
				UseTLS: r.flag("QDRANT_TLS"),
			},
			PgvectorDSN: os.Getenv("PGVECTOR_DSN"),
		},
		DictionaryURL: os.Getenv("DICTIONARY_API_URL"),
		DBPath:        os.Getenv("RAGA_DB_PATH"),
		Host:          r.text("RAGA_HOST", DefaultHost),
		Port:          r.integer("RAGA_PORT", DefaultPort),
		APIKey:        os.Getenv("RAGA_API_KEY"),
		RateLimitRPM:  r.integer("RAGA_RATE_LIMIT_RPM", DefaultRateLimitRPM),
	}
	s.Index.Qdrant.Collection = s.Index.Name

	s.Retry = retry.DefaultPolicy()
	s.Retry.MaxAttempts = r.integer("RETRY_MAX_ATTEMPTS", s.Retry.MaxAttempts)
	s.Retry.InitialInterval = r.duration("RETRY_INITIAL_INTERVAL", s.Retry.InitialInterval)
	s.Retry.MaxInterval = r.duration("RETRY_MAX_INTERVAL", s.Retry.MaxInterval)

	if r.err != nil {
		return Settings{}, r.err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks ranges and backend requirements.
func (s Settings) Validate() error {
	switch {
	case s.ChunkSize <= 0:
		return apperr.Newf(apperr.KindConfiguration, "config: CHUNK_SIZE must be positive, got %d", s.ChunkSize)
	case s.ChunkOverlap <= 0 || s.ChunkOverlap >= s.ChunkSize:
		return apperr.Newf(apperr.KindConfiguration,
			"config: CHUNK_OVERLAP must be in (0, %d), got %d", s.ChunkSize, s.ChunkOverlap)
	case s.TopK < 1:
		return apperr.Newf(apperr.KindConfiguration, "config: RAG_TOP_K must be at least 1, got %d", s.TopK)
	case s.MinScore < 0 || s.MinScore > 1:
		return apperr.Newf(apperr.KindConfiguration, "config: RAG_MIN_SCORE must be in [0,1], got %g", s.MinScore)
	case s.EmbedCacheSize < 0:
		return apperr.Newf(apperr.KindConfiguration, "config: EMBED_CACHE_SIZE must not be negative, got %d", s.EmbedCacheSize)
	case s.RequestTimeout < 0:
		return apperr.Newf(apperr.KindConfiguration, "config: REQUEST_TIMEOUT must not be negative, got %s", s.RequestTimeout)
	case s.RateLimitRPM <= 0:
		return apperr.Newf(apperr.KindConfiguration, "config: RAGA_RATE_LIMIT_RPM must be positive, got %d", s.RateLimitRPM)
	}
	if err := s.Retry.Validate(); err != nil {
		return err
	}

	switch s.Index.Backend {
	case IndexQdrant, IndexMemory:
	case IndexPgvector:
		if s.Index.PgvectorDSN == "" {
			return apperr.New(apperr.KindConfiguration, "config: pgvector index requires PGVECTOR_DSN")
		}
	default:
		return apperr.Newf(apperr.KindConfiguration,
			"config: unknown INDEX_BACKEND %q (valid: qdrant, pgvector, memory)", s.Index.Backend)
	}
	if strings.TrimSpace(s.Index.Name) == "" {
		return apperr.New(apperr.KindConfiguration, "config: INDEX_NAME must not be empty")
	}
	return nil
}

// RateLimit returns the per-IP rate in requests per second.
func (s Settings) RateLimit() float64 {
	return float64(s.RateLimitRPM) / 60
}

// String returns a log-safe summary. Secrets are omitted.
func (s Settings) String() string {
	return fmt.Sprintf("index=%s/%s chunk=%d/%d top_k=%d min_score=%.2f retry=%d",
		s.Index.Backend, s.Index.Name, s.ChunkSize, s.ChunkOverlap, s.TopK, s.MinScore, s.Retry.MaxAttempts)
}

// envReader parses env vars and keeps the first error.
type envReader struct {
	err error
}

func (r *envReader) text(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (r *envReader) integer(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, raw, "an integer")
		return fallback
	}
	return v
}

func (r *envReader) number(key string, fallback float32) float32 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		r.fail(key, raw, "a number")
		return fallback
	}
	return float32(v)
}

func (r *envReader) flag(key string) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(key, raw, "a boolean")
		return false
	}
	return v
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	d, err := parseDuration(key, strings.TrimSpace(os.Getenv(key)), fallback)
	if err != nil && r.err == nil {
		r.err = err
	}
	if err != nil {
		return fallback
	}
	return d
}

func (r *envReader) fail(key, raw, want string) {
	if r.err == nil {
		r.err = apperr.Newf(apperr.KindConfiguration, "config: %s=%q is not %s", key, raw, want)
	}
}
