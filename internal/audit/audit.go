// Package audit records CLI command invocations: the command name, the config
// file in effect and the operational environment.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// plainKeys are logged with their value.
var plainKeys = []string{
	"MODEL_PROVIDER", "OLLAMA_HOST", "OLLAMA_MODEL", "OPENAI_MODEL",
	"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT", "ARK_MODEL", "GEMINI_MODEL",
	"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
	"INDEX_BACKEND", "INDEX_NAME", "QDRANT_HOST", "QDRANT_PORT",
	"CHUNK_SIZE", "CHUNK_OVERLAP", "RAG_TOP_K", "RAG_MIN_SCORE",
	"DICTIONARY_API_URL", "RAGA_DB_PATH", "LOG_LEVEL", "LOG_FORMAT",
}

// secretKeys are logged as "set" or "unset". PGVECTOR_DSN is here because
// connection strings carry passwords.
var secretKeys = []string{
	"OPENAI_API_KEY", "AZURE_OPENAI_API_KEY", "ARK_API_KEY", "GOOGLE_API_KEY",
	"EMBEDDING_API_KEY", "QDRANT_API_KEY", "PGVECTOR_DSN", "RAGA_API_KEY",
	"LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY",
}

// LogCommandStart logs one "audit: command start" record. The environment
// snapshot is nested under the "env" group.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	env := make([]any, 0, len(plainKeys)+len(secretKeys))
	for _, k := range plainKeys {
		env = append(env, slog.String(k, SanitiseKey(k, os.Getenv(k))))
	}
	for _, k := range secretKeys {
		env = append(env, slog.String(k, SanitiseKey(k, os.Getenv(k))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start",
		slog.String("command", command),
		slog.String("config_file", displayPath(configPath)),
		slog.Group("env", env...),
	)
}

// SanitiseKey is the loggable form of an environment value: "unset" when
// empty, "set" for a known secret, the value itself otherwise.
func SanitiseKey(key, value string) string {
	switch {
	case value == "":
		return "unset"
	case slices.Contains(secretKeys, key):
		return "set"
	default:
		return value
	}
}

// displayPath abbreviates the home directory to "~"; "" becomes "none".
func displayPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil {
		if rest, ok := strings.CutPrefix(p, home); ok {
			return "~" + rest
		}
	}
	return p
}
