package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/raga-go/internal/apperr"
)

// validConfig returns a config that passes Validate for backend b.
func validConfig(b Backend) Config {
	return Config{
		Backend:     b,
		Ollama:      ProviderOllama{Host: "http://localhost:11434", Model: "llama3"},
		OpenAI:      ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"},
		AzureOpenAI: ProviderAzureOpenAI{APIKey: "key", Endpoint: "https://x.openai.azure.com", Deployment: "gpt-4o", APIVersion: "2024-02-01"},
		Ark:         ProviderArk{APIKey: "ark-key", Model: "doubao-pro-32k"},
		Gemini:      ProviderGemini{APIKey: "AIza-test", Model: "gemini-1.5-pro"},
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	for _, b := range []Backend{BackendOllama, BackendOpenAI, BackendAzure, BackendArk, BackendGemini} {
		cfg := validConfig(b)
		assert.NoError(t, cfg.Validate(), b)
	}

	// Each case blanks one required field and expects the error to name
	// the variable that supplies it.
	cases := []struct {
		backend Backend
		clear   func(*Config)
		wantVar string
	}{
		{BackendOllama, func(c *Config) { c.Ollama.Model = "" }, "OLLAMA_MODEL"},
		{BackendOpenAI, func(c *Config) { c.OpenAI.APIKey = "" }, "OPENAI_API_KEY"},
		{BackendOpenAI, func(c *Config) { c.OpenAI.Model = "" }, "OPENAI_MODEL"},
		{BackendAzure, func(c *Config) { c.AzureOpenAI.APIKey = "" }, "AZURE_OPENAI_API_KEY"},
		{BackendAzure, func(c *Config) { c.AzureOpenAI.Endpoint = "" }, "AZURE_OPENAI_ENDPOINT"},
		{BackendAzure, func(c *Config) { c.AzureOpenAI.Deployment = "" }, "AZURE_OPENAI_DEPLOYMENT"},
		{BackendArk, func(c *Config) { c.Ark.APIKey = "" }, "ARK_API_KEY"},
		{BackendArk, func(c *Config) { c.Ark.Model = "" }, "ARK_MODEL"},
		{BackendGemini, func(c *Config) { c.Gemini.APIKey = "" }, "GOOGLE_API_KEY"},
		{BackendGemini, func(c *Config) { c.Gemini.Model = "" }, "GEMINI_MODEL"},
		{"bedrock", func(*Config) {}, "unknown backend"},
		{BackendOllama, func(c *Config) { c.Tuning.Temperature = 3 }, "MODEL_TEMPERATURE"},
	}
	for _, tc := range cases {
		t.Run(string(tc.backend)+"/"+tc.wantVar, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(tc.backend)
			tc.clear(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantVar)
			assert.True(t, apperr.Is(err, apperr.KindConfiguration), "kind = %q", apperr.KindOf(err))
		})
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"o1", "o3-mini", "O4-MINI", "codex-mini"} {
		assert.True(t, isAzureReasoningModel(d), d)
	}
	for _, d := range []string{"gpt-4o", "gpt-35-turbo", "gpt-5.2-codex", "orca", ""} {
		assert.False(t, isAzureReasoningModel(d), d)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("MODEL_MAX_TOKENS", "512")
	t.Setenv("MODEL_TEMPERATURE", "not-a-number")

	cfg := ConfigFromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendOpenAI, cfg.Backend)
	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 512, cfg.Tuning.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Tuning.Temperature, 1e-6)
	assert.Equal(t, "backend=openai model=gpt-4o-mini", cfg.String())
}
