package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())

	cfg, err := Load(ServerMode)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StrategyTiered, cfg.Arbiter.Strategy)
	assert.Equal(t, RAGModeIndex, cfg.Arbiter.RAGMode)
	assert.True(t, cfg.Arbiter.FAQFirst)
	assert.Equal(t, 1000, cfg.Index.ChunkSize)
	assert.Equal(t, 200, cfg.Index.ChunkOverlap)
	assert.Equal(t, 50, cfg.Index.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Index.BatchPause)
	assert.Equal(t, 6, cfg.Index.RetrieveK)
	assert.Equal(t, 8*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, ProfileBackendSQLite, cfg.Profile.Backend)
	assert.Equal(t, []string{"gemini", "groq"}, cfg.LLM.Providers)
	assert.True(t, strings.HasSuffix(cfg.SQLitePath, "qchat.db"))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())
	t.Setenv(EnvArbiterStrategy, "UNIFIED")
	t.Setenv(EnvLLMProviders, " Ollama, groq ,")
	t.Setenv(EnvFAQFirst, "false")
	t.Setenv(EnvFetchTimeout, "3s")
	t.Setenv(EnvChunkSize, "not-a-number")

	cfg, err := Load(ServerMode)
	require.NoError(t, err)

	assert.Equal(t, StrategyUnified, cfg.Arbiter.Strategy)
	assert.Equal(t, []string{"ollama", "groq"}, cfg.LLM.Providers)
	assert.False(t, cfg.Arbiter.FAQFirst)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 1000, cfg.Index.ChunkSize, "unparseable values fall back to the default")
}

func TestValidateForMode(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		t.Setenv(EnvDataDir, t.TempDir())
		cfg, err := Load(ServerMode)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mode    ValidationMode
		mutate  func(*Config)
		wantErr string
	}{
		{"valid server", ServerMode, func(*Config) {}, ""},
		{"bad strategy", ServerMode, func(c *Config) { c.Arbiter.Strategy = "random" }, "ARBITER_STRATEGY"},
		{"bad strategy ignored in build mode", BuildMode, func(c *Config) { c.Arbiter.Strategy = "random" }, ""},
		{"overlap not below size", BuildMode, func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize }, "CHUNK_OVERLAP"},
		{"bad rebuild time", BuildMode, func(c *Config) { c.Index.RebuildAt = "25:00" }, "INDEX_REBUILD_AT"},
		{"mongo without uri", ServerMode, func(c *Config) { c.Profile.Backend = ProfileBackendMongo }, "MONGODB_URI"},
		{"unknown provider", ServerMode, func(c *Config) { c.LLM.Providers = []string{"anthropicx"} }, "unknown LLM provider"},
		{"r2 missing bucket", BuildMode, func(c *Config) {
			c.R2 = R2Config{Enabled: true, AccountID: "a", AccessKeyID: "k", SecretAccessKey: "s"}
		}, EnvR2Bucket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := cfg.ValidateForMode(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfiguredProviders(t *testing.T) {
	l := LLMConfig{
		Providers:    []string{"gemini", "groq", "ollama", "openai"},
		GroqAPIKey:   "g",
		OllamaURL:    "http://localhost:11434",
		OpenAIAPIKey: "",
	}
	assert.Equal(t, []string{"groq", "ollama"}, l.ConfiguredProviders())
}
