package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ChunkPolicyLines, cfg.RAG.ChunkPolicy)
	assert.Equal(t, 600, cfg.RAG.ChunkSize)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, 6, cfg.RAG.HistoryLimit)
	assert.Equal(t, "\n\n", cfg.RAG.ContextSeparator)
	assert.False(t, cfg.RAG.KeepZeroScore)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 1000, cfg.Server.MaxSessions)
	assert.Equal(t, 2*time.Hour, cfg.Server.SessionTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "secret-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  base_url: https://api.groq.com/openai/v1
  key: ${TEST_LLM_KEY}
  model: llama3-70b-8192
rag:
  document_path: ./handbook.pdf
  chunk_size: 700
  top_k: 5
  stop_words: [the, is]
server:
  session_ttl: 30m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.LLM.Key)
	assert.Equal(t, "llama3-70b-8192", cfg.LLM.Model)
	assert.Equal(t, 700, cfg.RAG.ChunkSize)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, []string{"the", "is"}, cfg.RAG.StopWords)
	assert.Equal(t, ChunkPolicyLines, cfg.RAG.ChunkPolicy)
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionTTL)
}

func TestParse_Temperature(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{name: "absent keeps default", content: "llm:\n  model: gpt-4o-mini\n", want: 0.2},
		{name: "explicit zero", content: "llm:\n  temperature: 0\n", want: 0},
		{name: "explicit value", content: "llm:\n  temperature: 0.7\n", want: 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.content))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, cfg.LLM.Temperature, 1e-9)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "chunk policy", content: "rag:\n  chunk_policy: sentences\n"},
		{name: "cache backend", content: "cache:\n  backend: redis\n"},
		{name: "provider", content: "llm:\n  provider: anthropic\n"},
		{name: "driver", content: "database:\n  driver: mysql\n"},
		{name: "negative top_k", content: "rag:\n  top_k: -1\n"},
		{name: "bad yaml", content: "rag: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
		})
	}
}
