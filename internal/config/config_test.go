package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DOCCHAT_DOCUMENTS_DIR", "DOCCHAT_TOP_K", "DOCCHAT_CHAT_PROVIDER", "DOCCHAT_CHAT_MODEL",
		"DOCCHAT_CHAT_BASE_URL", "DOCCHAT_EMBED_PROVIDER", "DOCCHAT_EMBED_MODEL",
		"DOCCHAT_EMBED_BASE_URL", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "DATABASE_URL",
		"DOCCHAT_ENCRYPTION_KEY", "DOCCHAT_PORT", "NATS_URL", "NATS_TOKEN", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 40, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 2, cfg.RAG.TopK)
	assert.Equal(t, []string{"**/*.pdf", "**/*.md", "**/*.txt"}, cfg.Loader.Patterns)
	assert.Equal(t, ProviderOpenAI, cfg.ChatLLM.Provider)
	assert.Equal(t, BackendChromem, cfg.VectorStore.Backend)
	assert.Equal(t, 120*time.Second, cfg.ChatLLM.Timeout)
	assert.Equal(t, 8760, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Zero(t, cfg.History.MaxExchanges)
}

func TestLoadConfig_FileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
loader:
  dir: /content/Documents
  patterns: ["*.txt"]
rag:
  chunk_size: 500
  chunk_overlap: 0
  top_k: 4
  condense_question: true
chat_llm:
  provider: ollama
  base_url: http://localhost:11434
  model: llama3
  timeout: 30s
  max_retries: 3
history:
  max_exchanges: 10
vector_store:
  backend: pgvector
  driver: pgx
  dimensions: 768
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/content/Documents", cfg.Loader.Dir)
	assert.Equal(t, []string{"*.txt"}, cfg.Loader.Patterns)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 0, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 4, cfg.RAG.TopK)
	assert.True(t, cfg.RAG.CondenseQuestion)
	assert.Equal(t, ProviderOllama, cfg.ChatLLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.ChatLLM.Timeout)
	assert.Equal(t, 3, cfg.ChatLLM.MaxRetries)
	assert.Equal(t, 10, cfg.History.MaxExchanges)
	assert.Equal(t, BackendPGVector, cfg.VectorStore.Backend)
	assert.Equal(t, DriverPGX, cfg.VectorStore.Driver)
	assert.Equal(t, 768, cfg.VectorStore.Dimensions)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DOCCHAT_PORT", "9999")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("DATABASE_URL", "postgres://localhost/docchat")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.ChatLLM.Key)
	assert.Equal(t, "sk-test", cfg.EmbedLLM.Key)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "nats://localhost:4222", cfg.Events.NatsURL)
	assert.Equal(t, "postgres://localhost/docchat", cfg.VectorStore.DatabaseURL)
}

func TestLoadConfig_FileKeysWinOverProviderEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ANTHROPIC_API_KEY", "ak-env")
	path := writeConfig(t, `
chat_llm:
  provider: anthropic
  key: ak-file
embed_llm:
  provider: openai
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ak-file", cfg.ChatLLM.Key)
	assert.Equal(t, "sk-env", cfg.EmbedLLM.Key)
}

func TestLoadConfig_InvalidPortFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCCHAT_PORT", "notanumber")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8760, cfg.Server.Port)
}

func TestLoadConfig_OverlapNotSmallerThanChunkSize(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "rag:\n  chunk_size: 100\n  chunk_overlap: 100\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "rag: [unterminated")

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative overlap", func(c *Config) { c.RAG.ChunkOverlap = -1 }},
		{"unknown chat provider", func(c *Config) { c.ChatLLM.Provider = "bard" }},
		{"anthropic embeddings", func(c *Config) { c.EmbedLLM.Provider = ProviderAnthropic }},
		{"unknown backend", func(c *Config) { c.VectorStore.Backend = "faiss" }},
		{"unknown driver", func(c *Config) {
			c.VectorStore.Backend = BackendPGVector
			c.VectorStore.Driver = "mysql"
		}},
		{"short encryption key", func(c *Config) { c.VectorStore.EncryptionKey = "short" }},
		{"negative history cap", func(c *Config) { c.History.MaxExchanges = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			require.NoError(t, cfg.Validate())

			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), models.ErrConfig)
		})
	}
}
