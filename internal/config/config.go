package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"docchat/internal/models"
)

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"

	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"

	DriverPGDriver = "pgdriver"
	DriverPQ       = "pq"
	DriverPGX      = "pgx"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 40
	defaultTopK         = 2
	defaultBatchSize    = 32
	defaultDocumentsDir = "./documents"
	defaultStorePath    = "./chromemdb"
	defaultCollection   = "documents"
	defaultDimensions   = 1536
	defaultPort         = 8760
	defaultTimeout      = 120 * time.Second
	defaultBackoff      = 2 * time.Second
	defaultSubject      = "docchat"
)

var defaultPatterns = []string{"**/*.pdf", "**/*.md", "**/*.txt"}

type Config struct {
	Loader      LoaderConfig      `yaml:"loader"`
	RAG         RAGConfig         `yaml:"rag"`
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	ChatLLM     LLMConfig         `yaml:"chat_llm"`
	History     HistoryConfig     `yaml:"history"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Server      ServerConfig      `yaml:"server"`
	Events      EventsConfig      `yaml:"events"`
	Log         LogConfig         `yaml:"log"`
}

type LoaderConfig struct {
	Dir      string   `yaml:"dir"`
	Patterns []string `yaml:"patterns"`
}

type RAGConfig struct {
	ChunkSize        int     `yaml:"chunk_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap"`
	TopK             int     `yaml:"top_k"`
	Temperature      float64 `yaml:"temperature"`
	CondenseQuestion bool    `yaml:"condense_question"`
	EmbedBatchSize   int     `yaml:"embed_batch_size"`
}

type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	BaseURL           string        `yaml:"base_url"`
	Key               string        `yaml:"key"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type HistoryConfig struct {
	// MaxExchanges caps the history of a session, 0 keeps everything.
	MaxExchanges int `yaml:"max_exchanges"`
}

type VectorStoreConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
	DatabaseURL   string `yaml:"database_url"`
	Driver        string `yaml:"driver"`
	Dimensions    int    `yaml:"dimensions"`
	Debug         bool   `yaml:"debug"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type EventsConfig struct {
	NatsURL       string `yaml:"nats_url"`
	NatsToken     string `yaml:"nats_token"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadConfig reads the yaml file at path, applies environment overrides and
// defaults, and validates the result. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("%w: read %s: %w", models.ErrConfig, path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("%w: parse %s: %w", models.ErrConfig, path, err)
			}
		}
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets and endpoints from the environment
func (c *Config) ApplyEnv() {
	c.Loader.Dir = envStr("DOCCHAT_DOCUMENTS_DIR", c.Loader.Dir)
	c.RAG.TopK = envInt("DOCCHAT_TOP_K", c.RAG.TopK)

	c.ChatLLM.Provider = envStr("DOCCHAT_CHAT_PROVIDER", c.ChatLLM.Provider)
	c.ChatLLM.Model = envStr("DOCCHAT_CHAT_MODEL", c.ChatLLM.Model)
	c.ChatLLM.BaseURL = envStr("DOCCHAT_CHAT_BASE_URL", c.ChatLLM.BaseURL)
	c.EmbedLLM.Provider = envStr("DOCCHAT_EMBED_PROVIDER", c.EmbedLLM.Provider)
	c.EmbedLLM.Model = envStr("DOCCHAT_EMBED_MODEL", c.EmbedLLM.Model)
	c.EmbedLLM.BaseURL = envStr("DOCCHAT_EMBED_BASE_URL", c.EmbedLLM.BaseURL)

	// provider keys only fill in what the file left empty
	if c.ChatLLM.Key == "" {
		switch c.ChatLLM.Provider {
		case ProviderAnthropic:
			c.ChatLLM.Key = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderOpenAI, "":
			c.ChatLLM.Key = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.EmbedLLM.Key == "" && (c.EmbedLLM.Provider == ProviderOpenAI || c.EmbedLLM.Provider == "") {
		c.EmbedLLM.Key = os.Getenv("OPENAI_API_KEY")
	}

	c.VectorStore.DatabaseURL = envStr("DATABASE_URL", c.VectorStore.DatabaseURL)
	c.VectorStore.EncryptionKey = envStr("DOCCHAT_ENCRYPTION_KEY", c.VectorStore.EncryptionKey)
	c.Server.Port = envInt("DOCCHAT_PORT", c.Server.Port)
	c.Events.NatsURL = envStr("NATS_URL", c.Events.NatsURL)
	c.Events.NatsToken = envStr("NATS_TOKEN", c.Events.NatsToken)
	c.Log.Level = envStr("LOG_LEVEL", c.Log.Level)
}

// ApplyDefaults fills zero values. Overlap is left alone since 0 is valid.
func (c *Config) ApplyDefaults() {
	if c.Loader.Dir == "" {
		c.Loader.Dir = defaultDocumentsDir
	}
	if len(c.Loader.Patterns) == 0 {
		c.Loader.Patterns = append([]string(nil), defaultPatterns...)
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = defaultChunkSize
		if c.RAG.ChunkOverlap == 0 {
			c.RAG.ChunkOverlap = defaultChunkOverlap
		}
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.EmbedBatchSize <= 0 {
		c.RAG.EmbedBatchSize = defaultBatchSize
	}

	if c.ChatLLM.Provider == "" {
		c.ChatLLM.Provider = ProviderOpenAI
	}
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = ProviderOpenAI
	}
	for _, llm := range []*LLMConfig{&c.ChatLLM, &c.EmbedLLM} {
		if llm.Timeout == 0 {
			llm.Timeout = defaultTimeout
		}
		if llm.InitialBackoff == 0 {
			llm.InitialBackoff = defaultBackoff
		}
	}

	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = BackendChromem
	}
	if c.VectorStore.Path == "" {
		c.VectorStore.Path = defaultStorePath
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = defaultCollection
	}
	if c.VectorStore.Driver == "" {
		c.VectorStore.Driver = DriverPGDriver
	}
	if c.VectorStore.Dimensions == 0 {
		c.VectorStore.Dimensions = defaultDimensions
	}

	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = defaultSubject
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first invalid setting wrapped in models.ErrConfig
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", models.ErrConfig, c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, %d), got %d", models.ErrConfig, c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.History.MaxExchanges < 0 {
		return fmt.Errorf("%w: history.max_exchanges must not be negative", models.ErrConfig)
	}

	switch c.ChatLLM.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderAnthropic:
	default:
		return fmt.Errorf("%w: unknown chat_llm provider %q", models.ErrConfig, c.ChatLLM.Provider)
	}
	switch c.EmbedLLM.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: unknown embed_llm provider %q", models.ErrConfig, c.EmbedLLM.Provider)
	}

	switch c.VectorStore.Backend {
	case BackendChromem:
	case BackendPGVector:
		switch c.VectorStore.Driver {
		case DriverPGDriver, DriverPQ, DriverPGX:
		default:
			return fmt.Errorf("%w: unknown vector_store driver %q", models.ErrConfig, c.VectorStore.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown vector_store backend %q", models.ErrConfig, c.VectorStore.Backend)
	}
	if k := c.VectorStore.EncryptionKey; k != "" && len(k) != 32 {
		return fmt.Errorf("%w: encryption_key must be 32 bytes, got %d", models.ErrConfig, len(k))
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
