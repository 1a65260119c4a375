package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docchat/internal/config"
	"docchat/internal/models"
)

const defaultOpenAIModel = "text-embedding-3-small"

// NewEmbedder creates the embedder named by cfg.Provider
func NewEmbedder(cfg *config.LLMConfig, batchSize int) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(cfg, batchSize)
	case config.ProviderOllama:
		return NewOllamaEmbedder(cfg, batchSize)
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", models.ErrConfig, cfg.Provider)
	}
}

// NewOpenAIEmbedder works with OpenAI and any OpenAI-compatible endpoint (OpenRouter, vLLM)
func NewOpenAIEmbedder(cfg *config.LLMConfig, batchSize int) (*embeddings.EmbedderImpl, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai embedding client: %w", err)
	}
	return newEmbedder(llm, batchSize)
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig, batchSize int) (*embeddings.EmbedderImpl, error) {
	opts := []ollama.Option{
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama embedding client: %w", err)
	}
	return newEmbedder(llm, batchSize)
}

func newEmbedder(client embeddings.EmbedderClient, batchSize int) (*embeddings.EmbedderImpl, error) {
	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// EmbedChunks embeds chunk contents batchSize at a time and pairs every
// chunk with its vector. All vectors must share one dimension.
func EmbedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, batchSize int) ([]models.Record, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	records := make([]models.Record, 0, len(chunks))
	dim := -1
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors for %d texts", start, end-1, len(vectors), len(texts))
		}

		for i, vec := range vectors {
			if dim == -1 {
				dim = len(vec)
			}
			if len(vec) == 0 || len(vec) != dim {
				return nil, fmt.Errorf("embed chunk %d: dimension %d, expected %d", start+i, len(vec), dim)
			}
			c := chunks[start+i]
			records = append(records, models.Record{
				ID:        c.ID,
				Content:   c.Content,
				Metadata:  c.Metadata,
				Embedding: vec,
			})
		}
		log.Debug().Int("embedded", end).Int("total", len(chunks)).Msg("Embedding progress")
	}
	return records, nil
}
