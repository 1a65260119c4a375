// Package ingest builds the vector store from a document directory.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"docchat/internal/chunker"
	"docchat/internal/embedding"
	"docchat/internal/models"
	"docchat/internal/vectorstore"
)

// DocumentLoader is satisfied by loader.DirectoryLoader.
type DocumentLoader interface {
	Load(ctx context.Context) ([]models.Document, error)
}

type Stats struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Stored    int           `json:"stored"`
	Duration  time.Duration `json:"duration"`
}

type Indexer struct {
	splitter  *chunker.Splitter
	embedder  embeddings.Embedder
	store     vectorstore.Store
	batchSize int
}

func NewIndexer(splitter *chunker.Splitter, embedder embeddings.Embedder, store vectorstore.Store, batchSize int) *Indexer {
	return &Indexer{splitter: splitter, embedder: embedder, store: store, batchSize: batchSize}
}

// Run loads every document from l and indexes it.
func (ix *Indexer) Run(ctx context.Context, l DocumentLoader) (Stats, error) {
	docs, err := l.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ix.Index(ctx, docs)
}

// Index splits docs, embeds the chunks in batches and upserts them.
// Chunk IDs are stable, so indexing the same documents twice overwrites
// rather than duplicates.
func (ix *Indexer) Index(ctx context.Context, docs []models.Document) (Stats, error) {
	start := time.Now()
	stats := Stats{Documents: len(docs)}

	chunks := ix.splitter.SplitDocuments(docs)
	stats.Chunks = len(chunks)
	log.Info().Msgf("Now you have %d documents", len(chunks))

	// every batch must share the dimension of the first one
	dim := 0
	for from := 0; from < len(chunks); from += ix.step(len(chunks)) {
		to := min(from+ix.step(len(chunks)), len(chunks))

		records, err := embedding.EmbedChunks(ctx, ix.embedder, chunks[from:to], ix.batchSize)
		if err != nil {
			return stats, fmt.Errorf("%w: %w", models.ErrRetrieval, err)
		}
		if len(records) > 0 {
			if dim == 0 {
				dim = len(records[0].Embedding)
			}
			if got := len(records[0].Embedding); got != dim {
				return stats, fmt.Errorf("%w: chunk %s: embedding dimension %d, earlier chunks have %d", models.ErrRetrieval, records[0].ID, got, dim)
			}
		}
		if err := ix.store.Upsert(ctx, records); err != nil {
			return stats, fmt.Errorf("%w: store chunks: %w", models.ErrRetrieval, err)
		}
		stats.Stored += len(records)
		log.Debug().Int("stored", stats.Stored).Int("total", stats.Chunks).Msg("Indexing progress")
	}

	stats.Duration = time.Since(start)
	log.Info().
		Int("documents", stats.Documents).
		Int("chunks", stats.Chunks).
		Dur("duration", stats.Duration).
		Msg("Indexing complete")
	return stats, nil
}

func (ix *Indexer) step(n int) int {
	if ix.batchSize > 0 {
		return ix.batchSize
	}
	return max(n, 1)
}
