// Package vectorstore maps embedding vectors to stored chunks for
// nearest-neighbour retrieval.
package vectorstore

import (
	"context"
	"fmt"

	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/vectorstore/chromemdb"
	"docchat/internal/vectorstore/pgvector"
)

// Store is implemented by every backend. Query returns at most k matches,
// most similar first; on an empty store it returns no matches and no error.
type Store interface {
	Upsert(ctx context.Context, records []models.Record) error
	Query(ctx context.Context, embedding []float32, k int) ([]models.Match, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*chromemdb.VectorDBManager)(nil)
	_ Store = (*pgvector.Store)(nil)
)

// New opens the backend selected by cfg.Backend.
func New(ctx context.Context, cfg *config.VectorStoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendChromem, "":
		m, err := chromemdb.NewVectorDBManager(chromemdb.Options{
			Path:          cfg.Path,
			Collection:    cfg.Collection,
			InMemory:      cfg.InMemory,
			Compress:      cfg.Compress,
			EncryptionKey: cfg.EncryptionKey,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.BackendPGVector:
		s, err := pgvector.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store backend %q", models.ErrConfig, cfg.Backend)
	}
}
