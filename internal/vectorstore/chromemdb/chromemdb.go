package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"docchat/internal/models"
)

// VectorDBManager keeps one chromem-go collection, either in memory or
// persisted under dbPath.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	dbPath        string
	compress      bool
	encryptionKey string
}

type Options struct {
	Path          string
	Collection    string
	InMemory      bool
	Compress      bool
	EncryptionKey string
}

// NewVectorDBManager opens (or creates) the database and its collection
func NewVectorDBManager(opts Options) (*VectorDBManager, error) {
	var (
		db  *chromem.DB
		err error
	)
	if opts.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		name:          opts.Collection,
		dbPath:        opts.Path,
		compress:      opts.Compress,
		encryptionKey: opts.EncryptionKey,
	}
	if err := m.getOrCreateCollection(); err != nil {
		return nil, err
	}
	log.Debug().Str("collection", m.name).Bool("in_memory", opts.InMemory).Int("documents", m.collection.Count()).Msg("Vector database ready")
	return m, nil
}

func (m *VectorDBManager) getOrCreateCollection() error {
	c, err := m.db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return nil
}

// Upsert adds records; a record with an existing ID replaces it
func (m *VectorDBManager) Upsert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  r.Metadata,
			Embedding: r.Embedding,
		})
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query returns up to k records closest to embedding by cosine similarity,
// most similar first.
func (m *VectorDBManager) Query(ctx context.Context, embedding []float32, k int) ([]models.Match, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	n := min(k, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.Match{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

func (m *VectorDBManager) Count(_ context.Context) (int, error) {
	return m.collection.Count(), nil
}

// Reset drops the collection and recreates it empty
func (m *VectorDBManager) Reset(_ context.Context) error {
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return m.getOrCreateCollection()
}

// Close is a no-op, a persistent DB writes through on every change.
func (m *VectorDBManager) Close() error {
	return nil
}

// ExportPath is the default export file for the collection.
func (m *VectorDBManager) ExportPath() string {
	ext := ".gob"
	if m.compress {
		ext += ".gz"
	}
	if m.encryptionKey != "" {
		ext += ".enc"
	}
	return filepath.Join(m.dbPath, m.name+ext)
}

// Export writes the collection to filePath, encrypted when a key is configured
func (m *VectorDBManager) Export(_ context.Context, filePath string) error {
	if filePath == "" {
		filePath = m.ExportPath()
	}
	log.Debug().
		Str("collection", m.name).
		Str("file", filePath).
		Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting collection")

	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads the collection from a file written by Export
func (m *VectorDBManager) Import(_ context.Context, filePath string) error {
	if filePath == "" {
		filePath = m.ExportPath()
	}
	if err := m.db.ImportFromFile(filePath, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := m.db.GetCollection(m.name, nil)
	if c == nil {
		return fmt.Errorf("collection %q not found in %s", m.name, filePath)
	}
	m.collection = c
	return nil
}
