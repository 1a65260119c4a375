package chromemdb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
)

func newMemory(t *testing.T, key string) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(Options{
		Path:          t.TempDir(),
		Collection:    "documents",
		InMemory:      true,
		EncryptionKey: key,
	})
	require.NoError(t, err)
	return m
}

func records() []models.Record {
	return []models.Record{
		{ID: "a#0", Content: "apples", Metadata: map[string]string{models.MetaSource: "a"}, Embedding: []float32{1, 0, 0}},
		{ID: "b#0", Content: "bananas", Metadata: map[string]string{models.MetaSource: "b"}, Embedding: []float32{0, 1, 0}},
		{ID: "c#0", Content: "cherries", Metadata: map[string]string{models.MetaSource: "c"}, Embedding: []float32{0, 0, 1}},
	}
}

func TestQuery_OrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t, "")
	require.NoError(t, m.Upsert(ctx, records()))

	matches, err := m.Query(ctx, []float32{0.9, 0.3, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "a#0", matches[0].ID)
	assert.Equal(t, "apples", matches[0].Content)
	assert.Equal(t, "a", matches[0].Metadata[models.MetaSource])
	assert.Equal(t, "b#0", matches[1].ID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestQuery_ClampsToCount(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t, "")
	require.NoError(t, m.Upsert(ctx, records()[:1]))

	matches, err := m.Query(ctx, []float32{0, 1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestQuery_EmptyCollection(t *testing.T) {
	m := newMemory(t, "")

	matches, err := m.Query(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestUpsert_ReplacesByID(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t, "")
	require.NoError(t, m.Upsert(ctx, records()))
	require.NoError(t, m.Upsert(ctx, []models.Record{
		{ID: "a#0", Content: "avocados", Embedding: []float32{1, 0, 0}},
	}))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	matches, err := m.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "avocados", matches[0].Content)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t, "")
	require.NoError(t, m.Upsert(ctx, records()))

	require.NoError(t, m.Reset(ctx))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPersistentDB_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := Options{Path: dir, Collection: "documents"}

	m, err := NewVectorDBManager(opts)
	require.NoError(t, err)
	require.NoError(t, m.Upsert(ctx, records()))
	require.NoError(t, m.Close())

	reopened, err := NewVectorDBManager(opts)
	require.NoError(t, err)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestExportImport_Encrypted(t *testing.T) {
	ctx := context.Background()
	key := strings.Repeat("k", 32)

	src := newMemory(t, key)
	require.NoError(t, src.Upsert(ctx, records()))

	path := filepath.Join(t.TempDir(), "documents.gob.enc")
	require.NoError(t, src.Export(ctx, path))
	_, err := os.Stat(path)
	require.NoError(t, err)

	dst := newMemory(t, key)
	require.NoError(t, dst.Import(ctx, path))

	n, err := dst.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	matches, err := dst.Query(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "cherries", matches[0].Content)
}

func TestExportPath(t *testing.T) {
	m, err := NewVectorDBManager(Options{
		Path:          "/data",
		Collection:    "docs",
		InMemory:      true,
		Compress:      true,
		EncryptionKey: strings.Repeat("k", 32),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/data", "docs.gob.gz.enc"), m.ExportPath())
}
