package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
)

func layout(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"a.txt":            "top level text",
		"b.md":             "# Heading\n\nmarkdown body",
		"notes/c.txt":      "nested text",
		"notes/deep/d.txt": "deeper text",
		"notes/e.md":       "nested markdown",
		"ignored.png":      "binary",
	}
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	return dir
}

func rel(t *testing.T, dir string, files []string) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		r, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

func TestFiles_RecursivePattern(t *testing.T) {
	dir := layout(t)

	files, err := New(dir, []string{"**/*.txt"}).Files(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "notes/c.txt", "notes/deep/d.txt"}, rel(t, dir, files))
}

func TestFiles_TopLevelPattern(t *testing.T) {
	dir := layout(t)

	files, err := New(dir, []string{"*.txt", "*.md"}).Files(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.md"}, rel(t, dir, files))
}

func TestFiles_PatternOrderAndDedup(t *testing.T) {
	dir := layout(t)

	files, err := New(dir, []string{"**/*.md", "**/*.txt", "*.txt"}).Files(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"b.md", "notes/e.md", "a.txt", "notes/c.txt", "notes/deep/d.txt"}, rel(t, dir, files))
}

func TestFiles_NestedDirectoryPattern(t *testing.T) {
	dir := layout(t)

	files, err := New(dir, []string{"**/deep/*.txt"}).Files(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"notes/deep/d.txt"}, rel(t, dir, files))
}

func TestFiles_MissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), []string{"*.txt"}).Files(context.Background())
	assert.ErrorIs(t, err, models.ErrLoad)
}

func TestFiles_BadPattern(t *testing.T) {
	_, err := New(t.TempDir(), []string{"[.txt"}).Files(context.Background())
	assert.ErrorIs(t, err, models.ErrLoad)
}

func TestLoad_ParsesDocuments(t *testing.T) {
	dir := layout(t)

	docs, err := New(dir, []string{"**/*.md"}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Heading\n\nmarkdown body", docs[0].Content)
	assert.Equal(t, filepath.Join(dir, "b.md"), docs[0].Source())
	assert.Equal(t, "nested markdown", docs[1].Content)
}

func TestLoad_UnsupportedMatchFails(t *testing.T) {
	dir := layout(t)

	_, err := New(dir, []string{"*.png"}).Load(context.Background())
	assert.ErrorIs(t, err, models.ErrLoad)
}

type countingParser struct {
	calls int
}

func (p *countingParser) ParseFile(filePath string) (models.Document, error) {
	p.calls++
	return models.Document{Content: filePath}, nil
}

func TestLoad_UnsupportedMatchFailsBeforeParsing(t *testing.T) {
	dir := layout(t)
	counter := &countingParser{}
	l := New(dir, []string{"*.txt", "*.png"})
	l.Parser = counter

	_, err := l.Load(context.Background())

	assert.ErrorIs(t, err, models.ErrLoad)
	assert.Contains(t, err.Error(), "ignored.png")
	assert.Zero(t, counter.calls)
}

func TestLoad_Cancelled(t *testing.T) {
	dir := layout(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(dir, []string{"*.txt"}).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
