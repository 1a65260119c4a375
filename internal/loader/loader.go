// Package loader reads the documents of a directory that match a set of glob patterns.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"docchat/internal/models"
	"docchat/internal/parser"
)

const recursivePrefix = "**/"

// DirectoryLoader loads every file under Dir matching one of Patterns.
// A pattern starting with "**/" matches at any depth, other patterns only
// relative to Dir itself.
type DirectoryLoader struct {
	Dir      string
	Patterns []string
	Parser   parser.Parser
}

func New(dir string, patterns []string) *DirectoryLoader {
	return &DirectoryLoader{Dir: dir, Patterns: patterns, Parser: parser.New()}
}

// Load parses the matched files in pattern order, then path order.
func (l *DirectoryLoader) Load(ctx context.Context) ([]models.Document, error) {
	files, err := l.Files(ctx)
	if err != nil {
		return nil, err
	}

	// refuse the whole run before parsing anything
	for _, file := range files {
		if !parser.Supported(file) {
			log.Debug().Str("file", file).Msg("Unsupported document format")
			return nil, fmt.Errorf("%w: unsupported file format %q: %s", models.ErrLoad, filepath.Ext(file), file)
		}
	}

	docs := make([]models.Document, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := l.Parser.ParseFile(file)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("file", file).Int("characters", len(doc.Content)).Msg("Loaded document")
		docs = append(docs, doc)
	}

	log.Info().Msgf("You have %d document(s) in your data", len(docs))
	if len(docs) > 0 {
		log.Info().Msgf("There are %d characters in your document", len(docs[0].Content))
	}
	return docs, nil
}

// Files lists the matched paths without parsing them. Files matched by more
// than one pattern are listed once.
func (l *DirectoryLoader) Files(ctx context.Context) ([]string, error) {
	info, err := os.Stat(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: documents directory: %w", models.ErrLoad, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", models.ErrLoad, l.Dir)
	}

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range l.Patterns {
		matches, err := l.match(ctx, pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

func (l *DirectoryLoader) match(ctx context.Context, pattern string) ([]string, error) {
	pattern = filepath.FromSlash(pattern)
	if _, err := filepath.Match(strings.TrimPrefix(pattern, filepath.FromSlash(recursivePrefix)), ""); err != nil {
		return nil, fmt.Errorf("%w: bad pattern %q: %w", models.ErrLoad, pattern, err)
	}

	if !strings.HasPrefix(pattern, filepath.FromSlash(recursivePrefix)) {
		matches, err := filepath.Glob(filepath.Join(l.Dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %w", models.ErrLoad, pattern, err)
		}
		var files []string
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				files = append(files, m)
			}
		}
		sort.Strings(files)
		return files, nil
	}

	suffix := strings.TrimPrefix(pattern, filepath.FromSlash(recursivePrefix))
	var files []string
	err := filepath.WalkDir(l.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(l.Dir, path)
		if err != nil {
			return err
		}
		if matchAnyDepth(suffix, rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %w", models.ErrLoad, l.Dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// matchAnyDepth reports whether pattern matches rel or any trailing part of it
// that starts at a directory boundary.
func matchAnyDepth(pattern, rel string) bool {
	parts := strings.Split(rel, string(filepath.Separator))
	for i := range parts {
		ok, _ := filepath.Match(pattern, filepath.Join(parts[i:]...))
		if ok {
			return true
		}
	}
	return false
}
