// Package chunker splits documents into overlapping fixed-size chunks.
package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"docchat/internal/models"
)

// DefaultSeparators are tried in order when looking for a clean break point.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts text into chunks of at most chunkSize characters where each
// chunk after the first repeats the last overlap characters of its predecessor.
// Sizes are counted in runes.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators [][]rune
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSeparators replaces the break-point delimiters, highest preference first.
// An empty list disables look-back so chunks are always cut at the size limit.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		s.separators = s.separators[:0]
		for _, sep := range seps {
			if sep != "" {
				s.separators = append(s.separators, []rune(sep))
			}
		}
	}
}

// New validates the chunking parameters and returns a Splitter.
func New(chunkSize, overlap int, opts ...Option) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", models.ErrConfig, chunkSize, overlap)
	}

	s := &Splitter{chunkSize: chunkSize, overlap: overlap}
	WithSeparators(DefaultSeparators...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Split is a one-shot helper around New and SplitDocuments.
func Split(docs []models.Document, chunkSize, overlap int) ([]models.Chunk, error) {
	s, err := New(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	return s.SplitDocuments(docs), nil
}

// SplitDocuments splits every document in order. Chunks inherit a copy of the
// parent metadata plus their position, and get a deterministic ID.
func (s *Splitter) SplitDocuments(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for i, doc := range docs {
		source := doc.Source()
		if source == "" {
			source = fmt.Sprintf("doc-%d", i)
		}

		for order, text := range s.SplitText(doc.Content) {
			meta := make(map[string]string, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta[models.MetaChunk] = strconv.Itoa(order)

			chunks = append(chunks, models.Chunk{
				ID:       fmt.Sprintf("%s#%d", source, order),
				Content:  text,
				Metadata: meta,
				Order:    order,
			})
		}
	}
	return chunks
}

// SplitText returns the chunk texts of a single document. Empty or
// whitespace-only text yields no chunks.
func (s *Splitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)

	var out []string
	start := 0
	for {
		if n-start <= s.chunkSize {
			out = append(out, string(runes[start:]))
			return out
		}

		end := s.breakPoint(runes, start, start+s.chunkSize)
		out = append(out, string(runes[start:end]))
		start = end - s.overlap
	}
}

// breakPoint finds the end of the chunk starting at start. Separators in the
// last tenth of the window win; failing that, the nearest separator anywhere in
// the window is used so a word is only cut when it cannot fit. The result never
// stops the next chunk from advancing.
func (s *Splitter) breakPoint(runes []rune, start, limit int) int {
	floor := start + s.overlap + 1
	if floor > limit {
		return limit
	}
	tenth := limit - s.chunkSize/10
	if tenth < floor {
		tenth = floor
	}

	if end, ok := s.lastSeparator(runes, tenth, limit); ok {
		return end
	}
	if tenth > floor {
		if end, ok := s.lastSeparator(runes, floor, tenth-1); ok {
			return end
		}
	}
	return limit
}

// lastSeparator returns the largest end in [lo, hi] that follows a separator,
// trying separators in preference order.
func (s *Splitter) lastSeparator(runes []rune, lo, hi int) (int, bool) {
	for _, sep := range s.separators {
		for end := hi; end >= lo; end-- {
			if hasSuffixAt(runes, end, sep) {
				return end, true
			}
		}
	}
	return 0, false
}

func hasSuffixAt(runes []rune, end int, sep []rune) bool {
	if end-len(sep) < 0 {
		return false
	}
	for i, r := range sep {
		if runes[end-len(sep)+i] != r {
			return false
		}
	}
	return true
}
