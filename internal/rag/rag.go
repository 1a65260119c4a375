package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"docchat/internal/history"
	"docchat/internal/llmservice"
	"docchat/internal/models"
	"docchat/internal/vectorstore"
)

type Options struct {
	Temperature float64
	// CondenseQuestion rewrites a follow-up question into a standalone one
	// before retrieval when the history is not empty.
	CondenseQuestion bool
}

// Engine answers questions from the chunks held in a vector store.
type Engine struct {
	embedder embeddings.Embedder
	store    vectorstore.Store
	llm      llmservice.Completer
	opts     Options
}

func NewEngine(embedder embeddings.Embedder, store vectorstore.Store, llm llmservice.Completer, opts Options) *Engine {
	return &Engine{embedder: embedder, store: store, llm: llm, opts: opts}
}

// Ask returns the model's answer verbatim. The caller records the exchange.
func (e *Engine) Ask(ctx context.Context, question string, h *history.History, k int) (string, error) {
	resp, err := e.Query(ctx, question, h, k)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Query embeds the question, retrieves the k nearest chunks, builds the
// prompt from them and the rendered history, and completes it.
func (e *Engine) Query(ctx context.Context, question string, h *history.History, k int) (*models.PromptResponse, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", models.ErrConfig, k)
	}

	count, err := e.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count store: %w", models.ErrRetrieval, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: vector store is empty, ingest documents first", models.ErrRetrieval)
	}

	rendered := h.Render()

	searchText := question
	if e.opts.CondenseQuestion && h.Len() > 0 {
		searchText, err = e.condense(ctx, question, rendered)
		if err != nil {
			return nil, err
		}
	}

	vec, err := e.embedder.EmbedQuery(ctx, searchText)
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %w", models.ErrRetrieval, err)
	}

	matches, err := e.store.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: query store: %w", models.ErrRetrieval, err)
	}
	log.Debug().Str("query", searchText).Int("matches", len(matches)).Msg("Retrieved context")

	prompt := BuildPrompt(matches, rendered, question)
	answer, err := e.llm.Complete(ctx, prompt, e.opts.Temperature)
	if err != nil {
		return nil, generationError("complete prompt", err)
	}

	return &models.PromptResponse{
		Query:   question,
		Prompt:  prompt,
		Sources: matches,
		Content: answer,
	}, nil
}

func (e *Engine) condense(ctx context.Context, question, rendered string) (string, error) {
	out, err := e.llm.Complete(ctx, fmt.Sprintf(models.CondensePromptTemplate, rendered, question), 0)
	if err != nil {
		return "", generationError("condense question", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return question, nil
	}
	log.Debug().Str("question", question).Str("standalone", out).Msg("Condensed question")
	return out, nil
}

// BuildPrompt fills the QA template with the match texts in retrieval order,
// the rendered history and the question.
func BuildPrompt(matches []models.Match, renderedHistory, question string) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.Content)
	}
	return fmt.Sprintf(models.QAPromptTemplate, strings.Join(parts, models.ContextSeparator), renderedHistory, question)
}

func generationError(op string, err error) error {
	if errors.Is(err, models.ErrGeneration) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", models.ErrGeneration, op, err)
}
