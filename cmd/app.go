package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"docchat/internal/config"
	"docchat/internal/embedding"
	"docchat/internal/events"
	"docchat/internal/helper"
	"docchat/internal/llmservice"
	"docchat/internal/rag"
	"docchat/internal/session"
	"docchat/internal/vectorstore"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg      *config.Config
	embedder embeddings.Embedder
	store    vectorstore.Store
	emitter  *events.Emitter
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)
	log.Debug().Str("config", path).Msg("Loaded config")

	if cfg.VectorStore.Backend == config.BackendChromem && !cfg.VectorStore.InMemory {
		if err := helper.CreateFolder(cfg.VectorStore.Path); err != nil {
			return nil, err
		}
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM, cfg.RAG.EmbedBatchSize)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.New(ctx, &cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	pub, err := events.NewPublisher(&cfg.Events)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		emitter:  events.NewEmitter(pub, cfg.Events.SubjectPrefix),
	}, nil
}

func (a *app) engine() (*rag.Engine, error) {
	llm, err := llmservice.New(&a.cfg.ChatLLM)
	if err != nil {
		return nil, err
	}
	return rag.NewEngine(a.embedder, a.store, llm, rag.Options{
		Temperature:      a.cfg.RAG.Temperature,
		CondenseQuestion: a.cfg.RAG.CondenseQuestion,
	}), nil
}

func (a *app) sessionOptions() session.Options {
	return session.Options{
		TopK:         a.cfg.RAG.TopK,
		MaxExchanges: a.cfg.History.MaxExchanges,
		Emitter:      a.emitter,
	}
}

func (a *app) Close() {
	a.emitter.Close()
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close vector store")
	}
}
