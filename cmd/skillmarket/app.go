package main

import (
	"context"
	"fmt"
	"log"

	"github.com/dshills/skillmarket/internal/assistant"
	"github.com/dshills/skillmarket/internal/config"
	"github.com/dshills/skillmarket/internal/embedder"
	"github.com/dshills/skillmarket/internal/indexer"
	"github.com/dshills/skillmarket/internal/llm"
	"github.com/dshills/skillmarket/internal/searcher"
	"github.com/dshills/skillmarket/internal/storage"
)

// app holds the components shared by every command
type app struct {
	store     storage.Storage
	embedder  embedder.Embedder
	searcher  *searcher.Searcher
	assistant *assistant.Assistant
	indexer   *indexer.Indexer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(ctx, cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	client, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}

	log.Printf("Storage: %s, Embeddings: %s/%s", cfg.DBDriver, emb.Provider(), emb.Model())

	return &app{
		store:     store,
		embedder:  emb,
		searcher:  searcher.NewSearcher(store),
		assistant: assistant.New(store, emb, client),
		indexer: indexer.New(store, emb, indexer.Config{
			Workers:   cfg.IndexWorkers,
			QueueSize: cfg.IndexQueueSize,
		}),
	}, nil
}

func (a *app) Close() {
	if err := a.embedder.Close(); err != nil {
		log.Printf("WARN: failed to close embedder: %v", err)
	}
	if err := a.store.Close(); err != nil {
		log.Printf("WARN: failed to close storage: %v", err)
	}
}
