package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docsearch/internal/catalog"
	"docsearch/internal/chunker"
	"docsearch/internal/config"
	"docsearch/internal/domain"
	"docsearch/internal/embedding/hash"
	"docsearch/internal/embedding/ollama"
	"docsearch/internal/embedding/openai"
	"docsearch/internal/extract"
	"docsearch/internal/history"
	"docsearch/internal/logger"
	"docsearch/internal/provider"
	ollamaprovider "docsearch/internal/provider/ollama"
	"docsearch/internal/provider/openaicompat"
	"docsearch/internal/service"
	"docsearch/internal/summarizer"
	"docsearch/internal/vectorstore"
	"docsearch/internal/vectorstore/memory"
	"docsearch/internal/vectorstore/pgvector"
	"docsearch/internal/vectorstore/qdrant"
)

// app bundles the assembled components of one command invocation.
type app struct {
	cfg       *config.AppConfig
	logger    *slog.Logger
	svc       *service.RAGService
	extractor *extract.Extractor
	closers   []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logCfg := logger.DefaultConfig()
	logCfg.Level, logCfg.Format = cfg.Log.Level, cfg.Log.Format
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log, extractor: extract.New()}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	store, err := newStorage(ctx, cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	index := vectorstore.NewIndex(emb, store)
	a.closers = append(a.closers, index.Close)

	ch, err := chunker.NewWindowChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}

	registry := newRegistry(cfg.Providers, log)
	cache := catalog.New(registry.Adapters(), catalog.Options{TTL: cfg.Catalog.TTL(), Logger: log})

	var hist domain.HistoryStore
	if cfg.History.Enabled {
		hs, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, hs.Close)
		hist = hs
	}

	a.svc = service.NewRAGService(service.Deps{
		Chunker:      ch,
		Index:        index,
		Orchestrator: service.NewOrchestrator(index, registry, log),
		Catalog:      cache,
		Extractor:    a.extractor,
		Summarizer:   summarizer.NewFrequencySummarizer(),
		History:      hist,
		DocumentsDir: cfg.Server.DocumentsDir,
		Logger:       log,
	})
	ok = true
	return a, nil
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hash", "":
		return hash.NewEmbedder(cfg.Hash.Dimension), nil
	case "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL:           cfg.Ollama.BaseURL,
			Model:             cfg.Ollama.Model,
			Timeout:           time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
			RequestsPerSecond: cfg.Ollama.RequestsPerSecond,
		}), nil
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Dimension: cfg.OpenAI.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newStorage(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
		})
	case "pgvector":
		return pgvector.NewStorage(ctx, pgvector.Config{DSN: cfg.PGVector.DSN, Table: cfg.PGVector.Table})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func newRegistry(cfg config.ProvidersConfig, log *slog.Logger) *provider.Registry {
	var adapters []provider.Adapter
	compat := []struct {
		enabled bool
		preset  func(string) openaicompat.Config
		cfg     config.OpenAICompatProviderConfig
	}{
		{cfg.DeepSeek.Enabled, openaicompat.DeepSeek, cfg.DeepSeek},
		{cfg.Groq.Enabled, openaicompat.Groq, cfg.Groq},
	}
	for _, c := range compat {
		if !c.enabled {
			continue
		}
		pc := c.preset(c.cfg.ResolveAPIKey())
		if c.cfg.BaseURL != "" {
			pc.BaseURL = c.cfg.BaseURL
		}
		if len(c.cfg.DefaultModels) > 0 {
			pc.DefaultModels = c.cfg.DefaultModels
		}
		adapters = append(adapters, openaicompat.New(pc, log))
	}
	if cfg.Ollama.Enabled {
		adapters = append(adapters, ollamaprovider.New(ollamaprovider.Config{
			BaseURL:       cfg.Ollama.BaseURL,
			DefaultModels: cfg.Ollama.DefaultModels,
		}, log))
	}
	return provider.NewRegistry(adapters...)
}
