package main

import (
	"fmt"

	"taskrag/internal/config"
	"taskrag/internal/embedding"
	"taskrag/internal/generate"
	"taskrag/internal/index"
	"taskrag/internal/kb"
	"taskrag/internal/llm"
	"taskrag/internal/pipeline"
	"taskrag/internal/retrieval"
)

// app holds the wired components for one command invocation. Handles are
// constructed once here and shared; request processing never mutates them.
type app struct {
	cfg       *config.Config
	engine    embedding.EmbeddingEngine
	index     *index.VectorIndex
	retriever *retrieval.Retriever
	ingestor  *kb.Ingestor
	pipeline  *pipeline.Pipeline
}

// newApp wires the retrieval side: embedding engine, vector index,
// retriever, ingestor.
func newApp(cfg *config.Config) (*app, error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding engine: %w", err)
	}

	idx, err := index.Open(cfg.Index.DatabasePath, cfg.Index.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	return &app{
		cfg:    cfg,
		engine: engine,
		index:  idx,
		retriever: retrieval.New(engine, idx, retrieval.Options{
			TopK:          cfg.Retrieval.TopK,
			MinSimilarity: cfg.Retrieval.MinSimilarity,
			Precedence:    cfg.Retrieval.FilterPrecedence,
		}),
		ingestor: kb.NewIngestor(engine, idx),
	}, nil
}

// withPipeline additionally wires the LLM client, generator, and
// orchestrator. Split out so ingest and query commands do not require an LLM
// API key.
func (a *app) withPipeline() error {
	client, err := llm.NewClient(llm.Config{
		Provider: a.cfg.LLM.Provider,
		APIKey:   a.cfg.LLM.APIKey,
		Model:    a.cfg.LLM.Model,
		BaseURL:  a.cfg.LLM.BaseURL,
		Timeout:  a.cfg.GetLLMTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to build LLM client: %w", err)
	}

	generator := generate.New(client, generate.Options{
		Temperature:       a.cfg.Generation.Temperature,
		MaxOutputTokens:   a.cfg.Generation.MaxOutputTokens,
		ContextCharBudget: a.cfg.Generation.ContextCharBudget,
	})

	a.pipeline = pipeline.New(a.retriever, generator, pipeline.FailurePolicy(a.cfg.Retrieval.FailurePolicy))
	return nil
}

func (a *app) close() {
	if a.index != nil {
		a.index.Close()
	}
}
