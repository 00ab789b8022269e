package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/artifact"
	"github.com/meridian-legal/evidence-cli/internal/embed"
	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/internal/pipeline"
	"github.com/meridian-legal/evidence-cli/internal/rank"
	"github.com/meridian-legal/evidence-cli/internal/registry"
	"github.com/meridian-legal/evidence-cli/internal/segment"
	"github.com/meridian-legal/evidence-cli/internal/store"
	"github.com/meridian-legal/evidence-cli/pkg/anthropic"
	"github.com/meridian-legal/evidence-cli/pkg/gemini"
	"github.com/meridian-legal/evidence-cli/pkg/notion"
	"github.com/meridian-legal/evidence-cli/pkg/openai"
)

// initArtifacts opens the local parsed-artifact store.
func initArtifacts() (*artifact.Store, error) {
	path := cfg.Artifacts.Path
	if path == "" {
		path = "artifacts.db"
	}
	as, err := artifact.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open artifact store")
	}
	return as, nil
}

// initCatalog loads the field catalog from the configured source.
func initCatalog(ctx context.Context) (*model.FieldCatalog, error) {
	switch cfg.Catalog.Source {
	case "", "default":
		return registry.DefaultCatalog(), nil
	case "file":
		return registry.LoadCatalogFromFile(cfg.Catalog.Path)
	case "xlsx":
		return registry.LoadCatalogFromXLSX(cfg.Catalog.Path)
	case "notion":
		if cfg.Notion.Token == "" {
			return nil, eris.New("notion token is required (EVIDENCE_NOTION_TOKEN)")
		}
		client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(3))
		return registry.LoadCatalogFromNotion(ctx, client, cfg.Notion.CatalogDB)
	default:
		return nil, eris.Errorf("unsupported catalog source: %s", cfg.Catalog.Source)
	}
}

// initEmbedder builds the cached embedding provider. A nil return is valid:
// the ranker falls back to deterministic hash embeddings.
func initEmbedder(st store.Store) pipeline.Embedder {
	if cfg.Embedding.Provider != "openai" {
		return nil
	}
	if cfg.Embedding.APIKey == "" {
		zap.L().Warn("embedding api key missing, ranking degrades to hash embeddings (EVIDENCE_EMBEDDING_API_KEY)")
		return nil
	}

	opts := []openai.Option{openai.WithModel(cfg.Embedding.Model)}
	if cfg.Embedding.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Embedding.BaseURL))
	}
	client := openai.NewClient(cfg.Embedding.APIKey, opts...)
	return embed.NewCached(embed.NewOpenAI(client, cfg.Embedding.Model), st, cfg.Embedding.Options())
}

// initReasoner builds the reasoning backend. With provider "none" it returns
// (nil, nil) and only deterministic runs are possible.
func initReasoner(ctx context.Context) (pipeline.Reasoner, error) {
	switch cfg.Reasoning.Provider {
	case "", "none":
		return nil, nil
	case "anthropic":
		if cfg.Reasoning.AnthropicKey == "" {
			return nil, eris.New("anthropic api key is required (EVIDENCE_REASONING_ANTHROPIC_KEY)")
		}
		return pipeline.NewAnthropicReasoner(anthropic.NewClient(cfg.Reasoning.AnthropicKey), cfg.Reasoning.Models), nil
	case "gemini":
		if cfg.Reasoning.GeminiKey == "" {
			return nil, eris.New("gemini api key is required (EVIDENCE_REASONING_GEMINI_KEY)")
		}
		client, err := gemini.NewClient(ctx, cfg.Reasoning.GeminiKey)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini client")
		}
		return pipeline.NewGeminiReasoner(client, cfg.Reasoning.Models), nil
	default:
		return nil, eris.Errorf("unsupported reasoning provider: %s", cfg.Reasoning.Provider)
	}
}

// engineDeps bundles the extraction engine with the stores and catalog the
// commands hand to the HTTP and MCP surfaces.
type engineDeps struct {
	artifacts *artifact.Store
	catalog   *model.FieldCatalog
	ranker    *rank.Ranker
	assembler *segment.Assembler
	engine    *pipeline.Engine
}

func (d *engineDeps) Close() {
	_ = d.artifacts.Close()
}

// initEngine wires the full pipeline around an already-open run store.
func initEngine(ctx context.Context, st store.Store) (*engineDeps, error) {
	artifacts, err := initArtifacts()
	if err != nil {
		return nil, err
	}

	catalog, err := initCatalog(ctx)
	if err != nil {
		_ = artifacts.Close()
		return nil, err
	}

	reasoner, err := initReasoner(ctx)
	if err != nil {
		_ = artifacts.Close()
		return nil, err
	}

	ranker := rank.New(cfg.Ranking.Options())
	assembler := segment.New(cfg.Segment)
	engine := pipeline.NewEngine(
		st,
		artifacts,
		catalog,
		ranker,
		assembler,
		initEmbedder(st),
		reasoner,
		cfg.Pipeline,
	)

	return &engineDeps{
		artifacts: artifacts,
		catalog:   catalog,
		ranker:    ranker,
		assembler: assembler,
		engine:    engine,
	}, nil
}
