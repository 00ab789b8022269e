package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-legal/evidence-cli/internal/config"
)

func TestInitArtifacts(t *testing.T) {
	cfg = &config.Config{
		Artifacts: config.ArtifactConfig{Path: filepath.Join(t.TempDir(), "artifacts.db")},
	}

	as, err := initArtifacts()
	require.NoError(t, err)
	require.NotNil(t, as)
	defer as.Close() //nolint:errcheck
}

func TestInitCatalog_Default(t *testing.T) {
	cfg = &config.Config{}

	cat, err := initCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, cat.Fields, 12)
	assert.NotNil(t, cat.ByKey("governing_law"))
}

func TestInitCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
- key: governing_law
  name: Governing Law
  type: text
  prompt: Which law governs?
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg = &config.Config{
		Catalog: config.CatalogConfig{Source: "file", Path: path},
	}

	cat, err := initCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, cat.Fields, 1)
	assert.NotNil(t, cat.ByKey("governing_law"))
}

func TestInitCatalog_NotionWithoutToken(t *testing.T) {
	cfg = &config.Config{
		Catalog: config.CatalogConfig{Source: "notion"},
	}

	cat, err := initCatalog(context.Background())
	assert.Nil(t, cat)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "EVIDENCE_NOTION_TOKEN")
}

func TestInitCatalog_UnknownSource(t *testing.T) {
	cfg = &config.Config{
		Catalog: config.CatalogConfig{Source: "carrier-pigeon"},
	}

	cat, err := initCatalog(context.Background())
	assert.Nil(t, cat)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported catalog source")
}

func TestInitEmbedder_HashIsNil(t *testing.T) {
	cfg = &config.Config{
		Embedding: config.EmbeddingConfig{Provider: "hash"},
	}

	assert.Nil(t, initEmbedder(nil))
}

func TestInitEmbedder_OpenAIWithoutKeyIsNil(t *testing.T) {
	cfg = &config.Config{
		Embedding: config.EmbeddingConfig{Provider: "openai"},
	}

	assert.Nil(t, initEmbedder(nil))
}

func TestInitEmbedder_OpenAI(t *testing.T) {
	cfg = &config.Config{
		Embedding: config.EmbeddingConfig{Provider: "openai", APIKey: "sk-test", Model: "text-embedding-3-small"},
	}

	assert.NotNil(t, initEmbedder(nil))
}

func TestInitReasoner_None(t *testing.T) {
	cfg = &config.Config{
		Reasoning: config.ReasoningConfig{Provider: "none"},
	}

	r, err := initReasoner(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestInitReasoner_AnthropicWithoutKey(t *testing.T) {
	cfg = &config.Config{
		Reasoning: config.ReasoningConfig{Provider: "anthropic"},
	}

	r, err := initReasoner(context.Background())
	assert.Nil(t, r)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "EVIDENCE_REASONING_ANTHROPIC_KEY")
}

func TestInitReasoner_Anthropic(t *testing.T) {
	cfg = &config.Config{
		Reasoning: config.ReasoningConfig{Provider: "anthropic", AnthropicKey: "sk-ant-test"},
	}

	r, err := initReasoner(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestInitReasoner_UnknownProvider(t *testing.T) {
	cfg = &config.Config{
		Reasoning: config.ReasoningConfig{Provider: "ouija"},
	}

	r, err := initReasoner(context.Background())
	assert.Nil(t, r)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported reasoning provider")
}
