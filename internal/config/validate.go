package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the configuration can support the given command mode.
// It reports every problem at once rather than stopping at the first.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "ingest", "run", "runs", "show", "resolve", "serve", "worker", "sync", "catalog", "mcp":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var problems []string
	need := func(value, name string) {
		if value == "" {
			problems = append(problems, name+" is required")
		}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, `store.driver must be "sqlite" or "postgres"`)
	}
	if c.Store.Driver == "postgres" {
		need(c.Store.DatabaseURL, "store.database_url")
	}

	switch c.Reasoning.Provider {
	case "", "none", "anthropic", "gemini":
	default:
		problems = append(problems, `reasoning.provider must be "anthropic", "gemini", or "none"`)
	}
	switch c.Embedding.Provider {
	case "", "openai", "hash":
	default:
		problems = append(problems, `embedding.provider must be "openai" or "hash"`)
	}
	switch c.Ranking.Mode {
	case "", "weighted", "rrf":
	default:
		problems = append(problems, `ranking.mode must be "weighted" or "rrf"`)
	}

	// Modes that open the artifact store.
	switch mode {
	case "ingest", "run", "resolve", "serve", "worker", "mcp":
		need(c.Artifacts.Path, "artifacts.path")
	}

	// Modes that construct the extraction engine.
	runish := mode == "run" || mode == "serve" || mode == "worker"
	if runish {
		if c.Pipeline.WorkerCount < 1 || c.Pipeline.WorkerCount > 64 {
			problems = append(problems, "pipeline.worker_count must be between 1 and 64")
		}
		switch c.Reasoning.Provider {
		case "anthropic":
			need(c.Reasoning.AnthropicKey, "reasoning.anthropic_key")
		case "gemini":
			need(c.Reasoning.GeminiKey, "reasoning.gemini_key")
		}
	}

	// Modes that load the field catalog.
	if runish || mode == "catalog" {
		switch c.Catalog.Source {
		case "", "default":
		case "file", "xlsx":
			need(c.Catalog.Path, "catalog.path")
		case "notion":
			need(c.Notion.Token, "notion.token")
			need(c.Notion.CatalogDB, "notion.catalog_db")
		default:
			problems = append(problems, `catalog.source must be "default", "file", "xlsx", or "notion"`)
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "worker":
		need(c.Temporal.HostPort, "temporal.host_port")
		need(c.Temporal.TaskQueue, "temporal.task_queue")
	case "sync":
		need(c.Salesforce.ClientID, "salesforce.client_id")
		need(c.Salesforce.Username, "salesforce.username")
		need(c.Salesforce.KeyPath, "salesforce.key_path")
		need(c.Salesforce.Object, "salesforce.object")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
