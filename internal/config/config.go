// Package config loads application configuration from a YAML file and
// EVIDENCE_* environment variables, with environment taking precedence.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridian-legal/evidence-cli/internal/embed"
	"github.com/meridian-legal/evidence-cli/internal/pipeline"
	"github.com/meridian-legal/evidence-cli/internal/rank"
	"github.com/meridian-legal/evidence-cli/internal/segment"
)

// Config is the root configuration for the evidence CLI.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Artifacts  ArtifactConfig   `yaml:"artifacts" mapstructure:"artifacts"`
	Reasoning  ReasoningConfig  `yaml:"reasoning" mapstructure:"reasoning"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Ranking    RankingConfig    `yaml:"ranking" mapstructure:"ranking"`
	Segment    segment.Options  `yaml:"segment" mapstructure:"segment"`
	Pipeline   pipeline.Options `yaml:"pipeline" mapstructure:"pipeline"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the run/cell store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ArtifactConfig locates the local parsed-artifact store.
type ArtifactConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ReasoningConfig selects the model backend for extraction and verification.
// Provider is one of "anthropic", "gemini", or "none"; with "none" only
// deterministic runs are available.
type ReasoningConfig struct {
	Provider     string                  `yaml:"provider" mapstructure:"provider"`
	AnthropicKey string                  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	GeminiKey    string                  `yaml:"gemini_key" mapstructure:"gemini_key"`
	Models       pipeline.ReasonerModels `yaml:"models" mapstructure:"models"`
}

// EmbeddingConfig selects the embedding backend for semantic ranking.
// Provider is "openai" or "hash"; the hash provider is deterministic and
// needs no credentials.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxChars  int    `yaml:"max_chars" mapstructure:"max_chars"`
}

// Options converts the section into embedding batch options.
func (c EmbeddingConfig) Options() embed.Options {
	return embed.Options{BatchSize: c.BatchSize, MaxChars: c.MaxChars}
}

// RankingConfig tunes hybrid candidate ranking.
type RankingConfig struct {
	Mode       string       `yaml:"mode" mapstructure:"mode"`
	Weights    rank.Weights `yaml:"weights" mapstructure:"weights"`
	TableBonus float64      `yaml:"table_bonus" mapstructure:"table_bonus"`
	RRFK       int          `yaml:"rrf_k" mapstructure:"rrf_k"`
}

// Options converts the section into ranker options.
func (c RankingConfig) Options() rank.Options {
	return rank.Options{
		Mode:       rank.Mode(c.Mode),
		Weights:    c.Weights,
		TableBonus: c.TableBonus,
		RRFK:       c.RRFK,
	}
}

// CatalogConfig selects where the field catalog is loaded from.
// Source is one of "default", "file", "xlsx", or "notion".
type CatalogConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// NotionConfig holds Notion API access for the managed field catalog.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	CatalogDB string `yaml:"catalog_db" mapstructure:"catalog_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings. Object is the SObject
// accepted field values are written to.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
	Object   string `yaml:"object" mapstructure:"object"`
}

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// TemporalConfig holds Temporal connection settings for durable runs.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (searched in . and
// $HOME/.evidence) and from EVIDENCE_* environment variables. A missing
// config file is not an error; defaults cover every knob.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.evidence")

	// Environment
	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "evidence.db")
	v.SetDefault("artifacts.path", "artifacts.db")
	v.SetDefault("reasoning.provider", "none")
	v.SetDefault("reasoning.models.high", "claude-opus-4-6")
	v.SetDefault("reasoning.models.balanced", "claude-sonnet-4-5-20250929")
	v.SetDefault("reasoning.models.fast", "claude-haiku-4-5-20251001")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.max_chars", 8000)
	v.SetDefault("ranking.mode", "weighted")
	v.SetDefault("ranking.weights.semantic", 0.5)
	v.SetDefault("ranking.weights.lexical", 0.3)
	v.SetDefault("ranking.weights.structural", 0.2)
	v.SetDefault("ranking.table_bonus", 0.1)
	v.SetDefault("ranking.rrf_k", 60)
	v.SetDefault("segment.window_radius", 2)
	v.SetDefault("segment.max_segments", 8)
	v.SetDefault("segment.max_chars", 12000)
	v.SetDefault("segment.max_citations", 32)
	v.SetDefault("pipeline.worker_count", 4)
	v.SetDefault("pipeline.pool_high", 8)
	v.SetDefault("pipeline.pool_balanced", 6)
	v.SetDefault("pipeline.pool_fast", 4)
	v.SetDefault("pipeline.retry_pool_size", 12)
	v.SetDefault("pipeline.retry_max_segments", 12)
	v.SetDefault("pipeline.confidence.base", 0.45)
	v.SetDefault("pipeline.confidence.retrieval", 0.35)
	v.SetDefault("pipeline.confidence.pass_bonus", 0.15)
	v.SetDefault("pipeline.confidence.partial_bonus", 0.03)
	v.SetDefault("pipeline.confidence.fail_penalty", 0.20)
	v.SetDefault("pipeline.confidence.consistency_bonus", 0.08)
	v.SetDefault("catalog.source", "default")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.object", "Contract__c")
	v.SetDefault("server.port", 8080)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "evidence-pipeline")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger builds the global zap logger from the log section.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
