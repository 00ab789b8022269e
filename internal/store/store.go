// Package store persists runs, cells, and the embedding cache. SQLite is the
// default engine for single-user installs; Postgres backs shared deployments.
package store

import (
	"context"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// CellSeed identifies one cell of the run grid before it exists.
type CellSeed struct {
	VersionID string `json:"version_id"`
	FieldKey  string `json:"field_key"`
}

// Store is the persistence interface shared by the run engine, the CLI, and
// the MCP server.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, versionIDs, fieldKeys []string, profile model.QualityProfile, mode model.ExtractionMode) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Cells. The whole version×field grid is created up front in one batch;
	// only terminal cells carry a result row, transitional states live in
	// memory inside the engine.
	CreateCells(ctx context.Context, runID string, seeds []CellSeed) ([]model.Cell, error)
	CompleteCell(ctx context.Context, cellID string, state model.CellState, result *model.CellResult) error
	GetCell(ctx context.Context, cellID string) (*model.Cell, error)
	ListCells(ctx context.Context, runID string) ([]model.Cell, error)

	// Embedding cache, keyed by (version, block, embedding model). Upsert is
	// idempotent: concurrent cells recomputing the same key is harmless.
	GetEmbeddings(ctx context.Context, versionID, embedModel string, blockIDs []string) (map[string][]float64, error)
	PutEmbeddings(ctx context.Context, versionID, embedModel string, vectors map[string][]float64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
