package durable

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"

	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/internal/pipeline"
	"github.com/meridian-legal/evidence-cli/internal/store"
)

// Activities holds the worker-side dependencies the run workflow calls into.
type Activities struct {
	store  store.Store
	engine *pipeline.Engine
}

// NewActivities wires the store and engine into the activity set.
func NewActivities(st store.Store, engine *pipeline.Engine) *Activities {
	return &Activities{store: st, engine: engine}
}

// PrepareRun marks the run running and creates its cell grid, returning the
// cell IDs the workflow fans out. Idempotent: a retried prepare reuses the
// grid the first attempt already created.
func (a *Activities) PrepareRun(ctx context.Context, input RunInput) ([]string, error) {
	logger := activity.GetLogger(ctx)

	run, err := a.store.GetRun(ctx, input.RunID)
	if err != nil {
		return nil, eris.Wrapf(err, "durable: load run %s", input.RunID)
	}

	existing, err := a.store.ListCells(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "durable: list cells for run %s", run.ID)
	}
	if len(existing) > 0 {
		logger.Info("reusing existing cell grid", "run_id", run.ID, "cells", len(existing))
		return cellIDs(existing), nil
	}

	if err := a.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		return nil, eris.Wrapf(err, "durable: mark run %s running", run.ID)
	}

	seeds := make([]store.CellSeed, 0, len(run.VersionIDs)*len(run.FieldKeys))
	for _, versionID := range run.VersionIDs {
		for _, key := range run.FieldKeys {
			seeds = append(seeds, store.CellSeed{VersionID: versionID, FieldKey: key})
		}
	}
	cells, err := a.store.CreateCells(ctx, run.ID, seeds)
	if err != nil {
		return nil, eris.Wrapf(err, "durable: create cells for run %s", run.ID)
	}
	logger.Info("created cell grid",
		"run_id", run.ID,
		"documents", len(run.VersionIDs),
		"fields", len(run.FieldKeys),
	)
	return cellIDs(cells), nil
}

// ProcessCell executes one cell through the engine. Already-terminal cells
// return immediately, so activity retries and workflow replays are harmless.
func (a *Activities) ProcessCell(ctx context.Context, input ProcessCellInput) error {
	return a.engine.ProcessCell(ctx, input.RunID, input.CellID)
}

// FinalizeRun derives the run's terminal status from its persisted cells.
// Cells still pending here exhausted their activity retries and are closed
// out as skipped.
func (a *Activities) FinalizeRun(ctx context.Context, input FinalizeInput) (*RunOutput, error) {
	cells, err := a.store.ListCells(ctx, input.RunID)
	if err != nil {
		return nil, eris.Wrapf(err, "durable: list cells for run %s", input.RunID)
	}

	summary := model.RunSummary{CellsTotal: len(cells)}
	for _, cell := range cells {
		switch cell.State {
		case model.CellAccepted:
			summary.CellsAccepted++
		case model.CellFallback:
			summary.CellsFallback++
		case model.CellSkipped:
			summary.CellsSkipped++
		default:
			if err := a.store.CompleteCell(ctx, cell.ID, model.CellSkipped, nil); err != nil {
				activity.GetLogger(ctx).Warn("failed to mark cell skipped",
					"cell_id", cell.ID, "error", err)
			}
			summary.CellsSkipped++
		}
		if cell.State.Terminal() && cell.State != model.CellSkipped &&
			cell.Result != nil && cell.Result.ConfidenceScore < 0.55 {
			summary.CellsLowConfidence++
		}
	}

	status := model.RunStatusFailed
	switch {
	case input.Canceled:
		status = model.RunStatusCanceled
	case summary.CellsAccepted == summary.CellsTotal && summary.CellsTotal > 0:
		status = model.RunStatusCompleted
	case summary.CellsAccepted > 0:
		status = model.RunStatusPartial
	}

	if err := a.store.CompleteRun(ctx, input.RunID, status, &summary, ""); err != nil {
		return nil, eris.Wrapf(err, "durable: complete run %s", input.RunID)
	}
	return &RunOutput{Status: status, Summary: summary}, nil
}

func cellIDs(cells []model.Cell) []string {
	ids := make([]string, len(cells))
	for i := range cells {
		ids[i] = cells[i].ID
	}
	return ids
}
