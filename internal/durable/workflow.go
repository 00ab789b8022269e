// Package durable runs extractions as Temporal workflows. The workflow fans
// each cell out as its own activity so a crashed worker resumes mid-run
// instead of restarting it; the embedding cache keeps re-preparation of a
// version cheap across activity boundaries.
package durable

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// RunInput identifies the stored run the workflow executes. The run record
// and its parameters are created before the workflow starts; everything else
// is read back from the store inside activities.
type RunInput struct {
	RunID string `json:"run_id"`
}

// RunOutput is the workflow result: the run's terminal status and summary.
type RunOutput struct {
	Status  model.RunStatus  `json:"status"`
	Summary model.RunSummary `json:"summary"`
}

// ProcessCellInput names one cell of the run grid.
type ProcessCellInput struct {
	RunID  string `json:"run_id"`
	CellID string `json:"cell_id"`
}

// FinalizeInput closes out a run. Canceled forces the canceled status while
// preserving every cell that already reached a terminal state.
type FinalizeInput struct {
	RunID    string `json:"run_id"`
	Canceled bool   `json:"canceled"`
}

// RunWorkflow drives a run to completion: create the cell grid, execute every
// cell as an activity, then derive the run's terminal status from what the
// cells persisted. A cell that exhausts its activity retries is closed out as
// skipped at finalization; it never fails the run.
func RunWorkflow(ctx workflow.Context, input RunInput) (*RunOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting extraction run", "run_id", input.RunID)

	retry := &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    3,
	}
	prepCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         retry,
	})
	// Cell activities cover retrieval plus up to three reasoning calls, so
	// they get a much longer leash than the bookkeeping activities.
	cellCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         retry,
	})

	var a *Activities

	var cellIDs []string
	prepErr := workflow.ExecuteActivity(prepCtx, a.PrepareRun, input).Get(prepCtx, &cellIDs)

	failed := 0
	if prepErr == nil {
		futures := make([]workflow.Future, len(cellIDs))
		for i, cellID := range cellIDs {
			futures[i] = workflow.ExecuteActivity(cellCtx, a.ProcessCell, ProcessCellInput{
				RunID:  input.RunID,
				CellID: cellID,
			})
		}
		for i, f := range futures {
			if err := f.Get(cellCtx, nil); err != nil {
				logger.Warn("cell activity failed", "cell_id", cellIDs[i], "error", err)
				failed++
			}
		}
	}

	canceled := ctx.Err() != nil || temporal.IsCanceledError(prepErr)
	if prepErr != nil && !canceled {
		return nil, prepErr
	}
	if failed > 0 {
		logger.Warn("cells exhausted activity retries", "run_id", input.RunID, "failed", failed)
	}

	finCtx := prepCtx
	if canceled {
		// Finalization still runs after cancellation so finished cells are
		// kept and the run record reaches a terminal state.
		dctx, _ := workflow.NewDisconnectedContext(ctx)
		finCtx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{
			StartToCloseTimeout: 2 * time.Minute,
			RetryPolicy:         retry,
		})
	}
	var out RunOutput
	if err := workflow.ExecuteActivity(finCtx, a.FinalizeRun, FinalizeInput{
		RunID:    input.RunID,
		Canceled: canceled,
	}).Get(finCtx, &out); err != nil {
		return nil, err
	}

	logger.Info("extraction run finished",
		"run_id", input.RunID,
		"status", string(out.Status),
		"accepted", out.Summary.CellsAccepted,
		"fallback", out.Summary.CellsFallback,
		"skipped", out.Summary.CellsSkipped,
	)
	return &out, nil
}
