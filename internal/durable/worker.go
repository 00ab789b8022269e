package durable

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// NewWorker builds the Temporal worker hosting the run workflow and its
// activities. concurrency bounds parallel cell activities the same way the
// in-process engine bounds its worker pool.
func NewWorker(c client.Client, taskQueue string, acts *Activities, concurrency int) worker.Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: concurrency,
	})
	w.RegisterWorkflow(RunWorkflow)
	w.RegisterActivity(acts)
	return w
}

// StartRun submits the workflow for an already-created run record and returns
// the workflow ID. The run executes on whatever worker is listening on the
// task queue; callers watch progress through `evidence show`.
func StartRun(ctx context.Context, c client.Client, taskQueue, runID string) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        "evidence-run-" + runID,
		TaskQueue: taskQueue,
	}
	wr, err := c.ExecuteWorkflow(ctx, opts, RunWorkflow, RunInput{RunID: runID})
	if err != nil {
		return "", eris.Wrapf(err, "durable: start workflow for run %s", runID)
	}
	return wr.GetID(), nil
}
