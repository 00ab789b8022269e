package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/durable"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Host durable extraction runs as a Temporal worker",
	Long: `Worker registers the run workflow and cell activities on the configured
task queue. Runs submitted with "evidence run --durable" execute here and
survive worker restarts mid-run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		deps, err := initEngine(ctx, st)
		if err != nil {
			return err
		}
		defer deps.Close()

		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			return eris.Wrap(err, "dial temporal")
		}
		defer tc.Close()

		w := durable.NewWorker(tc, cfg.Temporal.TaskQueue, durable.NewActivities(st, deps.engine), cfg.Pipeline.WorkerCount)

		zap.L().Info("temporal worker starting",
			zap.String("host_port", cfg.Temporal.HostPort),
			zap.String("namespace", cfg.Temporal.Namespace),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "run temporal worker")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
