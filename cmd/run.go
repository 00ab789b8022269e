package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/durable"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

var (
	runDocuments []string
	runFields    []string
	runProfile   string
	runMode      string
	runDurable   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute an extraction run over ingested document versions",
	Long: `Run evaluates every requested field against every requested document
version. Each (version, field) cell retrieves candidate blocks, assembles
evidence segments, and extracts a value with citations; a verifier pass
accepts or retries each extraction.

With --durable the run is submitted as a Temporal workflow and executes on
"evidence worker" processes instead of in this one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		profile, ok := model.ParseProfile(runProfile)
		if !ok {
			return eris.Errorf("unknown profile %q (want high, balanced, or fast)", runProfile)
		}
		mode, ok := model.ParseMode(runMode)
		if !ok {
			return eris.Errorf("unknown mode %q (want llm_rse or deterministic)", runMode)
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

		fields := runFields
		if len(fields) == 0 {
			fields = deps.catalog.Keys()
		}
		for _, key := range fields {
			if deps.catalog.ByKey(key) == nil {
				return eris.Errorf("unknown field key %q", key)
			}
		}

		run, err := st.CreateRun(ctx, runDocuments, fields, profile, mode)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		if runDurable {
			if cfg.Temporal.TaskQueue == "" {
				return eris.New("temporal task queue is required (EVIDENCE_TEMPORAL_TASK_QUEUE)")
			}
			tc, err := client.Dial(client.Options{
				HostPort:  cfg.Temporal.HostPort,
				Namespace: cfg.Temporal.Namespace,
			})
			if err != nil {
				return eris.Wrap(err, "dial temporal")
			}
			defer tc.Close()

			workflowID, err := durable.StartRun(ctx, tc, cfg.Temporal.TaskQueue, run.ID)
			if err != nil {
				return err
			}
			zap.L().Info("durable run submitted",
				zap.String("run_id", run.ID),
				zap.String("workflow_id", workflowID),
			)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"run_id":      run.ID,
				"workflow_id": workflowID,
				"status":      run.Status,
			})
		}

		summary, err := deps.engine.ExecuteRun(ctx, run)
		if err != nil {
			return eris.Wrapf(err, "run %s", run.ID)
		}
		zap.L().Info("run finished",
			zap.String("run_id", run.ID),
			zap.Int("cells_total", summary.CellsTotal),
			zap.Int("cells_accepted", summary.CellsAccepted),
			zap.Int("cells_fallback", summary.CellsFallback),
		)

		final, err := st.GetRun(ctx, run.ID)
		if err != nil {
			return eris.Wrapf(err, "load run %s", run.ID)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runDocuments, "document", nil, "document version ID to extract from (repeatable)")
	runCmd.Flags().StringSliceVar(&runFields, "fields", nil, "field keys to extract (default: whole catalog)")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "quality profile: high, balanced, or fast (default balanced)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "extraction mode: llm_rse or deterministic (default llm_rse)")
	runCmd.Flags().BoolVar(&runDurable, "durable", false, "submit as a Temporal workflow instead of running in-process")
	_ = runCmd.MarkFlagRequired("document")
	rootCmd.AddCommand(runCmd)
}
