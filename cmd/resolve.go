package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-legal/evidence-cli/internal/pipeline"
)

var (
	resolveRunID      string
	resolveVersionID  string
	resolveFieldKey   string
	resolvePageWidth  float64
	resolvePageHeight float64
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Re-anchor a cell's citation and report the plausibility verdict",
	Long: `Resolve replays citation resolution for one finished cell: it re-locates
the cited snippet in the stored artifact, scores the match, and runs the
anchor plausibility gate against page geometry. Review tooling uses the JSON
verdict to decide whether a highlight can be trusted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("resolve"); err != nil {
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

		out, err := deps.engine.Review(ctx, pipeline.ReviewRequest{
			RunID:      resolveRunID,
			VersionID:  resolveVersionID,
			FieldKey:   resolveFieldKey,
			PageWidth:  resolvePageWidth,
			PageHeight: resolvePageHeight,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveRunID, "run", "", "run ID the cell belongs to")
	resolveCmd.Flags().StringVar(&resolveVersionID, "document", "", "document version ID of the cell")
	resolveCmd.Flags().StringVar(&resolveFieldKey, "field", "", "field key of the cell")
	resolveCmd.Flags().Float64Var(&resolvePageWidth, "page-width", 0, "page width override for the plausibility gate")
	resolveCmd.Flags().Float64Var(&resolvePageHeight, "page-height", 0, "page height override for the plausibility gate")
	_ = resolveCmd.MarkFlagRequired("run")
	_ = resolveCmd.MarkFlagRequired("document")
	_ = resolveCmd.MarkFlagRequired("field")
	rootCmd.AddCommand(resolveCmd)
}
