package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show per-cell outcomes for one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("show"); err != nil {
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

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "load run %s", args[0])
		}
		cells, err := st.ListCells(ctx, run.ID)
		if err != nil {
			return eris.Wrapf(err, "list cells for run %s", run.ID)
		}

		if showJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Run   *model.Run   `json:"run"`
				Cells []model.Cell `json:"cells"`
			}{run, cells})
		}

		formatRunDetail(os.Stdout, run, cells)
		return nil
	},
}

func formatRunDetail(w io.Writer, run *model.Run, cells []model.Cell) {
	fmt.Fprintf(w, "Run %s  %s  (profile %s, mode %s)\n", run.ID, run.Status, run.Profile, run.Mode)
	fmt.Fprintf(w, "Created %s  Documents %d  Fields %d\n",
		run.CreatedAt.Format("2006-01-02 15:04"), len(run.VersionIDs), len(run.FieldKeys))
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	if s := run.Summary; s != nil {
		fmt.Fprintf(w, "Cells: %d total, %d accepted, %d fallback, %d skipped, %d low-confidence\n",
			s.CellsTotal, s.CellsAccepted, s.CellsFallback, s.CellsSkipped, s.CellsLowConfidence)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tFIELD\tSTATE\tCONF\tVALUE\tFALLBACK")
	fmt.Fprintln(tw, "-------\t-----\t-----\t----\t-----\t--------")
	for _, c := range cells {
		conf, value, fallback := "-", "", ""
		if r := c.Result; r != nil {
			conf = fmt.Sprintf("%.2f", r.ConfidenceScore)
			value = truncateText(r.Value, 48)
			fallback = string(r.FallbackReason)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(c.VersionID), c.FieldKey, c.State, conf, value, fallback)
	}
	_ = tw.Flush()
}

// truncateText clips cell values so one long clause cannot wreck the table.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "emit the full run record as JSON")
	rootCmd.AddCommand(showCmd)
}
