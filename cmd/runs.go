package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/internal/store"
)

var (
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List extraction runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		filter := store.RunFilter{Limit: runsLimit}
		if runsStatus != "" {
			status := model.RunStatus(runsStatus)
			switch status {
			case model.RunStatusQueued, model.RunStatusRunning, model.RunStatusCompleted,
				model.RunStatusPartial, model.RunStatusFailed, model.RunStatusCanceled:
				filter.Status = status
			default:
				return eris.Errorf("unknown run status %q", runsStatus)
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list runs")
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROFILE\tMODE\tDOCS\tFIELDS\tACCEPTED\tCREATED")
	fmt.Fprintln(tw, "--\t------\t-------\t----\t----\t------\t--------\t-------")
	for _, r := range runs {
		accepted := "-"
		if r.Summary != nil {
			accepted = fmt.Sprintf("%d/%d", r.Summary.CellsAccepted, r.Summary.CellsTotal)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			r.Profile,
			r.Mode,
			len(r.VersionIDs),
			len(r.FieldKeys),
			accepted,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}

// truncateID shortens UUIDs for table display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "only show runs with this status")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
