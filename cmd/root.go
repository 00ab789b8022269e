// Command evidence retrieves, extracts, and verifies field values from parsed
// legal documents, with citations that resolve back to page geometry.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Evidence extraction engine for legal documents",
	Long: `evidence runs the retrieval, extraction-verification, and citation
resolution pipeline over parsed document artifacts.

Ingest parser output with "evidence ingest", execute an extraction run with
"evidence run", and inspect results with "evidence runs" and "evidence show".
"evidence resolve" re-anchors a cell's citation for review tooling.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
