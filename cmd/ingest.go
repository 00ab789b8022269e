package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/fetcher"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

var (
	ingestDocumentID string
	ingestTitle      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path|url>",
	Short: "Fetch, validate, and store a parsed document artifact",
	Long: `Ingest reads a parsed-artifact JSON file from a local path or an
http(s)/ftp URL, validates its block structure, and stores it as a new
document version. Parsing itself happens upstream; this command only accepts
the parser's output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		artifacts, err := initArtifacts()
		if err != nil {
			return err
		}
		defer artifacts.Close() //nolint:errcheck

		rc, err := fetcher.Open(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "fetch %s", args[0])
		}
		defer rc.Close() //nolint:errcheck

		var art model.Artifact
		if err := json.NewDecoder(rc).Decode(&art); err != nil {
			return eris.Wrapf(err, "decode artifact from %s", args[0])
		}
		if ingestDocumentID != "" {
			art.DocumentID = ingestDocumentID
		}

		stored, err := artifacts.Ingest(&art, ingestTitle)
		if err != nil {
			return eris.Wrap(err, "ingest artifact")
		}

		zap.L().Info("artifact ingested",
			zap.String("document_id", stored.DocumentID),
			zap.String("version_id", stored.VersionID),
			zap.String("parse_status", string(stored.Status)),
			zap.Int("blocks", len(stored.Blocks)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"document_id":  stored.DocumentID,
			"version_id":   stored.VersionID,
			"parse_status": stored.Status,
			"blocks":       len(stored.Blocks),
		})
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDocumentID, "document", "", "attach the version to this document ID instead of the artifact's own")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title shown in listings")
	rootCmd.AddCommand(ingestCmd)
}
