package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/tool"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve evidence search and citation resolution over MCP stdio",
	Long: `Mcp runs a Model Context Protocol server on stdin/stdout so agent hosts
can search ingested documents (search_evidence) and re-anchor finished cells
(resolve_citation) without going through the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("mcp"); err != nil {
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

		ts := tool.NewToolset(deps.artifacts, deps.catalog, deps.ranker, deps.assembler, deps.engine)

		srv := mcp.NewServer(&mcp.Implementation{Name: "evidence", Version: "1.0.0"}, nil)
		mcp.AddTool(srv, tool.MetadataSearchEvidence, ts.SearchEvidence)
		mcp.AddTool(srv, tool.MetadataResolveCitation, ts.ResolveCitation)

		zap.L().Info("mcp server listening on stdio")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			return eris.Wrap(err, "run mcp server")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
