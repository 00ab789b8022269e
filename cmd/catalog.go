package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

var (
	catalogFile     string
	catalogXLSX     string
	catalogNotionDB string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the active field catalog",
	Long: `Catalog loads and prints the field definitions a run would use. With no
flags it shows the configured source; the flags point it at a YAML/JSON file,
an XLSX workbook, or a Notion database instead, which doubles as a loader
check before committing the source to config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		set := 0
		for _, v := range []string{catalogFile, catalogXLSX, catalogNotionDB} {
			if v != "" {
				set++
			}
		}
		if set > 1 {
			return eris.New("--file, --xlsx, and --notion-db are mutually exclusive")
		}
		switch {
		case catalogFile != "":
			cfg.Catalog.Source = "file"
			cfg.Catalog.Path = catalogFile
		case catalogXLSX != "":
			cfg.Catalog.Source = "xlsx"
			cfg.Catalog.Path = catalogXLSX
		case catalogNotionDB != "":
			cfg.Catalog.Source = "notion"
			cfg.Notion.CatalogDB = catalogNotionDB
		}

		if err := cfg.Validate("catalog"); err != nil {
			return err
		}

		cat, err := initCatalog(ctx)
		if err != nil {
			return err
		}

		formatCatalog(os.Stdout, cat)
		return nil
	},
}

func formatCatalog(w io.Writer, cat *model.FieldCatalog) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tTYPE\tSF FIELD\tSYNONYMS")
	fmt.Fprintln(tw, "---\t----\t----\t--------\t--------")
	for _, f := range cat.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.Key, f.Name, f.Type, f.SFField, truncateText(strings.Join(f.Synonyms, "; "), 60))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d fields\n", len(cat.Fields))
}

func init() {
	catalogCmd.Flags().StringVar(&catalogFile, "file", "", "load the catalog from a YAML or JSON file")
	catalogCmd.Flags().StringVar(&catalogXLSX, "xlsx", "", "load the catalog from an XLSX workbook")
	catalogCmd.Flags().StringVar(&catalogNotionDB, "notion-db", "", "load the catalog from a Notion database ID")
	rootCmd.AddCommand(catalogCmd)
}
