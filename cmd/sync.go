package main

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/pkg/salesforce"
)

var (
	syncRunID    string
	syncRecordID string
	syncObject   string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push a run's accepted values onto a Salesforce record",
	Long: `Sync maps accepted cell values through the catalog's sf_field column and
writes them onto one Salesforce record. Fallback and skipped cells are never
pushed; fields the object reports as read-only are skipped with a warning.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if syncObject != "" {
			cfg.Salesforce.Object = syncObject
		}
		if err := cfg.Validate("sync"); err != nil {
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

		run, err := st.GetRun(ctx, syncRunID)
		if err != nil {
			return eris.Wrapf(err, "load run %s", syncRunID)
		}
		cells, err := st.ListCells(ctx, run.ID)
		if err != nil {
			return eris.Wrapf(err, "list cells for run %s", run.ID)
		}

		catalog, err := initCatalog(ctx)
		if err != nil {
			return err
		}

		values, skippedFields := acceptedValues(cells, catalog)
		if len(values) == 0 {
			return eris.Errorf("run %s has no accepted values with an sf_field mapping", run.ID)
		}

		client, err := initSalesforce()
		if err != nil {
			return err
		}
		if client == nil {
			return eris.New("salesforce client id is required (EVIDENCE_SALESFORCE_CLIENT_ID)")
		}

		object := cfg.Salesforce.Object
		exists, err := salesforce.RecordExists(ctx, client, object, syncRecordID)
		if err != nil {
			return err
		}
		if !exists {
			return eris.Errorf("record %s not found on %s", syncRecordID, object)
		}

		updateable, err := salesforce.UpdateableFields(ctx, client, object)
		if err != nil {
			return err
		}
		kept, readOnly := salesforce.FilterUpdateable(values, updateable)
		skippedFields = append(skippedFields, readOnly...)
		if len(kept) == 0 {
			return eris.Errorf("none of the mapped fields are updateable on %s", object)
		}

		if err := salesforce.PushValues(ctx, client, object, syncRecordID, kept); err != nil {
			return err
		}

		pushed := make([]string, 0, len(kept))
		for k := range kept {
			pushed = append(pushed, k)
		}
		sort.Strings(pushed)
		sort.Strings(skippedFields)

		zap.L().Info("run synced to salesforce",
			zap.String("run_id", run.ID),
			zap.String("record_id", syncRecordID),
			zap.String("object", object),
			zap.Int("fields_pushed", len(pushed)),
			zap.Strings("fields_skipped", skippedFields),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run_id":  run.ID,
			"record":  syncRecordID,
			"object":  object,
			"pushed":  pushed,
			"skipped": skippedFields,
		})
	},
}

// acceptedValues maps accepted cells onto Salesforce field values. When two
// documents in the run accepted the same field, the higher-confidence value
// wins. The second return lists field keys with no sf_field mapping.
func acceptedValues(cells []model.Cell, catalog *model.FieldCatalog) (map[string]any, []string) {
	values := make(map[string]any)
	confidence := make(map[string]float64)
	var unmapped []string

	for _, c := range cells {
		if c.State != model.CellAccepted || c.Result == nil || c.Result.Value == "" {
			continue
		}
		def := catalog.ByKey(c.FieldKey)
		if def == nil || def.SFField == "" {
			unmapped = append(unmapped, c.FieldKey)
			continue
		}

		value := c.Result.Value
		if c.Result.NormalizationValid && c.Result.NormalizedValue != "" {
			value = c.Result.NormalizedValue
		}
		if prev, ok := confidence[def.SFField]; ok && prev >= c.Result.ConfidenceScore {
			continue
		}
		values[def.SFField] = value
		confidence[def.SFField] = c.Result.ConfidenceScore
	}

	sort.Strings(unmapped)
	return values, unmapped
}

func init() {
	syncCmd.Flags().StringVar(&syncRunID, "run", "", "run whose accepted values are pushed")
	syncCmd.Flags().StringVar(&syncRecordID, "record", "", "Salesforce record ID to update")
	syncCmd.Flags().StringVar(&syncObject, "object", "", "SObject API name (default from config)")
	_ = syncCmd.MarkFlagRequired("run")
	_ = syncCmd.MarkFlagRequired("record")
	rootCmd.AddCommand(syncCmd)
}
