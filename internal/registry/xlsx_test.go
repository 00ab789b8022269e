package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

func writeCatalogXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Catalog")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadCatalogFromXLSX(t *testing.T) {
	path := writeCatalogXLSX(t, [][]string{
		{"Key", "Name", "Type", "Prompt", "Synonyms", "SF_Field", "Status"},
		{"governing_law", "Governing Law", "text", "Which law governs?", "jurisdiction; venue", "Governing_Law__c", "Active"},
		{"effective_date_term", "Effective Date", "date", "What is the effective date?", "", "", "Active"},
		{"", "No Key", "text", "Orphan prompt.", "", "", "Active"},
	})

	catalog, err := LoadCatalogFromXLSX(path)
	require.NoError(t, err)
	require.Len(t, catalog.Fields, 2)

	gl := catalog.ByKey("governing_law")
	require.NotNil(t, gl)
	assert.Equal(t, model.FieldText, gl.Type)
	assert.Equal(t, []string{"jurisdiction", "venue"}, gl.Synonyms)
	assert.Equal(t, "Governing_Law__c", gl.SFField)

	assert.Equal(t, model.FieldDate, catalog.ByKey("effective_date_term").Type)
}

func TestLoadCatalogFromXLSX_DropsInactiveRows(t *testing.T) {
	path := writeCatalogXLSX(t, [][]string{
		{"key", "name", "type", "prompt", "status"},
		{"governing_law", "Governing Law", "text", "Which law governs?", "active"},
		{"legacy_field", "Legacy", "text", "Retired prompt.", "retired"},
	})

	catalog, err := LoadCatalogFromXLSX(path)
	require.NoError(t, err)
	require.Len(t, catalog.Fields, 1)
	assert.Nil(t, catalog.ByKey("legacy_field"))
}

func TestLoadCatalogFromXLSX_MissingKeyColumn(t *testing.T) {
	path := writeCatalogXLSX(t, [][]string{
		{"name", "prompt"},
		{"Governing Law", "Which law governs?"},
	})

	_, err := LoadCatalogFromXLSX(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'key' column")
}

func TestLoadCatalogFromXLSX_MissingFile(t *testing.T) {
	_, err := LoadCatalogFromXLSX(filepath.Join(t.TempDir(), "absent.xlsx"))
	assert.Error(t, err)
}
