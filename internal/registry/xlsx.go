package registry

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/fetcher"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

// xlsxColumns maps header names (lowercased) to FieldDef assignment.
// Synonyms are semicolon-separated in the sheet.
var xlsxColumns = []string{"key", "name", "type", "prompt", "synonyms", "sf_field", "status"}

// LoadCatalogFromXLSX reads field definitions from the first sheet of an XLSX
// workbook. The first row must be a header naming at least the key and prompt
// columns; rows missing either are skipped with a warning.
func LoadCatalogFromXLSX(path string) (*model.FieldCatalog, error) {
	headerCh := make(chan []string, 1)
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: 1, HeaderCh: headerCh})
	if err != nil {
		return nil, eris.Wrap(err, "registry: read catalog workbook")
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.New("registry: catalog workbook has no header row")
	}

	cols := indexColumns(header)
	if _, ok := cols["key"]; !ok {
		return nil, eris.New("registry: catalog workbook missing 'key' column")
	}
	if _, ok := cols["prompt"]; !ok {
		return nil, eris.New("registry: catalog workbook missing 'prompt' column")
	}

	var fields []model.FieldDef
	for i, row := range rows {
		f := rowToFieldDef(row, cols)
		if f.Key == "" || f.Prompt == "" {
			zap.L().Warn("registry: skipping incomplete catalog row",
				zap.Int("row", i+2),
				zap.String("key", f.Key),
			)
			continue
		}
		fields = append(fields, f)
	}

	return model.NewFieldCatalog(activeOnly(fields)), nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		for _, known := range xlsxColumns {
			if name == known {
				cols[known] = i
			}
		}
	}
	return cols
}

func rowToFieldDef(row []string, cols map[string]int) model.FieldDef {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	f := model.FieldDef{
		Key:     cell("key"),
		Name:    cell("name"),
		Type:    model.FieldType(strings.ToLower(cell("type"))),
		Prompt:  cell("prompt"),
		SFField: cell("sf_field"),
		Status:  strings.ToLower(cell("status")),
	}
	if f.Type == "" {
		f.Type = model.FieldText
	}
	if syn := cell("synonyms"); syn != "" {
		for _, s := range strings.Split(syn, ";") {
			if s = strings.TrimSpace(s); s != "" {
				f.Synonyms = append(f.Synonyms, s)
			}
		}
	}
	return f
}
