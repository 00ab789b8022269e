package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// LoadCatalogFromFile reads field definitions from a YAML or JSON file,
// chosen by extension, and returns them indexed. Entries whose Status is set
// to something other than "active" are dropped.
func LoadCatalogFromFile(path string) (*model.FieldCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read catalog file")
	}

	var fields []model.FieldDef
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fields); err != nil {
			return nil, eris.Wrap(err, "registry: unmarshal catalog yaml")
		}
	case ".json":
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, eris.Wrap(err, "registry: unmarshal catalog json")
		}
	default:
		return nil, eris.Errorf("registry: unsupported catalog format %q", filepath.Ext(path))
	}

	return model.NewFieldCatalog(activeOnly(fields)), nil
}

func activeOnly(fields []model.FieldDef) []model.FieldDef {
	kept := make([]model.FieldDef, 0, len(fields))
	for _, f := range fields {
		if f.Status != "" && !strings.EqualFold(f.Status, "active") {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}
