package registry

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/pkg/notion"
)

// LoadCatalogFromNotion queries the catalog database for all active field
// definitions and returns them indexed. Malformed pages are skipped with a
// warning rather than failing the load.
func LoadCatalogFromNotion(ctx context.Context, client notion.Client, dbID string) (*model.FieldCatalog, error) {
	pages, err := notion.QueryByStatus(ctx, client, dbID, "Active")
	if err != nil {
		return nil, eris.Wrap(err, "registry: load catalog from notion")
	}

	var fields []model.FieldDef
	for _, p := range pages {
		f, err := parseCatalogPage(p)
		if err != nil {
			zap.L().Warn("registry: skipping malformed catalog page",
				zap.String("page_id", string(p.ID)),
				zap.Error(err),
			)
			continue
		}
		fields = append(fields, f)
	}

	return model.NewFieldCatalog(fields), nil
}

func parseCatalogPage(p notionapi.Page) (model.FieldDef, error) {
	var f model.FieldDef

	// Key (title)
	if prop, ok := p.Properties["Key"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			f.Key = plainText(tp.Title)
		}
	}

	// Name (rich_text)
	if prop, ok := p.Properties["Name"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			f.Name = plainText(rtp.RichText)
		}
	}

	// Type (select)
	if prop, ok := p.Properties["Type"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			f.Type = model.FieldType(strings.ToLower(sp.Select.Name))
		}
	}

	// Prompt (rich_text)
	if prop, ok := p.Properties["Prompt"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			f.Prompt = plainText(rtp.RichText)
		}
	}

	// Synonyms (multi_select)
	if prop, ok := p.Properties["Synonyms"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				f.Synonyms = append(f.Synonyms, opt.Name)
			}
		}
	}

	// SFField (rich_text)
	if prop, ok := p.Properties["SFField"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			f.SFField = plainText(rtp.RichText)
		}
	}

	// Status (status)
	if prop, ok := p.Properties["Status"]; ok {
		if sp, ok := prop.(*notionapi.StatusProperty); ok {
			f.Status = strings.ToLower(sp.Status.Name)
		}
	}

	if f.Key == "" {
		return f, eris.New("missing Key property")
	}
	if f.Prompt == "" {
		return f, eris.New("missing Prompt property")
	}
	if f.Type == "" {
		f.Type = model.FieldText
	}

	return f, nil
}

// plainText concatenates the plain_text values from a slice of RichText.
func plainText(rts []notionapi.RichText) string {
	var s string
	for _, rt := range rts {
		s += rt.PlainText
	}
	return s
}
