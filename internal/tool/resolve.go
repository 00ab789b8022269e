package tool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rotisserie/eris"

	"github.com/meridian-legal/evidence-cli/internal/pipeline"
)

// MetadataResolveCitation describes the resolve_citation tool.
var MetadataResolveCitation = &mcp.Tool{
	Name: "resolve_citation",
	Description: "Resolve the best citation for one extracted cell of a finished run " +
		"and gate its highlight. Returns the extracted value, the winning citation " +
		"with its anchor mode and score, a match confidence, and whether the anchor " +
		"is plausible enough to render (with a warning code when it is not).",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"run_id", "version_id", "field_key"},
		"properties": map[string]interface{}{
			"run_id": map[string]interface{}{
				"type":        "string",
				"description": "Run holding the cell.",
			},
			"version_id": map[string]interface{}{
				"type":        "string",
				"description": "Document version of the cell.",
			},
			"field_key": map[string]interface{}{
				"type":        "string",
				"description": "Field key of the cell.",
			},
			"page_width": map[string]interface{}{
				"type":        "number",
				"description": "Rendered page width; overrides the artifact's recorded geometry.",
			},
			"page_height": map[string]interface{}{
				"type":        "number",
				"description": "Rendered page height; overrides the artifact's recorded geometry.",
			},
		},
	},
}

// InputResolveCitation is the input for the ResolveCitation tool.
type InputResolveCitation struct {
	RunID      string  `json:"run_id"`
	VersionID  string  `json:"version_id"`
	FieldKey   string  `json:"field_key"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
}

// ResolveCitation resolves and gates the citation for one finished cell.
func (t *Toolset) ResolveCitation(ctx context.Context, _ *mcp.CallToolRequest, input InputResolveCitation) (*mcp.CallToolResult, pipeline.ReviewResolution, error) {
	if input.RunID == "" || input.VersionID == "" || input.FieldKey == "" {
		return nil, pipeline.ReviewResolution{}, eris.New("run_id, version_id, and field_key are required")
	}

	out, err := t.engine.Review(ctx, pipeline.ReviewRequest{
		RunID:      input.RunID,
		VersionID:  input.VersionID,
		FieldKey:   input.FieldKey,
		PageWidth:  input.PageWidth,
		PageHeight: input.PageHeight,
	})
	if err != nil {
		return nil, pipeline.ReviewResolution{}, err
	}
	return nil, *out, nil
}
