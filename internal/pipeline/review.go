package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridian-legal/evidence-cli/internal/blockstore"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

// ReviewRequest names a finished cell whose citation should be resolved for
// display. PageWidth/PageHeight override the artifact's recorded geometry
// when the viewer renders at a different size.
type ReviewRequest struct {
	RunID      string  `json:"run_id"`
	VersionID  string  `json:"version_id"`
	FieldKey   string  `json:"field_key"`
	PageWidth  float64 `json:"page_width,omitempty"`
	PageHeight float64 `json:"page_height,omitempty"`
}

// ReviewResolution is the review payload: the extracted value, the citation
// chosen to anchor it, the anchor gate's verdict, and a char-range anchor for
// sources without page geometry.
type ReviewResolution struct {
	RunID           string                  `json:"run_id"`
	VersionID       string                  `json:"version_id"`
	FieldKey        string                  `json:"field_key"`
	Value           string                  `json:"value,omitempty"`
	ConfidenceScore float64                 `json:"confidence_score"`
	Citation        *model.ResolvedCitation `json:"citation,omitempty"`
	MatchConfidence float64                 `json:"match_confidence"`
	AnchorOK        bool                    `json:"anchor_ok"`
	AnchorWarning   string                  `json:"anchor_warning,omitempty"`
	StartChar       *int                    `json:"start_char,omitempty"`
	EndChar         *int                    `json:"end_char,omitempty"`
}

// Review resolves the best citation for one finished cell and gates its
// highlight. The cell's persisted citations compete against the whole
// document when the artifact is still available; a missing artifact degrades
// to snippet-only resolution rather than failing review.
func (e *Engine) Review(ctx context.Context, req ReviewRequest) (*ReviewResolution, error) {
	cells, err := e.store.ListCells(ctx, req.RunID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list cells for run %s", req.RunID)
	}
	var target *model.Cell
	for i := range cells {
		if cells[i].VersionID == req.VersionID && cells[i].FieldKey == req.FieldKey {
			target = &cells[i]
			break
		}
	}
	if target == nil {
		return nil, eris.Errorf("pipeline: run %s has no cell for version %s field %s",
			req.RunID, req.VersionID, req.FieldKey)
	}
	if target.Result == nil {
		return nil, eris.Errorf("pipeline: cell %s has no result yet", target.ID)
	}
	res := target.Result

	out := &ReviewResolution{
		RunID:           req.RunID,
		VersionID:       req.VersionID,
		FieldKey:        req.FieldKey,
		Value:           res.Value,
		ConfidenceScore: res.ConfidenceScore,
	}

	var blocks *blockstore.Store
	pageWidth, pageHeight := req.PageWidth, req.PageHeight
	if art, artErr := e.artifacts.GetArtifact(req.VersionID); artErr == nil && art != nil {
		if pageWidth <= 0 {
			pageWidth = art.PageWidth
		}
		if pageHeight <= 0 {
			pageHeight = art.PageHeight
		}
		if bs, bsErr := blockstore.New(art); bsErr == nil {
			blocks = bs
		}
	}

	resolved := ResolveCitation(ResolveInput{
		FieldKey:        req.FieldKey,
		Value:           res.Value,
		RawText:         res.RawText,
		EvidenceSummary: res.EvidenceSummary,
		Candidates:      res.Citations,
	}, blocks)
	if resolved == nil {
		return out, nil
	}
	out.Citation = resolved

	// Match confidence is how well the anchored text still carries the
	// citation's snippet (or, snippetless, the value itself).
	probe := resolved.Citation.Snippet
	if probe == "" {
		probe = res.Value
	}
	anchorText := res.RawText
	if blocks != nil && resolved.BlockID != "" {
		if b, ok := blocks.ByID(resolved.BlockID); ok {
			anchorText = b.Text
		}
	}
	out.MatchConfidence = TokenOverlap(anchorText, probe)

	if resolved.Citation.StartChar != nil && resolved.Citation.EndChar != nil {
		out.StartChar = resolved.Citation.StartChar
		out.EndChar = resolved.Citation.EndChar
	} else if len(resolved.Citation.BBox) == 0 && resolved.Citation.Snippet != "" && anchorText != "" {
		if start, end, ok := FindSnippetRange(anchorText, resolved.Citation.Snippet); ok {
			out.StartChar = &start
			out.EndChar = &end
		}
	}

	if len(resolved.Citation.BBox) > 0 {
		out.AnchorOK, out.AnchorWarning = AnchorPlausible(
			resolved.Citation.BBox, pageWidth, pageHeight, out.MatchConfidence)
		return out, nil
	}
	// No page geometry to gate: the char-range or selector anchor stands or
	// falls on match confidence alone.
	if out.MatchConfidence >= anchorMinConfidence {
		out.AnchorOK = true
	} else {
		out.AnchorWarning = WarnMatchConfidenceLow
	}
	return out, nil
}
