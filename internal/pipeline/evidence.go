package pipeline

import (
	"strings"

	"github.com/meridian-legal/evidence-cli/internal/blockstore"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

// maxEvidenceChars caps each segment's text as sent to the reasoning models.
const maxEvidenceChars = 5000

// evidenceFromSegments presents assembled segments as the extractor's
// evidence list. The candidate index is the segment's position in this list;
// page and selector come from the segment's first citation.
func evidenceFromSegments(segments []model.Segment) []model.EvidenceItem {
	items := make([]model.EvidenceItem, len(segments))
	for i, seg := range segments {
		item := model.EvidenceItem{
			CandidateIndex: i,
			Text:           clip(seg.Text, maxEvidenceChars),
			Score:          seg.Score,
		}
		if len(seg.Citations) > 0 {
			item.Page = seg.Citations[0].Page
			item.Selector = seg.Citations[0].Selector
		}
		items[i] = item
	}
	return items
}

// compactContext is the audit view of the evidence pool persisted with a
// cell: a short text preview and the first two citations per segment, enough
// to show what the model saw without storing whole segments.
func compactContext(segments []model.Segment) []model.SegmentContext {
	compact := make([]model.SegmentContext, len(segments))
	for i, seg := range segments {
		cites := seg.Citations
		if len(cites) > 2 {
			cites = cites[:2]
		}
		compact[i] = model.SegmentContext{
			SegmentID:   seg.ID,
			Score:       seg.Score,
			TextPreview: clip(seg.Text, 500),
			Citations:   cites,
		}
	}
	return compact
}

// segmentPlainText reassembles a segment's text from its source blocks,
// without the block-id markers segment text carries. Used when the extractor
// returns no raw text and the segment itself must stand in.
func segmentPlainText(bs *blockstore.Store, seg model.Segment) string {
	parts := make([]string, 0, len(seg.BlockIDs))
	for _, id := range seg.BlockIDs {
		if b, ok := bs.ByID(id); ok && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return NormalizeSpace(strings.Join(parts, " "))
}

// reversed copies the segment list in reverse order for the self-consistency
// pass.
func reversed(segments []model.Segment) []model.Segment {
	out := make([]model.Segment, len(segments))
	for i, seg := range segments {
		out[len(segments)-1-i] = seg
	}
	return out
}
