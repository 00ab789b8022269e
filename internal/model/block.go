package model

// BlockKind classifies a parsed block.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockTable     BlockKind = "table"
	BlockHeading   BlockKind = "heading"
)

// SourceFormat identifies the original document format a citation points into.
type SourceFormat string

const (
	SourcePDF  SourceFormat = "pdf"
	SourceHTML SourceFormat = "html"
	SourceTXT  SourceFormat = "txt"
	SourceDOCX SourceFormat = "docx"
)

// Block is a normalized, position-stable fragment of parsed document text.
// Blocks are immutable once ingested; one document version holds many blocks
// in document order.
type Block struct {
	ID            string     `json:"id"`
	Kind          BlockKind  `json:"kind"`
	Text          string     `json:"text"`
	Citations     []Citation `json:"citations,omitempty"`
	SequenceIndex int        `json:"sequence_index"`
}

// IsTable reports whether the block holds tabular content. Table blocks are
// ranked up and are never split across segment boundaries.
func (b Block) IsTable() bool {
	return b.Kind == BlockTable
}

// Citation is a stable pointer from block text back to a location in the
// original rendered document: page+bbox for PDFs, DOM selector for HTML,
// character span for plain text.
type Citation struct {
	Source    SourceFormat `json:"source"`
	Snippet   string       `json:"snippet,omitempty"`
	Page      *int         `json:"page,omitempty"`
	BBox      []float64    `json:"bbox,omitempty"`
	Selector  string       `json:"selector,omitempty"`
	StartChar *int         `json:"start_char,omitempty"`
	EndChar   *int         `json:"end_char,omitempty"`
}

// HasAnchor reports whether the citation carries at least one locator a
// highlight could be derived from. Citations without any locator never
// survive resolution.
func (c Citation) HasAnchor() bool {
	return c.Snippet != "" || c.Selector != "" || c.Page != nil || len(c.BBox) == 4
}

// NormalizeBBox returns [xMin, yMin, xMax, yMax] with coordinates swapped
// into min/max order. ok is false for boxes that are not 4 elements or that
// collapse to zero width or height after normalization.
func NormalizeBBox(bbox []float64) (norm []float64, ok bool) {
	if len(bbox) != 4 {
		return nil, false
	}
	x0, y0, x1, y1 := bbox[0], bbox[1], bbox[2], bbox[3]
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	if x1 <= x0 || y1 <= y0 {
		return nil, false
	}
	return []float64{x0, y0, x1, y1}, true
}
