// Package blockstore holds the ordered in-memory index over one document
// version's parsed blocks. It is built once per artifact and read-only
// afterwards; every retrieval pass for that version shares it.
package blockstore

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// Store indexes the blocks of a single document version in document order.
type Store struct {
	versionID  string
	source     model.SourceFormat
	pageWidth  float64
	pageHeight float64
	blocks     []model.Block
	byID       map[string]int
}

// New validates the artifact and builds the index. Blocks are re-sorted by
// sequence index so callers can trust positional windows even when the
// parser emitted them out of order. An artifact whose parse failed returns
// an error carrying the parser's message; cells over it become PARSER_ERROR
// fallbacks.
func New(a *model.Artifact) (*Store, error) {
	if a == nil {
		return nil, eris.New("blockstore: nil artifact")
	}
	if a.Status == model.ParseFailed {
		msg := a.ParseError
		if msg == "" {
			msg = "upstream parse failed"
		}
		return nil, eris.Errorf("blockstore: artifact %s unusable: %s", a.VersionID, msg)
	}
	if len(a.Blocks) == 0 {
		return nil, eris.Errorf("blockstore: artifact %s has no blocks", a.VersionID)
	}

	blocks := make([]model.Block, len(a.Blocks))
	copy(blocks, a.Blocks)
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].SequenceIndex < blocks[j].SequenceIndex
	})

	byID := make(map[string]int, len(blocks))
	for i, b := range blocks {
		if b.ID == "" {
			return nil, eris.Errorf("blockstore: artifact %s block at sequence %d has empty id", a.VersionID, b.SequenceIndex)
		}
		if _, dup := byID[b.ID]; dup {
			return nil, eris.Errorf("blockstore: artifact %s has duplicate block id %s", a.VersionID, b.ID)
		}
		byID[b.ID] = i
	}

	return &Store{
		versionID:  a.VersionID,
		source:     a.Source,
		pageWidth:  a.PageWidth,
		pageHeight: a.PageHeight,
		blocks:     blocks,
		byID:       byID,
	}, nil
}

// VersionID returns the document version this store indexes.
func (s *Store) VersionID() string { return s.versionID }

// Source returns the original document format.
func (s *Store) Source() model.SourceFormat { return s.source }

// PageSize returns the rendered page dimensions, zero when unknown (HTML and
// plain-text sources carry no geometry).
func (s *Store) PageSize() (width, height float64) {
	return s.pageWidth, s.pageHeight
}

// Len returns the block count.
func (s *Store) Len() int { return len(s.blocks) }

// Blocks returns all blocks in document order. Callers must not mutate.
func (s *Store) Blocks() []model.Block { return s.blocks }

// ByID returns the block with the given id.
func (s *Store) ByID(id string) (model.Block, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Block{}, false
	}
	return s.blocks[i], true
}

// IndexOf returns the position of the block in document order, or -1.
func (s *Store) IndexOf(id string) int {
	i, ok := s.byID[id]
	if !ok {
		return -1
	}
	return i
}

// Window returns the blocks in [seed-radius, seed+radius] clipped to
// document bounds, in document order.
func (s *Store) Window(seed, radius int) []model.Block {
	if seed < 0 || seed >= len(s.blocks) {
		return nil
	}
	lo := max(0, seed-radius)
	hi := min(len(s.blocks)-1, seed+radius)
	return s.blocks[lo : hi+1]
}

// AllCitations returns every citation in the document in block order. The
// citation resolver uses this as the global rescue pool when the segment
// pool's best anchor is weak.
func (s *Store) AllCitations() []model.Citation {
	var out []model.Citation
	for _, b := range s.blocks {
		out = append(out, b.Citations...)
	}
	return out
}

// CitationOwners maps each citation to its owning block id, in the same order
// AllCitations returns them.
func (s *Store) CitationOwners() []string {
	var out []string
	for _, b := range s.blocks {
		for range b.Citations {
			out = append(out, b.ID)
		}
	}
	return out
}
