// Package tool exposes the retrieval and resolution surface as MCP tools, so
// an agent can search ingested documents for evidence and resolve citations
// without going through a run.
package tool

import (
	"context"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rotisserie/eris"

	"github.com/meridian-legal/evidence-cli/internal/artifact"
	"github.com/meridian-legal/evidence-cli/internal/blockstore"
	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/internal/pipeline"
	"github.com/meridian-legal/evidence-cli/internal/rank"
	"github.com/meridian-legal/evidence-cli/internal/segment"
)

const (
	defaultTopK = 8
	maxTopK     = 32
)

// Toolset carries the handler dependencies for every MCP tool.
type Toolset struct {
	artifacts *artifact.Store
	catalog   *model.FieldCatalog
	ranker    *rank.Ranker
	assembler *segment.Assembler
	engine    *pipeline.Engine
}

// NewToolset wires a Toolset. The engine must be built over the same stores.
func NewToolset(artifacts *artifact.Store, catalog *model.FieldCatalog, ranker *rank.Ranker, assembler *segment.Assembler, engine *pipeline.Engine) *Toolset {
	return &Toolset{
		artifacts: artifacts,
		catalog:   catalog,
		ranker:    ranker,
		assembler: assembler,
		engine:    engine,
	}
}

// MetadataSearchEvidence describes the search_evidence tool.
var MetadataSearchEvidence = &mcp.Tool{
	Name: "search_evidence",
	Description: "Search an ingested document version for evidence segments. " +
		"Ranks the document's blocks against a catalog field or a free-text query, " +
		"assembles contiguous segments around the best matches, and returns them " +
		"ordered by score with their block ids and source pages.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"version_id"},
		"properties": map[string]interface{}{
			"version_id": map[string]interface{}{
				"type":        "string",
				"description": "Document version to search (as returned by ingest).",
			},
			"field_key": map[string]interface{}{
				"type":        "string",
				"description": "Catalog field key to search for (e.g. governing_law). Mutually optional with query; one of the two is required.",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Free-text query used when no field_key is given.",
			},
			"top_k": map[string]interface{}{
				"type":        "integer",
				"description": "Number of top-ranked blocks to assemble segments from (default 8, max 32).",
			},
		},
	},
}

// InputSearchEvidence is the input for the SearchEvidence tool.
type InputSearchEvidence struct {
	VersionID string `json:"version_id"`
	FieldKey  string `json:"field_key"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
}

// SegmentHit is one evidence segment in a search result.
type SegmentHit struct {
	SegmentID string   `json:"segment_id"`
	Score     float64  `json:"score"`
	Text      string   `json:"text"`
	BlockIDs  []string `json:"block_ids"`
	Pages     []int    `json:"pages,omitempty"`
}

// OutputSearchEvidence is the output for the SearchEvidence tool.
type OutputSearchEvidence struct {
	VersionID string       `json:"version_id"`
	Query     string       `json:"query"`
	Segments  []SegmentHit `json:"segments"`
}

// SearchEvidence ranks and assembles evidence segments for one document
// version. Embedding vectors are not consulted here; the ranker's hash
// fallback keeps the semantic column alive.
func (t *Toolset) SearchEvidence(ctx context.Context, _ *mcp.CallToolRequest, input InputSearchEvidence) (*mcp.CallToolResult, OutputSearchEvidence, error) {
	var out OutputSearchEvidence
	if input.VersionID == "" {
		return nil, out, eris.New("version_id is required")
	}
	if input.FieldKey == "" && strings.TrimSpace(input.Query) == "" {
		return nil, out, eris.New("one of field_key or query is required")
	}

	art, err := t.artifacts.GetArtifact(input.VersionID)
	if err != nil {
		return nil, out, err
	}
	if art == nil {
		return nil, out, eris.Errorf("version %s is not ingested", input.VersionID)
	}
	if art.Status == model.ParseFailed {
		return nil, out, eris.Errorf("version %s failed to parse: %s", input.VersionID, art.ParseError)
	}
	bs, err := blockstore.New(art)
	if err != nil {
		return nil, out, err
	}

	var query model.FieldQuery
	if input.FieldKey != "" {
		def := t.catalog.ByKey(input.FieldKey)
		if def == nil {
			return nil, out, eris.Errorf("unknown field key %q", input.FieldKey)
		}
		query = def.Query()
	} else {
		query = model.FieldQuery{Key: "query", Name: input.Query, Type: model.FieldText}
	}

	topK := input.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	ranked := t.ranker.Rank(bs.Blocks(), query, nil, nil)
	pool := make([]model.Candidate, 0, topK)
	for _, c := range ranked {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		pool = append(pool, c)
		if len(pool) == topK {
			break
		}
	}

	segments := t.assembler.Assemble(bs, pool, 0)

	out.VersionID = input.VersionID
	out.Query = query.QueryText()
	out.Segments = make([]SegmentHit, 0, len(segments))
	for _, seg := range segments {
		out.Segments = append(out.Segments, SegmentHit{
			SegmentID: seg.ID,
			Score:     seg.Score,
			Text:      seg.Text,
			BlockIDs:  seg.BlockIDs,
			Pages:     segmentPages(seg),
		})
	}
	return nil, out, nil
}

// segmentPages collects the distinct source pages a segment's citations point
// at, ascending.
func segmentPages(seg model.Segment) []int {
	seen := make(map[int]struct{})
	for _, c := range seg.Citations {
		if c.Page != nil {
			seen[*c.Page] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
