package tool

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-legal/evidence-cli/internal/artifact"
	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/internal/pipeline"
	"github.com/meridian-legal/evidence-cli/internal/rank"
	"github.com/meridian-legal/evidence-cli/internal/segment"
	"github.com/meridian-legal/evidence-cli/internal/store"
)

func newToolset(t *testing.T) (*Toolset, store.Store) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLite(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	artifacts, err := artifact.Open(filepath.Join(dir, "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = artifacts.Close() })

	page1, page6 := 1, 6
	_, err = artifacts.Ingest(&model.Artifact{
		DocumentID: "doc-1",
		VersionID:  "v1",
		Source:     model.SourcePDF,
		PageWidth:  612,
		PageHeight: 792,
		Status:     model.ParseSucceeded,
		Blocks: []model.Block{
			{
				ID:            "b0",
				Kind:          model.BlockParagraph,
				Text:          "This Agreement shall be governed by the laws of the State of New York.",
				SequenceIndex: 0,
				Citations: []model.Citation{{
					Source:  model.SourcePDF,
					Snippet: "governed by the laws of the State of New York",
					Page:    &page1,
					BBox:    []float64{72, 200, 540, 236},
				}},
			},
			{
				ID:            "b1",
				Kind:          model.BlockParagraph,
				Text:          "Notices are delivered to the addresses on the signature page.",
				SequenceIndex: 1,
			},
			{
				ID:            "b2",
				Kind:          model.BlockParagraph,
				Text:          "Disputes arising under this Agreement are resolved by arbitration in Wilmington, Delaware.",
				SequenceIndex: 2,
				Citations: []model.Citation{{
					Source:  model.SourcePDF,
					Snippet: "resolved by arbitration in Wilmington, Delaware",
					Page:    &page6,
					BBox:    []float64{72, 400, 540, 436},
				}},
			},
			{
				ID:            "b3",
				Kind:          model.BlockParagraph,
				Text:          "Schedules and exhibits are incorporated by reference.",
				SequenceIndex: 3,
			},
		},
	}, "Master Services Agreement")
	require.NoError(t, err)

	_, err = artifacts.Ingest(&model.Artifact{
		DocumentID: "doc-2",
		VersionID:  "vbad",
		Source:     model.SourcePDF,
		Status:     model.ParseFailed,
		ParseError: "pdf: encrypted document",
	}, "Unreadable")
	require.NoError(t, err)

	catalog := model.NewFieldCatalog([]model.FieldDef{{
		Key:    "governing_law",
		Name:   "Governing Law",
		Type:   model.FieldText,
		Prompt: "Which jurisdiction's laws govern this agreement?",
	}})
	ranker := rank.New(rank.Options{Weights: rank.DefaultWeights()})
	assembler := segment.New(segment.Options{WindowRadius: 1})
	engine := pipeline.NewEngine(st, artifacts, catalog, ranker, assembler,
		nil, nil, pipeline.Options{WorkerCount: 1})

	return NewToolset(artifacts, catalog, ranker, assembler, engine), st
}

func TestSearchEvidence(t *testing.T) {
	ts, _ := newToolset(t)
	ctx := context.Background()
	req := &mcp.CallToolRequest{}

	tests := []struct {
		name        string
		input       InputSearchEvidence
		wantErr     string
		checkOutput func(t *testing.T, out OutputSearchEvidence)
	}{
		{
			name:    "missing version",
			input:   InputSearchEvidence{FieldKey: "governing_law"},
			wantErr: "version_id is required",
		},
		{
			name:    "missing field and query",
			input:   InputSearchEvidence{VersionID: "v1"},
			wantErr: "one of field_key or query",
		},
		{
			name:    "unknown version",
			input:   InputSearchEvidence{VersionID: "ghost", FieldKey: "governing_law"},
			wantErr: "not ingested",
		},
		{
			name:    "failed parse",
			input:   InputSearchEvidence{VersionID: "vbad", FieldKey: "governing_law"},
			wantErr: "encrypted document",
		},
		{
			name:    "unknown field key",
			input:   InputSearchEvidence{VersionID: "v1", FieldKey: "shoe_size"},
			wantErr: "unknown field key",
		},
		{
			name:  "catalog field finds the governing law clause",
			input: InputSearchEvidence{VersionID: "v1", FieldKey: "governing_law"},
			checkOutput: func(t *testing.T, out OutputSearchEvidence) {
				require.NotEmpty(t, out.Segments)
				top := out.Segments[0]
				assert.Contains(t, top.Text, "State of New York")
				assert.Contains(t, top.BlockIDs, "b0")
				assert.Greater(t, top.Score, 0.0)
				assert.Contains(t, out.Query, "Governing Law")
			},
		},
		{
			name:  "free-text query finds the arbitration clause",
			input: InputSearchEvidence{VersionID: "v1", Query: "disputes resolved by arbitration in Delaware", TopK: 1},
			checkOutput: func(t *testing.T, out OutputSearchEvidence) {
				require.NotEmpty(t, out.Segments)
				top := out.Segments[0]
				assert.Contains(t, top.Text, "Delaware")
				assert.Contains(t, top.BlockIDs, "b2")
				assert.Equal(t, []int{6}, top.Pages)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := ts.SearchEvidence(ctx, req, tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.checkOutput(t, out)
		})
	}
}

func TestResolveCitation(t *testing.T) {
	ts, st := newToolset(t)
	ctx := context.Background()
	req := &mcp.CallToolRequest{}

	run, err := st.CreateRun(ctx, []string{"v1"}, []string{"governing_law"}, model.ProfileBalanced, model.ModeDeterministic)
	require.NoError(t, err)
	_, err = ts.engine.ExecuteRun(ctx, run)
	require.NoError(t, err)

	_, _, err = ts.ResolveCitation(ctx, req, InputResolveCitation{RunID: run.ID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")

	_, _, err = ts.ResolveCitation(ctx, req, InputResolveCitation{
		RunID: run.ID, VersionID: "v1", FieldKey: "termination_rights",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cell")

	_, out, err := ts.ResolveCitation(ctx, req, InputResolveCitation{
		RunID: run.ID, VersionID: "v1", FieldKey: "governing_law",
	})
	require.NoError(t, err)
	require.NotNil(t, out.Citation)
	assert.Equal(t, "b0", out.Citation.BlockID)
	assert.True(t, out.AnchorOK)
	assert.Empty(t, out.AnchorWarning)
}
