package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/internal/rank"
	"github.com/meridian-legal/evidence-cli/internal/segment"
	"github.com/meridian-legal/evidence-cli/internal/store"
)

func engineStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func engineCatalog() *model.FieldCatalog {
	return model.NewFieldCatalog([]model.FieldDef{
		{
			Key:    "governing_law",
			Name:   "Governing Law",
			Type:   model.FieldText,
			Prompt: "Which jurisdiction's laws govern this agreement?",
		},
	})
}

func runEngine(st store.Store, artifacts ArtifactSource, emb Embedder, r Reasoner) *Engine {
	return NewEngine(
		st,
		artifacts,
		engineCatalog(),
		rank.New(rank.Options{Weights: rank.DefaultWeights()}),
		segment.New(segment.Options{WindowRadius: 1}),
		emb,
		r,
		Options{WorkerCount: 1, PoolHigh: 2, PoolBalanced: 2},
	)
}

func TestExecuteRun_DeterministicRunCompletes(t *testing.T) {
	st := engineStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, []string{"v1"}, []string{"governing_law"}, model.ProfileBalanced, model.ModeDeterministic)
	require.NoError(t, err)

	artifacts := &stubArtifacts{artifacts: map[string]*model.Artifact{"v1": contractArtifact("v1")}}
	engine := runEngine(st, artifacts, nil, nil)

	summary, err := engine.ExecuteRun(ctx, run)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.CellsTotal)
	assert.Equal(t, 1, summary.CellsAccepted)
	assert.Zero(t, summary.CellsFallback)
	assert.Zero(t, summary.CellsSkipped)
	assert.Zero(t, summary.CellsLowConfidence)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, *summary, *got.Summary)

	cells, err := st.ListCells(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, model.CellAccepted, cells[0].State)
	require.NotNil(t, cells[0].Result)
	assert.Equal(t, model.ModeDeterministic, cells[0].Result.ExtractionMethod)
	assert.NotEmpty(t, cells[0].Result.Value)
	assert.InDelta(t, 0.83, cells[0].Result.ConfidenceScore, 1e-9)
}

func TestExecuteRun_LLMRunCompletes(t *testing.T) {
	st := engineStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, []string{"v1"}, []string{"governing_law"}, model.ProfileBalanced, model.ModeLLM)
	require.NoError(t, err)

	artifacts := &stubArtifacts{artifacts: map[string]*model.Artifact{"v1": contractArtifact("v1")}}

	reasoner := &mockReasoner{}
	reasoner.On("Prime", mock.Anything).Return().Once()
	reasoner.On("ExtractionModel", model.ProfileBalanced).Return("reasoner-balanced")
	reasoner.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(okExtraction(), nil).Once()
	reasoner.On("Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(okVerification(), nil).Once()

	emb := &mockEmbedder{}
	emb.On("EmbedBlocks", mock.Anything, "v1", mock.Anything).Return(contractVectors(), nil).Once()
	emb.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float64{1, 0}, nil).Once()

	engine := runEngine(st, artifacts, emb, reasoner)
	summary, err := engine.ExecuteRun(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CellsAccepted)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)

	cells, err := st.ListCells(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	require.NotNil(t, cells[0].Result)
	assert.Equal(t, "New York", cells[0].Result.Value)
	assert.Equal(t, model.VerifierPass, cells[0].Result.VerifierStatus)
	assert.Equal(t, "reasoner-balanced", cells[0].Result.ModelName)

	reasoner.AssertExpectations(t)
	emb.AssertExpectations(t)
}

func TestExecuteRun_UnusableVersionsFallToParserError(t *testing.T) {
	st := engineStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, []string{"good", "bad", "missing"}, []string{"governing_law"}, model.ProfileBalanced, model.ModeDeterministic)
	require.NoError(t, err)

	artifacts := &stubArtifacts{artifacts: map[string]*model.Artifact{
		"good": contractArtifact("good"),
		"bad": {
			VersionID:  "bad",
			Source:     model.SourcePDF,
			Status:     model.ParseFailed,
			ParseError: "pdf: cannot open content stream",
		},
	}}
	engine := runEngine(st, artifacts, nil, nil)

	summary, err := engine.ExecuteRun(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.CellsTotal)
	assert.Equal(t, 1, summary.CellsAccepted)
	assert.Equal(t, 2, summary.CellsFallback)
	assert.Equal(t, 2, summary.CellsLowConfidence)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, got.Status)

	cells, err := st.ListCells(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, cells, 3)
	for _, c := range cells {
		require.NotNil(t, c.Result, c.VersionID)
		switch c.VersionID {
		case "good":
			assert.Equal(t, model.CellAccepted, c.State)
		case "bad":
			assert.Equal(t, model.CellFallback, c.State)
			assert.Equal(t, model.FallbackParserError, c.Result.FallbackReason)
			assert.Contains(t, c.Result.UncertaintyReason, "cannot open content stream")
		case "missing":
			assert.Equal(t, model.CellFallback, c.State)
			assert.Equal(t, model.FallbackParserError, c.Result.FallbackReason)
			assert.Contains(t, c.Result.UncertaintyReason, "not found")
		}
	}
}

func TestExecuteRun_ValidatesInput(t *testing.T) {
	st := engineStore(t)
	engine := runEngine(st, &stubArtifacts{}, nil, nil)

	_, err := engine.ExecuteRun(context.Background(), &model.Run{ID: "r1", VersionIDs: []string{"v1"}})
	assert.Error(t, err)

	_, err = engine.ExecuteRun(context.Background(), &model.Run{
		ID:         "r1",
		VersionIDs: []string{"v1"},
		FieldKeys:  []string{"no_such_field"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field key")
}

func TestExecuteRun_CancellationSkipsRemainingCells(t *testing.T) {
	st := engineStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, []string{"v1", "v2"}, []string{"governing_law"}, model.ProfileBalanced, model.ModeLLM)
	require.NoError(t, err)

	artifacts := &stubArtifacts{artifacts: map[string]*model.Artifact{
		"v1": contractArtifact("v1"),
		"v2": contractArtifact("v2"),
	}}

	runCtx, cancel := context.WithCancel(ctx)
	reasoner := &mockReasoner{}
	reasoner.On("Prime", mock.Anything).Return().Once()
	reasoner.On("ExtractionModel", model.ProfileBalanced).Return("reasoner-balanced")
	reasoner.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(model.ExtractionResult{}, context.Canceled).Once()

	emb := &mockEmbedder{}
	emb.On("EmbedBlocks", mock.Anything, mock.Anything, mock.Anything).Return(contractVectors(), nil)
	emb.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float64{1, 0}, nil)

	engine := runEngine(st, artifacts, emb, reasoner)
	summary, err := engine.ExecuteRun(runCtx, run)
	require.NoError(t, err)

	// The first cell was abandoned mid-call, the second never dispatched;
	// neither is recorded as attempted.
	assert.Equal(t, 2, summary.CellsTotal)
	assert.Equal(t, 2, summary.CellsSkipped)
	assert.Zero(t, summary.CellsAccepted)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCanceled, got.Status)

	cells, err := st.ListCells(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	for _, c := range cells {
		assert.Equal(t, model.CellSkipped, c.State)
	}
	reasoner.AssertNumberOfCalls(t, "Extract", 1)
}

func TestProcessCell_RunsAndIsIdempotentOnTerminal(t *testing.T) {
	st := engineStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, []string{"v1"}, []string{"governing_law"}, model.ProfileBalanced, model.ModeDeterministic)
	require.NoError(t, err)
	cells, err := st.CreateCells(ctx, run.ID, []store.CellSeed{{VersionID: "v1", FieldKey: "governing_law"}})
	require.NoError(t, err)

	artifacts := &stubArtifacts{artifacts: map[string]*model.Artifact{"v1": contractArtifact("v1")}}
	engine := runEngine(st, artifacts, nil, nil)

	require.NoError(t, engine.ProcessCell(ctx, run.ID, cells[0].ID))

	got, err := st.GetCell(ctx, cells[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.CellAccepted, got.State)
	require.NotNil(t, got.Result)
	first := got.Result.CompletedAt

	// Re-delivery of a terminal cell is a no-op.
	require.NoError(t, engine.ProcessCell(ctx, run.ID, cells[0].ID))
	again, err := st.GetCell(ctx, cells[0].ID)
	require.NoError(t, err)
	assert.Equal(t, first, again.Result.CompletedAt)
}

func TestProcessCell_UnknownFieldKey(t *testing.T) {
	st := engineStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, []string{"v1"}, []string{"governing_law"}, model.ProfileBalanced, model.ModeDeterministic)
	require.NoError(t, err)
	cells, err := st.CreateCells(ctx, run.ID, []store.CellSeed{{VersionID: "v1", FieldKey: "undefined_key"}})
	require.NoError(t, err)

	engine := runEngine(st, &stubArtifacts{}, nil, nil)
	err = engine.ProcessCell(ctx, run.ID, cells[0].ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field key")
}

func TestProcessCell_ParserErrorVersion(t *testing.T) {
	st := engineStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, []string{"v2"}, []string{"governing_law"}, model.ProfileBalanced, model.ModeDeterministic)
	require.NoError(t, err)
	cells, err := st.CreateCells(ctx, run.ID, []store.CellSeed{{VersionID: "v2", FieldKey: "governing_law"}})
	require.NoError(t, err)

	// No artifact for v2: the cell records the parse failure.
	engine := runEngine(st, &stubArtifacts{}, nil, nil)
	require.NoError(t, engine.ProcessCell(ctx, run.ID, cells[0].ID))

	got, err := st.GetCell(ctx, cells[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.CellFallback, got.State)
	require.NotNil(t, got.Result)
	assert.Equal(t, model.FallbackParserError, got.Result.FallbackReason)
}
