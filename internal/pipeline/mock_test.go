package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// --- Reasoner Mock ---

type mockReasoner struct {
	mock.Mock
}

func (m *mockReasoner) Extract(ctx context.Context, query model.FieldQuery, profile model.QualityProfile, evidence []model.EvidenceItem) (model.ExtractionResult, error) {
	args := m.Called(ctx, query, profile, evidence)
	return args.Get(0).(model.ExtractionResult), args.Error(1)
}

func (m *mockReasoner) Verify(ctx context.Context, query model.FieldQuery, value, rawText string, evidence []model.EvidenceItem) (model.VerificationResult, error) {
	args := m.Called(ctx, query, value, rawText, evidence)
	return args.Get(0).(model.VerificationResult), args.Error(1)
}

func (m *mockReasoner) ExtractionModel(profile model.QualityProfile) string {
	args := m.Called(profile)
	return args.String(0)
}

func (m *mockReasoner) Prime(ctx context.Context) {
	m.Called(ctx)
}

// --- Embedder Mock ---

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) EmbedBlocks(ctx context.Context, versionID string, blocks []model.Block) (map[string][]float64, error) {
	args := m.Called(ctx, versionID, blocks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]float64), args.Error(1)
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

// --- Artifact Source Stub ---

type stubArtifacts struct {
	artifacts map[string]*model.Artifact
}

func (s *stubArtifacts) GetArtifact(versionID string) (*model.Artifact, error) {
	a, ok := s.artifacts[versionID]
	if !ok {
		return nil, eris.Errorf("artifact: version %s not found", versionID)
	}
	return a, nil
}

// --- Fixtures ---

// contractArtifact builds a parsed PDF artifact whose blocks read like a
// short commercial agreement. Blocks relevantA and relevantB carry the
// governing-law language and the only citations; the rest is filler.
func contractArtifact(versionID string) *model.Artifact {
	page1, page6 := 1, 6
	blocks := make([]model.Block, 8)
	for i := range blocks {
		blocks[i] = model.Block{
			ID:            fmt.Sprintf("b%d", i),
			Kind:          model.BlockParagraph,
			Text:          fmt.Sprintf("Miscellaneous clause %d covering notices and schedules.", i),
			SequenceIndex: i,
		}
	}
	blocks[0].Text = "This Agreement shall be governed by the laws of the State of New York."
	blocks[0].Citations = []model.Citation{{
		Source:  model.SourcePDF,
		Snippet: "governed by the laws of the State of New York",
		Page:    &page1,
		BBox:    []float64{72, 200, 540, 236},
	}}
	blocks[6].Text = "Disputes arising under this Agreement are resolved under Delaware law."
	blocks[6].Citations = []model.Citation{{
		Source:  model.SourcePDF,
		Snippet: "resolved under Delaware law",
		Page:    &page6,
		BBox:    []float64{72, 400, 540, 436},
	}}
	return &model.Artifact{
		VersionID:  versionID,
		Source:     model.SourcePDF,
		PageWidth:  612,
		PageHeight: 792,
		Status:     model.ParseSucceeded,
		Blocks:     blocks,
	}
}

func governingLawQuery() model.FieldQuery {
	return model.FieldQuery{
		Key:    "governing_law",
		Name:   "Governing Law",
		Type:   model.FieldText,
		Prompt: "Which jurisdiction's laws govern this agreement?",
	}
}

func okExtraction() model.ExtractionResult {
	return model.ExtractionResult{
		Value:           "New York",
		RawText:         "governed by the laws of the State of New York",
		EvidenceSummary: "The governing law clause names New York.",
		CandidateIndex:  0,
		BaseConfidence:  0.8,
	}
}

func okVerification() model.VerificationResult {
	return model.VerificationResult{
		Status:             model.VerifierPass,
		Reason:             "Claimed value is quoted in candidate 0.",
		BestCandidateIndex: 0,
	}
}
