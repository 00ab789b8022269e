package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-legal/evidence-cli/internal/blockstore"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

func pdfCitation(snippet string, page int) model.Citation {
	p := page
	return model.Citation{
		Source:  model.SourcePDF,
		Snippet: snippet,
		Page:    &p,
		BBox:    []float64{72, 300, 540, 330},
	}
}

func TestResolveCitation_PrefersPrimaryEvidence(t *testing.T) {
	generic := pdfCitation("Standard notice and waiver language", 4)
	parties := pdfCitation("by and between Tesla, Inc. and Panasonic Corporation", 2)
	bs := deterministicStore(t, []model.Block{
		{ID: "b0", Text: "Standard notice and waiver language.", SequenceIndex: 0,
			Citations: []model.Citation{generic}},
		{ID: "b1", Text: "This Agreement is entered into by and between Tesla, Inc. and Panasonic Corporation.", SequenceIndex: 1,
			Citations: []model.Citation{parties}},
		{ID: "b2", Text: "Miscellaneous amendments and schedules follow.", SequenceIndex: 2},
	})

	in := ResolveInput{
		FieldKey:   "parties_entities",
		Value:      "Tesla, Inc.; Panasonic Corporation",
		RawText:    "entered into by and between Tesla, Inc. and Panasonic Corporation",
		Candidates: []model.Citation{generic, parties},
	}

	resolved := ResolveCitation(in, bs)
	require.NotNil(t, resolved)
	// The generic snippet is listed first but the quote lives in b1.
	assert.Equal(t, parties.Snippet, resolved.Citation.Snippet)
	assert.Equal(t, "b1", resolved.BlockID)
	assert.Equal(t, model.AnchorSegment, resolved.AnchorMode)
	assert.Greater(t, resolved.Score, 1.0)
	// Char offsets are a plain-text affordance only.
	assert.Nil(t, resolved.Citation.StartChar)
}

func TestResolveCitation_NilBlocks_ScoresSnippetsOnly(t *testing.T) {
	generic := pdfCitation("Standard notice and waiver language", 4)
	parties := pdfCitation("by and between Tesla, Inc. and Panasonic Corporation", 2)

	in := ResolveInput{
		FieldKey:   "parties_entities",
		Value:      "Tesla, Inc.; Panasonic Corporation",
		RawText:    "entered into by and between Tesla, Inc. and Panasonic Corporation",
		Candidates: []model.Citation{generic, parties},
	}

	resolved := ResolveCitation(in, nil)
	require.NotNil(t, resolved)
	assert.Equal(t, parties.Snippet, resolved.Citation.Snippet)
	assert.Empty(t, resolved.BlockID)
	assert.Equal(t, model.AnchorSegment, resolved.AnchorMode)
	assert.Zero(t, resolved.GlobalBestScore)
}

func TestResolveCitation_TieKeepsCandidateOrder(t *testing.T) {
	first := pdfCitation("Severability provisions apply", 5)
	second := pdfCitation("Severability provisions apply", 6)

	in := ResolveInput{
		FieldKey:   "governing_law",
		RawText:    "Term of agreement five years",
		Candidates: []model.Citation{first, second},
	}

	resolved := ResolveCitation(in, nil)
	require.NotNil(t, resolved)
	require.NotNil(t, resolved.Citation.Page)
	assert.Equal(t, 5, *resolved.Citation.Page)
}

func TestResolveCitation_GlobalRescue(t *testing.T) {
	boiler := pdfCitation("Exhibit A intentionally omitted", 30)
	dated := pdfCitation("Dated as of August 17, 2017", 1)
	bs := deterministicStore(t, []model.Block{
		{ID: "block_0", Text: "Exhibit A intentionally omitted.", SequenceIndex: 0,
			Citations: []model.Citation{boiler}},
		{ID: "block_1", Text: "Miscellaneous conditions apply to the closing.", SequenceIndex: 1},
		{ID: "block_2", Text: "Dated as of August 17, 2017", SequenceIndex: 2,
			Citations: []model.Citation{dated}},
	})

	// The extraction segment only cited boilerplate; the real evidence sits
	// elsewhere in the document.
	in := ResolveInput{
		FieldKey:   "effective_date_term",
		Value:      "2017-08-17",
		RawText:    "dated as of August 17, 2017",
		Candidates: []model.Citation{boiler},
	}

	resolved := ResolveCitation(in, bs)
	require.NotNil(t, resolved)
	assert.Equal(t, model.AnchorGlobalRescue, resolved.AnchorMode)
	assert.Equal(t, "block_2", resolved.BlockID)
	require.NotNil(t, resolved.Citation.Page)
	assert.Equal(t, 1, *resolved.Citation.Page)
	assert.Greater(t, resolved.GlobalBestScore, resolved.SegmentBestScore)
}

func TestResolveCitation_IsoDateAnchorsSpelledDate(t *testing.T) {
	cite := pdfCitation("Effective as of October 1, 2014", 2)
	bs := deterministicStore(t, []model.Block{
		{ID: "b0", Text: "Effective as of October 1, 2014, this Amendment modifies the Supply Agreement.", SequenceIndex: 0,
			Citations: []model.Citation{cite}},
	})

	in := ResolveInput{
		FieldKey:   "effective_date_term",
		Value:      "2014-10-01",
		Candidates: []model.Citation{cite},
	}

	resolved := ResolveCitation(in, bs)
	require.NotNil(t, resolved)
	assert.Equal(t, "b0", resolved.BlockID)
	// The ISO value alone shares almost no tokens with the snippet; the
	// spelled-out expansion is what anchors it.
	assert.Greater(t, resolved.Score, 1.0)
}

func TestResolveCitation_NoLocators(t *testing.T) {
	in := ResolveInput{
		FieldKey:   "governing_law",
		Value:      "Delaware",
		Candidates: []model.Citation{{Source: model.SourcePDF}},
	}
	assert.Nil(t, ResolveCitation(in, nil))

	bs := deterministicStore(t, []model.Block{
		{ID: "b0", Text: "No citations were captured for this version.", SequenceIndex: 0},
	})
	assert.Nil(t, ResolveCitation(in, bs))
}

func TestResolveCitation_AnchorlessSegmentFallsToGlobal(t *testing.T) {
	dated := pdfCitation("Dated as of August 17, 2017", 1)
	bs := deterministicStore(t, []model.Block{
		{ID: "b0", Text: "Dated as of August 17, 2017", SequenceIndex: 0,
			Citations: []model.Citation{dated}},
	})

	in := ResolveInput{
		FieldKey:   "effective_date_term",
		Value:      "2017-08-17",
		Candidates: []model.Citation{{Source: model.SourcePDF}},
	}

	resolved := ResolveCitation(in, bs)
	require.NotNil(t, resolved)
	assert.Equal(t, model.AnchorGlobalRescue, resolved.AnchorMode)
	assert.Zero(t, resolved.SegmentBestScore)
}

func TestResolveCitation_Deterministic(t *testing.T) {
	generic := pdfCitation("Standard notice and waiver language", 4)
	parties := pdfCitation("by and between Tesla, Inc. and Panasonic Corporation", 2)
	bs := deterministicStore(t, []model.Block{
		{ID: "b0", Text: "Standard notice and waiver language.", SequenceIndex: 0,
			Citations: []model.Citation{generic}},
		{ID: "b1", Text: "This Agreement is entered into by and between Tesla, Inc. and Panasonic Corporation.", SequenceIndex: 1,
			Citations: []model.Citation{parties}},
	})

	in := ResolveInput{
		FieldKey:   "parties_entities",
		Value:      "Tesla, Inc.; Panasonic Corporation",
		RawText:    "entered into by and between Tesla, Inc. and Panasonic Corporation",
		Candidates: []model.Citation{generic, parties},
	}

	assert.Equal(t, ResolveCitation(in, bs), ResolveCitation(in, bs))
}

func TestResolveCitation_FillsCharRangeForPlainText(t *testing.T) {
	text := "This Agreement shall be governed by the laws of the State of Delaware."
	snippet := "governed by the laws of the State of Delaware"
	cite := model.Citation{Source: model.SourceTXT, Snippet: snippet}

	bs, err := blockstore.New(&model.Artifact{
		VersionID: "v1",
		Source:    model.SourceTXT,
		Status:    model.ParseSucceeded,
		Blocks: []model.Block{
			{ID: "b0", Text: text, SequenceIndex: 0, Citations: []model.Citation{cite}},
		},
	})
	require.NoError(t, err)

	in := ResolveInput{
		FieldKey:   "governing_law",
		Value:      "Delaware",
		RawText:    snippet,
		Candidates: []model.Citation{cite},
	}

	resolved := ResolveCitation(in, bs)
	require.NotNil(t, resolved)
	require.NotNil(t, resolved.Citation.StartChar)
	require.NotNil(t, resolved.Citation.EndChar)
	assert.Equal(t, snippet, text[*resolved.Citation.StartChar:*resolved.Citation.EndChar])
}

func TestRankPool_EarlyPageTieBreak(t *testing.T) {
	p2, p7 := 2, 7
	pool := []scoredCitation{
		{citation: model.Citation{Page: &p7}, score: 0.61, order: 0},
		{citation: model.Citation{Page: &p2}, score: 0.59, order: 1},
	}

	rankPool("parties_entities", pool)

	require.NotNil(t, pool[0].citation.Page)
	assert.Equal(t, 2, *pool[0].citation.Page)
	assert.InDelta(t, 0.74, pool[0].score, 1e-9)
	assert.InDelta(t, 0.69, pool[1].score, 1e-9)
}

func TestRankPool_NonEarlyFieldUnboosted(t *testing.T) {
	p2, p7 := 2, 7
	pool := []scoredCitation{
		{citation: model.Citation{Page: &p7}, score: 0.61, order: 0},
		{citation: model.Citation{Page: &p2}, score: 0.59, order: 1},
	}

	rankPool("governing_law", pool)

	assert.Equal(t, 7, *pool[0].citation.Page)
	assert.Equal(t, 0.61, pool[0].score)
	assert.Equal(t, 0.59, pool[1].score)
}

func TestRankPool_WideGapSkipsTieBreak(t *testing.T) {
	p1, p9 := 1, 9
	pool := []scoredCitation{
		{citation: model.Citation{Page: &p9}, score: 1.2, order: 0},
		{citation: model.Citation{Page: &p1}, score: 0.5, order: 1},
	}

	rankPool("document_title", pool)

	assert.Equal(t, 9, *pool[0].citation.Page)
	assert.Equal(t, 1.2, pool[0].score)
}

func TestScoreCitation_BoilerplatePenalty(t *testing.T) {
	probes := buildProbes(ResolveInput{RawText: "Payment is due within thirty days of invoice"})

	full := scoreCitation(model.Citation{Snippet: "Payment is due within thirty days of invoice"}, "", probes)
	assert.InDelta(t, 1.25, full, 1e-9)

	// A snippet that quotes the evidence keeps its score even when it also
	// carries a boilerplate marker.
	exempt := scoreCitation(model.Citation{Snippet: "Payment is due within thirty days of invoice. Remainder intentionally left blank."}, "", probes)
	assert.Equal(t, full, exempt)

	// A weak match with a marker is scaled down.
	weak := scoreCitation(model.Citation{Snippet: "Payment details confidential treatment requested"}, "", probes)
	assert.InDelta(t, 0.125*0.35, weak, 1e-9)

	control := scoreCitation(model.Citation{Snippet: "Payment details redacted on request"}, "", probes)
	assert.Greater(t, control, weak)
}

func TestBuildProbes_PriorityAndDedup(t *testing.T) {
	probes := buildProbes(ResolveInput{
		RawText:         "Governing law: New York. Venue: New York courts for all disputes arising hereunder.",
		Value:           "New York",
		EvidenceSummary: "The clause says New York controls.",
	})

	require.Len(t, probes, 4)
	assert.Equal(t, 1.0, probes[0].weight)
	assert.True(t, probes[0].core)
	// One fragment survives the length floor.
	assert.Equal(t, 0.9, probes[1].weight)
	assert.Equal(t, "new york courts for all disputes arising hereunder", probes[1].text)
	assert.Equal(t, "new york", probes[2].text)
	// The summary paraphrases; it scores at reduced weight and cannot lift
	// a boilerplate snippet.
	assert.Equal(t, 0.5, probes[3].weight)
	assert.False(t, probes[3].core)

	dedup := buildProbes(ResolveInput{RawText: "New York", Value: "New York"})
	assert.Len(t, dedup, 1)
}
