package model

import "time"

// VerifierStatus is the verifier's verdict on a claimed value.
type VerifierStatus string

const (
	VerifierPass    VerifierStatus = "PASS"
	VerifierPartial VerifierStatus = "PARTIAL"
	VerifierFail    VerifierStatus = "FAIL"
)

// FallbackReason codes why a cell could not be confidently resolved.
type FallbackReason string

const (
	FallbackNotFound    FallbackReason = "NOT_FOUND"
	FallbackAmbiguous   FallbackReason = "AMBIGUOUS"
	FallbackParserError FallbackReason = "PARSER_ERROR"
	FallbackModelError  FallbackReason = "MODEL_ERROR"
)

// CandidateScores carries the per-signal scores behind a candidate's final
// rank. Raw ranks and RRF terms are populated only in rrf scoring mode.
type CandidateScores struct {
	Semantic      float64 `json:"semantic"`
	Lexical       float64 `json:"lexical"`
	Structural    float64 `json:"structural"`
	Final         float64 `json:"final"`
	LexicalRaw    float64 `json:"lexical_raw,omitempty"`
	RRFRaw        float64 `json:"rrf_raw,omitempty"`
	RankDense     int     `json:"rank_dense,omitempty"`
	RankLexical   int     `json:"rank_lexical,omitempty"`
	RankStructure int     `json:"rank_structure,omitempty"`
}

// Candidate is a block scored against a field query. Ephemeral: produced per
// ranking pass, owned by one cell's execution, never persisted.
type Candidate struct {
	BlockID   string          `json:"block_id"`
	Text      string          `json:"text"`
	Citations []Citation      `json:"citations,omitempty"`
	Scores    CandidateScores `json:"scores"`
}

// Segment is a merged, contiguous window of blocks assembled around
// high-scoring candidates, sent to the extractor as context. Blocks within a
// segment stay in document order; a table block is never split across two
// segments.
type Segment struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	BlockIDs  []string   `json:"block_ids"`
	Citations []Citation `json:"citations,omitempty"`
	Score     float64    `json:"score"`
}

// EvidenceItem is one segment as presented to the extractor and verifier.
type EvidenceItem struct {
	CandidateIndex int     `json:"candidate_index"`
	Text           string  `json:"text"`
	Page           *int    `json:"page,omitempty"`
	Selector       string  `json:"selector,omitempty"`
	Score          float64 `json:"score"`
}

// ExtractionResult is the extractor's structured answer, immutable once
// returned.
type ExtractionResult struct {
	Value           string  `json:"value"`
	RawText         string  `json:"raw_text"`
	EvidenceSummary string  `json:"evidence_summary"`
	CandidateIndex  int     `json:"candidate_index"`
	BaseConfidence  float64 `json:"confidence"`
}

// VerificationResult is the verifier's structured verdict.
type VerificationResult struct {
	Status             VerifierStatus `json:"verifier_status"`
	Reason             string         `json:"reason"`
	BestCandidateIndex int            `json:"best_candidate_index"`
}

// ConfidenceSignals are the inputs to confidence fusion. RetrievalScore is
// the final score of the candidate the extractor actually cited, not the
// pool's top score.
type ConfidenceSignals struct {
	BaseConfidence float64
	RetrievalScore float64
	VerifierStatus VerifierStatus
	SelfConsistent bool
}

// AnchorMode records which citation pool the resolver chose from.
type AnchorMode string

const (
	// AnchorSegment means the winning citation came from the extraction
	// segment pool.
	AnchorSegment AnchorMode = "segment"
	// AnchorGlobalRescue means a whole-document citation outscored every
	// segment citation and the anchor was re-pointed at it.
	AnchorGlobalRescue AnchorMode = "global_rescue"
)

// ResolvedCitation is the single citation chosen to represent an extracted
// value, with its resolution score. Computed on demand at review time, never
// persisted: it is derivable from the stored citations plus the block store.
type ResolvedCitation struct {
	Citation         Citation   `json:"citation"`
	BlockID          string     `json:"block_id,omitempty"`
	Score            float64    `json:"score"`
	AnchorMode       AnchorMode `json:"anchor_mode"`
	SegmentBestScore float64    `json:"segment_best_score"`
	GlobalBestScore  float64    `json:"global_best_score"`
}

// SegmentContext is the compacted retrieval context persisted with a cell for
// audit display: enough to show what evidence the model saw without storing
// whole segments.
type SegmentContext struct {
	SegmentID   string     `json:"segment_id"`
	Score       float64    `json:"score"`
	TextPreview string     `json:"text_preview"`
	Citations   []Citation `json:"citations,omitempty"`
}

// CellResult is the one immutable result row persisted per cell.
type CellResult struct {
	Value              string           `json:"value"`
	RawText            string           `json:"raw_text"`
	NormalizedValue    string           `json:"normalized_value"`
	NormalizationValid bool             `json:"normalization_valid"`
	ConfidenceScore    float64          `json:"confidence_score"`
	Citations          []Citation       `json:"citations,omitempty"`
	EvidenceSummary    string           `json:"evidence_summary"`
	FallbackReason     FallbackReason   `json:"fallback_reason,omitempty"`
	VerifierStatus     VerifierStatus   `json:"verifier_status,omitempty"`
	UncertaintyReason  string           `json:"uncertainty_reason,omitempty"`
	ExtractionMethod   ExtractionMode   `json:"extraction_method"`
	ModelName          string           `json:"model_name,omitempty"`
	RetrievalContext   []SegmentContext `json:"retrieval_context,omitempty"`
	CompletedAt        time.Time        `json:"completed_at"`
}

// Resolved reports whether the cell produced an accepted value rather than a
// fallback record.
func (r CellResult) Resolved() bool {
	return r.FallbackReason == ""
}
