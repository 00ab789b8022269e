package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// errMalformed marks a reasoning response that violates the strict shape
// contract: not a JSON object, a required key missing or null, or a key of
// the wrong type. The cell loop maps it to a MODEL_ERROR fallback.
var errMalformed = eris.New("pipeline: malformed reasoning response")

// extractorWire mirrors the extractor's required response shape. Pointer
// fields distinguish a missing key from a zero value; candidate_index rides
// as float64 because models emit both 2 and 2.0.
type extractorWire struct {
	Value           *string  `json:"value"`
	RawText         *string  `json:"raw_text"`
	EvidenceSummary *string  `json:"evidence_summary"`
	CandidateIndex  *float64 `json:"candidate_index"`
	Confidence      *float64 `json:"confidence"`
}

type verifierWire struct {
	Status             *string  `json:"verifier_status"`
	Reason             *string  `json:"reason"`
	BestCandidateIndex *float64 `json:"best_candidate_index"`
}

// parseExtraction validates and canonicalizes an extractor response. All five
// keys must be present with their contract types; extra keys are ignored.
// Raw text defaults to the value, the summary to a generic sentence, and a
// zero confidence is treated as unreported and takes the 0.65 default.
func parseExtraction(raw string, poolSize int) (model.ExtractionResult, error) {
	obj, ok := jsonObject(raw)
	if !ok {
		return model.ExtractionResult{}, eris.Wrap(errMalformed, "extractor returned no JSON object")
	}
	var wire extractorWire
	if err := json.Unmarshal(obj, &wire); err != nil {
		return model.ExtractionResult{}, eris.Wrap(errMalformed, err.Error())
	}
	if wire.Value == nil || wire.RawText == nil || wire.EvidenceSummary == nil || wire.CandidateIndex == nil || wire.Confidence == nil {
		return model.ExtractionResult{}, eris.Wrap(errMalformed, "extractor response missing required keys")
	}

	value := strings.TrimSpace(*wire.Value)
	rawText := strings.TrimSpace(*wire.RawText)
	if rawText == "" {
		rawText = value
	}
	summary := strings.TrimSpace(*wire.EvidenceSummary)
	if summary == "" {
		summary = "LLM extracted value from retrieved legal evidence."
	}
	confidence := *wire.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence == 0 {
		confidence = 0.65
	}

	return model.ExtractionResult{
		Value:           value,
		RawText:         rawText,
		EvidenceSummary: summary,
		CandidateIndex:  clampIndex(int(*wire.CandidateIndex), poolSize),
		BaseConfidence:  confidence,
	}, nil
}

// parseVerification validates a verifier response. The three keys must be
// present; an unrecognized status value is sanitized to PARTIAL rather than
// rejected, since the shape is sound and PARTIAL is the conservative reading.
func parseVerification(raw string, poolSize int) (model.VerificationResult, error) {
	obj, ok := jsonObject(raw)
	if !ok {
		return model.VerificationResult{}, eris.Wrap(errMalformed, "verifier returned no JSON object")
	}
	var wire verifierWire
	if err := json.Unmarshal(obj, &wire); err != nil {
		return model.VerificationResult{}, eris.Wrap(errMalformed, err.Error())
	}
	if wire.Status == nil || wire.Reason == nil || wire.BestCandidateIndex == nil {
		return model.VerificationResult{}, eris.Wrap(errMalformed, "verifier response missing required keys")
	}

	status := model.VerifierStatus(strings.ToUpper(strings.TrimSpace(*wire.Status)))
	switch status {
	case model.VerifierPass, model.VerifierPartial, model.VerifierFail:
	default:
		status = model.VerifierPartial
	}
	reason := strings.TrimSpace(*wire.Reason)
	if reason == "" {
		reason = "Verifier returned no specific reason."
	}

	return model.VerificationResult{
		Status:             status,
		Reason:             reason,
		BestCandidateIndex: clampIndex(int(*wire.BestCandidateIndex), poolSize),
	}, nil
}

// jsonObject extracts the JSON object from a model response: the whole
// response when it already is one, otherwise the span between the first '{'
// and the last '}', which strips code fences and prose wrappers.
func jsonObject(raw string) ([]byte, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return []byte(trimmed), true
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		sub := trimmed[start : end+1]
		if json.Valid([]byte(sub)) {
			return []byte(sub), true
		}
	}
	return nil, false
}

func clampIndex(idx, poolSize int) int {
	if idx < 0 || poolSize <= 0 {
		return 0
	}
	if idx >= poolSize {
		return poolSize - 1
	}
	return idx
}
