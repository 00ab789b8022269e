package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// The system prompts are identical for every cell of a run, which makes them
// cacheable: the engine warms the provider-side prompt cache once and every
// subsequent cell hits it.

const extractSystemPrompt = `You are extracting legal fields from evidence snippets. Return ONLY JSON with keys: value, raw_text, evidence_summary, candidate_index, confidence.
Rules: cite only from provided snippets, do not fabricate, keep value concise and field-typed.`

const verifySystemPrompt = `You are verifying a legal extraction against evidence snippets. Return ONLY JSON with keys: verifier_status, reason, best_candidate_index.
verifier_status must be PASS, PARTIAL, or FAIL.`

func extractUserPrompt(query model.FieldQuery, profile model.QualityProfile, evidence []model.EvidenceItem) string {
	fieldJSON, _ := json.Marshal(query)
	evidenceJSON, _ := json.Marshal(evidence)
	return fmt.Sprintf("Field: %s\nQuality profile: %s\nEvidence candidates: %s", fieldJSON, profile, evidenceJSON)
}

// verifierEvidence is the trimmed evidence view sent to the verifier: the
// verdict should rest on the text alone, not on retrieval scores or locators.
type verifierEvidence struct {
	CandidateIndex int    `json:"candidate_index"`
	Text           string `json:"text"`
}

func verifyUserPrompt(query model.FieldQuery, value, rawText string, evidence []model.EvidenceItem) string {
	trimmed := make([]verifierEvidence, len(evidence))
	for i, item := range evidence {
		trimmed[i] = verifierEvidence{CandidateIndex: item.CandidateIndex, Text: item.Text}
	}
	fieldJSON, _ := json.Marshal(query)
	evidenceJSON, _ := json.Marshal(trimmed)
	return fmt.Sprintf("Field: %s\nClaimed value: %s\nClaimed raw_text: %s\nEvidence: %s", fieldJSON, value, rawText, evidenceJSON)
}
