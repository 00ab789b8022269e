package model

import "time"

// RunStatus represents the current state of an extraction run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// QualityProfile selects the retrieval pool size, model tier, and whether the
// self-consistency pass runs.
type QualityProfile string

const (
	ProfileHigh     QualityProfile = "high"
	ProfileBalanced QualityProfile = "balanced"
	ProfileFast     QualityProfile = "fast"
)

// ExtractionMode selects how cell values are produced.
type ExtractionMode string

const (
	// ModeLLM runs retrieval, segment assembly, and the extract-then-verify
	// loop against a reasoning service.
	ModeLLM ExtractionMode = "llm_rse"
	// ModeDeterministic skips the reasoning service and picks the best block
	// by keyword overlap. Used when no provider is configured.
	ModeDeterministic ExtractionMode = "deterministic"
)

// ParseProfile maps a user-supplied profile name onto a QualityProfile.
// Empty input selects the balanced default.
func ParseProfile(s string) (QualityProfile, bool) {
	switch p := QualityProfile(s); p {
	case "":
		return ProfileBalanced, true
	case ProfileHigh, ProfileBalanced, ProfileFast:
		return p, true
	default:
		return "", false
	}
}

// ParseMode maps a user-supplied extraction mode name onto an ExtractionMode.
// Empty input selects the LLM pipeline.
func ParseMode(s string) (ExtractionMode, bool) {
	switch m := ExtractionMode(s); m {
	case "":
		return ModeLLM, true
	case ModeLLM, ModeDeterministic:
		return m, true
	default:
		return "", false
	}
}

// CellState tracks a cell through the extract-then-verify state machine.
// Terminal states are CellAccepted, CellFallback, and CellSkipped; everything
// else is transitional and never persisted.
type CellState string

const (
	CellPending    CellState = "pending"
	CellExtracted  CellState = "extracted"
	CellVerified   CellState = "verified"
	CellRetrying   CellState = "retrying"
	CellReExtract  CellState = "re_extracted"
	CellReVerified CellState = "re_verified"
	CellAccepted   CellState = "accepted"
	CellFallback   CellState = "fallback"
	CellSkipped    CellState = "skipped"
)

// Terminal reports whether the state ends the cell's machine.
func (s CellState) Terminal() bool {
	return s == CellAccepted || s == CellFallback || s == CellSkipped
}

// Run is one extraction job: a set of fields evaluated against a set of
// document versions. Cells are the cross product.
type Run struct {
	ID         string         `json:"id"`
	VersionIDs []string       `json:"version_ids"`
	FieldKeys  []string       `json:"field_keys"`
	Profile    QualityProfile `json:"profile"`
	Mode       ExtractionMode `json:"mode"`
	Status     RunStatus      `json:"status"`
	Summary    *RunSummary    `json:"summary,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RunSummary aggregates cell outcomes for run-level reporting. A cell counts
// as low-confidence below 0.55, the same bar the anchor gate applies.
type RunSummary struct {
	CellsTotal         int `json:"cells_total"`
	CellsAccepted      int `json:"cells_accepted"`
	CellsFallback      int `json:"cells_fallback"`
	CellsSkipped       int `json:"cells_skipped"`
	CellsLowConfidence int `json:"cells_low_confidence"`
}

// Cell identifies one (document version, field) extraction unit within a run.
type Cell struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	VersionID string      `json:"version_id"`
	FieldKey  string      `json:"field_key"`
	State     CellState   `json:"state"`
	Result    *CellResult `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
