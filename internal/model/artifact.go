package model

import "time"

// ParseStatus records the upstream parser's verdict for a document version.
type ParseStatus string

const (
	ParseSucceeded ParseStatus = "succeeded"
	ParseFailed    ParseStatus = "failed"
)

// Document groups the versions of one source document.
type Document struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Source          string    `json:"source,omitempty"`
	LatestVersionID string    `json:"latest_version_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Artifact is one parsed document version: the ordered block list plus the
// page geometry the anchor gate validates against. The engine never re-parses
// source bytes; artifacts arrive fully formed from the parsing layer.
type Artifact struct {
	DocumentID string       `json:"document_id"`
	VersionID  string       `json:"version_id"`
	Source     SourceFormat `json:"source"`
	PageWidth  float64      `json:"page_width,omitempty"`
	PageHeight float64      `json:"page_height,omitempty"`
	Status     ParseStatus  `json:"parse_status"`
	ParseError string       `json:"parse_error,omitempty"`
	Blocks     []Block      `json:"blocks"`
	IngestedAt time.Time    `json:"ingested_at"`
}
