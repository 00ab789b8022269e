package artifact

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// ErrInvalid marks artifacts rejected by ingest validation, as opposed to
// storage failures. Callers branch on it with eris.Is.
var ErrInvalid = eris.New("invalid artifact")

// Ingest validates an incoming parsed artifact, assigns any missing
// identifiers, and persists it together with its owning document record.
// Citation bboxes are normalized to min/max order in place; the returned
// artifact carries the final IDs. Failed parses are storable — their cells
// surface PARSER_ERROR at run time.
func (s *Store) Ingest(a *model.Artifact, title string) (*model.Artifact, error) {
	if a == nil {
		return nil, eris.Wrap(ErrInvalid, "artifact: nil artifact")
	}
	if a.Status == "" {
		a.Status = model.ParseSucceeded
	}
	if err := validateArtifact(a); err != nil {
		return nil, err
	}

	if a.DocumentID == "" {
		a.DocumentID = uuid.New().String()
	}
	if a.VersionID == "" {
		a.VersionID = uuid.New().String()
	}
	if a.IngestedAt.IsZero() {
		a.IngestedAt = time.Now().UTC()
	}

	doc, err := s.GetDocument(a.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		if title == "" {
			title = a.DocumentID
		}
		newDoc := model.Document{
			ID:        a.DocumentID,
			Title:     title,
			Source:    string(a.Source),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.SaveDocument(newDoc); err != nil {
			return nil, err
		}
	} else if title != "" && title != doc.Title {
		doc.Title = title
		if err := s.SaveDocument(*doc); err != nil {
			return nil, err
		}
	}

	if err := s.SaveArtifact(a); err != nil {
		return nil, err
	}
	return a, nil
}

// validateArtifact enforces the ingest invariants: a known source format,
// non-empty unique block ids, strictly increasing sequence indexes, and sane
// citation bboxes. Bboxes are rewritten in normalized order.
func validateArtifact(a *model.Artifact) error {
	switch a.Source {
	case model.SourcePDF, model.SourceHTML, model.SourceTXT, model.SourceDOCX:
	default:
		return eris.Wrapf(ErrInvalid, "artifact: unknown source format %q", a.Source)
	}

	switch a.Status {
	case model.ParseSucceeded:
	case model.ParseFailed:
		return nil
	default:
		return eris.Wrapf(ErrInvalid, "artifact: unknown parse status %q", a.Status)
	}

	if len(a.Blocks) == 0 {
		return eris.Wrap(ErrInvalid, "artifact: parsed artifact has no blocks")
	}

	seen := make(map[string]struct{}, len(a.Blocks))
	prevSeq := -1
	for i := range a.Blocks {
		b := &a.Blocks[i]
		if b.ID == "" {
			return eris.Wrapf(ErrInvalid, "artifact: block %d has no id", i)
		}
		if _, dup := seen[b.ID]; dup {
			return eris.Wrapf(ErrInvalid, "artifact: duplicate block id %q", b.ID)
		}
		seen[b.ID] = struct{}{}
		if b.SequenceIndex <= prevSeq {
			return eris.Wrapf(ErrInvalid, "artifact: block %q sequence index %d out of order", b.ID, b.SequenceIndex)
		}
		prevSeq = b.SequenceIndex

		for j := range b.Citations {
			c := &b.Citations[j]
			if len(c.BBox) == 0 {
				continue
			}
			norm, ok := model.NormalizeBBox(c.BBox)
			if !ok {
				return eris.Wrapf(ErrInvalid, "artifact: block %q citation %d has a degenerate bbox", b.ID, j)
			}
			c.BBox = norm
		}
	}
	return nil
}
