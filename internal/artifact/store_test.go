package artifact

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func TestStore_DocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)

	doc := model.Document{ID: "doc-1", Title: "Master Services Agreement", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveDocument(doc))

	got, err := s.GetDocument("doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Master Services Agreement", got.Title)

	missing, err := s.GetDocument("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_SaveArtifactUpdatesLatestVersion(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveDocument(model.Document{ID: "doc-1", Title: "MSA"}))

	a := &model.Artifact{
		DocumentID: "doc-1",
		VersionID:  "ver-1",
		Source:     model.SourcePDF,
		Status:     model.ParseSucceeded,
		Blocks:     []model.Block{{ID: "b1", Kind: model.BlockParagraph, Text: "hello"}},
	}
	require.NoError(t, s.SaveArtifact(a))

	got, err := s.GetArtifact("ver-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.SourcePDF, got.Source)
	require.Len(t, got.Blocks, 1)

	doc, err := s.GetDocument("doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "ver-1", doc.LatestVersionID)
}

func TestStore_SaveArtifactRejectsMissingVersion(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveArtifact(&model.Artifact{DocumentID: "doc-1"})
	require.Error(t, err)
}

func TestStore_ListDocuments(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveDocument(model.Document{ID: "a", Title: "First"}))
	require.NoError(t, s.SaveDocument(model.Document{ID: "b", Title: "Second"}))

	docs, err := s.ListDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "First", docs[0].Title)
}
