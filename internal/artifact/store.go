// Package artifact persists parsed document artifacts in a local bbolt file.
// Artifacts are written once at ingest and read on every run; bbolt's
// single-writer model fits that append-once, read-many shape without a
// server dependency.
package artifact

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.etcd.io/bbolt"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

var (
	bucketDocuments = []byte("documents")
	bucketArtifacts = []byte("artifacts")
)

// Store is a bbolt-backed artifact repository.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the artifact database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, eris.Wrap(err, "artifact: open db")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketArtifacts); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "artifact: create buckets")
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDocument upserts document metadata.
func (s *Store) SaveDocument(doc model.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(doc)
		if err != nil {
			return eris.Wrap(err, "artifact: marshal document")
		}
		return tx.Bucket(bucketDocuments).Put([]byte(doc.ID), data)
	})
}

// GetDocument returns the document with the given id, or nil when absent.
func (s *Store) GetDocument(id string) (*model.Document, error) {
	var doc model.Document
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: get document %s", id)
	}
	if !found {
		return nil, nil
	}
	return &doc, nil
}

// SaveArtifact upserts an artifact keyed by its version id and refreshes the
// owning document's latest-version pointer.
func (s *Store) SaveArtifact(a *model.Artifact) error {
	if a == nil || a.VersionID == "" {
		return eris.New("artifact: missing version id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return eris.Wrap(err, "artifact: marshal artifact")
		}
		if err := tx.Bucket(bucketArtifacts).Put([]byte(a.VersionID), data); err != nil {
			return eris.Wrap(err, "artifact: put artifact")
		}

		docs := tx.Bucket(bucketDocuments)
		if raw := docs.Get([]byte(a.DocumentID)); raw != nil {
			var doc model.Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				return eris.Wrap(err, "artifact: unmarshal owning document")
			}
			doc.LatestVersionID = a.VersionID
			updated, err := json.Marshal(doc)
			if err != nil {
				return eris.Wrap(err, "artifact: marshal owning document")
			}
			return docs.Put([]byte(doc.ID), updated)
		}
		return nil
	})
}

// GetArtifact returns the artifact for a version id, or nil when absent.
func (s *Store) GetArtifact(versionID string) (*model.Artifact, error) {
	var a model.Artifact
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketArtifacts).Get([]byte(versionID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: get artifact %s", versionID)
	}
	if !found {
		return nil, nil
	}
	return &a, nil
}

// ListDocuments returns all stored documents in key order.
func (s *Store) ListDocuments() ([]model.Document, error) {
	var out []model.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(_, v []byte) error {
			var doc model.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			out = append(out, doc)
			return nil
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "artifact: list documents")
	}
	return out, nil
}
