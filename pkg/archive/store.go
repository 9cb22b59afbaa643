// Package archive persists routing decisions. Routed results are stored as
// content-addressed JSON objects, decision records are written as browsable
// files, and an optional SQLite index answers recent-history queries.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentjido/confgate/pkg/schema"
)

var (
	// ErrNotFound marks lookups of decisions or objects that were never stored.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt marks stored objects whose bytes no longer match their hash.
	ErrCorrupt = errors.New("archive object corrupt")
)

// Store manages the content-addressed archive.
type Store struct {
	BasePath string
	index    *Index
}

// NewStore creates an archive store rooted at basePath, defaulting to
// ~/.confgate/archive when empty.
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Join(home, ".confgate", "archive")
	}

	dirs := []string{
		filepath.Join(basePath, "objects"),
		filepath.Join(basePath, "decisions"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, err
		}
	}

	return &Store{BasePath: basePath}, nil
}

// NewIndexedStore creates a store and attaches a SQLite history index at
// indexPath.
func NewIndexedStore(basePath, indexPath string) (*Store, error) {
	s, err := NewStore(basePath)
	if err != nil {
		return nil, err
	}
	ix, err := OpenIndex(indexPath)
	if err != nil {
		return nil, err
	}
	s.index = ix
	return s, nil
}

// Index returns the attached history index, nil when the store is unindexed.
func (s *Store) Index() *Index {
	return s.index
}

// Close releases the history index, if any.
func (s *Store) Close() error {
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}

// StoreObject stores a JSON object by its SHA256 content hash in a sharded
// directory structure. Storing the same object twice is idempotent.
func (s *Store) StoreObject(obj any, kind schema.EvidenceKind) (schema.EvidenceRef, error) {
	data, err := canonicalBytes(obj)
	if err != nil {
		return schema.EvidenceRef{}, err
	}

	hash := schema.ComputeSHA256Bytes(data)

	// Shard by first 2 chars
	shard := hash[:2]
	dir := filepath.Join(s.BasePath, "objects", shard)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return schema.EvidenceRef{}, err
	}

	path := filepath.Join(dir, hash+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return schema.EvidenceRef{}, err
	}

	return schema.EvidenceRef{
		Kind:   string(kind),
		SHA256: hash,
	}, nil
}

// ReadObject returns the stored bytes for a content hash.
func (s *Store) ReadObject(hash string) ([]byte, error) {
	if len(hash) < 2 {
		return nil, fmt.Errorf("%w: object %q", ErrNotFound, hash)
	}
	path := filepath.Join(s.BasePath, "objects", hash[:2], hash+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: object %s", ErrNotFound, hash)
		}
		return nil, err
	}
	return data, nil
}

// VerifyObject recomputes the hash of a stored object and fails with
// ErrCorrupt when the bytes no longer match their address.
func (s *Store) VerifyObject(hash string) error {
	data, err := s.ReadObject(hash)
	if err != nil {
		return err
	}
	if got := schema.ComputeSHA256Bytes(data); got != hash {
		return fmt.Errorf("%w: %s hashes to %s", ErrCorrupt, hash, got)
	}
	return nil
}

// canonicalBytes is the serialized form used for both the address and the
// stored file, so VerifyObject can recompute hashes from disk.
func canonicalBytes(obj any) ([]byte, error) {
	return json.Marshal(obj)
}
