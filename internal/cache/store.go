// Package cache persists JSON documents with modification-time freshness
// checks. Documents are read and written without cross-process locking, so
// concurrent writers of the same document race last-writer-wins.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const filePermissions = 0644

// Store keeps named JSON documents under a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Path returns the absolute path of a named document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Load decodes the named document into v. It reports false when the document
// is missing, unreadable, malformed, or older than maxAge (0 disables the
// freshness check).
func (s *Store) Load(name string, maxAge time.Duration, v any) bool {
	p := s.Path(name)
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	if maxAge > 0 && time.Since(info.ModTime()) > maxAge {
		return false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// Save encodes v into the named document, replacing any previous content.
func (s *Store) Save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path(name), data, filePermissions)
}
