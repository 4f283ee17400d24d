// Package storage provides the file-backed key-value persistence used for
// registry snapshots and skill-pack data. Values are human-readable JSON,
// one entity per file, with no transactional guarantees.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound indicates no value is stored under the requested key
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey indicates a key that cannot map to a file path
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store is a minimal JSON key-value persistence contract.
type Store interface {
	// Write marshals value as JSON and stores it under key.
	Write(key string, value any) error

	// Read unmarshals the value stored under key into out. Returns
	// ErrNotFound when the key has never been written.
	Read(key string, out any) error

	// Delete removes the value stored under key. Deleting a missing key is
	// not an error.
	Delete(key string) error

	// List returns all keys under the given prefix.
	List(prefix string) ([]string, error)
}

// =============================================================================
// File Store
// =============================================================================

// FileStore persists each key as an indented JSON file under a base
// directory. Keys may contain '/' separators which map to subdirectories.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a store rooted at baseDir, creating the directory if
// needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Write stores value as indented JSON at the key's path.
func (s *FileStore) Write(key string, value any) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Read loads the JSON stored at key into out.
func (s *FileStore) Read(key string, out any) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("reading %s: %w", key, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return nil
}

// Delete removes the file backing key, if present.
func (s *FileStore) Delete(key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// List walks the base directory and returns every stored key with the given
// prefix.
func (s *FileStore) List(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}

func (s *FileStore) keyPath(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(key)+".json"), nil
}

// =============================================================================
// Memory Store
// =============================================================================

// MemoryStore is an in-memory Store for tests. Values round-trip through
// JSON so behavior matches FileStore.
type MemoryStore struct {
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Write stores value under key.
func (s *MemoryStore) Write(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	s.data[key] = data
	return nil
}

// Read loads the value stored under key into out.
func (s *MemoryStore) Read(key string, out any) error {
	data, ok := s.data[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return json.Unmarshal(data, out)
}

// Delete removes the value stored under key.
func (s *MemoryStore) Delete(key string) error {
	delete(s.data, key)
	return nil
}

// List returns all keys with the given prefix.
func (s *MemoryStore) List(prefix string) ([]string, error) {
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
