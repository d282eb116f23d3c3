package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists cache entries across restarts.
type Store interface {
	Load() (map[string]Entry, error)
	Put(address string, e Entry) error
	Replace(entries map[string]Entry) error
	Close() error
}

// nopStore keeps nothing. Used when persistence is disabled.
type nopStore struct{}

func (nopStore) Load() (map[string]Entry, error) { return map[string]Entry{}, nil }
func (nopStore) Put(string, Entry) error         { return nil }
func (nopStore) Replace(map[string]Entry) error  { return nil }
func (nopStore) Close() error                    { return nil }

// JSONStore keeps the cache as one JSON object mapping address to entry.
// Every write rewrites the file through a temp file and rename.
type JSONStore struct {
	path string

	mu     sync.Mutex
	mirror map[string]Entry
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, mirror: make(map[string]Entry)}
}

func (s *JSONStore) Path() string { return s.path }

// Load reads the file. A missing file is an empty cache.
func (s *JSONStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read geo cache: %w", err)
	}

	entries := make(map[string]Entry)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode geo cache %s: %w", s.path, err)
		}
	}

	s.mu.Lock()
	s.mirror = make(map[string]Entry, len(entries))
	for k, v := range entries {
		s.mirror[k] = v
	}
	s.mu.Unlock()
	return entries, nil
}

func (s *JSONStore) Put(address string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror[address] = e
	return s.writeLocked()
}

func (s *JSONStore) Replace(entries map[string]Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = make(map[string]Entry, len(entries))
	for k, v := range entries {
		s.mirror[k] = v
	}
	return s.writeLocked()
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) writeLocked() error {
	data, err := json.MarshalIndent(s.mirror, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
