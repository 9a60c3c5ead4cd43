package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lexiqai/voice-coach/internal/transcript"
)

type fileDocument struct {
	Preferences Preferences                   `yaml:"preferences"`
	History     map[string][]transcript.Entry `yaml:"history,omitempty"`
}

// FileStore keeps preferences and history in a single YAML file. Writes
// replace the file atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var (
	_ PreferenceStore = (*FileStore)(nil)
	_ HistoryStore    = (*FileStore)(nil)
)

// NewFileStore creates a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() (fileDocument, error) {
	var doc fileDocument
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("file store: read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("file store: parse %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) write(doc fileDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file store: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file store: replace %s: %w", s.path, err)
	}
	return nil
}

// LoadPreferences implements PreferenceStore.
func (s *FileStore) LoadPreferences(_ context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	return doc.Preferences, err
}

// SavePreferences implements PreferenceStore.
func (s *FileStore) SavePreferences(_ context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Preferences = p
	return s.write(doc)
}

// LoadHistory implements HistoryStore.
func (s *FileStore) LoadHistory(_ context.Context, key HistoryKey) ([]transcript.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.History[key.String()], nil
}

// SaveHistory implements HistoryStore.
func (s *FileStore) SaveHistory(_ context.Context, key HistoryKey, entries []transcript.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if doc.History == nil {
		doc.History = make(map[string][]transcript.Entry)
	}
	doc.History[key.String()] = entries
	return s.write(doc)
}

// Check reports whether the file can be read, for readiness probes.
func (s *FileStore) Check(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.load(); err != nil {
		return false, err
	}
	return true, nil
}
