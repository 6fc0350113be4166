// Package storage persists tracker state as a single JSON document.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klcheung/alertledger/internal/models"
)

// Document is the persisted state layout: one file holding every order and
// the full message journal. The position index is not persisted; it is
// derived by scanning orders for status == open on reload.
type Document struct {
	LastUpdated time.Time                `json:"last_updated"`
	Orders      map[string]*models.Order `json:"orders"`
	Messages    []*models.JournalEntry   `json:"messages"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Orders:   make(map[string]*models.Order),
		Messages: make([]*models.JournalEntry, 0),
	}
}

// Interface is the persistence contract. Implementations must be safe for
// concurrent use.
type Interface interface {
	Load() (*Document, error)
	Save(doc *Document) error
	Clear() error
}

// JSONStorage stores the document as pretty-printed JSON with atomic
// temp-file-then-rename writes.
type JSONStorage struct {
	mu   sync.RWMutex
	path string
}

// Ensure JSONStorage implements Interface at compile time.
var _ Interface = (*JSONStorage)(nil)

// NewJSONStorage creates a JSON storage backed by the given file path,
// creating the parent directory when necessary.
func NewJSONStorage(path string) (*JSONStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}
	return &JSONStorage{path: path}, nil
}

// Load reads the persisted document. A missing file is not an error; it
// yields an empty document.
func (s *JSONStorage) Load() (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	if doc.Orders == nil {
		doc.Orders = make(map[string]*models.Order)
	}
	return doc, nil
}

// Save writes the document atomically: marshal, write to a temp file,
// rename over the target.
func (s *JSONStorage) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.LastUpdated.IsZero() {
		doc.LastUpdated = time.Now()
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tracker state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// Clear removes the persisted file. Removing a file that does not exist is
// not an error.
func (s *JSONStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", s.path, err)
	}
	return nil
}
