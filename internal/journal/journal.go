// Package journal implements the Durable Transaction Journal (spec §4.6): a
// single record capturing a coordinator's most recent transaction and its
// status, consulted on crash recovery. Grounded on the same
// write-to-temp-then-rename discipline the teacher uses for its term file
// (internal/node/node.go WriteTerm/ReadTerm), and on original_source's
// transaction_state.json shape ({"transaction": ..., "status": ...}).
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// Status is the outcome recorded for the journaled transaction.
type Status string

const (
	StatusPrepared  Status = "prepared"
	StatusCommitted Status = "committed"
	StatusAborted   Status = "aborted"
)

// Record is a journaled transaction alongside its status. Coordinator owns
// the richer Transaction type (internal/coordinator); the journal only
// needs enough to replay a decision, so it stores the coordinator's type
// as raw JSON in the Transaction field to avoid an import cycle.
type Record struct {
	Transaction json.RawMessage `json:"transaction"`
	Status      Status          `json:"status"`
}

// Store owns a single coordinator's durable journal, exclusively.
type Store struct {
	path     string
	cacheKey []byte

	mu    sync.Mutex
	cache *iradix.Tree
}

// New constructs a Store backed by path.
func New(path string) *Store {
	return &Store{path: path, cacheKey: []byte("journal"), cache: iradix.New()}
}

// Save overwrites the journal with record, atomically.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("journal: creating dir %s: %w", dir, err)
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshaling record: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".journal-*.tmp")
	if err != nil {
		return fmt.Errorf("journal: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("journal: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("journal: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("journal: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("journal: renaming into place: %w", err)
	}
	s.cache, _, _ = s.cache.Insert(s.cacheKey, rec)
	return nil
}

// Load returns the last-saved record, or (nil, nil) if no journal has ever
// been written (spec: "created on first coordinator start if absent").
func (s *Store) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(s.cacheKey); ok {
		rec := v.(Record)
		return &rec, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: reading %s: %w", s.path, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("journal: corrupt journal %s: %w", s.path, err)
	}
	s.cache, _, _ = s.cache.Insert(s.cacheKey, rec)
	return &rec, nil
}
