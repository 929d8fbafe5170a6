// Package accountstore implements the Durable Account Store (spec §4.2): a
// single scalar balance with atomic replace semantics, initialized from a
// caller-supplied value on first start. Grounded on the teacher's
// WriteTerm/ReadTerm write-to-temp-then-marshal pattern
// (internal/node/node.go), adapted from a protobuf blob to a small JSON
// record, and fronted by an immutable radix tree cache the way the teacher
// fronts its key-value store with github.com/hashicorp/go-immutable-radix.
package accountstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
)

type record struct {
	Balance float64 `json:"balance"`
}

// Store owns a single account's durable balance, exclusively. cacheKey is
// fixed per Store instance; the radix tree exists so that repeated Read
// calls within a process do not need to re-stat/re-open the file, matching
// the teacher's use of an immutable radix tree as the live index in front
// of its own durable store.
type Store struct {
	path      string
	cacheKey  []byte
	initial   float64
	mu        sync.Mutex
	cache     *iradix.Tree
	bootstrap bool
}

// New constructs a Store backed by path. If the file does not yet exist,
// the first Read (or explicit EnsureInitialized) creates it with
// initialBalance.
func New(path string, initialBalance float64) *Store {
	return &Store{
		path:     path,
		cacheKey: []byte("balance"),
		initial:  initialBalance,
		cache:    iradix.New(),
	}
}

// EnsureInitialized creates the durable file with the configured initial
// balance if absent. Idempotent.
func (s *Store) EnsureInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureInitializedLocked()
}

func (s *Store) ensureInitializedLocked() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("accountstore: stat %s: %w", s.path, err)
	}
	return s.writeLocked(s.initial)
}

// Read returns the current durable balance, initializing the file with the
// configured initial balance on first access if it is absent.
func (s *Store) Read() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tree, ok := s.cache.Get(s.cacheKey); ok {
		return tree.(float64), nil
	}

	if err := s.ensureInitializedLocked(); err != nil {
		return 0, err
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("accountstore: reading %s: %w", s.path, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0, fmt.Errorf("accountstore: corrupt balance file %s: %w", s.path, err)
	}
	s.cache, _, _ = s.cache.Insert(s.cacheKey, rec.Balance)
	return rec.Balance, nil
}

// Write atomically replaces the durable balance with newBalance.
func (s *Store) Write(newBalance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(newBalance)
}

func (s *Store) writeLocked(balance float64) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("accountstore: creating dir %s: %w", dir, err)
	}
	out, err := json.Marshal(record{Balance: balance})
	if err != nil {
		return fmt.Errorf("accountstore: marshaling balance: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".accountstore-*.tmp")
	if err != nil {
		return fmt.Errorf("accountstore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("accountstore: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("accountstore: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("accountstore: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("accountstore: renaming into place: %w", err)
	}
	s.cache, _, _ = s.cache.Insert(s.cacheKey, balance)
	return nil
}
