// Package logstore implements the Durable Log Store (spec §4.1): an
// append-only sequence of Raft log entries on stable storage, one entry per
// line in "term,command" form, grounded on the teacher's WriteLogs/ReadLogs
// pair (internal/node/node.go in blastbao-leifdb) but adapted from a single
// protobuf-marshaled blob to the line-oriented textual format spec §6
// requires ("one entry per line; each line is \"term,command\"").
package logstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattwhoisj/raftpay/internal/logging"
)

// Entry is one record in a Raft log: a term and an opaque command string.
// Spec requires the command contain no newline or comma, since those are the
// line and field delimiters of the durable format.
type Entry struct {
	Term    int64
	Command string
}

// ErrCorrupt is returned when a log file exists but a line cannot be parsed.
// Per spec §4.1 ("A corrupt line must fail loudly"), this is never
// swallowed: the node must refuse to serve until an operator intervenes.
var ErrCorrupt = fmt.Errorf("logstore: corrupt log line")

// Store is a single Raft node's durable log, exclusively owned by that node.
type Store struct {
	path string
	log  logging.Sink

	mu      sync.Mutex
	entries []Entry
	modTime time.Time
	loaded  bool
}

// New constructs a Store backed by path. The file is not read until the
// first operation, matching the teacher's lazy ReadLogs-on-demand pattern.
func New(path string, log logging.Sink) *Store {
	return &Store{path: path, log: log}
}

// Append atomically appends a single entry to the end of the log. The
// entry is guaranteed visible to subsequent LoadAll calls, including across
// process restart.
func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	next := append(append([]Entry{}, s.entries...), entry)
	if err := s.writeAllLocked(next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// LoadAll returns the ordered sequence of all persisted entries. An absent
// file is equivalent to an empty log, not an error.
func (s *Store) LoadAll() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// ReplaceAll atomically replaces the file contents with entries, used to
// repair a divergent follower suffix.
func (s *Store) ReplaceAll(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	if err := s.writeAllLocked(cp); err != nil {
		return err
	}
	s.entries = cp
	s.loaded = true
	return nil
}

// TruncateSuffix is equivalent to ReplaceAll(entries[0:index)).
func (s *Store) TruncateSuffix(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	if index < 0 {
		index = 0
	}
	if index > len(s.entries) {
		index = len(s.entries)
	}
	cp := make([]Entry, index)
	copy(cp, s.entries[:index])
	if err := s.writeAllLocked(cp); err != nil {
		return err
	}
	s.entries = cp
	return nil
}

// Delete removes the log file; a subsequent LoadAll returns an empty log.
// Used administratively to exercise follower log-repair (spec §4.4).
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("logstore: deleting %s: %w", s.path, err)
	}
	s.entries = nil
	s.loaded = true
	s.modTime = time.Time{}
	return nil
}

// Refresh reloads in-memory state from disk if the file's modification time
// has changed since the last load. This is the sole concession to
// out-of-process mutation: it lets a follower observe an operator deleting
// its log file out from under it.
func (s *Store) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

func (s *Store) loadLocked() error {
	if !s.loaded {
		return s.refreshLocked()
	}
	return nil
}

func (s *Store) refreshLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.entries = nil
			s.modTime = time.Time{}
			s.loaded = true
			return nil
		}
		return fmt.Errorf("logstore: stat %s: %w", s.path, err)
	}
	if s.loaded && !info.ModTime().After(s.modTime) {
		return nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("logstore: opening %s: %w", s.path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			s.log.Fatal().Err(err).Str("path", s.path).Int("line", lineNo).
				Msg("corrupt log line, refusing to serve")
			return fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, s.path, lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("logstore: reading %s: %w", s.path, err)
	}

	s.entries = entries
	s.modTime = info.ModTime()
	s.loaded = true
	return nil
}

func parseLine(line string) (Entry, error) {
	idx := strings.IndexByte(line, ',')
	if idx < 0 {
		return Entry{}, fmt.Errorf("missing comma separator")
	}
	term, err := strconv.ParseInt(line[:idx], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing term: %w", err)
	}
	return Entry{Term: term, Command: line[idx+1:]}, nil
}

func formatLine(e Entry) string {
	return strconv.FormatInt(e.Term, 10) + "," + e.Command
}

// writeAllLocked performs a write-to-temp-then-rename atomic replace of the
// whole file, matching the durable write discipline spec §4.2 requires for
// the account store and that we apply here for consistency.
func (s *Store) writeAllLocked(entries []Entry) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logstore: creating dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".logstore-*.tmp")
	if err != nil {
		return fmt.Errorf("logstore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, e := range entries {
		if _, err := w.WriteString(formatLine(e) + "\n"); err != nil {
			tmp.Close()
			return fmt.Errorf("logstore: writing temp file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("logstore: flushing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("logstore: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("logstore: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("logstore: renaming into place: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return nil
}
