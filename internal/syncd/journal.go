package syncd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal entry operations.
const (
	OpStart = "start"
	OpDrain = "drain"
	OpSweep = "sweep"
	OpStop  = "stop"
)

// Default filenames for the daemon's state files, created next to the
// database.
const (
	DefaultJournalFile = "caddied.journal"
	DefaultLockFile    = "caddied.lock"
)

// JournalPath returns the journal location for a data directory.
func JournalPath(dataDir string) string {
	return filepath.Join(dataDir, DefaultJournalFile)
}

// LockPath returns the lock file location for a data directory.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, DefaultLockFile)
}

// Entry is one journal record: the outcome of a drain, sweep, or
// lifecycle transition. Fields are flat so the file greps well.
type Entry struct {
	Time    time.Time `json:"time"`
	Op      string    `json:"op"`
	Trigger string    `json:"trigger,omitempty"`
	Synced  int       `json:"synced,omitempty"`
	Failed  int       `json:"failed,omitempty"`
	Swept   int64     `json:"swept,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Journal is an append-only JSONL operation log. The daemon appends
// outcomes as they happen; `caddie daemon status` reads the file
// independently, so a held Journal never blocks readers.
type Journal struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// OpenJournal opens the journal at path for appending, creating it if
// needed.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &Journal{path: path, f: f}, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Append writes one entry as a JSON line. A zero Time is stamped with
// the current time.
func (j *Journal) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// ReadFrom reads entries starting at a byte offset and returns them
// with the offset where the next read should resume. Passing the
// returned offset back in yields only entries appended since, so a
// caller can tail the journal without rereading it.
//
// A missing journal reads as empty. Malformed lines are skipped; a
// trailing line with no newline is an append in progress and is left
// for the next read.
func ReadFrom(path string, offset int64) ([]Entry, int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, offset, nil
	}
	if err != nil {
		return nil, offset, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("failed to seek journal: %w", err)
	}

	var entries []Entry
	next := offset
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, next, fmt.Errorf("failed to read journal: %w", err)
		}
		next += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, e)
	}

	return entries, next, nil
}

// Tail returns the last n entries of the journal at path. A
// non-positive n returns every entry.
func Tail(path string, n int) ([]Entry, error) {
	entries, _, err := ReadFrom(path, 0)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
