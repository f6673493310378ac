// Package checkpoint tracks which input files have already been ingested,
// so re-running over a directory never double-loads a file.
package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	ierrors "github.com/auditflow/auditflow/pkg/errors"
)

// Entry records one completed ingestion.
type Entry struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Blocks      int       `json:"blocks"`
	Records     int       `json:"records"`
	Fallbacks   int       `json:"fallbacks"`
	CompletedAt time.Time `json:"completed_at"`
}

// Ledger is the processed-file store.
type Ledger interface {
	// IsProcessed reports whether path was already ingested.
	IsProcessed(ctx context.Context, path string) (bool, error)

	// Mark records a completed ingestion. Marking the same path again
	// replaces the entry.
	Mark(ctx context.Context, e Entry) error

	// List returns all entries.
	List(ctx context.Context) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}

// FileLock is a held exclusive claim on one input file.
type FileLock interface {
	// Release drops the claim.
	Release(ctx context.Context) error
}

// FileLocker is implemented by ledger backends that can claim a file
// exclusively, for deployments where several ingesters share one input
// directory.
type FileLocker interface {
	AcquireLock(ctx context.Context, path string, ttl time.Duration) (FileLock, error)
}

// FileLedger keeps the ledger in one JSON file. Writes go through a temp
// file and rename so a crash never leaves a torn ledger.
type FileLedger struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// NewFileLedger loads (or initializes) the ledger at path.
func NewFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "read ledger").
			WithContext("path", path)
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "ledger corrupt").
			WithContext("path", path)
	}
	return l, nil
}

// IsProcessed implements Ledger.
func (l *FileLedger) IsProcessed(ctx context.Context, path string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[path]
	return ok, nil
}

// Mark implements Ledger.
func (l *FileLedger) Mark(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[e.Path] = e
	return l.save()
}

// List implements Ledger.
func (l *FileLedger) List(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	return out, nil
}

// save writes the ledger atomically. Callers hold the mutex.
func (l *FileLedger) save() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "marshal ledger")
	}

	tempPath := l.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "write ledger").
			WithContext("path", tempPath)
	}
	if err := os.Rename(tempPath, l.path); err != nil {
		return ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "replace ledger").
			WithContext("path", l.path)
	}
	return nil
}

// Close implements Ledger.
func (l *FileLedger) Close() error { return nil }
