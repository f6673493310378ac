// Package watch monitors the input directory and hands newly dropped audit
// logs to the pipeline as they arrive.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors one directory for new audit log files. Files are only
// reported once their size has settled, since producers upload large .gz
// files in chunks.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration

	mu         sync.Mutex
	processing map[string]bool

	// OnFile is invoked for each settled file. Errors are routed to
	// OnError; the watcher keeps running either way.
	OnFile func(path string) error

	// OnError receives watch and callback failures.
	OnError func(path string, err error)
}

// New creates a watcher for dir.
func New(dir string, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		watcher:    fsWatcher,
		dir:        dir,
		debounce:   debounce,
		processing: make(map[string]bool),
	}, nil
}

// isAuditLog reports whether name looks like an input file.
func isAuditLog(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".log") || strings.HasSuffix(lower, ".log.gz")
}

// Run blocks handling events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	timers := make(map[string]*time.Timer)
	var timerMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isAuditLog(event.Name) {
				continue
			}

			path := event.Name
			timerMu.Lock()
			if timer, exists := timers[path]; exists {
				timer.Stop()
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				w.handle(ctx, path)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError("", err)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	if w.processing[path] {
		w.mu.Unlock()
		return
	}
	w.processing[path] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.processing, path)
		w.mu.Unlock()
	}()

	if !w.settled(path) {
		// Still growing; the next write event reschedules it.
		return
	}

	if w.OnFile != nil {
		if err := w.OnFile(path); err != nil && w.OnError != nil {
			w.OnError(path, err)
		}
	}
}

// settled reports whether the file size is stable across a short interval.
func (w *Watcher) settled(path string) bool {
	before, err := os.Stat(path)
	if err != nil {
		return false
	}
	time.Sleep(200 * time.Millisecond)
	after, err := os.Stat(path)
	if err != nil {
		return false
	}
	return before.Size() == after.Size()
}

// Scan reports the audit logs already present in the directory, for the
// catch-up pass before watching starts.
func (w *Watcher) Scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && isAuditLog(e.Name()) {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	return paths, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
