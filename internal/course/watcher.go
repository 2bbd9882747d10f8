package course

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-imports course files when they change on disk. Edits are
// debounced so a file being written in several chunks imports once.
type Watcher struct {
	importer *Importer
	dir      string
	debounce time.Duration
	logger   *log.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]time.Time
}

// NewWatcher creates a watcher over a catalog directory. A
// non-positive debounce defaults to 500ms.
func NewWatcher(imp *Importer, dir string, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	if imp == nil {
		return nil, fmt.Errorf("importer is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("catalog directory is required")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[course] ", log.LstdFlags)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		importer: imp,
		dir:      dir,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]time.Time),
	}, nil
}

// Start begins watching. It returns immediately; Stop shuts the
// watcher down.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.wg.Add(2)
	go w.watchFileEvents()
	go w.processChangeQueue()

	w.logger.Printf("Watching %s for course changes", w.dir)
	return nil
}

// Stop shuts down the watcher and waits for in-flight imports.
func (w *Watcher) Stop() error {
	w.cancel()
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) watchFileEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Removed files keep their catalog rows; only new
			// content triggers a re-import.
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".toml" {
				continue
			}
			w.queueChange(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) queueChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending[path] = time.Now()
}

func (w *Watcher) processChangeQueue() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processPendingChanges()
		}
	}
}

// processPendingChanges imports files whose last event is older than
// the debounce interval. Newer entries stay queued for the next tick.
func (w *Watcher) processPendingChanges() {
	w.pendingMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range w.pending {
		if now.Sub(queuedAt) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		if _, err := w.importer.ImportFile(w.ctx, path); err != nil {
			w.logger.Printf("Warning: failed to import %s: %v", filepath.Base(path), err)
		}
	}
}
