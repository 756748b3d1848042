package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"simplecoder/internal/logging"
)

// Watcher keeps the index current while the agent runs, re-indexing files
// as they change on disk. Events are debounced so a burst of saves
// triggers one re-index.
type Watcher struct {
	indexer *Indexer
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
	running bool

	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher over the indexer's workspace.
func NewWatcher(indexer *Indexer) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		indexer:  indexer,
		watcher:  fsw,
		pending:  make(map[string]time.Time),
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addRecursive(w.indexer.workspace); err != nil {
		return err
	}

	go w.run(ctx)
	logging.RAG("File watcher started")
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryRAG).Error("Error closing watcher: %v", err)
	}
	logging.RAG("File watcher stopped")
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), "_") && path != root {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryRAG).Error("Watcher error: %v", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.indexer.workspace, event.Name)
	if err != nil {
		return
	}

	// Newly created directories need their own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !skipDirs[info.Name()] {
				w.watcher.Add(event.Name)
			}
			return
		}
	}

	if _, ok := w.indexer.chunkers[filepath.Ext(rel)]; !ok {
		return
	}

	w.mu.Lock()
	w.pending[rel] = time.Now()
	w.mu.Unlock()
}

// flush re-indexes files whose last event is older than the debounce window.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	var due []string
	now := time.Now()
	for rel, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			due = append(due, rel)
			delete(w.pending, rel)
		}
	}
	w.mu.Unlock()

	for _, rel := range due {
		logging.RAGDebug("Re-indexing changed file: %s", rel)
		if err := w.indexer.IndexFile(ctx, rel); err != nil {
			logging.Get(logging.CategoryRAG).Error("Failed to re-index %s: %v", rel, err)
		}
	}
}
