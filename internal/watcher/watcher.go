// Package watcher keeps the catalog in sync with library directories as
// files appear on disk, without waiting for the next browse request.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/cinedex/cinedex/internal/browse"
	"github.com/cinedex/cinedex/internal/paths"
)

const debounceInterval = 2 * time.Second

// Watcher follows filesystem events below the configured library roots and
// upserts newly created video files. Removals are ignored: records are only
// pruned by explicit delete operations.
type Watcher struct {
	translator *paths.Translator
	catalog    browse.ScanCatalog
	watcher    *fsnotify.Watcher
	log        hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]time.Time
}

func New(translator *paths.Translator, catalog browse.ScanCatalog, log hclog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		translator: translator,
		catalog:    catalog,
		watcher:    fsw,
		log:        log.Named("watcher"),
		ctx:        ctx,
		cancel:     cancel,
		pending:    make(map[string]time.Time),
	}, nil
}

// Start registers every library root (including existing subdirectories)
// and begins processing events.
func (w *Watcher) Start() error {
	for _, name := range w.translator.RootNames() {
		root, err := w.translator.ResolveRoot(name)
		if err != nil {
			return err
		}
		if err := w.watchTree(root); err != nil {
			w.log.Warn("failed to watch library root", "root", root, "error", err)
		}
	}

	w.wg.Add(1)
	go w.loop()

	w.log.Info("library watcher started", "roots", len(w.translator.RootNames()))
	return nil
}

// Stop shuts the watcher down and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.cancel()
	w.watcher.Close()
	w.wg.Wait()
}

// watchTree registers dir and all its subdirectories. fsnotify watches are
// not recursive.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.log.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				w.log.Warn("failed to add watch", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(debounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
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
			w.log.Error("file watcher error", "error", err)
		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// rename source, or already gone again
		return
	}

	if info.IsDir() {
		if err := w.watchTree(event.Name); err != nil {
			w.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
		}
		return
	}
	if !w.translator.IsVideoFile(event.Name) {
		return
	}

	// Debounce: a file being copied in fires many events; act once the
	// writes settle.
	w.mu.Lock()
	w.pending[paths.Normalize(event.Name)] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flushPending() {
	cutoff := time.Now().Add(-debounceInterval)

	w.mu.Lock()
	var ready []string
	for path, seen := range w.pending {
		if seen.Before(cutoff) {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.ingest(path)
	}
}

func (w *Watcher) ingest(path string) {
	info, err := os.Stat(path)
	if err != nil {
		w.log.Debug("watched file vanished before ingest", "path", path)
		return
	}

	_, err = w.catalog.UpsertOnScan(
		w.translator.ToHostPath(path),
		filepath.Base(path),
		float64(info.ModTime().UnixNano())/1e9,
		float64(info.Size()),
	)
	if err != nil {
		w.log.Error("failed to ingest watched file", "path", path, "error", err)
		return
	}
	w.log.Info("ingested new video file", "path", path)
}
