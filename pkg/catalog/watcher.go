// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jllopis/arbiter/pkg/core"
)

// Watcher keeps a catalog in sync with action-set files on disk. Rapid
// successive writes to one file are collapsed into a single reload.
type Watcher struct {
	catalog  *Catalog
	loader   *Loader
	paths    []string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	emitter  core.EventEmitter

	mu      sync.Mutex
	pending map[string]time.Time
	owners  map[string]string
	files   map[string]struct{}
	dirs    map[string]struct{}
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a file must be quiet before it is reloaded.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithEmitter sets the emitter notified after each reload.
func WithEmitter(em core.EventEmitter) WatcherOption {
	return func(w *Watcher) {
		if em != nil {
			w.emitter = em
		}
	}
}

// NewWatcher creates a watcher over paths, which may name files or
// directories. A nil loader uses the default JSON/YAML loader.
func NewWatcher(cat *Catalog, loader *Loader, paths []string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if loader == nil {
		loader = defaultLoader
	}
	w := &Watcher{
		catalog:  cat,
		loader:   loader,
		paths:    append([]string(nil), paths...),
		fsw:      fsw,
		debounce: 250 * time.Millisecond,
		logger:   slog.Default(),
		emitter:  core.NoopEventEmitter{},
		pending:  make(map[string]time.Time),
		owners:   make(map[string]string),
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// LoadAll performs the initial load of every watched path into the catalog.
func (w *Watcher) LoadAll(ctx context.Context) error {
	for _, p := range w.paths {
		files, err := w.loader.expand(p)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := w.reload(ctx, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}
		dir := abs
		if !info.IsDir() {
			dir = filepath.Dir(abs)
			w.files[abs] = struct{}{}
		} else {
			w.dirs[abs] = struct{}{}
		}
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.logger.InfoContext(ctx, "catalog.watch.start", slog.String("path", abs))
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.fsw.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.fsw.Close(); err != nil {
		w.logger.Error("catalog.watch.close", slog.String("error", err.Error()))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.ErrorContext(ctx, "catalog.watch.error", slog.String("error", err.Error()))
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	path, err := filepath.Abs(event.Name)
	if err != nil || !w.interested(path) {
		return
	}
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) interested(path string) bool {
	if _, ok := w.files[path]; ok {
		return true
	}
	if _, ok := w.dirs[filepath.Dir(path)]; ok {
		return w.loader.Handles(path)
	}
	return false
}

func (w *Watcher) processSettled(ctx context.Context) {
	now := time.Now()
	var ready []string
	w.mu.Lock()
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		if err := w.reload(ctx, path); err != nil {
			w.logger.WarnContext(ctx, "catalog.reload.failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// reload loads path into the catalog, or drops the set it owned if the
// file is gone.
func (w *Watcher) reload(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		w.mu.Lock()
		name, ok := w.owners[abs]
		delete(w.owners, abs)
		w.mu.Unlock()
		if ok && w.catalog.Remove(name) {
			w.logger.InfoContext(ctx, "catalog.set.removed", slog.String("action_set", name), slog.String("path", abs))
			w.emit(ctx, name, abs, "removed")
		}
		return nil
	}
	set, err := w.loader.LoadFile(abs)
	if err != nil {
		return err
	}
	if err := w.catalog.Upsert(*set); err != nil {
		return err
	}
	w.mu.Lock()
	prev, had := w.owners[abs]
	w.owners[abs] = set.Name
	w.mu.Unlock()
	if had && prev != set.Name {
		w.catalog.Remove(prev)
	}
	w.logger.InfoContext(ctx, "catalog.set.loaded",
		slog.String("action_set", set.Name),
		slog.String("version", set.Version),
		slog.Int("templates", len(set.Actions)),
		slog.String("path", abs),
	)
	w.emit(ctx, set.Name, abs, "loaded")
	return nil
}

func (w *Watcher) emit(ctx context.Context, set, path, action string) {
	w.emitter.Emit(ctx, core.NewEvent(core.EventCatalogReloaded, "", "", map[string]any{
		"action_set": set,
		"path":       path,
		"action":     action,
		"revision":   w.catalog.Revision(),
	}))
}
