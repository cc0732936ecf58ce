// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jllopis/arbiter/pkg/errors"
)

// Watcher reloads a config file, and its profile file, when either changes
// on disk. Reloads that fail to load or validate keep the previous Config.
type Watcher struct {
	path     string
	profile  string
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	files    map[string]struct{}

	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)
	pendingAt time.Time
	running   bool

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long file events must settle before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithProfile merges the named profile file on every load.
func WithProfile(profile string) WatcherOption {
	return func(w *Watcher) { w.profile = profile }
}

// NewWatcher loads path once. Call Start to begin watching.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New(errors.CodeInvalidInput, "config watcher needs a file", nil)
	}
	w := &Watcher{
		path:     path,
		debounce: 100 * time.Millisecond,
		logger:   slog.Default(),
		files:    make(map[string]struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	cfg, err := LoadWithProfile(path, w.profile)
	if err != nil {
		return nil, err
	}
	w.config = cfg

	for _, p := range []string{path, profilePath(path, w.profile)} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "resolve config path", err).WithContext("path", p)
		}
		w.files[abs] = struct{}{}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "create file watcher", err)
	}
	w.fsw = fsw
	return w, nil
}

// OnChange registers a callback run after each successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start watches the directories holding the config files. Editors that
// save by rename are seen because the directory, not the file, is watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs := make(map[string]struct{})
	for f := range w.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			return errors.New(errors.CodeInternal, "watch config directory", err).WithContext("dir", dir)
		}
	}
	w.logger.InfoContext(ctx, "config.watch.start", slog.String("path", w.path))
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the loop to exit. It is safe to call
// more than once, and without Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		close(w.stopCh)
		if running {
			<-w.doneCh
		}
		_ = w.fsw.Close()
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(max(w.debounce/4, 10*time.Millisecond))
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
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err == nil {
				if _, ok := w.files[abs]; ok {
					w.mu.Lock()
					w.pendingAt = time.Now()
					w.mu.Unlock()
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.ErrorContext(ctx, "config.watch.error", slog.String("error", err.Error()))
		case <-ticker.C:
			w.mu.Lock()
			settled := !w.pendingAt.IsZero() && time.Since(w.pendingAt) >= w.debounce
			if settled {
				w.pendingAt = time.Time{}
			}
			w.mu.Unlock()
			if settled {
				w.reload(ctx)
			}
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := LoadWithProfile(w.path, w.profile)
	if err != nil {
		w.logger.ErrorContext(ctx, "config.reload.failed",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}

	w.mu.Lock()
	prev := w.config
	w.config = cfg
	listeners := append([]func(*Config){}, w.listeners...)
	w.mu.Unlock()

	changed := Changed(prev, cfg)
	w.logger.InfoContext(ctx, "config.reload.applied",
		slog.String("path", w.path),
		slog.Any("sections", changed),
	)
	if len(changed) == 0 {
		return
	}
	for _, fn := range listeners {
		fn(cfg)
	}
}

// Changed names the top-level sections that differ between a and b.
func Changed(a, b *Config) []string {
	if a == nil || b == nil {
		return []string{"log", "telemetry", "engine", "pipeline", "tracker", "catalog", "audit"}
	}
	sections := []struct {
		name string
		a, b any
	}{
		{"log", a.Log, b.Log},
		{"telemetry", a.Telemetry, b.Telemetry},
		{"engine", a.Engine, b.Engine},
		{"pipeline", a.Pipeline, b.Pipeline},
		{"tracker", a.Tracker, b.Tracker},
		{"catalog", a.Catalog, b.Catalog},
		{"audit", a.Audit, b.Audit},
	}
	var out []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.a, s.b) {
			out = append(out, s.name)
		}
	}
	return out
}

// ReloadableConfig is a thread-safe holder for the current Config, for
// components that read settings on each use.
type ReloadableConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewReloadableConfig creates a new reloadable config wrapper.
func NewReloadableConfig(cfg *Config) *ReloadableConfig {
	return &ReloadableConfig{config: cfg}
}

// Get returns the current configuration.
func (r *ReloadableConfig) Get() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Update atomically replaces the configuration.
func (r *ReloadableConfig) Update(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
}

// Engine returns the engine section.
func (r *ReloadableConfig) Engine() EngineConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Engine
}

// Tracker returns the tracker section.
func (r *ReloadableConfig) Tracker() TrackerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Tracker
}

// Pipeline returns the pipeline section.
func (r *ReloadableConfig) Pipeline() PipelineConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Pipeline
}
