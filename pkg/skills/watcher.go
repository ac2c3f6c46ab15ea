// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultDebounce coalesces bursts of file events into one rescan.
	DefaultDebounce = 250 * time.Millisecond
	// DefaultPollInterval is used when native notifications are unavailable.
	DefaultPollInterval = 2 * time.Second
)

// Watcher rescans a Catalog when its directory changes.
type Watcher struct {
	catalog  *Catalog
	debounce time.Duration
	interval time.Duration
	poll     bool
	logger   *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for the event stream to go
// quiet before rescanning.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithPollInterval sets the polling interval of the fallback watcher.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPolling forces the polling watcher.
func WithPolling() WatcherOption {
	return func(w *Watcher) { w.poll = true }
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for catalog.
func NewWatcher(catalog *Catalog, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		catalog:  catalog,
		debounce: DefaultDebounce,
		interval: DefaultPollInterval,
		logger:   catalog.logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is done. It uses native file notifications and falls
// back to polling when they cannot be set up, e.g. the directory does not
// exist yet.
func (w *Watcher) Run(ctx context.Context) error {
	if w.poll {
		return w.runPolling(ctx)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.WarnContext(ctx, "skills.watch.fallback", slog.String("error", err.Error()))
		return w.runPolling(ctx)
	}
	defer fw.Close()

	if err := w.addDirs(fw); err != nil {
		w.logger.WarnContext(ctx, "skills.watch.fallback",
			slog.String("dir", w.catalog.Dir()),
			slog.String("error", err.Error()),
		)
		return w.runPolling(ctx)
	}
	w.logger.InfoContext(ctx, "skills.watch.start", slog.String("dir", w.catalog.Dir()), slog.String("mode", "notify"))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.track(fw, ev)
			if !w.drain(ctx, fw) {
				return nil
			}
			w.catalog.Scan(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "skills.watch.error", slog.String("error", err.Error()))
		}
	}
}

// drain consumes events until none arrived for the debounce window. It
// returns false when the watcher must stop.
func (w *Watcher) drain(ctx context.Context, fw *fsnotify.Watcher) bool {
	timer := time.NewTimer(w.debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-fw.Events:
			if !ok {
				return false
			}
			w.track(fw, ev)
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return false
			}
			w.logger.WarnContext(ctx, "skills.watch.error", slog.String("error", err.Error()))
		case <-timer.C:
			return true
		}
	}
}

// addDirs watches the root and each immediate subdirectory, where the
// manifests live.
func (w *Watcher) addDirs(fw *fsnotify.Watcher) error {
	root := w.catalog.Dir()
	if err := fw.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = fw.Add(filepath.Join(root, e.Name()))
		}
	}
	return nil
}

// track starts watching skill directories created after startup.
func (w *Watcher) track(fw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) || filepath.Dir(ev.Name) != filepath.Clean(w.catalog.Dir()) {
		return
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		_ = fw.Add(ev.Name)
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	w.logger.InfoContext(ctx, "skills.watch.start",
		slog.String("dir", w.catalog.Dir()),
		slog.String("mode", "poll"),
		slog.Duration("interval", w.interval),
	)
	last := fingerprint(w.catalog.Dir())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current := fingerprint(w.catalog.Dir())
			if current != last {
				last = current
				w.catalog.Scan(ctx)
			}
		}
	}
}

// fingerprint summarises the manifests under dir by path, size and
// modification time.
func fingerprint(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "missing"
	}
	var parts []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, e.Name(), ManifestFile))
		if err != nil {
			continue
		}
		parts = append(parts, e.Name()+"|"+strconv.FormatInt(info.Size(), 10)+"|"+strconv.FormatInt(info.ModTime().UnixNano(), 10))
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}
