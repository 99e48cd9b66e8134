// Package watch emits explorer scan requests when a workspace's build
// manifests change. It runs only in environments with a bus: each debounce
// window of manifest changes becomes one scan-request event, and the
// explorer consumer does the actual scanning.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/forgeline/forgeline/bus"
	"github.com/forgeline/forgeline/event"
)

// manifestNames are the file basenames whose changes mean the workspace
// stack may have changed. Ordinary source edits never trigger a rescan.
var manifestNames = map[string]bool{
	"go.mod":             true,
	"package.json":       true,
	"tsconfig.json":      true,
	"pyproject.toml":     true,
	"requirements.txt":   true,
	"Cargo.toml":         true,
	"pom.xml":            true,
	"build.gradle":       true,
	"composer.json":      true,
	"Gemfile":            true,
	"Dockerfile":         true,
	"docker-compose.yml": true,
	"Makefile":           true,
	"Taskfile.yml":       true,
}

// skippedDirs are never watched.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
}

// Config configures a Watcher.
type Config struct {
	// Root is the workspace directory to watch.
	Root string

	// DebounceDelay is how long to collect changes before emitting one scan
	// request for the batch.
	DebounceDelay time.Duration
}

// Watcher converts debounced manifest changes into explorer scan requests.
type Watcher struct {
	cfg       Config
	publisher bus.Publisher
	fsw       *fsnotify.Watcher
	logger    *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{} // workspace-relative manifest paths

	done chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher creates a watcher over the workspace root.
func NewWatcher(cfg Config, publisher bus.Publisher, opts ...Option) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("watch root is required")
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 2 * time.Second
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		cfg:       cfg,
		publisher: publisher,
		fsw:       fsw,
		logger:    slog.Default(),
		pending:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds recursive directory watches and begins processing in the
// background until the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.cfg.Root); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Root, err)
	}

	go w.run(ctx)

	w.logger.Info("Workspace watcher started",
		"root", w.cfg.Root,
		"debounce", w.cfg.DebounceDelay)
	return nil
}

// Stop closes the underlying watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

// addWatchesRecursive watches every directory under root except dependency
// caches and hidden directories.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}

		base := filepath.Base(path)
		if path != root && (skippedDirs[base] || strings.HasPrefix(base, ".")) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// run drains fsnotify events with debouncing until the context is canceled
// or the watcher is closed.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent accumulates manifest changes and picks up newly created
// directories.
func (w *Watcher) handleFSEvent(ev fsnotify.Event) {
	base := filepath.Base(ev.Name)

	if !manifestNames[base] {
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				w.watchNewDirectory(ev.Name)
			}
		}
		return
	}

	rel, err := filepath.Rel(w.cfg.Root, ev.Name)
	if err != nil {
		rel = base
	}

	w.pendingMu.Lock()
	w.pending[rel] = struct{}{}
	w.pendingMu.Unlock()

	w.logger.Debug("Manifest change detected", "path", rel, "op", ev.Op.String())
}

func (w *Watcher) watchNewDirectory(path string) {
	base := filepath.Base(path)
	if skippedDirs[base] || strings.HasPrefix(base, ".") {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
	}
}

// flushPending publishes one scan request covering the accumulated changes.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	changed := make([]string, 0, len(w.pending))
	for path := range w.pending {
		changed = append(changed, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	sort.Strings(changed)

	scanID := uuid.New().String()
	request := event.NewExplorerScanRequest(scanID, event.NewTraceID(), &event.ExplorerScanRequestPayload{
		RepoPath: w.cfg.Root,
		Reason:   "manifest change: " + strings.Join(changed, ", "),
	})

	if !w.publisher.Publish(ctx, request) {
		w.logger.Warn("Failed to publish scan request",
			"root", w.cfg.Root,
			"changed", changed)
		return
	}

	w.logger.Info("Scan request published",
		"scan_id", scanID,
		"changed", changed)
}
