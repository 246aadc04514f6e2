package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher watches document folders recursively using fsnotify and
// emits debounced event batches.
type FSWatcher struct {
	fsWatcher      *fsnotify.Watcher
	debouncer      *Debouncer
	events         chan []Event
	errors         chan error
	stopCh         chan struct{}
	roots          []string
	opts           Options
	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// NewFSWatcher creates a watcher with the given options.
func NewFSWatcher(opts Options) (*FSWatcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &FSWatcher{
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []Event, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}, nil
}

// Start begins watching the given roots recursively. It blocks until
// the context is cancelled or Stop is called.
func (w *FSWatcher) Start(ctx context.Context, roots ...string) error {
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve absolute path: %w", err)
		}
		w.mu.Lock()
		w.roots = append(w.roots, abs)
		w.mu.Unlock()

		if err := w.addRecursive(abs); err != nil {
			return fmt.Errorf("watch %s: %w", abs, err)
		}
	}

	go w.forwardDebouncedEvents(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleFsnotifyEvent converts and filters a raw fsnotify event.
func (w *FSWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if w.shouldIgnore(event.Name) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories must be added to the watch set
		if isDir {
			_ = w.fsWatcher.Add(event.Name)
			return
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod and unknown ops are not interesting
		return
	}

	if isDir {
		return
	}

	w.debouncer.Add(Event{
		Path:      event.Name,
		Op:        op,
		Timestamp: time.Now(),
	})
}

// forwardDebouncedEvents forwards debounced batches to the output
// channel.
func (w *FSWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			w.emitEvents(events)
		}
	}
}

// addRecursive adds all directories under root to the fsnotify watch
// set.
func (w *FSWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip directories we cannot access
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(filepath.Base(path)) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// shouldIgnore filters out hidden paths and anything the configured
// ignore hook rejects.
func (w *FSWatcher) shouldIgnore(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if isHidden(part) {
			return true
		}
	}
	if w.opts.ShouldIgnore != nil {
		return w.opts.ShouldIgnore(path)
	}
	return false
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// emitEvents sends a batch to the output channel without blocking the
// event loop.
func (w *FSWatcher) emitEvents(events []Event) {
	// Hold the lock across the send so Stop cannot close the channel
	// between the check and the send.
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}

	select {
	case w.events <- events:
	default:
		count := w.droppedBatches.Add(1)
		slog.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

// emitError sends an error without blocking.
func (w *FSWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// DroppedBatches returns the number of batches dropped due to buffer
// overflow.
func (w *FSWatcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}

// Events returns the channel of debounced event batches.
func (w *FSWatcher) Events() <-chan []Event {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher and releases resources. Safe to call multiple
// times.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}

	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	_ = w.fsWatcher.Close()
	close(w.events)
	close(w.errors)
	return nil
}
