package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/quarrydocs/quarry/internal/watcher"
)

// DefaultRescanInterval is how often the runner re-walks the roots to
// catch anything the watcher missed.
const DefaultRescanInterval = 5 * time.Minute

// Runner ties the watcher to the coordinator: debounced event batches
// and periodic rescans both feed the same pipeline.
type Runner struct {
	coordinator *Coordinator
	watch       *watcher.FSWatcher
	roots       []string
	interval    time.Duration

	// onDirty is called after any pass that changed the vector store,
	// typically to persist the index to disk.
	onDirty func() error
}

// NewRunner creates a runner. watch may be nil to disable event-driven
// indexing (periodic rescans still run). onDirty may be nil.
func NewRunner(coordinator *Coordinator, watch *watcher.FSWatcher, roots []string, interval time.Duration, onDirty func() error) *Runner {
	if interval <= 0 {
		interval = DefaultRescanInterval
	}
	return &Runner{
		coordinator: coordinator,
		watch:       watch,
		roots:       roots,
		interval:    interval,
		onDirty:     onDirty,
	}
}

// Run performs an initial scan and then services watcher batches and
// the rescan ticker until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.scanAndProcess(ctx); err != nil {
		return err
	}

	if r.watch != nil {
		go func() {
			if err := r.watch.Start(ctx, r.roots...); err != nil && ctx.Err() == nil {
				slog.Error("watcher_stopped", slog.String("error", err.Error()))
			}
		}()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var events <-chan []watcher.Event
	var errors <-chan error
	if r.watch != nil {
		events = r.watch.Events()
		errors = r.watch.Errors()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := r.coordinator.HandleEvents(ctx, batch); err != nil {
				return err
			}
			if err := r.process(ctx); err != nil {
				return err
			}

		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))

		case <-ticker.C:
			if err := r.scanAndProcess(ctx); err != nil {
				return err
			}
		}
	}
}

// scanAndProcess walks the roots, drains the pending queue, and
// persists if anything changed.
func (r *Runner) scanAndProcess(ctx context.Context) error {
	scan, err := r.coordinator.Scan(ctx, r.roots)
	if err != nil {
		return err
	}

	proc, err := r.coordinator.ProcessPending(ctx)
	if err != nil {
		return err
	}

	if scan.Removed > 0 || proc.Indexed > 0 {
		r.persist()
	}
	return nil
}

// process drains the pending queue after an event batch. An event
// batch implies the store may have changed (including deletions), so
// it always persists.
func (r *Runner) process(ctx context.Context) error {
	if _, err := r.coordinator.ProcessPending(ctx); err != nil {
		return err
	}
	r.persist()
	return nil
}

func (r *Runner) persist() {
	if r.onDirty == nil {
		return
	}
	if err := r.onDirty(); err != nil {
		slog.Warn("persist_failed", slog.String("error", err.Error()))
	}
}
