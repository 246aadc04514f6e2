package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarrydocs/quarry/internal/chunker"
	"github.com/quarrydocs/quarry/internal/embed"
	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/extract"
	"github.com/quarrydocs/quarry/internal/fingerprint"
	"github.com/quarrydocs/quarry/internal/ignore"
	"github.com/quarrydocs/quarry/internal/manifest"
	"github.com/quarrydocs/quarry/internal/store"
	"github.com/quarrydocs/quarry/internal/watcher"
)

// DefaultWorkers bounds the indexing worker pool.
const DefaultWorkers = 4

// Config wires the coordinator's collaborators.
type Config struct {
	Manifest   *manifest.Manifest
	Vectors    store.VectorStore
	Embedder   embed.Embedder
	Chunker    *chunker.Chunker
	Extractors *extract.Registry
	Workers    int

	// Ignore filters paths out of scans. Nil ignores nothing beyond
	// hidden directories.
	Ignore *ignore.Matcher
}

// fileRecord is the in-memory state for one tracked file.
type fileRecord struct {
	state         State
	fp            fingerprint.Fingerprint
	lastError     string
	retryable     bool
	lastIndexedAt time.Time
}

// FileStatus is the externally visible state of a tracked file.
type FileStatus struct {
	State         State     `json:"state"`
	LastError     string    `json:"last_error,omitempty"`
	LastIndexedAt time.Time `json:"last_indexed_at,omitzero"`
}

// ScanSummary reports what a scan found.
type ScanSummary struct {
	Discovered int `json:"discovered"`
	Changed    int `json:"changed"`
	Unchanged  int `json:"unchanged"`
	Removed    int `json:"removed"`
	Errors     int `json:"errors"`
}

// ProcessSummary reports what a processing pass did.
type ProcessSummary struct {
	Indexed       int `json:"indexed"`
	Failed        int `json:"failed"`
	ChunksStored  int `json:"chunks_stored"`
	ChunksSkipped int `json:"chunks_skipped"`
}

// Coordinator owns the file table and drives files through the
// indexing pipeline. All table mutations happen under a single mutex;
// extraction and embedding run outside it.
type Coordinator struct {
	mu    sync.Mutex
	files map[string]*fileRecord

	manifest   *manifest.Manifest
	vectors    store.VectorStore
	embedder   embed.Embedder
	chunker    *chunker.Chunker
	extractors *extract.Registry
	workers    int
	ignore     *ignore.Matcher
}

// New creates a coordinator and hydrates the file table from the
// manifest. Files left in the Indexing state by a crash are requeued.
func New(ctx context.Context, cfg Config) (*Coordinator, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	c := &Coordinator{
		files:      make(map[string]*fileRecord),
		manifest:   cfg.Manifest,
		vectors:    cfg.Vectors,
		embedder:   cfg.Embedder,
		chunker:    cfg.Chunker,
		extractors: cfg.Extractors,
		workers:    cfg.Workers,
		ignore:     cfg.Ignore,
	}

	entries, err := c.manifest.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate from manifest: %w", err)
	}

	for _, e := range entries {
		state := State(e.State)
		if state == StateIndexing {
			state = StatePending
		}
		c.files[e.Path] = &fileRecord{
			state: state,
			fp: fingerprint.Fingerprint{
				Size:        e.Size,
				ModTimeUnix: e.ModTimeUnix,
				ContentHash: contentHashFromString(e.Fingerprint),
			},
			lastError:     e.LastError,
			retryable:     e.Retryable,
			lastIndexedAt: e.LastIndexedAt,
		}
	}

	slog.Info("coordinator_hydrated", slog.Int("tracked_files", len(c.files)))
	return c, nil
}

// ignored matches path, relative to root, against the ignore rules.
func (c *Coordinator) ignored(root, path string, isDir bool) bool {
	if c.ignore == nil || c.ignore.Empty() {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return c.ignore.Match(rel, isDir)
}

// contentHashFromString recovers the hash portion of a persisted
// "size:mtime:hash" fingerprint string.
func contentHashFromString(s string) string {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}

// Scan walks the roots, fingerprints supported files, and diffs them
// against the table. Unseen files become Pending, changed files are
// requeued, and files that vanished since the last scan are purged.
// Failed files are also requeued so an explicit scan retries them.
func (c *Coordinator) Scan(ctx context.Context, roots []string) (ScanSummary, error) {
	var summary ScanSummary
	seen := make(map[string]bool)

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				summary.Errors++
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				if path != root && c.ignored(root, path, true) {
					return filepath.SkipDir
				}
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if !c.extractors.Supported(ext) {
				return nil
			}
			if c.ignored(root, path, false) {
				return nil
			}

			seen[path] = true
			c.diffFile(ctx, path, &summary)
			return nil
		})
		if err != nil {
			return summary, fmt.Errorf("scan %s: %w", root, err)
		}
	}

	// Previously known files missing from this scan are gone: purge
	// their chunks and drop the record.
	c.mu.Lock()
	var missing []string
	for path := range c.files {
		if !seen[path] {
			missing = append(missing, path)
		}
	}
	c.mu.Unlock()

	for _, path := range missing {
		if err := c.OnFileDeleted(ctx, path); err != nil {
			slog.Warn("purge_missing_file_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			summary.Errors++
			continue
		}
		summary.Removed++
	}

	slog.Info("scan_completed",
		slog.Int("discovered", summary.Discovered),
		slog.Int("changed", summary.Changed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("removed", summary.Removed),
		slog.Int("errors", summary.Errors))

	return summary, ctx.Err()
}

// diffFile fingerprints one file and updates the table.
func (c *Coordinator) diffFile(ctx context.Context, path string, summary *ScanSummary) {
	fp, err := fingerprint.Compute(path)
	if err != nil {
		summary.Errors++
		slog.Warn("fingerprint_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, known := c.files[path]
	switch {
	case !known:
		c.files[path] = &fileRecord{state: StatePending, fp: fp}
		c.persistLocked(ctx, path)
		summary.Discovered++

	case rec.fp.Equal(fp) && rec.state == StateIndexed:
		summary.Unchanged++

	case rec.fp.Equal(fp) && rec.state == StateFailed && rec.retryable:
		// Transient failures (provider outage) retry on the next scan;
		// permanent ones stay Failed until the fingerprint changes
		rec.state = StatePending
		c.persistLocked(ctx, path)
		summary.Changed++

	case rec.fp.Equal(fp):
		summary.Unchanged++

	case CanTransition(rec.state, StatePending):
		rec.state = StatePending
		rec.fp = fp
		c.persistLocked(ctx, path)
		summary.Changed++

	default:
		// Currently indexing; the change will be picked up next scan
		summary.Unchanged++
	}
}

// persistLocked mirrors a record into the manifest. Caller holds the
// table lock.
func (c *Coordinator) persistLocked(ctx context.Context, path string) {
	rec := c.files[path]
	err := c.manifest.Upsert(ctx, manifest.Entry{
		Path:          path,
		Size:          rec.fp.Size,
		ModTimeUnix:   rec.fp.ModTimeUnix,
		Fingerprint:   rec.fp.String(),
		State:         string(rec.state),
		LastError:     rec.lastError,
		Retryable:     rec.retryable,
		LastIndexedAt: rec.lastIndexedAt,
	})
	if err != nil {
		slog.Warn("manifest_write_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// workResult is what a worker reports back over the results channel.
type workResult struct {
	path    string
	fp      fingerprint.Fingerprint
	stored  int
	skipped int
	err     error
}

// ProcessPending runs every Pending file through the pipeline using a
// bounded worker pool. Workers report over a channel; a single consumer
// applies state transitions, so failures stay isolated to their file.
func (c *Coordinator) ProcessPending(ctx context.Context) (ProcessSummary, error) {
	c.mu.Lock()
	var queue []string
	for path, rec := range c.files {
		if rec.state == StateDiscovered {
			rec.state = StatePending
		}
		if rec.state == StatePending && CanTransition(rec.state, StateIndexing) {
			rec.state = StateIndexing
			queue = append(queue, path)
		}
	}
	c.mu.Unlock()

	if len(queue) == 0 {
		return ProcessSummary{}, nil
	}

	results := make(chan workResult, len(queue))

	var summary ProcessSummary
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for res := range results {
			c.applyResult(ctx, res, &summary)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, c.workers)

	for _, path := range queue {
		path := path
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				results <- workResult{path: path, err: gctx.Err()}
				return nil
			}

			fp, stored, skipped, err := c.processFile(gctx, path)
			results <- workResult{path: path, fp: fp, stored: stored, skipped: skipped, err: err}
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	<-consumerDone

	slog.Info("process_pending_completed",
		slog.Int("indexed", summary.Indexed),
		slog.Int("failed", summary.Failed),
		slog.Int("chunks_stored", summary.ChunksStored),
		slog.Int("chunks_skipped", summary.ChunksSkipped))

	return summary, ctx.Err()
}

// applyResult moves one file out of Indexing based on its worker's
// report.
func (c *Coordinator) applyResult(ctx context.Context, res workResult, summary *ProcessSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.files[res.path]
	if !ok {
		// Deleted while indexing; nothing to record
		return
	}

	if res.err != nil {
		if CanTransition(rec.state, StateFailed) {
			rec.state = StateFailed
			rec.lastError = res.err.Error()
			rec.retryable = qerrors.IsRetryable(res.err)
			c.persistLocked(ctx, res.path)
		}
		summary.Failed++
		slog.Warn("index_file_failed",
			slog.String("path", res.path),
			slog.String("error", res.err.Error()))
		return
	}

	if CanTransition(rec.state, StateIndexed) {
		rec.state = StateIndexed
		rec.fp = res.fp
		rec.lastError = ""
		rec.retryable = false
		rec.lastIndexedAt = time.Now().UTC()
		c.persistLocked(ctx, res.path)
	}
	summary.Indexed++
	summary.ChunksStored += res.stored
	summary.ChunksSkipped += res.skipped
}

// processFile runs the extract → chunk → embed → store pipeline for one
// file. Prior chunks are only replaced after embedding succeeds, so a
// failure leaves the previous version searchable.
func (c *Coordinator) processFile(ctx context.Context, path string) (fingerprint.Fingerprint, int, int, error) {
	fp, err := fingerprint.Compute(path)
	if err != nil {
		return fp, 0, 0, fmt.Errorf("fingerprint: %w", err)
	}

	text, meta, err := c.extractors.Extract(path)
	if err != nil {
		return fp, 0, 0, fmt.Errorf("extract: %w", err)
	}

	spans := c.chunker.Split(text)

	// Oversized chunks would be rejected by the provider; skip them and
	// index the rest.
	skipped := 0
	kept := spans[:0]
	for _, span := range spans {
		if len(span.Text) > embed.MaxInputChars {
			skipped++
			continue
		}
		kept = append(kept, span)
	}
	spans = kept

	if len(spans) == 0 {
		// Nothing embeddable; clear any stale chunks from a prior
		// version.
		if err := c.vectors.DeleteBySource(ctx, path); err != nil {
			return fp, 0, skipped, fmt.Errorf("purge chunks: %w", err)
		}
		return fp, 0, skipped, nil
	}

	now := time.Now().UTC()
	chunks := make([]store.Chunk, 0, len(spans))
	for batchStart := 0; batchStart < len(spans); batchStart += embed.DefaultBatchSize {
		batchEnd := batchStart + embed.DefaultBatchSize
		if batchEnd > len(spans) {
			batchEnd = len(spans)
		}
		batch := spans[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, span := range batch {
			texts[i] = span.Text
		}

		vectors, batchSkipped, err := c.embedSpans(ctx, texts)
		if err != nil {
			return fp, 0, skipped, fmt.Errorf("embed: %w", err)
		}
		skipped += batchSkipped

		for i, span := range batch {
			if vectors[i] == nil {
				continue
			}
			chunks = append(chunks, store.Chunk{
				ID:        fingerprint.HashText(fmt.Sprintf("%s:%d:%s", path, span.Seq, span.Text)),
				Source:    path,
				Seq:       span.Seq,
				Text:      span.Text,
				Start:     span.Start,
				End:       span.End,
				Ext:       meta.Ext,
				CreatedAt: now,
				Vector:    vectors[i],
			})
		}
	}

	if err := c.vectors.Insert(ctx, path, chunks); err != nil {
		return fp, 0, skipped, fmt.Errorf("store chunks: %w", err)
	}

	return fp, len(chunks), skipped, nil
}

// embedSpans embeds a batch of texts. Providers may enforce a tighter
// input limit than the character pre-filter; when one rejects the whole
// batch as too long, fall back to one call per text so only the
// offending chunks are skipped. Skipped slots come back nil.
func (c *Coordinator) embedSpans(ctx context.Context, texts []string) ([][]float32, int, error) {
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		return vectors, 0, nil
	}
	if qerrors.GetCode(err) != qerrors.ErrCodeInputTooLong {
		return nil, 0, err
	}

	vectors = make([][]float32, len(texts))
	skipped := 0
	for i, text := range texts {
		v, err := c.embedder.Embed(ctx, text)
		if err != nil {
			if qerrors.GetCode(err) == qerrors.ErrCodeInputTooLong {
				skipped++
				continue
			}
			return nil, 0, err
		}
		vectors[i] = v
	}
	return vectors, skipped, nil
}

// OnFileDeleted purges a file's chunks and drops its record.
func (c *Coordinator) OnFileDeleted(ctx context.Context, path string) error {
	if err := c.vectors.DeleteBySource(ctx, path); err != nil {
		return fmt.Errorf("purge chunks: %w", err)
	}
	if err := c.manifest.Delete(ctx, path); err != nil {
		return fmt.Errorf("drop manifest entry: %w", err)
	}

	c.mu.Lock()
	delete(c.files, path)
	c.mu.Unlock()

	slog.Debug("file_removed", slog.String("path", path))
	return nil
}

// HandleEvents applies a debounced event batch to the table. Create and
// modify events queue changed files; delete and rename events purge
// them. Callers run ProcessPending afterwards to drain the queue.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.Event) error {
	for _, ev := range events {
		ext := strings.ToLower(filepath.Ext(ev.Path))
		if !c.extractors.Supported(ext) {
			continue
		}

		switch ev.Op {
		case watcher.OpDelete, watcher.OpRename:
			c.mu.Lock()
			_, known := c.files[ev.Path]
			c.mu.Unlock()
			if !known {
				continue
			}
			if err := c.OnFileDeleted(ctx, ev.Path); err != nil {
				slog.Warn("handle_delete_failed",
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
			}

		case watcher.OpCreate, watcher.OpModify:
			var summary ScanSummary
			c.diffFile(ctx, ev.Path, &summary)
		}
	}
	return ctx.Err()
}

// Status returns the state and last error for every tracked file.
func (c *Coordinator) Status() map[string]FileStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := make(map[string]FileStatus, len(c.files))
	for path, rec := range c.files {
		status[path] = FileStatus{
			State:         rec.state,
			LastError:     rec.lastError,
			LastIndexedAt: rec.lastIndexedAt,
		}
	}
	return status
}

// Counts returns the number of tracked files per state.
func (c *Coordinator) Counts() map[State]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[State]int)
	for _, rec := range c.files {
		counts[rec.state]++
	}
	return counts
}
