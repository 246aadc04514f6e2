package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/quarrydocs/quarry/internal/chunker"
	"github.com/quarrydocs/quarry/internal/config"
	"github.com/quarrydocs/quarry/internal/embed"
	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/extract"
	"github.com/quarrydocs/quarry/internal/highlight"
	"github.com/quarrydocs/quarry/internal/ignore"
	"github.com/quarrydocs/quarry/internal/index"
	"github.com/quarrydocs/quarry/internal/lockfile"
	"github.com/quarrydocs/quarry/internal/manifest"
	"github.com/quarrydocs/quarry/internal/rank"
	"github.com/quarrydocs/quarry/internal/search"
	"github.com/quarrydocs/quarry/internal/store"
)

// app holds the assembled collaborators shared by the CLI commands.
type app struct {
	cfg         *config.Config
	embedder    embed.Embedder
	vectors     *store.HNSWStore
	manifest    *manifest.Manifest
	highlights  *highlight.Store
	coordinator *index.Coordinator
	engine      *search.Engine
	lock        *lockfile.Lock
	ignore      *ignore.Matcher
}

// newApp opens the stores under the data directory and wires the
// pipeline. With exclusive set, the data-dir lock is taken first;
// commands that write the index must hold it.
func newApp(ctx context.Context, cfg *config.Config, exclusive bool) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	a := &app{cfg: cfg}

	if exclusive {
		a.lock = lockfile.New(cfg.LockPath())
		acquired, err := a.lock.TryAcquire()
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, fmt.Errorf("another quarry process holds %s", cfg.LockPath())
		}
	}

	embedder, err := embed.New(embed.FactoryConfig{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		OllamaHost: cfg.Embeddings.OllamaHost,
		Timeout:    cfg.Embeddings.TimeoutDuration(),
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedder = embedder

	// A stored index built with a different embedding dimension cannot
	// be queried; refuse to start rather than corrupt it.
	if stored, err := store.ReadStoredDimensions(cfg.IndexPath()); err == nil && stored > 0 {
		if stored != embedder.Dimensions() {
			a.Close()
			return nil, qerrors.New(qerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("stored index has dimension %d but provider %s produces %d; reindex or switch provider",
					stored, embedder.ModelName(), embedder.Dimensions()), nil)
		}
	}

	vectors, err := store.NewHNSWStore(embedder.Dimensions())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.vectors = vectors

	if _, err := os.Stat(cfg.IndexPath()); err == nil {
		if err := vectors.Load(cfg.IndexPath()); err != nil {
			a.Close()
			return nil, err
		}
	}

	mf, err := manifest.New(cfg.ManifestPath())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.manifest = mf

	highlights, err := highlight.New(cfg.HighlightsPath(), embedder)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.highlights = highlights

	ch, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		a.Close()
		return nil, err
	}

	matcher, err := ignore.Load(cfg.Roots...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ignore = matcher

	coordinator, err := index.New(ctx, index.Config{
		Manifest:   mf,
		Vectors:    vectors,
		Embedder:   embedder,
		Chunker:    ch,
		Extractors: extract.NewRegistry(
			extract.NewTextExtractor(),
			extract.NewMarkdownExtractor(),
			extract.NewCommandExtractor([]string{".pdf"}, "pdftotext", "-q", "{}", "-"),
			extract.NewCommandExtractor([]string{".docx"}, "pandoc", "-t", "plain"),
		),
		Workers: cfg.Indexer.Workers,
		Ignore:  matcher,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.coordinator = coordinator

	a.engine = search.NewEngine(embedder, vectors, highlights, rank.DefaultWeights())

	return a, nil
}

// shouldIgnore adapts the ignore matcher to watcher paths, which are
// relative to a configured root or absolute.
func (a *app) shouldIgnore(path string) bool {
	if a.ignore == nil || a.ignore.Empty() {
		return false
	}
	for _, root := range a.cfg.Roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if a.ignore.Match(rel, false) {
			return true
		}
	}
	return false
}

// persistVectors saves the vector index under the data dir.
func (a *app) persistVectors() error {
	if err := a.vectors.Save(a.cfg.IndexPath()); err != nil {
		slog.Error("index_save_failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Close releases stores and the data-dir lock in reverse order.
func (a *app) Close() {
	if a.highlights != nil {
		_ = a.highlights.Close()
	}
	if a.manifest != nil {
		_ = a.manifest.Close()
	}
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.lock != nil {
		_ = a.lock.Release()
	}
}
