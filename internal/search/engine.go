// Package search composes the embedding provider, vector store,
// highlight store, and ranking engine into the query path.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/quarrydocs/quarry/internal/embed"
	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/highlight"
	"github.com/quarrydocs/quarry/internal/rank"
	"github.com/quarrydocs/quarry/internal/store"
)

const (
	// DefaultLimit is used when the caller passes limit <= 0.
	DefaultLimit = 10

	// DefaultFloor is the default minimum similarity.
	DefaultFloor = 0.3

	// overfetchFactor widens the vector query so deduplication does not
	// leave the caller short of limit results.
	overfetchFactor = 3
)

// HighlightLister is the subset of the highlight store the engine needs.
type HighlightLister interface {
	List(ctx context.Context) ([]highlight.Highlight, error)
}

// Engine answers search queries.
type Engine struct {
	embedder   embed.Embedder
	vectors    store.VectorStore
	highlights HighlightLister
	weights    rank.Weights
}

// NewEngine creates a search engine. highlights may be nil when
// highlight merging is disabled.
func NewEngine(embedder embed.Embedder, vectors store.VectorStore, highlights HighlightLister, weights rank.Weights) *Engine {
	return &Engine{
		embedder:   embedder,
		vectors:    vectors,
		highlights: highlights,
		weights:    weights,
	}
}

// Search embeds the query once, collects vector candidates and
// highlight matches at or above floor, and returns the ranked result
// list. An empty index with matching highlights yields highlights only;
// nothing matching yields an empty slice.
func (e *Engine) Search(ctx context.Context, query string, limit int, floor float64) ([]rank.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, qerrors.New(qerrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	start := time.Now()

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := e.vectors.Query(ctx, queryVec, limit*overfetchFactor, floor)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	highlightCandidates, err := e.matchHighlights(ctx, queryVec)
	if err != nil {
		return nil, err
	}

	results := rank.Rank(query, candidates, highlightCandidates, e.weights, floor, limit)

	slog.Debug("search_completed",
		slog.Int("candidates", len(candidates)),
		slog.Int("highlights", len(highlightCandidates)),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)))

	return results, nil
}

// matchHighlights scores every stored highlight against the query
// vector using the embedding captured at save time.
func (e *Engine) matchHighlights(ctx context.Context, queryVec []float32) ([]rank.HighlightCandidate, error) {
	if e.highlights == nil {
		return nil, nil
	}

	stored, err := e.highlights.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}

	candidates := make([]rank.HighlightCandidate, 0, len(stored))
	for _, h := range stored {
		if len(h.Vector) != len(queryVec) {
			// Captured under a different embedding model; skip rather
			// than fail the whole query.
			slog.Warn("highlight_dimension_mismatch",
				slog.String("highlight_id", h.ID),
				slog.Int("expected", len(queryVec)),
				slog.Int("got", len(h.Vector)))
			continue
		}
		candidates = append(candidates, rank.HighlightCandidate{
			Highlight:  h,
			Similarity: cosineSimilarity(queryVec, h.Vector),
		})
	}
	return candidates, nil
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
