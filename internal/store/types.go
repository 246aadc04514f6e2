// Package store provides vector storage and similarity search for
// document chunks.
package store

import (
	"context"
	"time"
)

// Chunk is one embedded fragment of a source document.
type Chunk struct {
	ID        string    // stable content-derived identifier
	Source    string    // path of the originating document
	Seq       int       // position within the document, 0-based
	Text      string    // chunk text
	Start     int       // rune offset of the first character in the document
	End       int       // rune offset one past the last character
	Ext       string    // lowercase file extension of the source, with dot
	CreatedAt time.Time // when the chunk was indexed
	Vector    []float32 // embedding, unit-normalized
}

// Candidate is a chunk returned by a similarity query.
type Candidate struct {
	Chunk      *Chunk
	Similarity float64 // cosine similarity in [-1, 1]
}

// VectorStore stores embedded chunks and answers nearest-neighbor queries.
type VectorStore interface {
	// Insert replaces all chunks for source with the given set.
	Insert(ctx context.Context, source string, chunks []Chunk) error

	// DeleteBySource removes every chunk belonging to source.
	// Removing an unknown source is a no-op.
	DeleteBySource(ctx context.Context, source string) error

	// Query returns up to k candidates with similarity >= floor,
	// ordered by descending similarity. Equal similarities are
	// ordered by most recent CreatedAt first.
	Query(ctx context.Context, vector []float32, k int, floor float64) ([]Candidate, error)

	// CountBySource returns the number of chunks stored for source.
	CountBySource(source string) int

	// Count returns the total number of stored chunks.
	Count() int

	// Save persists the store to path atomically.
	Save(path string) error

	// Load restores the store from path.
	Load(path string) error

	Close() error
}
