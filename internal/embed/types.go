// Package embed generates vector embeddings for document chunks and
// queries. Providers: a local Ollama server, the OpenAI API, and an
// offline hash-based static embedder. All providers return unit-length
// vectors of a fixed dimension.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is how many texts go to a provider per request.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single request regardless of configuration.
	MaxBatchSize = 256

	// DefaultTimeout applies to provider HTTP calls.
	DefaultTimeout = 60 * time.Second

	// MaxInputChars is the largest single text a provider accepts.
	// Longer inputs fail with ERR_303_INPUT_TOO_LONG; the chunk is
	// skipped, not retried.
	MaxInputChars = 32_000

	// StaticDimensions is the static embedder's vector width.
	StaticDimensions = 256
)

// Embedder turns text into fixed-width vectors. Implementations must
// report a stable Dimensions for the life of the instance.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors pass through
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
