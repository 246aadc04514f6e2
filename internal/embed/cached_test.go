package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts how many texts reach it.
type countingEmbedder struct {
	*StaticEmbedder
	mu    sync.Mutex
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls += len(texts)
	c.mu.Unlock()
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 16)
	defer cached.Close()

	ctx := context.Background()
	first, err := cached.Embed(ctx, "repeated text")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "repeated text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.count())
}

func TestCachedEmbedder_BatchOnlyMissesReachInner(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 16)
	defer cached.Close()

	ctx := context.Background()
	_, err := cached.Embed(ctx, "warm")
	require.NoError(t, err)
	require.Equal(t, 1, inner.count())

	results, err := cached.EmbedBatch(ctx, []string{"warm", "cold", "warm"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Only "cold" was a miss.
	assert.Equal(t, 2, inner.count())
	assert.Equal(t, results[0], results[2])
}

func TestCachedEmbedder_BatchResultsMatchUncached(t *testing.T) {
	inner := NewStaticEmbedder()
	cached := NewCachedEmbedder(NewStaticEmbedder(), 16)
	defer cached.Close()
	defer inner.Close()

	ctx := context.Background()
	texts := []string{"one", "two", "three"}
	got, err := cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	want, err := inner.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 0)
	defer cached.Close()

	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, "static-fnv-256", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
}
