package embed

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	a, err := e.Embed(context.Background(), "machine learning basics")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "machine learning basics")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestStaticEmbedder_FixedDimensions(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "pasta recipes with tomato sauce")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestStaticEmbedder_SimilarTextMoreSimilar(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	ctx := context.Background()
	ml, err := e.Embed(ctx, "machine learning basics")
	require.NoError(t, err)
	mlQuery, err := e.Embed(ctx, "machine learning")
	require.NoError(t, err)
	cooking, err := e.Embed(ctx, "pasta recipes")
	require.NoError(t, err)

	assert.Greater(t, dot(mlQuery, ml), dot(mlQuery, cooking))
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_InputTooLong(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	_, err := e.Embed(context.Background(), strings.Repeat("x", MaxInputChars+1))
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeInputTooLong, qerrors.GetCode(err))
	assert.False(t, qerrors.IsRetryable(err))
}

func TestStaticEmbedder_EmbedBatchMatchesEmbed(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	ctx := context.Background()
	texts := []string{"alpha", "beta", "gamma"}
	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticEmbedder_ClosedFails(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
