package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydocs/quarry/internal/embed"
	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/highlight"
	"github.com/quarrydocs/quarry/internal/rank"
	"github.com/quarrydocs/quarry/internal/store"
)

type testEnv struct {
	embedder   embed.Embedder
	vectors    *store.HNSWStore
	highlights *highlight.Store
	engine     *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	embedder := embed.NewStaticEmbedder()
	vectors, err := store.NewHNSWStore(embed.StaticDimensions)
	require.NoError(t, err)
	highlights, err := highlight.New("", embedder)
	require.NoError(t, err)

	t.Cleanup(func() {
		vectors.Close()
		highlights.Close()
		embedder.Close()
	})

	return &testEnv{
		embedder:   embedder,
		vectors:    vectors,
		highlights: highlights,
		engine:     NewEngine(embedder, vectors, highlights, rank.DefaultWeights()),
	}
}

func (env *testEnv) indexFile(t *testing.T, source, text string) {
	t.Helper()

	vec, err := env.embedder.Embed(context.Background(), text)
	require.NoError(t, err)

	err = env.vectors.Insert(context.Background(), source, []store.Chunk{{
		ID:        source + "-0",
		Source:    source,
		Seq:       0,
		Text:      text,
		End:       len([]rune(text)),
		Ext:       ".txt",
		CreatedAt: time.Now(),
		Vector:    vec,
	}})
	require.NoError(t, err)
}

func TestEngine_EmptyQueryRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Search(context.Background(), "  \n", 5, 0)
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeQueryEmpty, qerrors.GetCode(err))
}

func TestEngine_EmptyIndexAndNoHighlights(t *testing.T) {
	env := newTestEnv(t)

	results, err := env.engine.Search(context.Background(), "anything", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_EmptyIndexWithMatchingHighlights(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.highlights.Save(ctx, "machine learning is the future", "reader", nil, "", true)
	require.NoError(t, err)

	results, err := env.engine.Search(ctx, "machine learning", 5, 0.1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsHighlight)
}

func TestEngine_ThreeFileScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.indexFile(t, "ml.txt", "machine learning basics")
	env.indexFile(t, "cooking.txt", "pasta recipes")

	_, err := env.highlights.Save(ctx, "machine learning is the future", "reader", nil, "", true)
	require.NoError(t, err)

	results, err := env.engine.Search(ctx, "machine learning", 5, 0.1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 2)

	// Priority highlight first, ml.txt next; cooking.txt either absent
	// (below floor) or trailing with the lowest score.
	assert.True(t, results[0].IsHighlight)
	assert.Equal(t, "ml.txt", results[1].Source)
	for _, r := range results[2:] {
		assert.Equal(t, "cooking.txt", r.Source)
		assert.Less(t, r.FinalScore, results[1].FinalScore)
	}
}

func TestEngine_DefaultLimitApplied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		env.indexFile(t, string(rune('a'+i))+".txt", "common shared topic sentence number "+string(rune('a'+i)))
	}

	results, err := env.engine.Search(ctx, "common shared topic", 0, -1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), DefaultLimit)
	assert.NotEmpty(t, results)
}

func TestEngine_FloorExcludesWeakMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.indexFile(t, "ml.txt", "machine learning basics")
	env.indexFile(t, "cooking.txt", "pasta recipes")

	results, err := env.engine.Search(ctx, "machine learning", 5, 0.5)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, 0.5)
	}
}
