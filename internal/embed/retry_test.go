package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// flakyEmbedder fails a fixed number of times before delegating.
type flakyEmbedder struct {
	inner    Embedder
	failures int
	fail     error
	calls    int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.fail
	}
	return f.inner.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.fail
	}
	return f.inner.EmbedBatch(ctx, texts)
}

func (f *flakyEmbedder) Dimensions() int                    { return f.inner.Dimensions() }
func (f *flakyEmbedder) ModelName() string                  { return f.inner.ModelName() }
func (f *flakyEmbedder) Available(ctx context.Context) bool { return true }
func (f *flakyEmbedder) Close() error                       { return f.inner.Close() }

func fastRetry() qerrors.RetryConfig {
	return qerrors.RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_RecoversFromTransientFailure(t *testing.T) {
	// Given a provider that fails twice with a retryable error
	flaky := &flakyEmbedder{
		inner:    NewStaticEmbedder(),
		failures: 2,
		fail:     qerrors.ProviderError("connection refused", nil),
	}
	embedder := WithRetry(flaky, fastRetry())

	// When embedding
	vec, err := embedder.Embed(context.Background(), "hello world")

	// Then the call eventually succeeds
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	assert.Equal(t, 3, flaky.calls)
}

func TestWithRetry_PermanentErrorNotRetried(t *testing.T) {
	// Given a provider that always rejects oversized input
	flaky := &flakyEmbedder{
		inner:    NewStaticEmbedder(),
		failures: 100,
		fail:     qerrors.New(qerrors.ErrCodeInputTooLong, "input too long", nil),
	}
	embedder := WithRetry(flaky, fastRetry())

	// When embedding
	_, err := embedder.Embed(context.Background(), "long text")

	// Then the permanent error comes back after a single attempt
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeInputTooLong, qerrors.GetCode(err))
	assert.Equal(t, 1, flaky.calls)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	flaky := &flakyEmbedder{
		inner:    NewStaticEmbedder(),
		failures: 100,
		fail:     qerrors.ProviderError("connection refused", nil),
	}
	embedder := WithRetry(flaky, fastRetry())

	_, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})

	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeProviderUnavailable, qerrors.GetCode(err))
	assert.Equal(t, 4, flaky.calls)
}
