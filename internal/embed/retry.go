package embed

import (
	"context"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// RetryingEmbedder retries transient provider failures with exponential
// backoff. Permanent errors (input too long, dimension mismatch) pass
// through untouched.
type RetryingEmbedder struct {
	inner Embedder
	cfg   qerrors.RetryConfig
}

var _ Embedder = (*RetryingEmbedder)(nil)

// WithRetry wraps an embedder with retry behavior. A zero MaxRetries in
// cfg falls back to the default policy.
func WithRetry(inner Embedder, cfg qerrors.RetryConfig) *RetryingEmbedder {
	if cfg.MaxRetries == 0 {
		cfg = qerrors.DefaultRetryConfig()
	}
	return &RetryingEmbedder{inner: inner, cfg: cfg}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := qerrors.Retry(ctx, r.cfg, func() error {
		var embedErr error
		vec, embedErr = r.inner.Embed(ctx, text)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := qerrors.Retry(ctx, r.cfg, func() error {
		var embedErr error
		vecs, embedErr = r.inner.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

func (r *RetryingEmbedder) Dimensions() int { return r.inner.Dimensions() }

func (r *RetryingEmbedder) ModelName() string { return r.inner.ModelName() }

func (r *RetryingEmbedder) Available(ctx context.Context) bool { return r.inner.Available(ctx) }

func (r *RetryingEmbedder) Close() error { return r.inner.Close() }
