package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// OpenAI defaults.
const (
	DefaultOpenAIModel = "text-embedding-3-small"
	openAISmallDims    = 1536
	openAILargeDims    = 3072
)

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// OpenAIEmbedder generates embeddings through the OpenAI API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, qerrors.ConfigError("openai api key not set (OPENAI_API_KEY)", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	dims := openAISmallDims
	if cfg.Model == string(openai.LargeEmbedding3) {
		dims = openAILargeDims
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
		dims:   dims,
	}, nil
}

// Embed generates embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	for i, t := range texts {
		if len(t) > MaxInputChars {
			return nil, qerrors.New(qerrors.ErrCodeInputTooLong,
				fmt.Sprintf("input %d is %d chars, limit is %d", i, len(t), MaxInputChars), nil)
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		// The SDK folds rate limits and connection errors together;
		// treat them all as transient.
		if isPermanentOpenAIError(err) {
			return nil, fmt.Errorf("openai request rejected: %w", err)
		}
		return nil, qerrors.ProviderError("openai request failed", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = normalizeVector(d.Embedding)
	}
	return out, nil
}

// isPermanentOpenAIError reports client-side rejections (bad request,
// invalid key) that retrying will not fix.
func isPermanentOpenAIError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "status code: 400") ||
		strings.Contains(msg, "status code: 401") ||
		strings.Contains(msg, "status code: 403")
}

// Dimensions returns the embedding dimension for the configured model.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return "openai/" + e.model }

// Available reports whether the embedder is usable. The API is not
// probed; a bad key surfaces on first use.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
