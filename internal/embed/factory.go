package embed

import (
	"fmt"
	"os"
	"time"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// Provider names accepted in configuration.
const (
	ProviderStatic = "static"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// FactoryConfig selects and configures an embedding provider.
type FactoryConfig struct {
	// Provider is "static", "ollama", or "openai". Empty selects openai
	// when an API key is present, otherwise static.
	Provider string

	Model      string
	Dimensions int
	OllamaHost string
	Timeout    time.Duration
	CacheSize  int
}

// New creates the configured embedder, wrapped with LRU caching.
func New(cfg FactoryConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	provider := cfg.Provider
	if provider == "" {
		if os.Getenv("OPENAI_API_KEY") != "" {
			provider = ProviderOpenAI
		} else {
			provider = ProviderStatic
		}
	}

	switch provider {
	case ProviderStatic:
		inner = NewStaticEmbedder()
	case ProviderOllama:
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case ProviderOpenAI:
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  cfg.Model,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}

	// Remote providers get backoff on transient failures. The static
	// embedder never fails transiently.
	if provider != ProviderStatic {
		inner = WithRetry(inner, qerrors.DefaultRetryConfig())
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
