// Package embeddings provides embedding generation via multiple providers.
//
// Remote providers (OpenAI-compatible APIs including TEI servers, and
// local Ollama instances) are wrapped via langchaingo behind the
// vectorstore.Embedder contract. The fastembed provider runs ONNX
// models in-process and requires cgo.
package embeddings

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/driftorhq/driftor/internal/vectorstore"
)

// ErrInvalidConfig indicates invalid embeddings configuration.
var ErrInvalidConfig = errors.New("invalid embeddings configuration")

// Config holds configuration for the embeddings provider.
type Config struct {
	// Provider is openai or ollama.
	Provider string

	// Model is the embedding model name
	// (e.g. text-embedding-3-small, nomic-embed-text).
	Model string

	// BaseURL overrides the provider's default endpoint. For OpenAI
	// this allows TEI and other OpenAI-compatible servers.
	BaseURL string

	// APIKey authenticates to the provider. Required for OpenAI.
	APIKey string

	// CacheDir is where fastembed stores downloaded model files.
	CacheDir string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	switch c.Provider {
	case "openai":
		if c.APIKey == "" && c.BaseURL == "" {
			return fmt.Errorf("%w: openai requires an API key or a base URL", ErrInvalidConfig)
		}
	case "ollama", "fastembed":
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	return nil
}

// New creates a vectorstore.Embedder for the configured provider.
func New(config Config) (vectorstore.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case "openai":
		return newOpenAI(config)
	case "ollama":
		return newOllama(config)
	case "fastembed":
		return newFastEmbed(config)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, config.Provider)
	}
}

// newOpenAI builds an embedder against OpenAI or any OpenAI-compatible
// endpoint (TEI, vLLM).
func newOpenAI(config Config) (vectorstore.Embedder, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for keyless local servers.
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithModel(config.Model),
		openai.WithEmbeddingModel(config.Model),
		openai.WithToken(apiKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}

// newOllama builds an embedder against a local Ollama instance.
func newOllama(config Config) (vectorstore.Embedder, error) {
	opts := []ollama.Option{
		ollama.WithModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(config.BaseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}
