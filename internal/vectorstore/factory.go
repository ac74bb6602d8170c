package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a vector store backend.
type Config struct {
	// Backend selects the implementation. Default: chromem.
	Backend Backend

	// VectorSize is the embedding dimensionality used when creating
	// collections. Default: 1536 (OpenAI text-embedding-3-small).
	VectorSize int

	Chromem ChromemConfig
	Qdrant  QdrantConfig
	Chroma  ChromaConfig
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendChromem
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
	c.Qdrant.ApplyDefaults()
	c.Chroma.ApplyDefaults()
}

// Validate validates the configuration for the selected backend.
func (c Config) Validate() error {
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive, got %d", ErrInvalidConfig, c.VectorSize)
	}
	switch c.Backend {
	case BackendQdrant:
		return c.Qdrant.Validate()
	case BackendChromaDB:
		return c.Chroma.Validate()
	}
	return nil
}

// New constructs the Store selected by config.Backend. The returned store
// starts disconnected; call Connect before use.
//
// The pinecone and weaviate backends are recognized configuration values
// but have no driver yet and return ErrBackendUnavailable.
func New(config Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Debug("creating vector store",
		zap.String("backend", string(config.Backend)),
		zap.Int("vector_size", config.VectorSize),
	)

	switch config.Backend {
	case BackendChromem:
		return NewChromemStore(config.Chromem, embedder, logger)
	case BackendQdrant:
		return NewQdrantStore(config.Qdrant, embedder, logger)
	case BackendChromaDB:
		return NewChromaStore(config.Chroma, embedder, logger)
	case BackendPinecone, BackendWeaviate:
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, config.Backend)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, config.Backend)
	}
}
