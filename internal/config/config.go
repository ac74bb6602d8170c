// Package config provides configuration loading for driftor.
//
// Configuration is loaded from a YAML file, then overridden by
// DRIFTOR_-prefixed environment variables, with hardcoded defaults
// filling the rest.
package config

import (
	"fmt"

	"github.com/driftorhq/driftor/internal/telemetry"
	"github.com/driftorhq/driftor/internal/vectorstore"
)

// Config holds the complete driftor configuration.
type Config struct {
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Backend is one of: chromem, qdrant, chromadb.
	Backend string `koanf:"backend"`

	// VectorSize is the embedding dimensionality.
	VectorSize int `koanf:"vector_size"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
	Chroma  ChromaConfig  `koanf:"chromadb"`
}

// ChromemConfig configures the embedded chromem backend.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	APIKey         Secret   `koanf:"api_key"`
	UseTLS         bool     `koanf:"use_tls"`
	ConnectTimeout Duration `koanf:"connect_timeout"`
	MaxRetries     int      `koanf:"max_retries"`
}

// ChromaConfig configures the ChromaDB HTTP backend.
type ChromaConfig struct {
	URL     string   `koanf:"url"`
	Token   Secret   `koanf:"token"`
	Timeout Duration `koanf:"timeout"`
}

// EmbeddingsConfig configures the embeddings provider.
type EmbeddingsConfig struct {
	// Provider is one of: openai, ollama, fastembed.
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`

	// CacheDir is where fastembed stores downloaded model files.
	CacheDir string `koanf:"cache_dir"`
}

// TelemetryConfig configures OTLP trace export. Disabled by default;
// most deployments have no collector running.
type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `koanf:"endpoint"`

	// Protocol is grpc or http/protobuf.
	Protocol string `koanf:"protocol"`

	// SampleRate is the trace sampling ratio, 0.0 to 1.0.
	SampleRate float64 `koanf:"sample_rate"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `koanf:"insecure"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// applyDefaults fills unset fields with defaults.
func applyDefaults(cfg *Config) {
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "chromem"
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = 1536
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Chroma.URL == "" {
		cfg.VectorStore.Chroma.URL = "http://localhost:8000"
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "openai"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if _, err := vectorstore.ParseBackend(c.VectorStore.Backend); err != nil {
		return err
	}
	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("vectorstore: vector_size must be positive, got %d", c.VectorStore.VectorSize)
	}
	switch c.Embeddings.Provider {
	case "openai", "ollama", "fastembed":
	default:
		return fmt.Errorf("embeddings: unknown provider %q", c.Embeddings.Provider)
	}
	if err := c.TelemetryConfig().Validate(); err != nil {
		return err
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	return nil
}

// VectorStore returns the vectorstore.Config derived from this
// configuration.
func (c *Config) VectorStoreConfig() vectorstore.Config {
	backend, _ := vectorstore.ParseBackend(c.VectorStore.Backend)
	return vectorstore.Config{
		Backend:    backend,
		VectorSize: c.VectorStore.VectorSize,
		Chromem: vectorstore.ChromemConfig{
			Path:     c.VectorStore.Chromem.Path,
			Compress: c.VectorStore.Chromem.Compress,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:           c.VectorStore.Qdrant.Host,
			Port:           c.VectorStore.Qdrant.Port,
			APIKey:         c.VectorStore.Qdrant.APIKey.Value(),
			UseTLS:         c.VectorStore.Qdrant.UseTLS,
			ConnectTimeout: c.VectorStore.Qdrant.ConnectTimeout.Duration(),
			MaxRetries:     c.VectorStore.Qdrant.MaxRetries,
		},
		Chroma: vectorstore.ChromaConfig{
			URL:     c.VectorStore.Chroma.URL,
			Timeout: c.VectorStore.Chroma.Timeout.Duration(),
			Headers: chromaHeaders(c.VectorStore.Chroma.Token),
		},
	}
}

// TelemetryConfig returns the telemetry.Config derived from this
// configuration.
func (c *Config) TelemetryConfig() telemetry.Config {
	cfg := telemetry.NewDefaultConfig()
	cfg.Enabled = c.Telemetry.Enabled
	if c.Telemetry.Endpoint != "" {
		cfg.Endpoint = c.Telemetry.Endpoint
	}
	if c.Telemetry.Protocol != "" {
		cfg.Protocol = c.Telemetry.Protocol
	}
	if c.Telemetry.SampleRate != 0 {
		cfg.SampleRate = c.Telemetry.SampleRate
	}
	cfg.Insecure = c.Telemetry.Insecure
	return cfg
}

func chromaHeaders(token Secret) map[string]string {
	if !token.IsSet() {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token.Value()}
}
