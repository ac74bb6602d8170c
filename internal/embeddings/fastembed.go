//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/driftorhq/driftor/internal/vectorstore"
)

// fastEmbedModels maps friendly model names to fastembed constants.
var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// fastEmbedDimensions maps fastembed models to their output dimensions.
var fastEmbedDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.BGESmallZH:    512,
	fastembed.AllMiniLML6V2: 384,
}

const fastEmbedMaxLength = 512

// fastEmbedder generates embeddings with local ONNX models. BGE models
// expect a "passage: " prefix on documents and "query: " on queries;
// PassageEmbed and QueryEmbed add those.
type fastEmbedder struct {
	model *fastembed.FlagEmbedding
	mu    sync.RWMutex
}

// newFastEmbed builds an embedder backed by a local ONNX model. Model
// files are downloaded to config.CacheDir on first use.
func newFastEmbed(config Config) (vectorstore.Embedder, error) {
	model, ok := fastEmbedModels[config.Model]
	if !ok {
		// Accept raw fastembed model names too.
		model = fastembed.EmbeddingModel(config.Model)
		if _, known := fastEmbedDimensions[model]; !known {
			return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, config.Model)
		}
	}

	cacheDir := config.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "model_cache")
	}

	// No progress bars in server logs.
	showProgress := false

	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            fastEmbedMaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	return &fastEmbedder{model: flagEmbed}, nil
}

func (e *fastEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", ErrInvalidConfig)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	vectors, err := e.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("fastembed passage embedding: %w", err)
	}
	return vectors, nil
}

func (e *fastEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty query text", ErrInvalidConfig)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	vector, err := e.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("fastembed query embedding: %w", err)
	}
	return vector, nil
}

// Close releases the ONNX runtime session.
func (e *fastEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model != nil {
		return e.model.Destroy()
	}
	return nil
}
