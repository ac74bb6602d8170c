//go:build !cgo

package embeddings

import (
	"errors"

	"github.com/driftorhq/driftor/internal/vectorstore"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without
// cgo; the ONNX runtime requires it. Use the openai or ollama provider
// instead.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available without cgo")

func newFastEmbed(_ Config) (vectorstore.Embedder, error) {
	return nil, ErrFastEmbedNotAvailable
}
