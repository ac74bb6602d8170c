package vectorstore_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftorhq/driftor/internal/vectorstore"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      vectorstore.Backend
		wantError bool
	}{
		{name: "chromem", input: "chromem", want: vectorstore.BackendChromem},
		{name: "qdrant", input: "qdrant", want: vectorstore.BackendQdrant},
		{name: "chromadb", input: "chromadb", want: vectorstore.BackendChromaDB},
		{name: "pinecone", input: "pinecone", want: vectorstore.BackendPinecone},
		{name: "weaviate", input: "weaviate", want: vectorstore.BackendWeaviate},
		{name: "empty defaults to chromem", input: "", want: vectorstore.BackendChromem},
		{name: "unknown", input: "faiss", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vectorstore.ParseBackend(tt.input)
			if tt.wantError {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		wantError  bool
	}{
		{name: "valid simple", collection: "tickets_acme"},
		{name: "valid numeric", collection: "collection_123"},
		{name: "valid max length", collection: strings.Repeat("a", 64)},
		{name: "empty", collection: "", wantError: true},
		{name: "uppercase", collection: "Tickets", wantError: true},
		{name: "spaces", collection: "my collection", wantError: true},
		{name: "path traversal", collection: "../etc/passwd", wantError: true},
		{name: "hyphen", collection: "tickets-acme", wantError: true},
		{name: "too long", collection: strings.Repeat("a", 65), wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vectorstore.ValidateCollectionName(tt.collection)
			if tt.wantError {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSearchOptions_Validate(t *testing.T) {
	t.Run("neither query form", func(t *testing.T) {
		opts := vectorstore.SearchOptions{}
		assert.ErrorIs(t, opts.Validate(), vectorstore.ErrInvalidQuery)
	})

	t.Run("both query forms", func(t *testing.T) {
		opts := vectorstore.SearchOptions{
			QueryText:   "query",
			QueryVector: []float32{0.1, 0.2},
		}
		assert.ErrorIs(t, opts.Validate(), vectorstore.ErrInvalidQuery)
	})

	t.Run("text only", func(t *testing.T) {
		opts := vectorstore.SearchOptions{QueryText: "query"}
		require.NoError(t, opts.Validate())
		assert.Equal(t, 10, opts.NResults)
	})

	t.Run("vector only", func(t *testing.T) {
		opts := vectorstore.SearchOptions{QueryVector: []float32{0.1}}
		require.NoError(t, opts.Validate())
	})

	t.Run("negative n_results", func(t *testing.T) {
		opts := vectorstore.SearchOptions{QueryText: "query", NResults: -1}
		assert.ErrorIs(t, opts.Validate(), vectorstore.ErrInvalidQuery)
	})

	t.Run("oversized n_results capped", func(t *testing.T) {
		opts := vectorstore.SearchOptions{QueryText: "query", NResults: 50000}
		require.NoError(t, opts.Validate())
		assert.Equal(t, 10000, opts.NResults)
	})

	t.Run("oversized query text", func(t *testing.T) {
		opts := vectorstore.SearchOptions{QueryText: strings.Repeat("q", 10001)}
		assert.ErrorIs(t, opts.Validate(), vectorstore.ErrInvalidQuery)
	})

	t.Run("explicit n_results kept", func(t *testing.T) {
		opts := vectorstore.SearchOptions{QueryText: "query", NResults: 5}
		require.NoError(t, opts.Validate())
		assert.Equal(t, 5, opts.NResults)
	})
}
