package vectorstore

import (
	"errors"
	"fmt"
)

// ErrVectorStore is the base error for all vector store failures.
// errors.Is(err, ErrVectorStore) matches any taxonomy member below.
var ErrVectorStore = errors.New("vector store error")

// Error kinds. Backend-native errors are wrapped into exactly one of these
// before crossing a Store method boundary.
var (
	// ErrConnection covers session establishment, authentication, and
	// operations attempted while disconnected.
	ErrConnection = fmt.Errorf("%w: connection", ErrVectorStore)

	// ErrCollection covers collection lifecycle and existence conflicts.
	ErrCollection = fmt.Errorf("%w: collection", ErrVectorStore)

	// ErrSearch covers query execution failures.
	ErrSearch = fmt.Errorf("%w: search", ErrVectorStore)
)

// Sentinel errors chained to their taxonomy kind.
var (
	// ErrNotConnected is returned when an operation requires a connected
	// store but Connect has not succeeded.
	ErrNotConnected = fmt.Errorf("%w: store not connected", ErrConnection)

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = fmt.Errorf("%w: collection not found", ErrCollection)

	// ErrCollectionExists is returned when creating a collection that
	// already exists with a conflicting configuration.
	ErrCollectionExists = fmt.Errorf("%w: collection already exists", ErrCollection)

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = fmt.Errorf("%w: invalid collection name", ErrCollection)

	// ErrInvalidQuery indicates a malformed search request. Raised before
	// any backend call.
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = fmt.Errorf("%w: failed to generate embeddings", ErrSearch)

	// ErrBackendUnavailable indicates a recognized backend with no driver
	// in this build (pinecone, weaviate).
	ErrBackendUnavailable = errors.New("no driver available for backend")
)

// connectionError wraps a backend error as a connection failure,
// preserving the original error in the chain.
func connectionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}

// collectionError wraps a backend error as a collection failure.
func collectionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollection, op, err)
}

// searchError wraps a backend error as a search failure.
func searchError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSearch, op, err)
}
