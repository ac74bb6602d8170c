package vectorstore

import (
	"context"
	"fmt"
	"regexp"
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// defaultNResults is the search result count when SearchOptions.NResults
// is unset.
const defaultNResults = 10

// maxNResults caps result counts to prevent resource exhaustion.
const maxNResults = 10000

// maxQueryLength caps query text length in characters.
const maxQueryLength = 10000

// Backend identifies a supported vector database product.
//
// The value selects a driver in the factory and carries no behavior inside
// the Store contract itself.
type Backend string

const (
	// BackendChromaDB is ChromaDB over HTTP REST.
	BackendChromaDB Backend = "chromadb"
	// BackendPinecone is Pinecone (no driver in this build).
	BackendPinecone Backend = "pinecone"
	// BackendWeaviate is Weaviate (no driver in this build).
	BackendWeaviate Backend = "weaviate"
	// BackendQdrant is Qdrant over gRPC.
	BackendQdrant Backend = "qdrant"
	// BackendChromem is the embedded chromem-go database.
	BackendChromem Backend = "chromem"
)

// ParseBackend validates a backend name from configuration.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendChromaDB, BackendPinecone, BackendWeaviate, BackendQdrant, BackendChromem:
		return Backend(s), nil
	case "":
		return BackendChromem, nil
	default:
		return "", fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, s)
	}
}

// Embedder generates vector embeddings from text.
//
// Implementations can use local models or cloud APIs. Backends that embed
// server-side (ChromaDB) do not require one.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchOptions describes one similarity search request.
//
// Exactly one of QueryText and QueryVector must be set. QueryText is
// embedded by the store (or server-side, backend depending); QueryVector is
// used as-is.
type SearchOptions struct {
	// QueryText is the natural-language query.
	QueryText string

	// QueryVector is a pre-computed query embedding.
	QueryVector []float32

	// NResults is the maximum number of results. Defaults to 10.
	NResults int

	// Where filters results by metadata equality. Values may be scalars
	// (exact match) or string slices (match any).
	Where map[string]interface{}

	// Include lists optional response fields backends may honor
	// (e.g. "metadatas", "documents", "distances").
	Include []string
}

// Validate checks the caller contract and applies the NResults default.
// It fails before any backend call when both or neither query forms are set.
func (o *SearchOptions) Validate() error {
	hasText := o.QueryText != ""
	hasVector := len(o.QueryVector) > 0
	if hasText == hasVector {
		return fmt.Errorf("%w: exactly one of query text and query vector must be set", ErrInvalidQuery)
	}
	if len(o.QueryText) > maxQueryLength {
		return fmt.Errorf("%w: query exceeds maximum length of %d characters", ErrInvalidQuery, maxQueryLength)
	}
	if o.NResults < 0 {
		return fmt.Errorf("%w: n_results must be positive, got %d", ErrInvalidQuery, o.NResults)
	}
	if o.NResults == 0 {
		o.NResults = defaultNResults
	}
	if o.NResults > maxNResults {
		o.NResults = maxNResults
	}
	return nil
}

// Store is the backend-agnostic contract for vector storage operations.
//
// A Store owns a single logical backend session. Operations may suspend
// awaiting network I/O and honor context cancellation, but the contract
// defines no retry or timeout policy of its own; drivers may retry
// internally, callers own everything beyond that.
//
// State machine: Disconnected -> (Connect success) -> Connected ->
// (Disconnect) -> Disconnected. All collection and document operations
// require the Connected state and fail with ErrNotConnected otherwise.
// Connection state is owned exclusively by the Store instance.
//
// Callers must serialize CreateCollection/DeleteCollection against
// concurrent UpsertDocuments/SimilaritySearch on the same collection name;
// collection existence is a precondition for the latter.
type Store interface {
	// Connect establishes the backend session. On success it returns true
	// and the store transitions to Connected. A recoverable failure (e.g.
	// transient network unavailability) returns (false, nil); a
	// configuration-level failure (bad credentials or URL) returns an
	// ErrConnection error.
	Connect(ctx context.Context) (bool, error)

	// Disconnect releases backend resources. Idempotent: calling it on a
	// never-connected store is a no-op. Always leaves the store
	// disconnected.
	Disconnect(ctx context.Context) error

	// CreateCollection creates a named collection with fixed embedding
	// dimensionality. Fails with ErrCollectionExists if the collection
	// already exists with a conflicting dimension, or ErrCollection if the
	// backend rejects the configuration.
	CreateCollection(ctx context.Context, name string, dimension int, metadata map[string]interface{}) error

	// DeleteCollection removes a collection and all its documents.
	// Fails with ErrCollectionNotFound if the collection does not exist.
	DeleteCollection(ctx context.Context, name string) error

	// ListCollections enumerates collections visible to this store.
	ListCollections(ctx context.Context) ([]string, error)

	// GetCollectionInfo reports a collection's document count and vector
	// dimensionality. Fails with ErrCollectionNotFound if the collection
	// does not exist.
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// UpsertDocuments inserts or replaces documents keyed by Document.ID.
	// Duplicate IDs within one batch resolve last-write-wins. Fails with
	// ErrCollectionNotFound if the collection does not exist.
	UpsertDocuments(ctx context.Context, collection string, docs []Document) error

	// DeleteDocuments removes documents by ID. Absent IDs are not an
	// error (idempotent deletion).
	DeleteDocuments(ctx context.Context, collection string, ids []string) error

	// SimilaritySearch performs nearest-neighbor retrieval. Results are
	// ordered by descending similarity score; ties keep backend-native
	// order. Option validation failures surface before any backend call;
	// backend query failures surface as ErrSearch.
	SimilaritySearch(ctx context.Context, collection string, opts SearchOptions) ([]SearchResult, error)

	// GetDocument fetches a document by ID. Returns (nil, nil) when the
	// document does not exist.
	GetDocument(ctx context.Context, collection, id string) (*Document, error)

	// HealthCheck reports connectivity and backend health. It never
	// returns an error; failures are captured in the HealthStatus fields.
	HealthCheck(ctx context.Context) HealthStatus

	// IsConnected reports the current connection state.
	IsConnected() bool

	// EnsureConnected connects only if not already connected; otherwise it
	// returns true immediately.
	EnsureConnected(ctx context.Context) (bool, error)
}

// ValidateCollectionName validates a collection name against the naming
// rules shared by all backends. Rejects uppercase, special characters,
// path traversal and spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}
