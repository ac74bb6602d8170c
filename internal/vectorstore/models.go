package vectorstore

import "time"

// DocumentType classifies a normalized document by its source.
type DocumentType string

const (
	// DocumentTypeTicket is a support/issue ticket.
	DocumentTypeTicket DocumentType = "ticket"
	// DocumentTypeDocumentation is a documentation page.
	DocumentTypeDocumentation DocumentType = "documentation"
	// DocumentTypeCode is a source-code file.
	DocumentTypeCode DocumentType = "code"
)

// Document is the normalized record indexed by a vector store.
//
// Documents are immutable after creation; re-ingesting the same source
// record produces a new Document with the same ID, and upsert replaces the
// prior version at the backend.
type Document struct {
	// ID is the deterministic document identifier (idempotent upsert key).
	ID string

	// Content is the text body that gets embedded and indexed.
	Content string

	// Metadata holds filterable key-value pairs. Always carries tenant_id
	// and document_type.
	Metadata map[string]interface{}
}

// SearchResult is one retrieved match from a similarity search.
//
// Results are constructed fresh per search response and are not persisted.
type SearchResult struct {
	// DocumentID identifies the matched source record.
	DocumentID string

	// Content is the text body that was indexed.
	Content string

	// Metadata is the document metadata at index time.
	Metadata map[string]interface{}

	// Score is the similarity score in [0,1], higher is more similar.
	// Normalization is backend-defined.
	Score float32

	// Distance is 1 - Score unless the backend supplied it directly.
	Distance float32
}

// NewSearchResult builds a SearchResult, deriving Distance as 1 - score.
func NewSearchResult(documentID, content string, metadata map[string]interface{}, score float32) SearchResult {
	return SearchResult{
		DocumentID: documentID,
		Content:    content,
		Metadata:   metadata,
		Score:      score,
		Distance:   1 - score,
	}
}

// NewSearchResultWithDistance builds a SearchResult with a backend-supplied
// distance instead of the derived 1 - score.
func NewSearchResultWithDistance(documentID, content string, metadata map[string]interface{}, score, distance float32) SearchResult {
	return SearchResult{
		DocumentID: documentID,
		Content:    content,
		Metadata:   metadata,
		Score:      score,
		Distance:   distance,
	}
}

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize int `json:"vector_size"`
}

// HealthStatus is the result of a Store health check.
//
// HealthCheck never returns an error; failures surface here so callers can
// poll health without exception handling.
type HealthStatus struct {
	// Healthy is true when the backend responded and reported healthy.
	Healthy bool `json:"healthy"`

	// Status is a short backend-reported or driver-derived state
	// ("healthy", "disconnected", "error").
	Status string `json:"status"`

	// Backend names the driver that produced this status.
	Backend string `json:"backend"`

	// Connected reflects the store's connection state at check time.
	Connected bool `json:"connected"`

	// Collections is the number of collections visible to this store.
	// Zero when the backend could not be queried.
	Collections int `json:"collections"`

	// Error holds the failure message when Healthy is false.
	Error string `json:"error,omitempty"`

	// CheckedAt is when the check ran.
	CheckedAt time.Time `json:"checked_at"`
}
