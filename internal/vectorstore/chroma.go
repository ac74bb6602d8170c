package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromaTracer for OpenTelemetry instrumentation.
var chromaTracer = otel.Tracer("driftor.vectorstore.chroma")

// ChromaConfig holds configuration for the ChromaDB HTTP backend.
type ChromaConfig struct {
	// URL is the ChromaDB server base URL (e.g. http://localhost:8000).
	URL string

	// Timeout bounds each HTTP request. Default: 30s.
	Timeout time.Duration

	// Headers are sent with every request (auth tokens and the like).
	Headers map[string]string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromaConfig) ApplyDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:8000"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c ChromaConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: URL required", ErrInvalidConfig)
	}
	return nil
}

// ChromaStore implements Store against ChromaDB's HTTP REST API.
//
// Chroma addresses collections by UUID, so the store keeps a name-to-id
// cache populated on create and lookup. When an Embedder is configured,
// documents and text queries are embedded client-side; otherwise query
// texts are passed through for server-side embedding.
type ChromaStore struct {
	config   ChromaConfig
	embedder Embedder
	logger   *zap.Logger

	mu        sync.RWMutex
	http      *http.Client
	connected bool

	// collectionIDs caches collection name -> Chroma collection UUID.
	collectionIDs sync.Map
}

// chromaCollection is the wire form of a Chroma collection record.
type chromaCollection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// NewChromaStore creates a ChromaStore. The store starts disconnected.
func NewChromaStore(config ChromaConfig, embedder Embedder, logger *zap.Logger) (*ChromaStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromaStore{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Connect probes the server heartbeat. An unreachable server returns
// (false, nil); a rejected request (bad URL, auth failure) returns
// ErrConnection.
func (s *ChromaStore) Connect(ctx context.Context) (bool, error) {
	ctx, span := chromaTracer.Start(ctx, "ChromaStore.Connect")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return true, nil
	}

	client := &http.Client{Timeout: s.config.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL+"/api/v1/heartbeat", nil)
	if err != nil {
		span.RecordError(err)
		return false, connectionError("building heartbeat request", err)
	}
	s.applyHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		// Network-level failure: recoverable, caller may retry.
		span.RecordError(err)
		s.logger.Warn("chroma unreachable, connect deferred",
			zap.String("url", s.config.URL),
			zap.Error(err),
		)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("heartbeat returned %d: %s", resp.StatusCode, string(body))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, connectionError("chroma heartbeat", err)
	}

	s.http = client
	s.connected = true
	s.logger.Info("chroma store connected", zap.String("url", s.config.URL))
	span.SetStatus(codes.Ok, "connected")
	return true, nil
}

// Disconnect drops the HTTP client. Idempotent; Chroma has no session to
// tear down server-side.
func (s *ChromaStore) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	s.http.CloseIdleConnections()
	s.http = nil
	s.connected = false
	s.logger.Info("chroma store disconnected")
	return nil
}

// IsConnected reports the current connection state.
func (s *ChromaStore) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// EnsureConnected connects only if not already connected.
func (s *ChromaStore) EnsureConnected(ctx context.Context) (bool, error) {
	if s.IsConnected() {
		return true, nil
	}
	return s.Connect(ctx)
}

func (s *ChromaStore) applyHeaders(req *http.Request) {
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}
}

// client returns the live HTTP client or ErrNotConnected.
func (s *ChromaStore) client() (*http.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.http == nil {
		return nil, ErrNotConnected
	}
	return s.http, nil
}

// doJSON issues a JSON request and decodes the response into out (when
// out is non-nil). Non-2xx statuses are returned as errors carrying the
// response body.
func (s *ChromaStore) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	client, err := s.client()
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.URL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.applyHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", path, err)
		}
	}
	return nil
}

// collectionID resolves a collection name to its Chroma UUID, consulting
// the cache first. Returns ErrCollectionNotFound when absent.
func (s *ChromaStore) collectionID(ctx context.Context, name string) (string, error) {
	if id, ok := s.collectionIDs.Load(name); ok {
		return id.(string), nil
	}

	if _, err := s.client(); err != nil {
		return "", err
	}

	var coll chromaCollection
	if err := s.doJSON(ctx, http.MethodGet, "/api/v1/collections/"+name, nil, &coll); err != nil {
		return "", fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	s.collectionIDs.Store(name, coll.ID)
	return coll.ID, nil
}

// CreateCollection creates a collection. The dimension is recorded in
// collection metadata; Chroma itself infers dimensionality from the first
// embedding.
func (s *ChromaStore) CreateCollection(ctx context.Context, name string, dimension int, metadata map[string]interface{}) error {
	ctx, span := chromaTracer.Start(ctx, "ChromaStore.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("dimension", dimension))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrCollection, dimension)
	}

	meta := MergeFilters(metadata, map[string]interface{}{"dimension": dimension})

	var existing chromaCollection
	if err := s.doJSON(ctx, http.MethodGet, "/api/v1/collections/"+name, nil, &existing); err == nil {
		if prev, ok := toFloat64(existing.Metadata["dimension"]); ok && int(prev) != dimension {
			return fmt.Errorf("%w: %s has dimension %d, requested %d", ErrCollectionExists, name, int(prev), dimension)
		}
		s.collectionIDs.Store(name, existing.ID)
		return nil
	}

	var created chromaCollection
	payload := map[string]interface{}{
		"name":     name,
		"metadata": meta,
	}
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections", payload, &created); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return collectionError("creating collection "+name, err)
	}
	s.collectionIDs.Store(name, created.ID)

	s.logger.Debug("created chroma collection",
		zap.String("collection", name),
		zap.Int("dimension", dimension),
	)
	return nil
}

// DeleteCollection removes a collection and all its documents.
func (s *ChromaStore) DeleteCollection(ctx context.Context, name string) error {
	ctx, span := chromaTracer.Start(ctx, "ChromaStore.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if _, err := s.collectionID(ctx, name); err != nil {
		return err
	}
	if err := s.doJSON(ctx, http.MethodDelete, "/api/v1/collections/"+name, nil, nil); err != nil {
		span.RecordError(err)
		return collectionError("deleting collection "+name, err)
	}
	s.collectionIDs.Delete(name)
	return nil
}

// ListCollections enumerates collection names.
func (s *ChromaStore) ListCollections(ctx context.Context) ([]string, error) {
	var collections []chromaCollection
	if err := s.doJSON(ctx, http.MethodGet, "/api/v1/collections", nil, &collections); err != nil {
		return nil, collectionError("listing collections", err)
	}
	names := make([]string, len(collections))
	for i, coll := range collections {
		names[i] = coll.Name
		s.collectionIDs.Store(coll.Name, coll.ID)
	}
	return names, nil
}

// GetCollectionInfo reports a collection's document count and the
// dimension recorded in its metadata at creation time.
func (s *ChromaStore) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	ctx, span := chromaTracer.Start(ctx, "ChromaStore.GetCollectionInfo")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if _, err := s.client(); err != nil {
		return nil, err
	}
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	var coll chromaCollection
	if err := s.doJSON(ctx, http.MethodGet, "/api/v1/collections/"+name, nil, &coll); err != nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	s.collectionIDs.Store(name, coll.ID)

	var count int
	if err := s.doJSON(ctx, http.MethodGet, "/api/v1/collections/"+coll.ID+"/count", nil, &count); err != nil {
		span.RecordError(err)
		return nil, collectionError("counting collection "+name, err)
	}

	info := &CollectionInfo{
		Name:       name,
		PointCount: count,
	}
	if dim, ok := toFloat64(coll.Metadata["dimension"]); ok {
		info.VectorSize = int(dim)
	}

	span.SetAttributes(attribute.Int("point_count", info.PointCount))
	return info, nil
}

// UpsertDocuments inserts or replaces documents keyed by Document.ID.
func (s *ChromaStore) UpsertDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, span := chromaTracer.Start(ctx, "ChromaStore.UpsertDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return err
	}

	docs = dedupeByID(docs)

	ids := make([]string, len(docs))
	contents := make([]string, len(docs))
	metadatas := make([]map[string]interface{}, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: document %d has no ID", ErrCollection, i)
		}
		ids[i] = doc.ID
		contents[i] = doc.Content
		metadatas[i] = doc.Metadata
	}

	payload := map[string]interface{}{
		"ids":       ids,
		"documents": contents,
		"metadatas": metadatas,
	}
	if s.embedder != nil {
		embeddings, err := s.embedder.EmbedDocuments(ctx, contents)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
		payload["embeddings"] = embeddings
	}

	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+id+"/upsert", payload, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return collectionError("upserting documents to "+collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteDocuments removes documents by ID. Absent IDs are a no-op.
func (s *ChromaStore) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	ctx, span := chromaTracer.Start(ctx, "ChromaStore.DeleteDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{"ids": ids}
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+id+"/delete", payload, nil); err != nil {
		span.RecordError(err)
		return collectionError("deleting documents from "+collection, err)
	}
	return nil
}

// chromaQueryResponse is the wire form of a Chroma query result. Fields
// are grouped per query; this driver always issues a single query.
type chromaQueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float32                `json:"distances"`
}

// SimilaritySearch performs nearest-neighbor retrieval in a collection.
// Chroma reports distances; scores are derived as 1 - distance.
func (s *ChromaStore) SimilaritySearch(ctx context.Context, collection string, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := chromaTracer.Start(ctx, "ChromaStore.SimilaritySearch")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("n_results", opts.NResults),
	)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"n_results": opts.NResults,
		"include":   includeOrDefault(opts.Include),
	}
	if where := buildChromaWhere(opts.Where); where != nil {
		payload["where"] = where
	}

	switch {
	case len(opts.QueryVector) > 0:
		payload["query_embeddings"] = [][]float32{opts.QueryVector}
	case s.embedder != nil:
		vector, err := s.embedder.EmbedQuery(ctx, opts.QueryText)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
		payload["query_embeddings"] = [][]float32{vector}
	default:
		// Server-side embedding.
		payload["query_texts"] = []string{opts.QueryText}
	}

	var resp chromaQueryResponse
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+id+"/query", payload, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, searchError("querying collection "+collection, err)
	}

	if len(resp.IDs) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, len(resp.IDs[0]))
	for i, docID := range resp.IDs[0] {
		var content string
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			content = resp.Documents[0][i]
		}
		var metadata map[string]interface{}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			metadata = resp.Metadatas[0][i]
		}
		var distance float32
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			distance = resp.Distances[0][i]
		}
		results[i] = NewSearchResultWithDistance(docID, content, metadata, 1-distance, distance)
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// chromaGetResponse is the wire form of a Chroma get result.
type chromaGetResponse struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

// GetDocument fetches a document by ID. Returns (nil, nil) when absent.
func (s *ChromaStore) GetDocument(ctx context.Context, collection, docID string) (*Document, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"ids":     []string{docID},
		"include": []string{"documents", "metadatas"},
	}
	var resp chromaGetResponse
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+id+"/get", payload, &resp); err != nil {
		return nil, collectionError("fetching document "+docID, err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	doc := &Document{ID: resp.IDs[0]}
	if len(resp.Documents) > 0 {
		doc.Content = resp.Documents[0]
	}
	if len(resp.Metadatas) > 0 {
		doc.Metadata = resp.Metadatas[0]
	}
	return doc, nil
}

// HealthCheck reports connectivity and backend health. Never errors.
func (s *ChromaStore) HealthCheck(ctx context.Context) HealthStatus {
	hs := HealthStatus{
		Backend:   string(BackendChromaDB),
		CheckedAt: timeNow(),
	}

	if !s.IsConnected() {
		hs.Status = "disconnected"
		hs.Error = ErrNotConnected.Error()
		return hs
	}
	hs.Connected = true

	names, err := s.ListCollections(ctx)
	if err != nil {
		hs.Status = "error"
		hs.Error = err.Error()
		return hs
	}

	hs.Healthy = true
	hs.Status = "healthy"
	hs.Collections = len(names)
	return hs
}

// includeOrDefault applies the default include set for queries.
func includeOrDefault(include []string) []string {
	if len(include) > 0 {
		return include
	}
	return []string{"documents", "metadatas", "distances"}
}

// buildChromaWhere translates a where map to Chroma's filter form.
// String slices become $in conditions.
func buildChromaWhere(where map[string]interface{}) map[string]interface{} {
	if len(where) == 0 {
		return nil
	}
	result := make(map[string]interface{}, len(where))
	for k, v := range where {
		if list, ok := v.([]string); ok {
			result[k] = map[string]interface{}{"$in": list}
			continue
		}
		result[k] = v
	}
	return result
}
