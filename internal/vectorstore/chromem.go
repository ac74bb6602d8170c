package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("driftor.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means an
	// in-memory database (tests, throwaway environments).
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external service, persistence to gob files.
// It is the default backend for local development and the backend used by
// the package tests.
type ChromemStore struct {
	config   ChromemConfig
	embedder Embedder
	logger   *zap.Logger

	mu        sync.RWMutex
	db        *chromem.DB
	connected bool

	// dimensions tracks the declared dimension per collection so that
	// re-creating a collection with a conflicting dimension fails.
	dimensions sync.Map
}

// NewChromemStore creates a ChromemStore. The store starts disconnected;
// call Connect before any collection or document operation.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromemStore{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Connect opens (or creates) the embedded database.
func (s *ChromemStore) Connect(ctx context.Context) (bool, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Connect")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return true, nil
	}

	if s.config.Path == "" {
		s.db = chromem.NewDB()
	} else {
		expanded, err := expandPath(s.config.Path)
		if err != nil {
			span.RecordError(err)
			return false, connectionError("expanding path", err)
		}
		if err := os.MkdirAll(expanded, 0o755); err != nil {
			span.RecordError(err)
			return false, connectionError("creating directory", err)
		}
		db, err := chromem.NewPersistentDB(expanded, s.config.Compress)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, connectionError("opening chromem DB", err)
		}
		s.db = db
	}

	s.connected = true
	s.logger.Info("chromem store connected",
		zap.String("path", s.config.Path),
		zap.Bool("compress", s.config.Compress),
	)
	span.SetStatus(codes.Ok, "connected")
	return true, nil
}

// Disconnect drops the database handle. Idempotent.
func (s *ChromemStore) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	s.db = nil
	s.connected = false
	s.logger.Info("chromem store disconnected")
	return nil
}

// IsConnected reports the current connection state.
func (s *ChromemStore) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// EnsureConnected connects only if not already connected.
func (s *ChromemStore) EnsureConnected(ctx context.Context) (bool, error) {
	if s.IsConnected() {
		return true, nil
	}
	return s.Connect(ctx)
}

// handle returns the live DB or ErrNotConnected.
func (s *ChromemStore) handle() (*chromem.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.db == nil {
		return nil, ErrNotConnected
	}
	return s.db, nil
}

// embeddingFunc adapts the Embedder to chromem's query-time callback.
// Documents are embedded in batch before insertion, so this only runs for
// text queries.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// CreateCollection creates a collection and records its dimension.
// Creating an existing collection with the same dimension is a no-op;
// a conflicting dimension fails with ErrCollectionExists.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string, dimension int, metadata map[string]interface{}) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("dimension", dimension))

	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrCollection, dimension)
	}

	if prev, ok := s.dimensions.Load(name); ok {
		if prev.(int) != dimension {
			return fmt.Errorf("%w: %s has dimension %d, requested %d", ErrCollectionExists, name, prev.(int), dimension)
		}
		return nil
	}

	if _, err := db.CreateCollection(name, metadataToChromem(metadata), s.embeddingFunc()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return collectionError("creating collection "+name, err)
	}
	s.dimensions.Store(name, dimension)

	s.logger.Debug("created chromem collection",
		zap.String("collection", name),
		zap.Int("dimension", dimension),
	)
	return nil
}

// DeleteCollection removes a collection and all its documents.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if db.GetCollection(name, s.embeddingFunc()) == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err := db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		return collectionError("deleting collection "+name, err)
	}
	s.dimensions.Delete(name)
	return nil
}

// ListCollections enumerates collection names.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	collections := db.ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	return names, nil
}

// GetCollectionInfo reports a collection's document count and dimension.
// The dimension is known only for collections created through this store
// instance; reopened persistent collections report 0.
func (s *ChromemStore) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.GetCollectionInfo")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	coll := db.GetCollection(name, s.embeddingFunc())
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	info := &CollectionInfo{
		Name:       name,
		PointCount: coll.Count(),
	}
	if dim, ok := s.dimensions.Load(name); ok {
		info.VectorSize = dim.(int)
	}

	span.SetAttributes(attribute.Int("point_count", info.PointCount))
	span.SetStatus(codes.Ok, "success")
	return info, nil
}

// UpsertDocuments inserts or replaces documents keyed by ID.
func (s *ChromemStore) UpsertDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.UpsertDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)

	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	coll := db.GetCollection(collection, s.embeddingFunc())
	if coll == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: document %d has no ID", ErrCollection, i)
		}
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  metadataToChromem(doc.Metadata),
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1: embeddings already exist and sequential insert
	// keeps last-write-wins order for duplicate IDs within the batch.
	if err := coll.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return collectionError("adding documents to "+collection, err)
	}

	s.logger.Debug("upserted documents into chromem",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// DeleteDocuments removes documents by ID. Absent IDs are skipped.
func (s *ChromemStore) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	coll := db.GetCollection(collection, s.embeddingFunc())
	if coll == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	for _, id := range ids {
		if _, err := coll.GetByID(ctx, id); err != nil {
			// Absent ID: idempotent deletion, not an error.
			continue
		}
		if err := coll.Delete(ctx, nil, nil, id); err != nil {
			span.RecordError(err)
			return collectionError("deleting document "+id, err)
		}
	}
	return nil
}

// SimilaritySearch performs nearest-neighbor retrieval in a collection.
func (s *ChromemStore) SimilaritySearch(ctx context.Context, collection string, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.SimilaritySearch")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("n_results", opts.NResults),
	)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	coll := db.GetCollection(collection, s.embeddingFunc())
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	// chromem requires n <= document count.
	docCount := coll.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}

	// chromem filters are string equality only; match-any conditions are
	// applied to the result set afterwards.
	eqWhere, anyWhere, err := splitWhere(opts.Where)
	if err != nil {
		return nil, err
	}

	n := opts.NResults
	if len(anyWhere) > 0 {
		// Match-any filtering happens after ranking, so the query must
		// see the full ranking or matches below the top n are lost.
		n = docCount
	} else if n > docCount {
		n = docCount
	}

	var results []chromem.Result
	if opts.QueryText != "" {
		results, err = coll.Query(ctx, opts.QueryText, n, eqWhere, nil)
	} else {
		results, err = coll.QueryEmbedding(ctx, opts.QueryVector, n, eqWhere, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, searchError("querying collection "+collection, err)
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, r := range results {
		metadata := metadataFromChromem(r.Metadata)
		if !matchesAny(metadata, anyWhere) {
			continue
		}
		searchResults = append(searchResults, NewSearchResult(r.ID, r.Content, metadata, r.Similarity))
	}
	if len(searchResults) > opts.NResults {
		searchResults = searchResults[:opts.NResults]
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")
	return searchResults, nil
}

// GetDocument fetches a document by ID. Returns (nil, nil) when absent.
func (s *ChromemStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	coll := db.GetCollection(collection, s.embeddingFunc())
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	doc, err := coll.GetByID(ctx, id)
	if err != nil {
		// chromem reports missing documents as errors; the contract
		// treats them as a normal absent value.
		return nil, nil
	}
	return &Document{
		ID:       doc.ID,
		Content:  doc.Content,
		Metadata: metadataFromChromem(doc.Metadata),
	}, nil
}

// HealthCheck reports connection state and collection count. Never errors.
func (s *ChromemStore) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Backend:   string(BackendChromem),
		CheckedAt: timeNow(),
	}

	db, err := s.handle()
	if err != nil {
		status.Status = "disconnected"
		status.Error = err.Error()
		return status
	}

	status.Connected = true
	status.Healthy = true
	status.Status = "healthy"
	status.Collections = len(db.ListCollections())
	return status
}

// metadataToChromem flattens metadata to chromem's string map form.
// Slices are JSON-encoded.
func metadataToChromem(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}
	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		case []string:
			encoded, err := json.Marshal(val)
			if err != nil {
				result[k] = strings.Join(val, ",")
				continue
			}
			result[k] = string(encoded)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// metadataFromChromem converts chromem's string map back, decoding
// JSON-encoded lists.
func metadataFromChromem(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if strings.HasPrefix(v, "[") {
			var list []string
			if err := json.Unmarshal([]byte(v), &list); err == nil {
				result[k] = list
				continue
			}
		}
		result[k] = v
	}
	return result
}

// splitWhere separates scalar equality conditions (pushed down to chromem)
// from match-any conditions (applied client-side). Filter shapes chromem
// cannot express, such as range maps, are rejected rather than silently
// matching nothing.
func splitWhere(where map[string]interface{}) (map[string]string, map[string][]string, error) {
	if len(where) == 0 {
		return nil, nil, nil
	}
	eq := make(map[string]string)
	any := make(map[string][]string)
	for k, v := range where {
		switch val := v.(type) {
		case []string:
			any[k] = val
		case string:
			eq[k] = val
		case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
			eq[k] = fmt.Sprintf("%v", val)
		default:
			return nil, nil, fmt.Errorf("%w: unsupported filter value for %q (%T)", ErrInvalidQuery, k, v)
		}
	}
	if len(eq) == 0 {
		eq = nil
	}
	if len(any) == 0 {
		any = nil
	}
	return eq, any, nil
}

// matchesAny checks metadata against match-any conditions.
func matchesAny(metadata map[string]interface{}, conditions map[string][]string) bool {
	for key, allowed := range conditions {
		raw, ok := metadata[key]
		if !ok {
			return false
		}
		value := fmt.Sprintf("%v", raw)
		found := false
		for _, candidate := range allowed {
			if value == candidate {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
