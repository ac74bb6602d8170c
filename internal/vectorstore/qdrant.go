package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("driftor.vectorstore.qdrant")

// payloadContentKey and payloadDocIDKey are reserved payload fields. Qdrant
// point IDs must be UUIDs or integers, so the structured document ID lives
// in the payload and the point ID is derived from it (UUIDv5).
const (
	payloadContentKey = "content"
	payloadDocIDKey   = "doc_id"
)

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// APIKey authenticates against a secured Qdrant deployment. Optional.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// ConnectTimeout bounds the health probe performed by Connect.
	// Default: 5s
	ConnectTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient
	// failures. Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries. Doubles
	// on each attempt. Default: 1s
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB, large enough for code-file batches.
	MaxMessageSize int

	// CircuitBreakerThreshold is the number of consecutive failures
	// before the circuit opens. Default: 5
	CircuitBreakerThreshold int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// IsTransientError checks if an error is transient (worth retrying).
// Returns true for network timeouts and temporary unavailability, false
// for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store using Qdrant's native gRPC client.
//
// Native gRPC transport avoids the HTTP layer's payload limits (binary
// protobuf, no JSON size ceiling), which matters when indexing whole code
// files. Transient failures are retried with exponential backoff behind a
// circuit breaker; that retry policy lives in this driver, not the Store
// contract.
type QdrantStore struct {
	config   QdrantConfig
	embedder Embedder
	logger   *zap.Logger

	mu        sync.RWMutex
	client    *qdrant.Client
	connected bool

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantStore creates a QdrantStore. The store starts disconnected; no
// network activity happens until Connect. The embedder is optional: without
// one, only vector queries are supported.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantStore{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Connect dials Qdrant and probes it with a health check. A transient
// probe failure returns (false, nil) so callers can retry; client
// construction failures (bad address, bad credentials) return ErrConnection.
func (s *QdrantStore) Connect(ctx context.Context) (bool, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Connect")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return true, nil
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   s.config.Host,
		Port:   s.config.Port,
		APIKey: s.config.APIKey,
		UseTLS: s.config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(s.config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(s.config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, connectionError("creating qdrant client", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	if _, err := client.HealthCheck(probeCtx); err != nil {
		_ = client.Close()
		span.RecordError(err)
		if IsTransientError(err) {
			s.logger.Warn("qdrant unreachable, connect deferred",
				zap.String("host", s.config.Host),
				zap.Int("port", s.config.Port),
				zap.Error(err),
			)
			return false, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return false, connectionError("qdrant health probe", err)
	}

	s.client = client
	s.connected = true
	s.logger.Info("qdrant store connected",
		zap.String("host", s.config.Host),
		zap.Int("port", s.config.Port),
		zap.Bool("tls", s.config.UseTLS),
	)
	span.SetStatus(codes.Ok, "connected")
	return true, nil
}

// Disconnect closes the gRPC connection. Idempotent.
func (s *QdrantStore) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.connected = false
	s.logger.Info("qdrant store disconnected")
	if err != nil {
		return connectionError("closing qdrant client", err)
	}
	return nil
}

// IsConnected reports the current connection state.
func (s *QdrantStore) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// EnsureConnected connects only if not already connected.
func (s *QdrantStore) EnsureConnected(ctx context.Context) (bool, error) {
	if s.IsConnected() {
		return true, nil
	}
	return s.Connect(ctx)
}

// handle returns the live client or ErrNotConnected.
func (s *QdrantStore) handle() (*qdrant.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open: %w", operationName, err)
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds.
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// pointID derives the deterministic Qdrant point ID for a document ID.
func pointID(docID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String())
}

// CreateCollection creates a collection with the given dimensionality.
// Re-creating with the same dimension is a no-op; a conflicting dimension
// fails with ErrCollectionExists.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int, metadata map[string]interface{}) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("dimension", dimension))

	client, err := s.handle()
	if err != nil {
		return err
	}
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrCollection, dimension)
	}

	info, err := client.GetCollectionInfo(ctx, name)
	if err == nil && info != nil {
		existing := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if existing == uint64(dimension) {
			return nil
		}
		return fmt.Errorf("%w: %s has dimension %d, requested %d", ErrCollectionExists, name, existing, dimension)
	}
	if err != nil {
		if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
			span.RecordError(err)
			return collectionError("checking collection "+name, err)
		}
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return collectionError("creating collection "+name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteCollection removes a collection and all its documents.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	client, err := s.handle()
	if err != nil {
		return err
	}
	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	exists, err := client.CollectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		return collectionError("checking collection "+name, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	err = s.retryOperation(ctx, "delete_collection", func() error {
		return client.DeleteCollection(ctx, name)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return collectionError("deleting collection "+name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// ListCollections enumerates collection names.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.ListCollections")
	defer span.End()

	client, err := s.handle()
	if err != nil {
		return nil, err
	}

	var collections []string
	err = s.retryOperation(ctx, "list_collections", func() error {
		result, err := client.ListCollections(ctx)
		if err != nil {
			return err
		}
		collections = result
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, collectionError("listing collections", err)
	}

	span.SetAttributes(attribute.Int("collection_count", len(collections)))
	return collections, nil
}

// GetCollectionInfo reports a collection's point count and vector size.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.GetCollectionInfo")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	client, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	var info *CollectionInfo
	err = s.retryOperation(ctx, "get_collection_info", func() error {
		collInfo, err := client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
			}
			return err
		}
		pointCount := 0
		if collInfo.PointsCount != nil {
			pointCount = int(*collInfo.PointsCount)
		}
		info = &CollectionInfo{
			Name:       name,
			PointCount: pointCount,
			VectorSize: int(collInfo.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrCollectionNotFound) {
			span.SetStatus(codes.Error, "collection not found")
			return nil, err
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, collectionError("getting collection info for "+name, err)
	}

	span.SetAttributes(attribute.Int("point_count", info.PointCount))
	return info, nil
}

// UpsertDocuments inserts or replaces documents keyed by Document.ID.
// Duplicate IDs within a batch are deduplicated keeping the last
// occurrence, so last-write-wins holds regardless of backend behavior.
func (s *QdrantStore) UpsertDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.UpsertDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)

	client, err := s.handle()
	if err != nil {
		return err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		span.RecordError(err)
		return collectionError("checking collection "+collection, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	docs = dedupeByID(docs)

	texts := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: document %d has no ID", ErrCollection, i)
		}
		texts[i] = doc.Content
	}

	if s.embedder == nil {
		return fmt.Errorf("%w: no embedder configured", ErrEmbeddingFailed)
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		payload := make(map[string]*qdrant.Value, len(doc.Metadata)+2)
		payload[payloadContentKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.Content}}
		payload[payloadDocIDKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.ID}}
		for k, v := range doc.Metadata {
			if val := toQdrantValue(v); val != nil {
				payload[k] = val
			}
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return collectionError("upserting points to "+collection, err)
	}

	span.SetAttributes(attribute.Int("points_added", len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteDocuments removes documents by ID. Absent IDs are not an error;
// Qdrant treats deleting missing points as a no-op.
func (s *QdrantStore) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	client, err := s.handle()
	if err != nil {
		return err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	err = s.retryOperation(ctx, "delete", func() error {
		_, err := client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points:         qdrant.NewPointsSelector(pointIDs...),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return collectionError("deleting documents from "+collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// SimilaritySearch performs nearest-neighbor retrieval in a collection.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, collection string, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.SimilaritySearch")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("n_results", opts.NResults),
	)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	client, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	queryVector := opts.QueryVector
	if opts.QueryText != "" {
		if s.embedder == nil {
			return nil, fmt.Errorf("%w: no embedder configured for text queries", ErrEmbeddingFailed)
		}
		queryVector, err = s.embedder.EmbedQuery(ctx, opts.QueryText)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
	}

	filter := buildQdrantFilter(opts.Where)

	var points []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(opts.NResults)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, searchError("querying collection "+collection, err)
	}

	results := make([]SearchResult, len(points))
	for i, point := range points {
		docID, content, metadata := fromQdrantPayload(point.Payload)
		results[i] = NewSearchResult(docID, content, metadata, point.Score)
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// GetDocument fetches a document by ID. Returns (nil, nil) when absent.
func (s *QdrantStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.GetDocument")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	client, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	var points []*qdrant.RetrievedPoint
	err = s.retryOperation(ctx, "get_document", func() error {
		res, err := client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            []*qdrant.PointId{pointID(id)},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, collectionError("fetching document "+id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	docID, content, metadata := fromQdrantPayload(points[0].Payload)
	if docID == "" {
		docID = id
	}
	return &Document{ID: docID, Content: content, Metadata: metadata}, nil
}

// HealthCheck reports connectivity and backend health. Never errors.
func (s *QdrantStore) HealthCheck(ctx context.Context) HealthStatus {
	hs := HealthStatus{
		Backend:   string(BackendQdrant),
		CheckedAt: timeNow(),
	}

	client, err := s.handle()
	if err != nil {
		hs.Status = "disconnected"
		hs.Error = err.Error()
		return hs
	}
	hs.Connected = true

	if _, err := client.HealthCheck(ctx); err != nil {
		hs.Status = "error"
		hs.Error = err.Error()
		return hs
	}

	hs.Healthy = true
	hs.Status = "healthy"
	if collections, err := client.ListCollections(ctx); err == nil {
		hs.Collections = len(collections)
	}
	return hs
}

// dedupeByID removes duplicate document IDs keeping the last occurrence.
func dedupeByID(docs []Document) []Document {
	last := make(map[string]int, len(docs))
	for i, doc := range docs {
		last[doc.ID] = i
	}
	if len(last) == len(docs) {
		return docs
	}
	result := make([]Document, 0, len(last))
	for i, doc := range docs {
		if last[doc.ID] == i {
			result = append(result, doc)
		}
	}
	return result
}

// toQdrantValue converts a metadata value to a Qdrant payload value.
// Unsupported types are dropped.
func toQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case []string:
		values := make([]*qdrant.Value, len(val))
		for i, s := range val {
			values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	default:
		return nil
	}
}

// fromQdrantPayload extracts document ID, content and metadata from a
// point payload.
func fromQdrantPayload(payload map[string]*qdrant.Value) (string, string, map[string]interface{}) {
	var docID, content string
	metadata := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			if k == payloadContentKey {
				content = val.StringValue
				continue
			}
			if k == payloadDocIDKey {
				docID = val.StringValue
				continue
			}
			metadata[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			metadata[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			metadata[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			metadata[k] = val.BoolValue
		case *qdrant.Value_ListValue:
			items := make([]string, 0, len(val.ListValue.Values))
			for _, item := range val.ListValue.Values {
				if sv, ok := item.Kind.(*qdrant.Value_StringValue); ok {
					items = append(items, sv.StringValue)
				}
			}
			metadata[k] = items
		}
	}
	return docID, content, metadata
}

// buildQdrantFilter translates a where map to a Qdrant filter. Strings
// match exactly, string slices match any, bools and integers match
// exactly; range maps use $gte/$lte/$gt/$lt keys.
func buildQdrantFilter(where map[string]interface{}) *qdrant.Filter {
	if len(where) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(where))
	for key, value := range where {
		switch v := value.(type) {
		case string:
			conditions = append(conditions, fieldCondition(key, &qdrant.Match{
				MatchValue: &qdrant.Match_Keyword{Keyword: v},
			}, nil))
		case []string:
			conditions = append(conditions, fieldCondition(key, &qdrant.Match{
				MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: v}},
			}, nil))
		case bool:
			conditions = append(conditions, fieldCondition(key, &qdrant.Match{
				MatchValue: &qdrant.Match_Boolean{Boolean: v},
			}, nil))
		case int:
			conditions = append(conditions, fieldCondition(key, &qdrant.Match{
				MatchValue: &qdrant.Match_Integer{Integer: int64(v)},
			}, nil))
		case int64:
			conditions = append(conditions, fieldCondition(key, &qdrant.Match{
				MatchValue: &qdrant.Match_Integer{Integer: v},
			}, nil))
		case map[string]interface{}:
			if r := buildQdrantRange(v); r != nil {
				conditions = append(conditions, fieldCondition(key, nil, r))
			}
		}
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

func fieldCondition(key string, match *qdrant.Match, rng *qdrant.Range) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: match,
				Range: rng,
			},
		},
	}
}

func buildQdrantRange(spec map[string]interface{}) *qdrant.Range {
	r := &qdrant.Range{}
	set := false
	for op, raw := range spec {
		val, ok := toFloat64(raw)
		if !ok {
			continue
		}
		switch op {
		case "$gte":
			r.Gte = qdrant.PtrOf(val)
			set = true
		case "$lte":
			r.Lte = qdrant.PtrOf(val)
			set = true
		case "$gt":
			r.Gt = qdrant.PtrOf(val)
			set = true
		case "$lt":
			r.Lt = qdrant.PtrOf(val)
			set = true
		}
	}
	if !set {
		return nil
	}
	return r
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}
