package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// serviceTracer for OpenTelemetry instrumentation.
var serviceTracer = otel.Tracer("driftor.vectorstore.service")

// Collection kinds maintained per tenant.
const (
	collectionKindTickets       = "tickets"
	collectionKindDocumentation = "documentation"
	collectionKindCode          = "code"
)

// Service exposes triage-domain operations over a Store: indexing
// tickets, documentation pages and code files, and searching each.
//
// Every tenant gets three collections (tickets_{tenant},
// documentation_{tenant}, code_{tenant}). The tenant is taken from the
// request context; operations fail closed with ErrMissingTenant when
// no tenant is set. Documents additionally carry tenant_id metadata and
// searches filter on it, so a misrouted collection name cannot leak
// another tenant's documents.
type Service struct {
	store      Store
	vectorSize int
	logger     *zap.Logger
}

// NewService creates a Service over store. vectorSize is the embedding
// dimensionality used when creating collections.
func NewService(store Store, vectorSize int, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store required", ErrInvalidConfig)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive, got %d", ErrInvalidConfig, vectorSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		vectorSize: vectorSize,
		logger:     logger,
	}, nil
}

// collectionNameForTenant derives a valid collection name from a kind
// and tenant ID. Tenant IDs are lowercased and characters outside
// [a-z0-9_] map to underscore; the result is capped at 64 characters.
func collectionNameForTenant(kind, tenantID string) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('_')
	for _, r := range strings.ToLower(tenantID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

func (s *Service) tenantCollection(ctx context.Context, kind string) (string, *TenantInfo, error) {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return "", nil, err
	}
	return collectionNameForTenant(kind, tenant.TenantID), tenant, nil
}

// EnsureTenantCollections creates the tenant's collections if they do
// not exist. Safe to call repeatedly.
func (s *Service) EnsureTenantCollections(ctx context.Context) error {
	ctx, span := serviceTracer.Start(ctx, "Service.EnsureTenantCollections")
	defer span.End()

	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("tenant_id", tenant.TenantID))

	for _, kind := range []string{collectionKindTickets, collectionKindDocumentation, collectionKindCode} {
		name := collectionNameForTenant(kind, tenant.TenantID)
		err := s.store.CreateCollection(ctx, name, s.vectorSize, map[string]interface{}{
			"tenant_id": tenant.TenantID,
			"kind":      kind,
		})
		if err != nil {
			return fmt.Errorf("ensuring collection %s: %w", name, err)
		}
	}

	s.logger.Debug("tenant collections ready", zap.String("tenant_id", tenant.TenantID))
	return nil
}

// IndexTicket normalizes and upserts a ticket. Returns the document ID.
// Re-indexing the same ticket replaces the prior version.
func (s *Service) IndexTicket(ctx context.Context, ticket Ticket, classification Classification) (string, error) {
	ctx, span := serviceTracer.Start(ctx, "Service.IndexTicket")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_key", ticket.Key))

	start := time.Now()
	collection, tenant, err := s.tenantCollection(ctx, collectionKindTickets)
	if err != nil {
		return "", err
	}

	doc, err := PrepareTicketDocument(ticket, classification, tenant.TenantID)
	if err != nil {
		return "", err
	}

	err = s.store.UpsertDocuments(ctx, collection, []Document{doc})
	observeOperation("upsert", start, err)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("indexing ticket %s: %w", ticket.Key, err)
	}
	DocumentsUpserted.WithLabelValues(string(DocumentTypeTicket)).Inc()

	s.logger.Info("indexed ticket",
		zap.String("ticket_key", ticket.Key),
		zap.String("tenant_id", tenant.TenantID),
		zap.String("doc_id", doc.ID),
	)
	return doc.ID, nil
}

// IndexDocumentation normalizes and upserts documentation pages.
// Returns the number of documents written. Pages with no usable body
// are skipped.
func (s *Service) IndexDocumentation(ctx context.Context, pages []DocPage) (int, error) {
	ctx, span := serviceTracer.Start(ctx, "Service.IndexDocumentation")
	defer span.End()
	span.SetAttributes(attribute.Int("page_count", len(pages)))

	start := time.Now()
	collection, tenant, err := s.tenantCollection(ctx, collectionKindDocumentation)
	if err != nil {
		return 0, err
	}

	docs := make([]Document, 0, len(pages))
	for _, page := range pages {
		doc := PrepareDocumentationDocument(page, tenant.TenantID)
		if strings.TrimSpace(doc.Content) == "" {
			s.logger.Debug("skipping empty documentation page",
				zap.String("title", page.Title),
				zap.String("url", page.URL),
			)
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	err = s.store.UpsertDocuments(ctx, collection, docs)
	observeOperation("upsert", start, err)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("indexing documentation: %w", err)
	}
	DocumentsUpserted.WithLabelValues(string(DocumentTypeDocumentation)).Add(float64(len(docs)))

	s.logger.Info("indexed documentation",
		zap.Int("pages", len(docs)),
		zap.String("tenant_id", tenant.TenantID),
	)
	return len(docs), nil
}

// IndexCodeFiles normalizes and upserts source files from a repository.
// Returns the number of documents written. Empty files are skipped.
func (s *Service) IndexCodeFiles(ctx context.Context, files []CodeFile, repo RepoInfo) (int, error) {
	ctx, span := serviceTracer.Start(ctx, "Service.IndexCodeFiles")
	defer span.End()
	span.SetAttributes(
		attribute.Int("file_count", len(files)),
		attribute.String("repository", repo.Owner+"/"+repo.Repo),
	)

	start := time.Now()
	collection, tenant, err := s.tenantCollection(ctx, collectionKindCode)
	if err != nil {
		return 0, err
	}

	docs := make([]Document, 0, len(files))
	for _, file := range files {
		if strings.TrimSpace(file.Content) == "" {
			continue
		}
		docs = append(docs, PrepareCodeDocument(file, repo, tenant.TenantID))
	}
	if len(docs) == 0 {
		return 0, nil
	}

	err = s.store.UpsertDocuments(ctx, collection, docs)
	observeOperation("upsert", start, err)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("indexing code files: %w", err)
	}
	DocumentsUpserted.WithLabelValues(string(DocumentTypeCode)).Add(float64(len(docs)))

	s.logger.Info("indexed code files",
		zap.Int("files", len(docs)),
		zap.String("tenant_id", tenant.TenantID),
	)
	return len(docs), nil
}

// SearchSimilarTickets finds tickets similar to queryText. filters are
// optional metadata equality filters (component, severity and the
// like); attempting to filter on tenant_id is rejected.
func (s *Service) SearchSimilarTickets(ctx context.Context, queryText string, limit int, filters map[string]interface{}) ([]SearchResult, error) {
	return s.search(ctx, collectionKindTickets, queryText, limit, filters)
}

// SearchDocumentation finds documentation pages relevant to queryText.
// docTypes optionally restricts results to the given doc_type values.
func (s *Service) SearchDocumentation(ctx context.Context, queryText string, limit int, docTypes []string) ([]SearchResult, error) {
	var filters map[string]interface{}
	if len(docTypes) > 0 {
		filters = map[string]interface{}{"doc_type": docTypes}
	}
	return s.search(ctx, collectionKindDocumentation, queryText, limit, filters)
}

// SearchCode finds source files relevant to queryText. language and
// repository are optional equality filters; repository is an
// "owner/repo" string.
func (s *Service) SearchCode(ctx context.Context, queryText string, limit int, language, repository string) ([]SearchResult, error) {
	filters := make(map[string]interface{})
	if language != "" {
		filters["language"] = language
	}
	if repository != "" {
		filters["repository"] = repository
	}
	if len(filters) == 0 {
		filters = nil
	}
	return s.search(ctx, collectionKindCode, queryText, limit, filters)
}

func (s *Service) search(ctx context.Context, kind, queryText string, limit int, filters map[string]interface{}) ([]SearchResult, error) {
	ctx, span := serviceTracer.Start(ctx, "Service.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("kind", kind),
		attribute.Int("limit", limit),
	)

	start := time.Now()
	collection, tenant, err := s.tenantCollection(ctx, kind)
	if err != nil {
		return nil, err
	}

	where, err := ApplyTenantFilter(filters, tenant)
	if err != nil {
		return nil, err
	}

	results, err := s.store.SimilaritySearch(ctx, collection, SearchOptions{
		QueryText: queryText,
		NResults:  limit,
		Where:     where,
	})
	observeOperation("search", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	SearchResultsReturned.Observe(float64(len(results)))
	span.SetAttributes(attribute.Int("results_count", len(results)))
	return results, nil
}

// GetTicket fetches an indexed ticket document by its ticket key.
// Returns (nil, nil) when the ticket has not been indexed.
func (s *Service) GetTicket(ctx context.Context, ticketKey string) (*Document, error) {
	collection, tenant, err := s.tenantCollection(ctx, collectionKindTickets)
	if err != nil {
		return nil, err
	}
	return s.store.GetDocument(ctx, collection, TicketDocumentID(ticketKey, tenant.TenantID))
}

// DeleteTicket removes an indexed ticket. Deleting a ticket that was
// never indexed is a no-op.
func (s *Service) DeleteTicket(ctx context.Context, ticketKey string) error {
	start := time.Now()
	collection, tenant, err := s.tenantCollection(ctx, collectionKindTickets)
	if err != nil {
		return err
	}
	err = s.store.DeleteDocuments(ctx, collection, []string{TicketDocumentID(ticketKey, tenant.TenantID)})
	observeOperation("delete", start, err)
	return err
}

// CleanupTenant deletes all of the tenant's collections and their
// documents. Collections that do not exist are skipped.
func (s *Service) CleanupTenant(ctx context.Context) error {
	ctx, span := serviceTracer.Start(ctx, "Service.CleanupTenant")
	defer span.End()

	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("tenant_id", tenant.TenantID))

	for _, kind := range []string{collectionKindTickets, collectionKindDocumentation, collectionKindCode} {
		name := collectionNameForTenant(kind, tenant.TenantID)
		if err := s.store.DeleteCollection(ctx, name); err != nil {
			if errors.Is(err, ErrCollectionNotFound) {
				continue
			}
			return fmt.Errorf("cleaning up %s: %w", name, err)
		}
	}

	s.logger.Info("tenant data removed", zap.String("tenant_id", tenant.TenantID))
	return nil
}

// Health reports the underlying store's health and publishes it to
// Prometheus.
func (s *Service) Health(ctx context.Context) HealthStatus {
	status := s.store.HealthCheck(ctx)
	UpdateHealthMetrics(status)
	return status
}
