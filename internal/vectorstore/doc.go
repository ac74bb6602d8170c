// Package vectorstore provides a backend-agnostic vector storage abstraction
// for ticket triage retrieval.
//
// The package normalizes heterogeneous source records (support tickets,
// documentation pages, source-code files) into a single document schema and
// stores them in a vector database for semantic similarity search. It offers
// a unified Store contract with multiple backend implementations and enforces
// strict multi-tenant isolation.
//
// # Document Schema
//
// Every indexed record is a Document{ID, Content, Metadata}. IDs are
// deterministic for a given source record and tenant, so re-ingestion is an
// idempotent upsert:
//
//   - Tickets: ticket_{tenant_id}_{ticket_key}
//   - Documentation: doc_{tenant_id}_{hash of url-or-title}
//   - Code: code_{tenant_id}_{hash of repo_path}
//
// Metadata always carries tenant_id and document_type (ticket, documentation
// or code). List-valued fields are capped (keywords <= 10, labels <= 5) and
// the description stored in metadata is truncated to 500 characters; the full
// text lives only in Content.
//
// # Store Contract
//
// Store is implemented once per backend product. All operations besides
// Connect, HealthCheck and IsConnected require a prior successful Connect and
// fail with ErrNotConnected otherwise:
//
//	store, err := vectorstore.New(cfg.VectorStore, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	ok, err := store.Connect(ctx)
//	if err != nil {
//	    return err
//	}
//	defer store.Disconnect(context.Background())
//
//	doc, err := vectorstore.PrepareTicketDocument(ticket, classification, "tenant-a")
//	if err != nil {
//	    return err
//	}
//	if err := store.UpsertDocuments(ctx, "tickets_tenant_a", []vectorstore.Document{doc}); err != nil {
//	    return err
//	}
//
//	results, err := store.SimilaritySearch(ctx, "tickets_tenant_a", vectorstore.SearchOptions{
//	    QueryText: "login fails with NPE",
//	    NResults:  10,
//	    Where:     map[string]interface{}{"tenant_id": "tenant-a"},
//	})
//
// # Backends
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default for local dev and tests)
//   - QdrantStore: external Qdrant service via gRPC
//   - ChromaStore: external ChromaDB service via HTTP REST
//
// Pinecone and Weaviate are recognized backend identifiers but no driver
// ships in this build; the factory reports ErrBackendUnavailable for them.
//
// # Error Taxonomy
//
// Backend-native errors never cross a Store method boundary. They are
// wrapped into one of three kinds, all matching the base ErrVectorStore:
//
//   - ErrConnection: session establishment, auth, or operations while
//     disconnected
//   - ErrCollection: collection lifecycle and existence conflicts
//   - ErrSearch: query execution failures
//
// Non-fatal conditions (document not found, empty results, deleting an
// absent id) are normal return values, never errors. HealthCheck never
// returns an error; failures surface as fields of the HealthStatus record.
//
// # Tenant Isolation
//
// Documents and queries carry tenant_id metadata. The Service layer injects
// the tenant filter from context on every search and rejects user filters
// that attempt to set tenant fields (fail closed):
//
//	ctx = vectorstore.ContextWithTenant(ctx, &vectorstore.TenantInfo{TenantID: "tenant-a"})
//	results, err := svc.SearchSimilarTickets(ctx, "payment timeout", 10, nil)
package vectorstore
