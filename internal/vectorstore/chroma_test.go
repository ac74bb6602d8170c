package vectorstore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftorhq/driftor/internal/vectorstore"
)

// fakeChromaServer is an in-memory stand-in for ChromaDB's REST API,
// covering the endpoints the driver uses.
type fakeChromaServer struct {
	collections map[string]*fakeChromaCollection
	lastQuery   map[string]interface{}
	lastHeaders http.Header
}

type fakeChromaCollection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`

	docs map[string]fakeChromaDoc
}

type fakeChromaDoc struct {
	content  string
	metadata map[string]interface{}
}

func newFakeChromaServer() *fakeChromaServer {
	s := &fakeChromaServer{}
	s.collections = make(map[string]*fakeChromaCollection)
	return s
}

func (s *fakeChromaServer) byID(id string) *fakeChromaCollection {
	for _, coll := range s.collections {
		if coll.ID == id {
			return coll
		}
	}
	return nil
}

func (s *fakeChromaServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		s.lastHeaders = r.Header.Clone()
		json.NewEncoder(w).Encode(map[string]int64{"nanosecond heartbeat": time.Now().UnixNano()})
	})

	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			out := make([]*fakeChromaCollection, 0, len(s.collections))
			for _, coll := range s.collections {
				out = append(out, coll)
			}
			json.NewEncoder(w).Encode(out)
		case http.MethodPost:
			var req struct {
				Name     string                 `json:"name"`
				Metadata map[string]interface{} `json:"metadata"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			coll := &fakeChromaCollection{
				ID:       "id-" + req.Name,
				Name:     req.Name,
				Metadata: req.Metadata,
				docs:     make(map[string]fakeChromaDoc),
			}
			s.collections[req.Name] = coll
			json.NewEncoder(w).Encode(coll)
		}
	})

	mux.HandleFunc("/api/v1/collections/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/collections/")
		parts := strings.SplitN(rest, "/", 2)

		if len(parts) == 1 {
			// Addressed by name.
			coll, ok := s.collections[parts[0]]
			if !ok {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			switch r.Method {
			case http.MethodGet:
				json.NewEncoder(w).Encode(coll)
			case http.MethodDelete:
				delete(s.collections, parts[0])
				w.WriteHeader(http.StatusOK)
			}
			return
		}

		// Addressed by UUID for document operations.
		coll := s.byID(parts[0])
		if coll == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		switch parts[1] {
		case "count":
			json.NewEncoder(w).Encode(len(coll.docs))
		case "upsert":
			var req struct {
				IDs       []string                 `json:"ids"`
				Documents []string                 `json:"documents"`
				Metadatas []map[string]interface{} `json:"metadatas"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			for i, id := range req.IDs {
				doc := fakeChromaDoc{}
				if i < len(req.Documents) {
					doc.content = req.Documents[i]
				}
				if i < len(req.Metadatas) {
					doc.metadata = req.Metadatas[i]
				}
				coll.docs[id] = doc
			}
			w.WriteHeader(http.StatusOK)
		case "delete":
			var req struct {
				IDs []string `json:"ids"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			for _, id := range req.IDs {
				delete(coll.docs, id)
			}
			json.NewEncoder(w).Encode(req.IDs)
		case "get":
			var req struct {
				IDs []string `json:"ids"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			resp := struct {
				IDs       []string                 `json:"ids"`
				Documents []string                 `json:"documents"`
				Metadatas []map[string]interface{} `json:"metadatas"`
			}{IDs: []string{}}
			for _, id := range req.IDs {
				if doc, ok := coll.docs[id]; ok {
					resp.IDs = append(resp.IDs, id)
					resp.Documents = append(resp.Documents, doc.content)
					resp.Metadatas = append(resp.Metadatas, doc.metadata)
				}
			}
			json.NewEncoder(w).Encode(resp)
		case "query":
			json.NewDecoder(r.Body).Decode(&s.lastQuery)
			// Return all documents at fixed distances in insertion-free
			// deterministic order (sorted by ID).
			resp := struct {
				IDs       [][]string                 `json:"ids"`
				Documents [][]string                 `json:"documents"`
				Metadatas [][]map[string]interface{} `json:"metadatas"`
				Distances [][]float32                `json:"distances"`
			}{
				IDs:       [][]string{{}},
				Documents: [][]string{{}},
				Metadatas: [][]map[string]interface{}{{}},
				Distances: [][]float32{{}},
			}
			ids := make([]string, 0, len(coll.docs))
			for id := range coll.docs {
				ids = append(ids, id)
			}
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					if ids[j] < ids[i] {
						ids[i], ids[j] = ids[j], ids[i]
					}
				}
			}
			for i, id := range ids {
				doc := coll.docs[id]
				resp.IDs[0] = append(resp.IDs[0], id)
				resp.Documents[0] = append(resp.Documents[0], doc.content)
				resp.Metadatas[0] = append(resp.Metadatas[0], doc.metadata)
				resp.Distances[0] = append(resp.Distances[0], float32(i)*0.1)
			}
			json.NewEncoder(w).Encode(resp)
		default:
			http.Error(w, "unknown endpoint", http.StatusNotFound)
		}
	})

	return mux
}

func newConnectedChromaStore(t *testing.T) (*vectorstore.ChromaStore, *fakeChromaServer) {
	t.Helper()

	fake := newFakeChromaServer()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	store, err := vectorstore.NewChromaStore(
		vectorstore.ChromaConfig{URL: server.URL},
		&testEmbedder{vectorSize: testVectorSize},
		zap.NewNop(),
	)
	require.NoError(t, err)

	ok, err := store.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = store.Disconnect(context.Background()) })

	return store, fake
}

func TestChromaConfig_ApplyDefaults(t *testing.T) {
	config := vectorstore.ChromaConfig{}
	config.ApplyDefaults()

	assert.Equal(t, "http://localhost:8000", config.URL)
	assert.Equal(t, 30*time.Second, config.Timeout)
}

func TestChromaStore_ConnectUnreachable(t *testing.T) {
	store, err := vectorstore.NewChromaStore(
		vectorstore.ChromaConfig{URL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond},
		nil,
		zap.NewNop(),
	)
	require.NoError(t, err)

	// Network failure is recoverable: (false, nil).
	ok, err := store.Connect(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, store.IsConnected())
}

func TestChromaStore_ConnectRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	store, err := vectorstore.NewChromaStore(vectorstore.ChromaConfig{URL: server.URL}, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Connect(context.Background())
	assert.ErrorIs(t, err, vectorstore.ErrConnection)
}

func TestChromaStore_SendsConfiguredHeaders(t *testing.T) {
	fake := newFakeChromaServer()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	store, err := vectorstore.NewChromaStore(
		vectorstore.ChromaConfig{
			URL:     server.URL,
			Headers: map[string]string{"Authorization": "Bearer token123"},
		},
		nil,
		zap.NewNop(),
	)
	require.NoError(t, err)

	ok, err := store.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "Bearer token123", fake.lastHeaders.Get("Authorization"))
}

func TestChromaStore_CollectionLifecycle(t *testing.T) {
	store, _ := newConnectedChromaStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCollection(ctx, "tickets_acme", testVectorSize, nil))

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "tickets_acme")

	// Recreating with the same dimension is a no-op.
	require.NoError(t, store.CreateCollection(ctx, "tickets_acme", testVectorSize, nil))

	// A conflicting dimension is rejected.
	err = store.CreateCollection(ctx, "tickets_acme", testVectorSize*2, nil)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionExists)

	require.NoError(t, store.DeleteCollection(ctx, "tickets_acme"))
	assert.ErrorIs(t, store.DeleteCollection(ctx, "tickets_acme"), vectorstore.ErrCollectionNotFound)
}

func TestChromaStore_GetCollectionInfo(t *testing.T) {
	store, _ := newConnectedChromaStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "tickets_acme", testVectorSize, nil))

	require.NoError(t, store.UpsertDocuments(ctx, "tickets_acme", []vectorstore.Document{
		{ID: "ticket_acme_PROJ-1", Content: "Login broken"},
		{ID: "ticket_acme_PROJ-2", Content: "Checkout slow"},
	}))

	info, err := store.GetCollectionInfo(ctx, "tickets_acme")
	require.NoError(t, err)
	assert.Equal(t, "tickets_acme", info.Name)
	assert.Equal(t, 2, info.PointCount)
	assert.Equal(t, testVectorSize, info.VectorSize)

	_, err = store.GetCollectionInfo(ctx, "tickets_ghost")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestChromaStore_UpsertGetDelete(t *testing.T) {
	store, _ := newConnectedChromaStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "tickets_acme", testVectorSize, nil))

	doc := vectorstore.Document{
		ID:       "ticket_acme_PROJ-1",
		Content:  "Login broken",
		Metadata: map[string]interface{}{"tenant_id": "acme"},
	}
	require.NoError(t, store.UpsertDocuments(ctx, "tickets_acme", []vectorstore.Document{doc}))

	got, err := store.GetDocument(ctx, "tickets_acme", "ticket_acme_PROJ-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Login broken", got.Content)
	assert.Equal(t, "acme", got.Metadata["tenant_id"])

	// Absent documents come back as (nil, nil).
	missing, err := store.GetDocument(ctx, "tickets_acme", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.DeleteDocuments(ctx, "tickets_acme", []string{"ticket_acme_PROJ-1", "nonexistent"}))
	got, err = store.GetDocument(ctx, "tickets_acme", "ticket_acme_PROJ-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChromaStore_SimilaritySearch(t *testing.T) {
	store, fake := newConnectedChromaStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "docs_acme", testVectorSize, nil))

	docs := []vectorstore.Document{
		{ID: "a", Content: "first doc", Metadata: map[string]interface{}{"doc_type": "runbook"}},
		{ID: "b", Content: "second doc", Metadata: map[string]interface{}{"doc_type": "faq"}},
	}
	require.NoError(t, store.UpsertDocuments(ctx, "docs_acme", docs))

	results, err := store.SimilaritySearch(ctx, "docs_acme", vectorstore.SearchOptions{
		QueryText: "first",
		Where:     map[string]interface{}{"doc_type": []string{"runbook", "faq"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Score is derived from the reported distance.
	assert.Equal(t, "a", results[0].DocumentID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.1, results[1].Distance, 1e-6)
	assert.InDelta(t, 0.9, results[1].Score, 1e-6)

	// Slice filters translate to $in conditions on the wire.
	where, ok := fake.lastQuery["where"].(map[string]interface{})
	require.True(t, ok)
	docType, ok := where["doc_type"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, docType, "$in")

	// The client-side embedder produced the query embedding.
	assert.Contains(t, fake.lastQuery, "query_embeddings")
}

func TestChromaStore_SimilaritySearchValidation(t *testing.T) {
	store, _ := newConnectedChromaStore(t)

	_, err := store.SimilaritySearch(context.Background(), "docs_acme", vectorstore.SearchOptions{})
	assert.ErrorIs(t, err, vectorstore.ErrInvalidQuery)
}

func TestChromaStore_OperationsRequireConnection(t *testing.T) {
	store, err := vectorstore.NewChromaStore(vectorstore.ChromaConfig{}, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, store.UpsertDocuments(ctx, "tickets_acme", []vectorstore.Document{{ID: "a"}}), vectorstore.ErrNotConnected)

	_, err = store.ListCollections(ctx)
	assert.ErrorIs(t, err, vectorstore.ErrNotConnected)

	_, err = store.GetCollectionInfo(ctx, "tickets_acme")
	assert.ErrorIs(t, err, vectorstore.ErrNotConnected)
}

func TestChromaStore_HealthCheck(t *testing.T) {
	store, _ := newConnectedChromaStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCollection(ctx, "tickets_acme", testVectorSize, nil))

	status := store.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.Collections)
	assert.Equal(t, string(vectorstore.BackendChromaDB), status.Backend)
}
