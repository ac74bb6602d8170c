package vectorstore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftorhq/driftor/internal/vectorstore"
)

// testEmbedder returns deterministic normalized vectors for testing.
type testEmbedder struct {
	vectorSize int
}

func (e *testEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.makeEmbedding(text)
	}
	return embeddings, nil
}

func (e *testEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.makeEmbedding(text), nil
}

// makeEmbedding creates a normalized embedding based on text hash.
func (e *testEmbedder) makeEmbedding(text string) []float32 {
	embedding := make([]float32, e.vectorSize)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	var sumSq float32
	for i := range embedding {
		embedding[i] = float32((hash+i)%100) / 100.0
		sumSq += embedding[i] * embedding[i]
	}
	// chromem requires unit vectors
	if sumSq > 0 {
		norm := float32(1.0) / sqrt32(sumSq)
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x / 2
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}

const testVectorSize = 64

// newConnectedChromemStore returns an in-memory store that is already
// connected.
func newConnectedChromemStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()

	store, err := vectorstore.NewChromemStore(
		vectorstore.ChromemConfig{},
		&testEmbedder{vectorSize: testVectorSize},
		zap.NewNop(),
	)
	require.NoError(t, err)

	ok, err := store.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	t.Cleanup(func() {
		_ = store.Disconnect(context.Background())
	})
	return store
}

// storeCall records a single Store method invocation on fakeStore.
type storeCall struct {
	method     string
	collection string
	docs       []vectorstore.Document
	ids        []string
	opts       vectorstore.SearchOptions
}

// fakeStore is a scriptable Store for service and manager tests.
type fakeStore struct {
	mu    sync.Mutex
	calls []storeCall

	connected     bool
	healthy       bool
	searchResults []vectorstore.SearchResult
	getResult     *vectorstore.Document
	err           error
}

var _ vectorstore.Store = (*fakeStore)(nil)

func (f *fakeStore) record(call storeCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeStore) callsFor(method string) []storeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storeCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeStore) Connect(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.connected = true
	return true, nil
}

func (f *fakeStore) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeStore) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStore) EnsureConnected(ctx context.Context) (bool, error) {
	if f.IsConnected() {
		return true, nil
	}
	return f.Connect(ctx)
}

func (f *fakeStore) CreateCollection(ctx context.Context, name string, dimension int, metadata map[string]interface{}) error {
	f.record(storeCall{method: "CreateCollection", collection: name})
	return f.err
}

func (f *fakeStore) DeleteCollection(ctx context.Context, name string) error {
	f.record(storeCall{method: "DeleteCollection", collection: name})
	return f.err
}

func (f *fakeStore) ListCollections(ctx context.Context) ([]string, error) {
	f.record(storeCall{method: "ListCollections"})
	return nil, f.err
}

func (f *fakeStore) GetCollectionInfo(ctx context.Context, name string) (*vectorstore.CollectionInfo, error) {
	f.record(storeCall{method: "GetCollectionInfo", collection: name})
	if f.err != nil {
		return nil, f.err
	}
	return &vectorstore.CollectionInfo{Name: name}, nil
}

func (f *fakeStore) UpsertDocuments(ctx context.Context, collection string, docs []vectorstore.Document) error {
	f.record(storeCall{method: "UpsertDocuments", collection: collection, docs: docs})
	return f.err
}

func (f *fakeStore) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	f.record(storeCall{method: "DeleteDocuments", collection: collection, ids: ids})
	return f.err
}

func (f *fakeStore) SimilaritySearch(ctx context.Context, collection string, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	f.record(storeCall{method: "SimilaritySearch", collection: collection, opts: opts})
	if f.err != nil {
		return nil, f.err
	}
	return f.searchResults, nil
}

func (f *fakeStore) GetDocument(ctx context.Context, collection, id string) (*vectorstore.Document, error) {
	f.record(storeCall{method: "GetDocument", collection: collection, ids: []string{id}})
	if f.err != nil {
		return nil, f.err
	}
	return f.getResult, nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) vectorstore.HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := "unhealthy"
	if f.healthy {
		status = "healthy"
	}
	return vectorstore.HealthStatus{
		Healthy:   f.healthy,
		Status:    status,
		Backend:   "fake",
		Connected: f.connected,
	}
}

func (f *fakeStore) setHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}
