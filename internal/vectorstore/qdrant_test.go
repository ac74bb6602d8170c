package vectorstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/driftorhq/driftor/internal/vectorstore"
)

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	config := vectorstore.QdrantConfig{}
	config.ApplyDefaults()

	assert.Equal(t, "localhost", config.Host)
	assert.Equal(t, 6334, config.Port)
	assert.Equal(t, 5*time.Second, config.ConnectTimeout)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, time.Second, config.RetryBackoff)
	assert.Equal(t, 50*1024*1024, config.MaxMessageSize)
	assert.Equal(t, 5, config.CircuitBreakerThreshold)
}

func TestQdrantConfig_ApplyDefaultsKeepsExplicit(t *testing.T) {
	config := vectorstore.QdrantConfig{Host: "qdrant.internal", Port: 7000}
	config.ApplyDefaults()

	assert.Equal(t, "qdrant.internal", config.Host)
	assert.Equal(t, 7000, config.Port)
}

func TestQdrantConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    vectorstore.QdrantConfig
		wantError bool
	}{
		{name: "valid", config: vectorstore.QdrantConfig{Host: "localhost", Port: 6334}},
		{name: "missing host", config: vectorstore.QdrantConfig{Port: 6334}, wantError: true},
		{name: "zero port", config: vectorstore.QdrantConfig{Host: "localhost"}, wantError: true},
		{name: "port too large", config: vectorstore.QdrantConfig{Host: "localhost", Port: 70000}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantError {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unavailable", err: status.Error(grpccodes.Unavailable, "down"), want: true},
		{name: "deadline exceeded", err: status.Error(grpccodes.DeadlineExceeded, "slow"), want: true},
		{name: "aborted", err: status.Error(grpccodes.Aborted, "conflict"), want: true},
		{name: "resource exhausted", err: status.Error(grpccodes.ResourceExhausted, "quota"), want: true},
		{name: "not found", err: status.Error(grpccodes.NotFound, "missing"), want: false},
		{name: "invalid argument", err: status.Error(grpccodes.InvalidArgument, "bad"), want: false},
		{name: "permission denied", err: status.Error(grpccodes.PermissionDenied, "no"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vectorstore.IsTransientError(tt.err))
		})
	}
}

func TestNewQdrantStore(t *testing.T) {
	t.Run("no network at construction", func(t *testing.T) {
		store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{}, nil, zap.NewNop())
		require.NoError(t, err)
		assert.False(t, store.IsConnected())
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{Port: -1}, nil, zap.NewNop())
		assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
	})
}

func TestQdrantStore_OperationsRequireConnection(t *testing.T) {
	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{}, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, store.CreateCollection(ctx, "tickets_acme", 1536, nil), vectorstore.ErrNotConnected)
	assert.ErrorIs(t, store.DeleteCollection(ctx, "tickets_acme"), vectorstore.ErrNotConnected)
	assert.ErrorIs(t, store.UpsertDocuments(ctx, "tickets_acme", nil), vectorstore.ErrNotConnected)
	assert.ErrorIs(t, store.DeleteDocuments(ctx, "tickets_acme", []string{"a"}), vectorstore.ErrNotConnected)

	_, err = store.ListCollections(ctx)
	assert.ErrorIs(t, err, vectorstore.ErrNotConnected)

	_, err = store.SimilaritySearch(ctx, "tickets_acme", vectorstore.SearchOptions{QueryVector: []float32{1}})
	assert.ErrorIs(t, err, vectorstore.ErrNotConnected)

	_, err = store.GetDocument(ctx, "tickets_acme", "a")
	assert.ErrorIs(t, err, vectorstore.ErrNotConnected)

	_, err = store.GetCollectionInfo(ctx, "tickets_acme")
	assert.ErrorIs(t, err, vectorstore.ErrNotConnected)
}

func TestQdrantStore_DisconnectNeverConnected(t *testing.T) {
	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{}, nil, zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, store.Disconnect(context.Background()))
	assert.False(t, store.IsConnected())
}

func TestQdrantStore_HealthCheckDisconnected(t *testing.T) {
	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{}, nil, zap.NewNop())
	require.NoError(t, err)

	status := store.HealthCheck(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Connected)
	assert.Equal(t, "disconnected", status.Status)
	assert.Equal(t, string(vectorstore.BackendQdrant), status.Backend)
}
