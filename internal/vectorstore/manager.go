package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager owns the lifecycle of a Store and the Service built on it.
// The store is constructed and connected lazily on first use, so a
// process can start while the backend is still coming up.
type Manager struct {
	config   Config
	embedder Embedder
	logger   *zap.Logger

	mu      sync.Mutex
	store   Store
	service *Service
	closed  bool
}

// NewManager creates a Manager. No connection is made until Service or
// Store is first called.
func NewManager(config Config, embedder Embedder, logger *zap.Logger) (*Manager, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Service returns the shared Service, building and connecting the
// underlying store on first call.
func (m *Manager) Service(ctx context.Context) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("%w: manager closed", ErrNotConnected)
	}
	if err := m.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return m.service, nil
}

// Store returns the connected Store, building it on first call.
func (m *Manager) Store(ctx context.Context) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("%w: manager closed", ErrNotConnected)
	}
	if err := m.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return m.store, nil
}

// ensureLocked builds the store if needed and ensures it is connected.
// Caller holds m.mu.
func (m *Manager) ensureLocked(ctx context.Context) error {
	if m.store == nil {
		store, err := New(m.config, m.embedder, m.logger)
		if err != nil {
			return err
		}
		service, err := NewService(store, m.config.VectorSize, m.logger)
		if err != nil {
			return err
		}
		m.store = store
		m.service = service
	}

	ok, err := m.store.EnsureConnected(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s backend not reachable", ErrBackendUnavailable, m.config.Backend)
	}
	return nil
}

// Reconnect tears down the current store and rebuilds it on next use.
// Used after configuration changes or to recover from a wedged client.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Disconnect(ctx); err != nil {
			m.logger.Warn("disconnect during reconnect failed", zap.Error(err))
		}
	}
	m.store = nil
	m.service = nil
	return m.ensureLocked(ctx)
}

// Health reports the current store's health. When no store has been
// built yet the status reports disconnected.
func (m *Manager) Health(ctx context.Context) HealthStatus {
	m.mu.Lock()
	store := m.store
	m.mu.Unlock()

	if store == nil {
		return HealthStatus{
			Backend:   string(m.config.Backend),
			Status:    "disconnected",
			CheckedAt: timeNow(),
		}
	}
	status := store.HealthCheck(ctx)
	UpdateHealthMetrics(status)
	return status
}

// Close disconnects the store. The manager cannot be reused after Close.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.store == nil {
		return nil
	}
	err := m.store.Disconnect(ctx)
	m.store = nil
	m.service = nil
	return err
}
