package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor polls a Store's health on an interval and notifies
// registered callbacks on transitions between healthy and unhealthy.
type HealthMonitor struct {
	store         Store
	checkInterval time.Duration
	checkTimeout  time.Duration

	healthy    atomic.Bool
	lastStatus atomic.Value // HealthStatus

	mu        sync.RWMutex // protects callbacks slice
	callbacks []func(bool)

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewHealthMonitor creates a health monitor for store. The monitor is
// inert until Start is called. checkInterval defaults to 30s when zero.
func NewHealthMonitor(ctx context.Context, store Store, checkInterval time.Duration, logger *zap.Logger) *HealthMonitor {
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)

	hm := &HealthMonitor{
		store:         store,
		checkInterval: checkInterval,
		checkTimeout:  10 * time.Second,
		callbacks:     make([]func(bool), 0),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}

	// Seed with the current status so IsHealthy is meaningful before
	// the first tick.
	hm.observe(store.HealthCheck(ctx))
	return hm
}

// Start begins periodic health checks.
func (hm *HealthMonitor) Start() {
	go hm.runPeriodicCheck()
}

func (hm *HealthMonitor) runPeriodicCheck() {
	ticker := time.NewTicker(hm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hm.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(hm.ctx, hm.checkTimeout)
			status := hm.store.HealthCheck(ctx)
			cancel()
			hm.observe(status)
		}
	}
}

// observe records a health status and notifies callbacks on transition.
func (hm *HealthMonitor) observe(status HealthStatus) {
	previous := hm.healthy.Load()
	hm.healthy.Store(status.Healthy)
	hm.lastStatus.Store(status)

	if previous != status.Healthy {
		hm.logger.Info("vector store health changed",
			zap.Bool("healthy", status.Healthy),
			zap.Bool("previous", previous),
			zap.String("backend", status.Backend),
			zap.String("status", status.Status),
		)
		hm.notifyCallbacks(status.Healthy)
	}
}

// IsHealthy returns the most recently observed health status.
func (hm *HealthMonitor) IsHealthy() bool {
	return hm.healthy.Load()
}

// LastStatus returns the most recently observed HealthStatus.
func (hm *HealthMonitor) LastStatus() HealthStatus {
	v := hm.lastStatus.Load()
	if v == nil {
		return HealthStatus{}
	}
	return v.(HealthStatus)
}

// RegisterCallback adds a callback invoked on each health transition.
func (hm *HealthMonitor) RegisterCallback(cb func(healthy bool)) error {
	if cb == nil {
		return fmt.Errorf("health: callback cannot be nil")
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.callbacks = append(hm.callbacks, cb)
	return nil
}

// notifyCallbacks fires callbacks outside the lock, each in its own
// goroutine so a slow callback cannot stall the monitor.
func (hm *HealthMonitor) notifyCallbacks(healthy bool) {
	hm.mu.RLock()
	callbacks := make([]func(bool), len(hm.callbacks))
	copy(callbacks, hm.callbacks)
	hm.mu.RUnlock()

	for _, cb := range callbacks {
		go func(callback func(bool)) {
			defer func() {
				if r := recover(); r != nil {
					hm.logger.Error("health callback panic", zap.Any("panic", r))
				}
			}()
			callback(healthy)
		}(cb)
	}
}

// Stop shuts down the monitor. Registered callbacks are not invoked
// after Stop returns.
func (hm *HealthMonitor) Stop() {
	hm.cancel()
}
