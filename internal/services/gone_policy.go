package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bipbip/bips-backend/internal/metrics"
)

// IgnoreGone only records stale connections; the registry keeps them until
// their disconnect event arrives.
func IgnoreGone(logger *zap.Logger) GoneHandler {
	return func(_ context.Context, connectionID string) {
		logger.Debug("stale connection left registered", zap.String("connection_id", connectionID))
	}
}

// UnregisterOnGone removes stale connections inline, during the fan-out.
func UnregisterOnGone(registry *ConnectionRegistry, logger *zap.Logger, m *metrics.Metrics) GoneHandler {
	return func(ctx context.Context, connectionID string) {
		if err := registry.Unregister(ctx, connectionID); err != nil {
			logger.Warn("failed to unregister stale connection", zap.String("connection_id", connectionID), zap.Error(err))
			return
		}
		m.Reaped(1)
	}
}

// GoneReaper collects stale connection ids during fan-outs and unregisters
// them later from its own goroutine.
type GoneReaper struct {
	registry *ConnectionRegistry
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewGoneReaper(registry *ConnectionRegistry, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *GoneReaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &GoneReaper{
		registry: registry,
		interval: interval,
		logger:   logger,
		metrics:  m,
		pending:  make(map[string]struct{}),
	}
}

// Handler queues ids for the next reap.
func (r *GoneReaper) Handler() GoneHandler {
	return func(_ context.Context, connectionID string) {
		r.mu.Lock()
		r.pending[connectionID] = struct{}{}
		r.mu.Unlock()
	}
}

// Pending returns how many ids wait for the next reap.
func (r *GoneReaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Reap unregisters every queued id. Ids that fail stay queued.
func (r *GoneReaper) Reap(ctx context.Context) int {
	r.mu.Lock()
	batch := make([]string, 0, len(r.pending))
	for id := range r.pending {
		batch = append(batch, id)
	}
	r.pending = make(map[string]struct{})
	r.mu.Unlock()

	reaped := 0
	for _, id := range batch {
		if err := r.registry.Unregister(ctx, id); err != nil {
			r.logger.Warn("failed to reap stale connection", zap.String("connection_id", id), zap.Error(err))
			r.mu.Lock()
			r.pending[id] = struct{}{}
			r.mu.Unlock()
			continue
		}
		reaped++
	}
	if reaped > 0 {
		r.metrics.Reaped(reaped)
		r.logger.Info("reaped stale connections", zap.Int("count", reaped))
	}
	return reaped
}

// Run reaps every interval until ctx is done, then once more.
func (r *GoneReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.Reap(flushCtx)
			cancel()
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}
