package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bipbip/bips-backend/internal/metrics"
	"github.com/bipbip/bips-backend/internal/models"
)

// Pusher delivers a payload to one connection. It returns an error wrapping
// ErrGone when the recipient is no longer reachable.
type Pusher interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}

// ConnectionLister is the part of the registry fan-out reads.
type ConnectionLister interface {
	ListAll(ctx context.Context) ([]string, error)
}

// GoneHandler is told about every connection that answered with ErrGone.
type GoneHandler func(ctx context.Context, connectionID string)

// Dispatcher broadcasts push events to every registered connection.
type Dispatcher struct {
	registry    ConnectionLister
	pusher      Pusher
	onGone      GoneHandler
	concurrency int
	sendTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// DispatcherOptions tunes a Dispatcher. Zero values take the defaults.
type DispatcherOptions struct {
	// Concurrency bounds simultaneous deliveries. Defaults to 16.
	Concurrency int
	// SendTimeout bounds each delivery. Defaults to 5s.
	SendTimeout time.Duration
	// OnGone is called for stale connections. Nil only logs them.
	OnGone GoneHandler
}

// NewDispatcher returns a dispatcher pushing through pusher to every id registry lists.
func NewDispatcher(registry ConnectionLister, pusher Pusher, opts DispatcherOptions, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.OnGone == nil {
		opts.OnGone = IgnoreGone(logger)
	}
	return &Dispatcher{
		registry:    registry,
		pusher:      pusher,
		onGone:      opts.OnGone,
		concurrency: opts.Concurrency,
		sendTimeout: opts.SendTimeout,
		logger:      logger,
		metrics:     m,
	}
}

// NotifyAll attempts to deliver event to every connection in a registry
// snapshot and returns how many deliveries were attempted, not how many
// succeeded. Individual failures never stop the batch. It returns only after
// every attempt has finished.
func (d *Dispatcher) NotifyAll(ctx context.Context, event models.PushEvent) (int, error) {
	ids, err := d.registry.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	d.metrics.ConnectionsSeen(len(ids))
	if len(ids) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return 0, errors.Wrap(err, "encode push event")
	}

	// a plain Group: one failed delivery must not cancel the others
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			d.deliver(ctx, id, payload)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Debug("fan-out done", zap.String("kind", event.Kind), zap.Int("attempted", len(ids)))
	return len(ids), nil
}

func (d *Dispatcher) deliver(ctx context.Context, connectionID string, payload []byte) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	err := d.pusher.Send(sendCtx, connectionID, payload)
	switch {
	case err == nil:
		d.metrics.Pushed(metrics.PushOK)
	case errors.Is(err, ErrGone):
		d.metrics.Pushed(metrics.PushGone)
		d.logger.Info("push target gone", zap.String("connection_id", connectionID))
		d.onGone(ctx, connectionID)
	default:
		d.metrics.Pushed(metrics.PushError)
		d.logger.Warn("push failed", zap.String("connection_id", connectionID), zap.Error(err))
	}
}
