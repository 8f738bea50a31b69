package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PushChannelPrefix prefixes the per-connection Redis channel.
const PushChannelPrefix = "bips:push:"

func pushChannel(connectionID string) string {
	return PushChannelPrefix + connectionID
}

// RedisRelay delivers pushes across instances. Every instance subscribes to
// the channels of the sockets it owns, so a PUBLISH that reaches nobody means
// the connection is gone.
type RedisRelay struct {
	rdb    *redis.Client
	hub    *Hub
	pubsub *redis.PubSub
	logger *zap.Logger
}

func NewRedisRelay(ctx context.Context, rdb *redis.Client, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:    rdb,
		hub:    hub,
		pubsub: rdb.Subscribe(ctx),
		logger: logger,
	}
}

func (r *RedisRelay) Send(ctx context.Context, connectionID string, payload []byte) error {
	receivers, err := r.rdb.Publish(ctx, pushChannel(connectionID), payload).Result()
	if err != nil {
		return errors.Wrapf(err, "publish to %s", connectionID)
	}
	if receivers == 0 {
		return errors.Wrapf(ErrGone, "no instance owns %s", connectionID)
	}
	return nil
}

func (r *RedisRelay) Attach(ctx context.Context, connectionID string, conn PushConn) error {
	if err := r.hub.Attach(ctx, connectionID, conn); err != nil {
		return err
	}
	if err := r.pubsub.Subscribe(ctx, pushChannel(connectionID)); err != nil {
		r.hub.Detach(ctx, connectionID)
		return errors.Wrapf(err, "subscribe %s", connectionID)
	}
	return nil
}

func (r *RedisRelay) Detach(ctx context.Context, connectionID string) {
	if err := r.pubsub.Unsubscribe(ctx, pushChannel(connectionID)); err != nil {
		r.logger.Warn("failed to unsubscribe push channel", zap.String("connection_id", connectionID), zap.Error(err))
	}
	r.hub.Detach(ctx, connectionID)
}

// Run forwards relayed payloads to local sockets until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	ch := r.pubsub.Channel()
	r.logger.Info("push relay started", zap.String("pattern", PushChannelPrefix+"<connection_id>"))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			connectionID := strings.TrimPrefix(msg.Channel, PushChannelPrefix)

			sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := r.hub.Send(sendCtx, connectionID, []byte(msg.Payload))
			cancel()
			if err == nil {
				continue
			}
			if errors.Is(err, ErrGone) {
				// later publishes then count zero receivers and report gone upstream
				r.Detach(ctx, connectionID)
				continue
			}
			r.logger.Warn("relay delivery failed", zap.String("connection_id", connectionID), zap.Error(err))
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.pubsub.Close()
}
