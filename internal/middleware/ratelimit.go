package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bipbip/bips-backend/pkg/clientip"
)

// RateLimitKeyPrefix is the Redis key prefix for rate limiting.
const RateLimitKeyPrefix = "ratelimit:"

// WindowLimiter is a fixed-window counter in Redis, shared by every instance.
type WindowLimiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewWindowLimiter allows limit requests per IP per window. scope separates
// counters of different routes.
func NewWindowLimiter(rdb *redis.Client, scope string, limit int, window time.Duration, logger *zap.Logger) *WindowLimiter {
	return &WindowLimiter{rdb: rdb, scope: scope, limit: limit, window: window, logger: logger}
}

func (l *WindowLimiter) key(ip string) string {
	return RateLimitKeyPrefix + l.scope + ":" + ip
}

// Hit counts one request for ip and returns the count within the window and
// the time left before it resets.
func (l *WindowLimiter) Hit(ctx context.Context, ip string) (int64, time.Duration, error) {
	key := l.key(ip)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	// the window starts with its first request and is never extended
	reset := ttl.Val()
	if reset < 0 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, 0, err
		}
		reset = l.window
	}
	return incr.Val(), reset, nil
}

// Middleware answers 429 past the limit. Redis failures let requests through.
func (l *WindowLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientip.LimitKey(r)
		count, reset, err := l.Hit(r.Context(), ip)
		if err != nil {
			l.logger.Warn("rate limiter unavailable, failing open", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := int64(l.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

		if count > int64(l.limit) {
			l.logger.Info("rate limit exceeded", zap.String("ip", ip), zap.String("scope", l.scope))
			w.Header().Set("Retry-After", strconv.Itoa(int(reset.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(fmt.Sprintf(`{"success":false,"message":"Rate limit exceeded. Please try again later.","retry_after":%d}`, int(reset.Seconds()))))
			return
		}

		next.ServeHTTP(w, r)
	})
}
