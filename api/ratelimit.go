package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/config"
)

// Counter counts hits on a key inside a fixed window
type Counter interface {
	// Hit increments key and returns the new count and the time left in
	// the window. The window starts on the first hit.
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisCounter is a Counter on INCR and EXPIRE
type RedisCounter struct {
	Client *redis.Client
}

// NewRedisClient connects to redis. It returns nil when no address is set.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Hit implements Counter
func (c RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := c.Client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}
	ttl, err := c.Client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// a key that lost its expiry would block the user forever
		if err := c.Client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return count, ttl, nil
}

// RateLimit caps how often each authenticated user may call next. Counter
// failures let the request through.
func RateLimit(counter Counter, prefix string, limit int64, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if counter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			count, ttl, err := counter.Hit(r.Context(), prefix+":"+p.UserID.Hex(), window)
			if err != nil {
				zap.S().Warnw("rate limiter unavailable", "prefix", prefix, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				retry := int64(math.Ceil(ttl.Seconds()))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":      "rate limit exceeded",
					"retryAfter": retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
