package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisFixedWindow is a fixed-window counter shared by every instance that
// talks to the same Redis. The key's TTL is the window.
type RedisFixedWindow struct {
	client redis.Cmdable
	limit  int
	period time.Duration
	prefix string
}

func NewRedisFixedWindow(client redis.Cmdable, limit int, period time.Duration) *RedisFixedWindow {
	return &RedisFixedWindow{client: client, limit: limit, period: period, prefix: "otp:rl:"}
}

// Allow fails open when Redis is unreachable. INCR and EXPIRE NX share one
// transaction, so every counter carries a TTL, including keys left without
// one by an earlier failure.
func (r *RedisFixedWindow) Allow(ctx context.Context, key string) bool {
	redisKey := r.prefix + key
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.ExpireNX(ctx, redisKey, r.period)
		return nil
	})
	if err != nil {
		slog.Warn("rate limiter redis error, allowing request", "key", redisKey, "err", err)
		return true
	}
	return incr.Val() <= int64(r.limit)
}
