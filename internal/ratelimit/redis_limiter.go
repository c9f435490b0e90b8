package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLoginLimiter implements LoginLimiter on Redis. Failure counts use
// INCR, which is atomic server-side, so concurrent failures from the same IP
// never under-count. The block is an independent key with its own TTL.
type RedisLoginLimiter struct {
	client *redis.Client
	config Config
}

func NewRedisLoginLimiter(client *redis.Client, config Config) *RedisLoginLimiter {
	return &RedisLoginLimiter{
		client: client,
		config: config,
	}
}

func (l *RedisLoginLimiter) failureKey(ip string) string {
	return fmt.Sprintf("loginfail:%s", ip)
}

func (l *RedisLoginLimiter) blockKey(ip string) string {
	return fmt.Sprintf("loginblock:%s", ip)
}

// RecordFailure increments the failure counter for ip. The window TTL is set
// when the counter is created; when the count reaches the threshold a block
// key is written with the block TTL.
func (l *RedisLoginLimiter) RecordFailure(ctx context.Context, ip string) (bool, int, error) {
	key := l.failureKey(ip)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment failure counter: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set counter expiry: %w", err)
		}
	}

	if count >= int64(l.config.MaxFailures) {
		if err := l.client.Set(ctx, l.blockKey(ip), count, l.config.BlockDuration).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set block: %w", err)
		}
		return true, 0, nil
	}

	return false, l.config.MaxFailures - int(count), nil
}

func (l *RedisLoginLimiter) IsBlocked(ctx context.Context, ip string) (bool, error) {
	exists, err := l.client.Exists(ctx, l.blockKey(ip)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return exists > 0, nil
}

func (l *RedisLoginLimiter) Reset(ctx context.Context, ip string) error {
	err := l.client.Del(ctx, l.failureKey(ip), l.blockKey(ip)).Err()
	if err != nil {
		return fmt.Errorf("failed to reset limiter: %w", err)
	}
	return nil
}
