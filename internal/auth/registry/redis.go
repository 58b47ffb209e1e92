package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTimeout bounds every registry round trip. Validation sits on the
// hot path of every request, so a slow registry must fail fast rather than
// stall the caller.
const DefaultTimeout = 50 * time.Millisecond

// RedisRegistry is a Registry backed by a shared Redis instance. Entries are
// plain SET-with-expiry keys, so lookup is O(1) and storage is self-pruning.
type RedisRegistry struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisRegistry wraps the given client. prefix namespaces the keys so the
// registry can share a Redis with other consumers; timeout <= 0 falls back
// to DefaultTimeout.
func NewRedisRegistry(rdb *redis.Client, prefix string, timeout time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = "auth"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RedisRegistry{rdb: rdb, prefix: prefix, timeout: timeout}
}

func (r *RedisRegistry) key(jti string) string {
	return r.prefix + ":revoked:" + jti
}

func (r *RedisRegistry) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already past natural expiry; nothing to blacklist.
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rdb.Set(ctx, r.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisRegistry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.rdb.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
