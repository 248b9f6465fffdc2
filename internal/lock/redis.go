package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/logger"

	"receipts/internal/config"
)

const (
	redisKeyPrefix = "receipts:lock:"

	// Only the owner holding the token may delete the key.
	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

// RedisLock is a Locker backed by a single Redis node, for several
// processes sharing one data directory.
type RedisLock struct {
	client     *redis.Client
	ttl        time.Duration
	retries    int
	retryDelay time.Duration
}

var _ Locker = (*RedisLock)(nil)

// NewRedisLock connects to Redis and verifies the connection.
func NewRedisLock(ctx context.Context, cfg config.RedisConfig) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	return &RedisLock{
		client:     client,
		ttl:        cfg.LockTTL,
		retries:    retries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Lock sets the key with NX and a TTL, retrying until it succeeds, the
// attempts run out, or ctx is done.
func (r *RedisLock) Lock(ctx context.Context, name string) (Unlock, error) {
	key := redisKeyPrefix + name
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < r.retries; attempt++ {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if ok {
			return r.unlockFunc(key, token), nil
		}

		select {
		case <-time.After(r.retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, ctx.Err())
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrBusy)
}

func (r *RedisLock) unlockFunc(key, token string) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Released even when the request context is already cancelled.
			if err := r.client.Eval(context.Background(), releaseScript, []string{key}, token).Err(); err != nil {
				logger.Errorf("Failed to release lock %s: %v", key, err)
			}
		})
	}
}

// Close closes the Redis client.
func (r *RedisLock) Close() error {
	return r.client.Close()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
