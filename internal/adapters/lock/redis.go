package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL bounds how long a crashed holder can block others
const DefaultLeaseTTL = 5 * time.Minute

// releaseScript deletes the lease only when it still carries our token
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker holds leases as expiring keys (SET NX PX)
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.Mutex
	tokens map[int64]string
}

// NewRedisLocker creates a lease locker on a Redis client
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisLocker{client: client, ttl: ttl, tokens: map[int64]string{}}
}

// NewRedisClient parses a redis:// URL and verifies the server is reachable
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return client, nil
}

func leaseKey(key int64) string {
	return "drafter:lock:" + strconv.FormatInt(key, 10)
}

// Acquire polls SET NX until the lease is ours or wait elapses
func (l *RedisLocker) Acquire(ctx context.Context, key int64, wait time.Duration) (bool, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.client.SetNX(ctx, leaseKey(key), token, l.ttl).Result()
		if err != nil {
			return false, fmt.Errorf("failed to take lease: %w", err)
		}
		if ok {
			l.mu.Lock()
			l.tokens[key] = token
			l.mu.Unlock()
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Release drops the lease if this process still owns it
func (l *RedisLocker) Release(ctx context.Context, key int64) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	err := releaseScript.Run(ctx, l.client, []string{leaseKey(key)}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
