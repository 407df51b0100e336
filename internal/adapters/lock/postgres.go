package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pollInterval is how often a contended lock is retried
const pollInterval = 50 * time.Millisecond

// PostgresLocker uses session-level advisory locks. Each held lock pins one pooled
// connection until it is released, since advisory locks belong to the session.
type PostgresLocker struct {
	pool   *pgxpool.Pool
	mu     sync.Mutex
	conns  map[int64]*pgxpool.Conn
	logger *zap.Logger
}

// NewPostgresLocker creates a locker on a pgx pool
func NewPostgresLocker(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLocker {
	return &PostgresLocker{pool: pool, conns: map[int64]*pgxpool.Conn{}, logger: logger}
}

// Acquire polls pg_try_advisory_lock until it succeeds or wait elapses
func (l *PostgresLocker) Acquire(ctx context.Context, key int64, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.try(ctx, key)
		if err != nil || ok {
			return ok, err
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

func (l *PostgresLocker) try(ctx context.Context, key int64) (bool, error) {
	// the lock is not reentrant, even within this process
	l.mu.Lock()
	_, mine := l.conns[key]
	l.mu.Unlock()
	if mine {
		return false, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.mu.Lock()
	l.conns[key] = conn
	l.mu.Unlock()
	return true, nil
}

// Release unlocks on the pinned connection and returns it to the pool
func (l *PostgresLocker) Release(ctx context.Context, key int64) error {
	l.mu.Lock()
	conn, ok := l.conns[key]
	delete(l.conns, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	var released bool
	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&released)
	if err != nil {
		// closing the session drops its advisory locks
		l.logger.Warn("Advisory unlock failed, closing session", zap.Int64("key", key), zap.Error(err))
		_ = conn.Conn().Close(ctx)
		conn.Release()
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	conn.Release()
	if !released {
		l.logger.Warn("Advisory lock was not held", zap.Int64("key", key))
	}
	return nil
}
