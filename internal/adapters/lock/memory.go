// Package lock provides core.Locker implementations for single and multi-process deployments.
package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a process-local locker for single-instance deployments and tests
type MemoryLocker struct {
	mu   sync.Mutex
	held map[int64]chan struct{}
}

// NewMemoryLocker creates an empty in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[int64]chan struct{}{}}
}

// Acquire takes the lock for key, waiting up to wait for the holder to release it
func (l *MemoryLocker) Acquire(ctx context.Context, key int64, wait time.Duration) (bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		released, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return true, nil
		}
		l.mu.Unlock()

		select {
		case <-released:
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Release frees the lock and wakes waiters
func (l *MemoryLocker) Release(_ context.Context, key int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.held[key]; ok {
		close(ch)
		delete(l.held, key)
	}
	return nil
}
