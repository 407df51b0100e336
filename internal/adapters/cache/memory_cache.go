// Package cache provides profile repositories for deployments that keep computed
// profiles outside the main store. A positive ttl expires entries of unpinned targets;
// pinned targets (writing patterns, keyword state) and a zero ttl never expire.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
)

var (
	_ core.ProfileRepository = (*MemoryCache)(nil)
	_ core.ProfileRepository = (*SQLiteCache)(nil)
	_ core.ProfileRepository = (*MySQLCache)(nil)
)

type entryKey struct {
	userID string
	target string
}

type memoryEntry struct {
	entry core.ProfileEntry
	// zero means the entry never expires
	expiresAt time.Time
}

// expiry returns when an entry written at now expires, or the zero time when it never does
func expiry(target string, ttl time.Duration, now time.Time) time.Time {
	if ttl <= 0 || core.PinnedTarget(target) {
		return time.Time{}
	}
	return now.Add(ttl)
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is an in-memory implementation of core.ProfileRepository
type MemoryCache struct {
	entries     map[entryKey]memoryEntry
	mu          sync.RWMutex
	ttl         time.Duration
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(ttl time.Duration, logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	cache := &MemoryCache{
		entries:     make(map[entryKey]memoryEntry),
		ttl:         ttl,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go cache.startCleanupTask()
	}

	return cache
}

// Get retrieves a profile entry that has not expired
func (c *MemoryCache) Get(_ context.Context, userID, target string) (*core.ProfileEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[entryKey{userID, target}]
	if !ok || e.expired(c.now()) {
		return nil, core.ErrNotFound
	}

	out := e.entry
	out.Data = append([]byte(nil), e.entry.Data...)
	return &out, nil
}

// Set stores a profile entry
func (c *MemoryCache) Set(_ context.Context, entry *core.ProfileEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *entry
	stored.Data = append([]byte(nil), entry.Data...)
	c.entries[entryKey{entry.UserID, entry.Target}] = memoryEntry{
		entry:     stored,
		expiresAt: expiry(entry.Target, c.ttl, c.now()),
	}
	return nil
}

// Delete removes a profile entry
func (c *MemoryCache) Delete(_ context.Context, userID, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, entryKey{userID, target})
	return nil
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiredCount := 0

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired profile entries", zap.Int("expired_count", expiredCount))
	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (c *MemoryCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
