// Package factory builds adapters from configuration.
package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mikey/llm-reply-drafter/internal/adapters/cache"
	"github.com/mikey/llm-reply-drafter/internal/adapters/lock"
	"github.com/mikey/llm-reply-drafter/internal/config"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
)

// ProfileFactory creates the profile repository based on configuration
type ProfileFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewProfileFactory creates a new profile factory
func NewProfileFactory(cfg *config.Config, logger *zap.Logger) *ProfileFactory {
	return &ProfileFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateProfileRepository returns the configured repository. The postgres type reuses the store.
func (f *ProfileFactory) CreateProfileRepository(store core.ProfileRepository) (core.ProfileRepository, error) {
	cc := f.cfg.GetCache()
	// without a ttl nothing expires, so there is nothing to sweep
	if cc.TTL <= 0 {
		cc.CleanupInterval = 0
	}

	switch cc.Type {
	case "postgres", "":
		return store, nil
	case "memory":
		return cache.NewMemoryCache(cc.TTL, f.logger, cc.CleanupInterval), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(cc.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return cache.NewSQLiteCache(cc.SQLitePath, cc.TTL, f.logger, cc.CleanupInterval)
	case "mysql":
		return cache.NewMySQLCache(cc.MySQLDSN, cc.TTL, f.logger, cc.CleanupInterval)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cc.Type)
	}
}

// LockFactory creates the pattern computation locker
type LockFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLockFactory creates a new lock factory
func NewLockFactory(cfg *config.Config, logger *zap.Logger) *LockFactory {
	return &LockFactory{cfg: cfg, logger: logger}
}

// CreateLocker returns the configured locker. The postgres type shares the store pool.
func (f *LockFactory) CreateLocker(ctx context.Context, pool *pgxpool.Pool) (core.Locker, error) {
	lc := f.cfg.GetLock()

	switch lc.Type {
	case "postgres", "":
		if pool == nil {
			return nil, fmt.Errorf("postgres locker requires a store connection")
		}
		return lock.NewPostgresLocker(pool, f.logger), nil
	case "redis":
		client, err := lock.NewRedisClient(ctx, lc.RedisURL)
		if err != nil {
			return nil, err
		}
		return lock.NewRedisLocker(client, lc.LeaseTTL), nil
	case "memory":
		return lock.NewMemoryLocker(), nil
	default:
		return nil, fmt.Errorf("unsupported lock type: %s", lc.Type)
	}
}
