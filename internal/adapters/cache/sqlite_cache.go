package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
)

// SQLiteCache is a SQLite implementation of core.ProfileRepository
type SQLiteCache struct {
	sqlCache
}

// NewSQLiteCache creates a new SQLite cache
func NewSQLiteCache(dbPath string, ttl time.Duration, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS profile_cache (
			user_id TEXT NOT NULL,
			target TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, target)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_profile_expires_at ON profile_cache(expires_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	cache := &SQLiteCache{sqlCache{
		db:          db,
		upsert:      "INSERT OR REPLACE INTO profile_cache (user_id, target, data, updated_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		ttl:         ttl,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}}

	if cleanupFreq > 0 {
		go cache.startCleanupTask()
	}

	return cache, nil
}

// sqlCache holds the queries shared by the database/sql backends. Timestamps are unix
// milliseconds; an expires_at of 0 never expires.
type sqlCache struct {
	db          *sql.DB
	upsert      string
	ttl         time.Duration
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	now         func() time.Time
}

// Get retrieves a profile entry that has not expired
func (c *sqlCache) Get(ctx context.Context, userID, target string) (*core.ProfileEntry, error) {
	var (
		data      []byte
		updatedAt int64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT data, updated_at
		FROM profile_cache
		WHERE user_id = ? AND target = ? AND (expires_at = 0 OR expires_at > ?)
	`, userID, target, c.now().UnixMilli()).Scan(&data, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile cache: %w", err)
	}

	return &core.ProfileEntry{
		UserID:    userID,
		Target:    target,
		Data:      data,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}

// Set stores a profile entry
func (c *sqlCache) Set(ctx context.Context, entry *core.ProfileEntry) error {
	var expiresAt int64
	if t := expiry(entry.Target, c.ttl, c.now()); !t.IsZero() {
		expiresAt = t.UnixMilli()
	}

	_, err := c.db.ExecContext(ctx, c.upsert,
		entry.UserID, entry.Target, entry.Data, entry.UpdatedAt.UnixMilli(), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store profile entry: %w", err)
	}
	return nil
}

// Delete removes a profile entry
func (c *sqlCache) Delete(ctx context.Context, userID, target string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM profile_cache
		WHERE user_id = ? AND target = ?
	`, userID, target)

	if err != nil {
		return fmt.Errorf("failed to delete profile entry: %w", err)
	}

	return nil
}

// Cleanup removes expired entries
func (c *sqlCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM profile_cache
		WHERE expires_at > 0 AND expires_at <= ?
	`, c.now().UnixMilli())

	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired profile entries", zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (c *sqlCache) startCleanupTask() {
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

// Stop stops the background cleanup task and closes the database connection
func (c *sqlCache) Stop() {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close profile cache database", zap.Error(err))
	}
}
