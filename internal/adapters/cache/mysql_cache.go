package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLCache is a MySQL implementation of core.ProfileRepository
type MySQLCache struct {
	sqlCache
}

// NewMySQLCache creates a new MySQL cache
func NewMySQLCache(dsn string, ttl time.Duration, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS profile_cache (
			user_id VARCHAR(255) NOT NULL,
			target VARCHAR(255) NOT NULL,
			data MEDIUMBLOB NOT NULL,
			updated_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			PRIMARY KEY (user_id, target),
			INDEX idx_profile_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	cache := &MySQLCache{sqlCache{
		db: db,
		upsert: `INSERT INTO profile_cache (user_id, target, data, updated_at, expires_at)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				updated_at = VALUES(updated_at),
				expires_at = VALUES(expires_at)`,
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
