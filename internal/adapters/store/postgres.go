// Package store implements the persistence ports on PostgreSQL.
//
// Expected tables:
//
//	emails(id, user_id, direction, recipient, relationship, subject, body, sent_at, semantic_vector real[], style_vector real[])
//	accounts(id, user_id, email, aliases text[], display_names text[], provider)
//	relationships(user_id, address, type, confidence)
//	style_clusters(id, user_id, relationship, name, centroid real[], cohesion, position)
//	style_cluster_members(cluster_id, email_id)
//	profiles(user_id, target, data jsonb, updated_at)
//	drafts(id, account_id, original_message_id, action, data jsonb, created_at)
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
)

// DirectionSent marks emails written by the user
const DirectionSent = "sent"

var (
	_ core.EmailRepository   = (*PostgresStore)(nil)
	_ core.AccountRepository = (*PostgresStore)(nil)
	_ core.ClusterRepository = (*PostgresStore)(nil)
	_ core.ProfileRepository = (*PostgresStore)(nil)
	_ core.DraftRepository   = (*PostgresStore)(nil)
)

// PostgresStore implements the email, account, cluster, profile and draft repositories
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates a store on an open pool
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Pool exposes the underlying pool, shared with the advisory locker
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}
