package store

import (
	"context"
	"fmt"

	"github.com/mikey/llm-reply-drafter/internal/core"
)

// Get loads a profile blob
func (s *PostgresStore) Get(ctx context.Context, userID, target string) (*core.ProfileEntry, error) {
	e := core.ProfileEntry{UserID: userID, Target: target}
	err := s.pool.QueryRow(ctx,
		"SELECT data, updated_at FROM profiles WHERE user_id = $1 AND target = $2",
		userID, target,
	).Scan(&e.Data, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// Set upserts a profile blob
func (s *PostgresStore) Set(ctx context.Context, entry *core.ProfileEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, target, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, target)
		 DO UPDATE SET
		     data = EXCLUDED.data,
		     updated_at = EXCLUDED.updated_at`,
		entry.UserID, entry.Target, entry.Data, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

// Delete removes a profile blob
func (s *PostgresStore) Delete(ctx context.Context, userID, target string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM profiles WHERE user_id = $1 AND target = $2", userID, target)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
