package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikey/llm-reply-drafter/internal/core"
)

const accountColumns = "id, user_id, email, aliases, display_names, provider"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*core.Account, error) {
	var a core.Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Email, &a.Aliases, &a.DisplayNames, &a.Provider); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// GetAccount loads an account by id
func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (*core.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1", accountID))
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return a, nil
}

// GetAccountByEmail loads the account owning an address or alias
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, address string) (*core.Account, error) {
	address = strings.ToLower(address)
	a, err := scanAccount(s.pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE lower(email) = $1 OR $1 = ANY(aliases) LIMIT 1", address))
	if err != nil {
		return nil, fmt.Errorf("get account for %s: %w", address, err)
	}
	return a, nil
}

// GetRelationship loads the relationship of a user with a correspondent
func (s *PostgresStore) GetRelationship(ctx context.Context, userID, address string) (*core.Relationship, error) {
	var r core.Relationship
	err := s.pool.QueryRow(ctx,
		"SELECT type, confidence FROM relationships WHERE user_id = $1 AND address = $2",
		userID, strings.ToLower(address),
	).Scan(&r.Type, &r.Confidence)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}
