package store

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mikey/llm-reply-drafter/internal/core"
)

// SaveDraft stores the draft as a JSON document
func (s *PostgresStore) SaveDraft(ctx context.Context, draft *core.Draft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO drafts (id, account_id, original_message_id, action, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		draft.ID, draft.AccountID, draft.OriginalMessageID, string(draft.Action), data, draft.Metadata.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}
