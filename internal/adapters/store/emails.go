package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/mikey/llm-reply-drafter/internal/core"
)

const emailColumns = "id, user_id, recipient, relationship, subject, body, sent_at, semantic_vector, style_vector"

// candidateSQL builds the filtered candidate query. Zero times leave the range open.
func candidateSQL(q core.CandidateQuery) (string, []any) {
	var b strings.Builder
	args := []any{q.UserID, DirectionSent}
	b.WriteString("SELECT " + emailColumns + " FROM emails WHERE user_id = $1 AND direction = $2")
	b.WriteString(" AND semantic_vector IS NOT NULL AND style_vector IS NOT NULL")

	add := func(clause string, v any) {
		args = append(args, v)
		fmt.Fprintf(&b, " AND "+clause, len(args))
	}
	if q.Relationship != "" && q.Relationship != core.AggregateRelationship {
		add("relationship = $%d", q.Relationship)
	}
	if q.Recipient != "" {
		add("recipient = $%d", strings.ToLower(q.Recipient))
	}
	if !q.From.IsZero() {
		add("sent_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("sent_at <= $%d", q.To)
	}
	if len(q.ExcludeIDs) > 0 {
		add("NOT (id = ANY($%d))", q.ExcludeIDs)
	}
	b.WriteString(" ORDER BY sent_at DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func scanEmails(rows pgx.Rows) ([]core.StoredEmail, error) {
	defer rows.Close()
	var out []core.StoredEmail
	for rows.Next() {
		var e core.StoredEmail
		if err := rows.Scan(&e.ID, &e.UserID, &e.Recipient, &e.Relationship, &e.Subject, &e.Body, &e.SentAt, &e.SemanticVector, &e.StyleVector); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FetchCandidates returns sent emails with both vectors, most recent first
func (s *PostgresStore) FetchCandidates(ctx context.Context, q core.CandidateQuery) ([]core.StoredEmail, error) {
	query, args := candidateSQL(q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	return scanEmails(rows)
}

// CountRepliesTo counts emails the user sent to an address
func (s *PostgresStore) CountRepliesTo(ctx context.Context, userID, address string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT count(*) FROM emails WHERE user_id = $1 AND direction = $2 AND recipient = $3",
		userID, DirectionSent, strings.ToLower(address),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count replies: %w", err)
	}
	return n, nil
}

// LoadReplyCorpus returns bodies of sent emails, newest first
func (s *PostgresStore) LoadReplyCorpus(ctx context.Context, userID, relationship string, limit int) ([]string, error) {
	query := "SELECT body FROM emails WHERE user_id = $1 AND direction = $2"
	args := []any{userID, DirectionSent}
	if relationship != "" && relationship != core.AggregateRelationship {
		query += " AND relationship = $3"
		args = append(args, relationship)
	}
	query += " ORDER BY sent_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reply corpus: %w", err)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan reply corpus: %w", err)
	}
	return bodies, nil
}

// ListUnembedded returns sent emails missing either vector
func (s *PostgresStore) ListUnembedded(ctx context.Context, userID string, limit int) ([]core.StoredEmail, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+emailColumns+" FROM emails WHERE user_id = $1 AND direction = $2"+
			" AND (semantic_vector IS NULL OR style_vector IS NULL) ORDER BY sent_at DESC LIMIT $3",
		userID, DirectionSent, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unembedded: %w", err)
	}
	return scanEmails(rows)
}

// SaveVectors writes both vectors of an email
func (s *PostgresStore) SaveVectors(ctx context.Context, emailID string, semantic, style []float32) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE emails SET semantic_vector = $1, style_vector = $2 WHERE id = $3",
		semantic, style, emailID,
	)
	if err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save vectors for %s: %w", emailID, core.ErrNotFound)
	}
	return nil
}

// LoadStyleVectors returns style vectors of sent emails for a relationship
func (s *PostgresStore) LoadStyleVectors(ctx context.Context, userID, relationship string) (map[string][]float32, error) {
	query := "SELECT id, style_vector FROM emails WHERE user_id = $1 AND direction = $2 AND style_vector IS NOT NULL"
	args := []any{userID, DirectionSent}
	if relationship != "" && relationship != core.AggregateRelationship {
		query += " AND relationship = $3"
		args = append(args, relationship)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query style vectors: %w", err)
	}
	defer rows.Close()

	out := map[string][]float32{}
	for rows.Next() {
		var (
			id  string
			vec []float32
		)
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, err
		}
		out[id] = vec
	}
	return out, rows.Err()
}
