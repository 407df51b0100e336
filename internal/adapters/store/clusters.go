package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
)

// LoadClusters returns the stored clusters of a relationship with their members, in stored order
func (s *PostgresStore) LoadClusters(ctx context.Context, userID, relationship string) ([]core.StyleCluster, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.centroid, c.cohesion,
		       coalesce(array_agg(m.email_id ORDER BY m.email_id) FILTER (WHERE m.email_id IS NOT NULL), '{}')
		FROM style_clusters c
		LEFT JOIN style_cluster_members m ON m.cluster_id = c.id
		WHERE c.user_id = $1 AND c.relationship = $2
		GROUP BY c.id, c.name, c.centroid, c.cohesion, c.position
		ORDER BY c.position`,
		userID, relationship,
	)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var out []core.StyleCluster
	for rows.Next() {
		var c core.StyleCluster
		if err := rows.Scan(&c.ID, &c.Name, &c.Centroid, &c.Cohesion, &c.Members); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveClusters replaces the clusters of a relationship in one transaction
func (s *PostgresStore) SaveClusters(ctx context.Context, userID, relationship string, clusters []core.StyleCluster) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		DELETE FROM style_cluster_members WHERE cluster_id IN (
			SELECT id FROM style_clusters WHERE user_id = $1 AND relationship = $2)`,
		userID, relationship); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"DELETE FROM style_clusters WHERE user_id = $1 AND relationship = $2",
		userID, relationship); err != nil {
		return fmt.Errorf("delete clusters: %w", err)
	}

	batch := &pgx.Batch{}
	for i, c := range clusters {
		batch.Queue(`INSERT INTO style_clusters (id, user_id, relationship, name, centroid, cohesion, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, userID, relationship, c.Name, c.Centroid, c.Cohesion, i)
		for _, member := range c.Members {
			batch.Queue("INSERT INTO style_cluster_members (cluster_id, email_id) VALUES ($1, $2)", c.ID, member)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert clusters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Debug("Saved style clusters",
		zap.String("user_id", userID),
		zap.String("relationship", relationship),
		zap.Int("clusters", len(clusters)))
	return nil
}
