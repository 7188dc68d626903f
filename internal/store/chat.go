package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ChatUsage returns how many chat messages have been sent about jobID.
func (s *Store) ChatUsage(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT message_count FROM chat_usage WHERE job_id = ?`, jobID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get chat usage: %w", err)
	}
	return count, nil
}

// IncrementChatUsage records one sent message and returns the new count.
func (s *Store) IncrementChatUsage(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO chat_usage (job_id, message_count, updated_at) VALUES (?, 1, ?)
         ON CONFLICT(job_id) DO UPDATE SET
             message_count = chat_usage.message_count + 1, updated_at = excluded.updated_at
         RETURNING message_count`,
		jobID,
		time.Now().UTC().Format(time.RFC3339Nano),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment chat usage: %w", err)
	}
	return count, nil
}

// ResetChatUsage drops counters for every job except keepJobID. Counters
// only matter for the job currently in the cache.
func (s *Store) ResetChatUsage(ctx context.Context, keepJobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_usage WHERE job_id <> ?`, keepJobID); err != nil {
		return fmt.Errorf("reset chat usage: %w", err)
	}
	return nil
}
