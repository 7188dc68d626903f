package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheRecord is the raw content of the result cache slot.
type CacheRecord struct {
	JobID    string
	Payload  []byte
	CachedAt time.Time
	Shown    bool
}

// PutCache replaces whatever occupies the slot with an unshown record.
func (s *Store) PutCache(ctx context.Context, rec CacheRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO result_cache (slot, job_id, result_json, cached_at, shown)
         VALUES (1, ?, ?, ?, 0)
         ON CONFLICT(slot) DO UPDATE SET
             job_id = excluded.job_id, result_json = excluded.result_json,
             cached_at = excluded.cached_at, shown = 0`,
		rec.JobID,
		string(rec.Payload),
		rec.CachedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put cache: %w", err)
	}
	return nil
}

// TakeUnshownCache marks the slot shown and returns it in one statement. It
// returns nil when the slot is empty or was already shown.
func (s *Store) TakeUnshownCache(ctx context.Context) (*CacheRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE result_cache SET shown = 1
         WHERE slot = 1 AND shown = 0
         RETURNING job_id, result_json, cached_at, shown`,
	)
	rec, err := scanCache(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take cache: %w", err)
	}
	return rec, nil
}

// PeekCache returns the slot without changing it.
func (s *Store) PeekCache(ctx context.Context) (*CacheRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT job_id, result_json, cached_at, shown FROM result_cache WHERE slot = 1`)
	rec, err := scanCache(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek cache: %w", err)
	}
	return rec, nil
}

// ClearCache empties the slot.
func (s *Store) ClearCache(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM result_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// SweepCache empties the slot when it was filled before cutoff. It reports
// whether a record was removed.
func (s *Store) SweepCache(ctx context.Context, cutoff time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM result_cache WHERE cached_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("sweep cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sweep cache rows: %w", err)
	}
	return n > 0, nil
}

func scanCache(scanner interface{ Scan(dest ...any) error }) (*CacheRecord, error) {
	var (
		jobID    string
		payload  string
		cachedAt int64
		shown    int64
	)
	if err := scanner.Scan(&jobID, &payload, &cachedAt, &shown); err != nil {
		return nil, err
	}
	return &CacheRecord{
		JobID:    jobID,
		Payload:  []byte(payload),
		CachedAt: time.UnixMilli(cachedAt),
		Shown:    shown != 0,
	}, nil
}
