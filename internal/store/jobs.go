package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"earmark/internal/analysis"
)

const jobColumns = "id, tier, kind, source, state, message, submitted_at, updated_at"

// JobRecord is a persisted job together with its last status message.
type JobRecord struct {
	analysis.Job
	Message   string
	UpdatedAt time.Time
}

// SaveJob inserts job or replaces the stored copy.
func (s *Store) SaveJob(ctx context.Context, job analysis.Job) error {
	if job.ID == "" {
		return errors.New("job id is empty")
	}
	submitted := job.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (id, tier, kind, source, state, message, submitted_at, updated_at)
         VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             tier = excluded.tier, kind = excluded.kind, source = excluded.source,
             state = excluded.state, updated_at = excluded.updated_at`,
		job.ID,
		string(job.Tier),
		string(job.Kind),
		nullableString(job.Source),
		string(job.State),
		submitted.UTC().Format(time.RFC3339Nano),
		now,
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// UpdateJobState records a non-terminal transition for resume and display.
func (s *Store) UpdateJobState(ctx context.Context, id string, state analysis.State, message string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET state = ?, message = ?, updated_at = ? WHERE id = ?`,
		string(state),
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update job state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job state: job %s not found", id)
	}
	return nil
}

// GetJob fetches a job by id. A missing job returns nil without error.
func (s *Store) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// ActiveJobs lists jobs that have not reached a terminal state, oldest first.
func (s *Store) ActiveJobs(ctx context.Context) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE state IN (?, ?) ORDER BY submitted_at, id`,
		string(analysis.StateSubmitted),
		string(analysis.StatePending),
	)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return records, nil
}

// DeleteJob removes a job once its outcome has been consumed.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*JobRecord, error) {
	var (
		id, tier, kind, state string
		source, message       sql.NullString
		submittedRaw          string
		updatedRaw            string
	)
	if err := scanner.Scan(&id, &tier, &kind, &source, &state, &message, &submittedRaw, &updatedRaw); err != nil {
		return nil, err
	}
	return &JobRecord{
		Job: analysis.Job{
			ID:          id,
			Tier:        analysis.Tier(tier),
			Kind:        analysis.Kind(kind),
			Source:      source.String,
			State:       analysis.State(state),
			SubmittedAt: parseTime(submittedRaw),
		},
		Message:   message.String,
		UpdatedAt: parseTime(updatedRaw),
	}, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
