// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, repository_id, status, current_step, progress, attempts,
	error_message, error_code, created_at, updated_at`

// CreateJob inserts a new queued job for the repository.
func (s *Store) CreateJob(ctx context.Context, repositoryID string) (Job, error) {
	now := time.Now().UTC()
	job := Job{
		ID:           uuid.NewString(),
		RepositoryID: repositoryID,
		Status:       JobQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, repository_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.RepositoryID, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Job{}, fmt.Errorf("%w: repository %s already has an active job", ErrConflict, repositoryID)
		}
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob looks up a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	return s.scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
}

// ActiveJobForRepository returns the newest queued or processing job for
// the repository, or ErrNotFound. The API uses this to deduplicate
// submissions.
func (s *Store) ActiveJobForRepository(ctx context.Context, repositoryID string) (Job, error) {
	return s.scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE repository_id = ? AND status IN (?, ?)
		 ORDER BY created_at DESC LIMIT 1`,
		repositoryID, JobQueued, JobProcessing))
}

// ListJobsByStatus returns up to limit jobs in the given status, oldest
// first.
func (s *Store) ListJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ? ORDER BY created_at ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.RepositoryID, &j.Status, &j.CurrentStep, &j.Progress,
			&j.Attempts, &j.ErrorMessage, &j.ErrorCode, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// TransitionJob moves the job to status, enforcing the lifecycle. The
// update is conditional on the current status so concurrent workers
// cannot double-transition a row.
func (s *Store) TransitionJob(ctx context.Context, id string, to JobStatus) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var from JobStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&from)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read job status: %w", err)
		}
		if !transitionAllowed(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, time.Now().UTC(), id, from)
		if err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: job %s changed concurrently", ErrBadTransition, id)
		}
		return nil
	})
}

// StartJob transitions the job to processing and bumps its attempt count.
func (s *Store) StartJob(ctx context.Context, id string) error {
	if err := s.TransitionJob(ctx, id, JobProcessing); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET attempts = attempts + 1, error_message = '', error_code = '', updated_at = ?
		 WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// UpdateJobProgress records the current pipeline step and percentage for
// a processing job. Progress is clamped to [0,100].
func (s *Store) UpdateJobProgress(ctx context.Context, id, step string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET current_step = ?, progress = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		step, progress, time.Now().UTC(), id, JobProcessing)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteJob marks a processing job completed at 100%.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	if err := s.TransitionJob(ctx, id, JobCompleted); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET current_step = 'done', progress = 100, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	return err
}

// FailJob marks a processing job failed with a message and machine code.
func (s *Store) FailJob(ctx context.Context, id, message, code string) error {
	if err := s.TransitionJob(ctx, id, JobFailed); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET error_message = ?, error_code = ?, updated_at = ? WHERE id = ?`,
		message, code, time.Now().UTC(), id)
	return err
}

// RequeueJob returns a processing job to queued, used when a queue lease
// expires before the worker finished.
func (s *Store) RequeueJob(ctx context.Context, id string) error {
	if err := s.TransitionJob(ctx, id, JobQueued); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET current_step = '', progress = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	return err
}

func (s *Store) scanJob(row *sql.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.RepositoryID, &j.Status, &j.CurrentStep, &j.Progress,
		&j.Attempts, &j.ErrorMessage, &j.ErrorCode, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("scan job: %w", err)
	}
	return j, nil
}
