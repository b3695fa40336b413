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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveAnalysis persists an analysis with its signals, notes, and claims
// in one transaction. Each job gets at most one analysis; a second save
// for the same job returns ErrConflict, which callers treat as an
// idempotent redelivery.
func (s *Store) SaveAnalysis(ctx context.Context, a Analysis) (Analysis, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now().UTC()
	}
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return Analysis{}, fmt.Errorf("marshal metrics: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM analyses WHERE job_id = ?`, a.JobID).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: job %s already analyzed", ErrConflict, a.JobID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analyses (id, job_id, repository_id, slop_score, engine, metrics_json, analyzed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.JobID, a.RepositoryID, a.SlopScore, a.Engine, string(metrics), a.AnalyzedAt); err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}

		for _, sig := range a.Signals {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO signals (analysis_id, category, severity, file, line, evidence, message)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.ID, sig.Category, sig.Severity, sig.File, sig.Line, sig.Evidence, sig.Message); err != nil {
				return fmt.Errorf("insert signal: %w", err)
			}
		}
		for _, note := range a.Notes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO slop_notes (analysis_id, note) VALUES (?, ?)`, a.ID, note); err != nil {
				return fmt.Errorf("insert note: %w", err)
			}
		}
		for _, claim := range a.Claims {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO readme_claims (analysis_id, claim, status, evidence)
				 VALUES (?, ?, ?, ?)`, a.ID, claim.Claim, claim.Status, claim.Evidence); err != nil {
				return fmt.Errorf("insert claim: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}
	return a, nil
}

// HasAnalysisForJob reports whether the job already produced an analysis.
func (s *Store) HasAnalysisForJob(ctx context.Context, jobID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analyses WHERE job_id = ?`, jobID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetAnalysis loads an analysis with its signals, notes, and claims.
func (s *Store) GetAnalysis(ctx context.Context, id string) (Analysis, error) {
	a, err := s.scanAnalysis(s.db.QueryRowContext(ctx,
		`SELECT id, job_id, repository_id, slop_score, engine, metrics_json, analyzed_at
		 FROM analyses WHERE id = ?`, id))
	if err != nil {
		return Analysis{}, err
	}
	return s.loadAnalysisChildren(ctx, a)
}

// AnalysisForJob loads the analysis produced by a job, with children.
func (s *Store) AnalysisForJob(ctx context.Context, jobID string) (Analysis, error) {
	a, err := s.scanAnalysis(s.db.QueryRowContext(ctx,
		`SELECT id, job_id, repository_id, slop_score, engine, metrics_json, analyzed_at
		 FROM analyses WHERE job_id = ?`, jobID))
	if err != nil {
		return Analysis{}, err
	}
	return s.loadAnalysisChildren(ctx, a)
}

// LatestAnalysisForRepository loads the newest analysis for a repository,
// with children.
func (s *Store) LatestAnalysisForRepository(ctx context.Context, repositoryID string) (Analysis, error) {
	a, err := s.scanAnalysis(s.db.QueryRowContext(ctx,
		`SELECT id, job_id, repository_id, slop_score, engine, metrics_json, analyzed_at
		 FROM analyses WHERE repository_id = ?
		 ORDER BY analyzed_at DESC LIMIT 1`, repositoryID))
	if err != nil {
		return Analysis{}, err
	}
	return s.loadAnalysisChildren(ctx, a)
}

// Leaderboard returns repositories ranked by their latest score. order is
// "worst" (highest score first) or "best" (lowest first).
func (s *Store) Leaderboard(ctx context.Context, order string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	dir := "DESC"
	if order == "best" {
		dir = "ASC"
	}

	// Latest analysis per repository, then rank by score.
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.url, r.host, r.owner, r.name, r.created_at,
		        a.id, a.slop_score, a.analyzed_at
		 FROM analyses a
		 JOIN repositories r ON r.id = a.repository_id
		 WHERE a.analyzed_at = (
		     SELECT MAX(analyzed_at) FROM analyses WHERE repository_id = a.repository_id
		 )
		 ORDER BY a.slop_score `+dir+`, a.analyzed_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Repository.ID, &e.Repository.URL, &e.Repository.Host,
			&e.Repository.Owner, &e.Repository.Name, &e.Repository.CreatedAt,
			&e.AnalysisID, &e.SlopScore, &e.AnalyzedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) scanAnalysis(row *sql.Row) (Analysis, error) {
	var a Analysis
	var metrics string
	err := row.Scan(&a.ID, &a.JobID, &a.RepositoryID, &a.SlopScore, &a.Engine, &metrics, &a.AnalyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	if err != nil {
		return Analysis{}, fmt.Errorf("scan analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &a.Metrics); err != nil {
		return Analysis{}, fmt.Errorf("decode metrics: %w", err)
	}
	return a, nil
}

func (s *Store) loadAnalysisChildren(ctx context.Context, a Analysis) (Analysis, error) {
	sigRows, err := s.db.QueryContext(ctx,
		`SELECT category, severity, file, line, evidence, message
		 FROM signals WHERE analysis_id = ? ORDER BY id`, a.ID)
	if err != nil {
		return Analysis{}, fmt.Errorf("load signals: %w", err)
	}
	defer sigRows.Close()
	for sigRows.Next() {
		var sig Signal
		if err := sigRows.Scan(&sig.Category, &sig.Severity, &sig.File, &sig.Line,
			&sig.Evidence, &sig.Message); err != nil {
			return Analysis{}, err
		}
		a.Signals = append(a.Signals, sig)
	}
	if err := sigRows.Err(); err != nil {
		return Analysis{}, err
	}

	noteRows, err := s.db.QueryContext(ctx,
		`SELECT note FROM slop_notes WHERE analysis_id = ? ORDER BY id`, a.ID)
	if err != nil {
		return Analysis{}, fmt.Errorf("load notes: %w", err)
	}
	defer noteRows.Close()
	for noteRows.Next() {
		var note string
		if err := noteRows.Scan(&note); err != nil {
			return Analysis{}, err
		}
		a.Notes = append(a.Notes, note)
	}
	if err := noteRows.Err(); err != nil {
		return Analysis{}, err
	}

	claimRows, err := s.db.QueryContext(ctx,
		`SELECT claim, status, evidence FROM readme_claims WHERE analysis_id = ? ORDER BY id`, a.ID)
	if err != nil {
		return Analysis{}, fmt.Errorf("load claims: %w", err)
	}
	defer claimRows.Close()
	for claimRows.Next() {
		var c ReadmeClaim
		if err := claimRows.Scan(&c.Claim, &c.Status, &c.Evidence); err != nil {
			return Analysis{}, err
		}
		a.Claims = append(a.Claims, c)
	}
	return a, claimRows.Err()
}
