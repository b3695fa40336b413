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

// UpsertRepository returns the existing repository for url, or inserts a
// new row. The URL must already be canonicalized by the caller.
func (s *Store) UpsertRepository(ctx context.Context, url, host, owner, name string) (Repository, error) {
	if existing, err := s.GetRepositoryByURL(ctx, url); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Repository{}, err
	}

	repo := Repository{
		ID:        uuid.NewString(),
		URL:       url,
		Host:      host,
		Owner:     owner,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories (id, url, host, owner, name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		repo.ID, repo.URL, repo.Host, repo.Owner, repo.Name, repo.CreatedAt)
	if err != nil {
		return Repository{}, fmt.Errorf("insert repository: %w", err)
	}

	// A concurrent insert may have won the conflict; read back the row
	// that actually landed.
	return s.GetRepositoryByURL(ctx, url)
}

// GetRepository looks up a repository by ID.
func (s *Store) GetRepository(ctx context.Context, id string) (Repository, error) {
	return s.scanRepository(s.db.QueryRowContext(ctx,
		`SELECT id, url, host, owner, name, created_at FROM repositories WHERE id = ?`, id))
}

// GetRepositoryByURL looks up a repository by its canonical URL.
func (s *Store) GetRepositoryByURL(ctx context.Context, url string) (Repository, error) {
	return s.scanRepository(s.db.QueryRowContext(ctx,
		`SELECT id, url, host, owner, name, created_at FROM repositories WHERE url = ?`, url))
}

// ListRepositories returns repositories newest first, capped at limit.
func (s *Store) ListRepositories(ctx context.Context, limit int) ([]Repository, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, host, owner, name, created_at
		 FROM repositories ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		var r Repository
		if err := rows.Scan(&r.ID, &r.URL, &r.Host, &r.Owner, &r.Name, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) scanRepository(row *sql.Row) (Repository, error) {
	var r Repository
	err := row.Scan(&r.ID, &r.URL, &r.Host, &r.Owner, &r.Name, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Repository{}, ErrNotFound
	}
	if err != nil {
		return Repository{}, fmt.Errorf("scan repository: %w", err)
	}
	return r, nil
}
