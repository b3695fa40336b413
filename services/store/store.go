// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists repositories, jobs, and analysis results in
// SQLite via database/sql (modernc.org/sqlite, no cgo).
//
// The schema mirrors the product's relational model: a repository has
// many jobs, a completed job has exactly one analysis, and an analysis
// owns its signals, notes, and README claims. SQL is hand-written; there
// is deliberately no ORM layer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadTransition indicates an illegal job status transition.
	ErrBadTransition = errors.New("illegal job status transition")

	// ErrConflict indicates a uniqueness violation (e.g. second analysis
	// for the same job).
	ErrConflict = errors.New("conflict")
)

// Store wraps the SQLite handle. Safe for concurrent use; SQLite-level
// contention is absorbed by WAL mode and the busy timeout.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// OpenInMemory opens a private in-memory database for tests.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", "file:slopscope?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	// A shared-cache in-memory database disappears when the last
	// connection closes; pin one.
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path (empty for in-memory stores).
func (s *Store) Path() string {
	return s.path
}

// DB exposes the raw handle for diagnostics; production code goes through
// the typed methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		host TEXT NOT NULL,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_repositories_slug ON repositories(owner, name);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		status TEXT NOT NULL,
		current_step TEXT NOT NULL DEFAULT '',
		progress INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		error_code TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (repository_id) REFERENCES repositories(id)
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_repository ON jobs(repository_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_one_active ON jobs(repository_id)
		WHERE status IN ('queued', 'processing');

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL UNIQUE,
		repository_id TEXT NOT NULL,
		slop_score REAL NOT NULL,
		engine TEXT NOT NULL,
		metrics_json TEXT NOT NULL DEFAULT '{}',
		analyzed_at DATETIME NOT NULL,
		FOREIGN KEY (job_id) REFERENCES jobs(id),
		FOREIGN KEY (repository_id) REFERENCES repositories(id)
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_repository ON analyses(repository_id);
	CREATE INDEX IF NOT EXISTS idx_analyses_score ON analyses(slop_score);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id TEXT NOT NULL,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		file TEXT NOT NULL DEFAULT '',
		line INTEGER NOT NULL DEFAULT 0,
		evidence TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (analysis_id) REFERENCES analyses(id)
	);
	CREATE INDEX IF NOT EXISTS idx_signals_analysis ON signals(analysis_id);

	CREATE TABLE IF NOT EXISTS slop_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id TEXT NOT NULL,
		note TEXT NOT NULL,
		FOREIGN KEY (analysis_id) REFERENCES analyses(id)
	);
	CREATE INDEX IF NOT EXISTS idx_notes_analysis ON slop_notes(analysis_id);

	CREATE TABLE IF NOT EXISTS readme_claims (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id TEXT NOT NULL,
		claim TEXT NOT NULL,
		status TEXT NOT NULL,
		evidence TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (analysis_id) REFERENCES analyses(id)
	);
	CREATE INDEX IF NOT EXISTS idx_claims_analysis ON readme_claims(analysis_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// withTx runs fn inside a transaction, committing on nil return.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
