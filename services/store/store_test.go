// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRepoAndJob(t *testing.T, s *Store) (Repository, Job) {
	t.Helper()
	ctx := context.Background()
	repo, err := s.UpsertRepository(ctx, "https://github.com/acme/widgets", "github.com", "acme", "widgets")
	if err != nil {
		t.Fatalf("UpsertRepository() error: %v", err)
	}
	job, err := s.CreateJob(ctx, repo.ID)
	if err != nil {
		t.Fatalf("CreateJob() error: %v", err)
	}
	return repo, job
}

// ============================================================
// Repositories
// ============================================================

func TestUpsertRepositoryIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertRepository(ctx, "https://github.com/acme/widgets", "github.com", "acme", "widgets")
	if err != nil {
		t.Fatalf("first upsert error: %v", err)
	}
	second, err := s.UpsertRepository(ctx, "https://github.com/acme/widgets", "github.com", "acme", "widgets")
	if err != nil {
		t.Fatalf("second upsert error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second upsert ID = %s, want %s", second.ID, first.ID)
	}
}

func TestGetRepositoryNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRepository(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRepository(missing) error = %v, want ErrNotFound", err)
	}
}

// ============================================================
// Job lifecycle
// ============================================================

func TestJobLifecycleHappyPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, job := seedRepoAndJob(t, s)

	if job.Status != JobQueued {
		t.Fatalf("new job status = %s, want queued", job.Status)
	}

	if err := s.StartJob(ctx, job.ID); err != nil {
		t.Fatalf("StartJob() error: %v", err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.Status != JobProcessing || got.Attempts != 1 {
		t.Errorf("after start: status=%s attempts=%d, want processing/1", got.Status, got.Attempts)
	}

	if err := s.UpdateJobProgress(ctx, job.ID, "running detectors", 60); err != nil {
		t.Fatalf("UpdateJobProgress() error: %v", err)
	}
	got, _ = s.GetJob(ctx, job.ID)
	if got.CurrentStep != "running detectors" || got.Progress != 60 {
		t.Errorf("progress = %s/%d, want running detectors/60", got.CurrentStep, got.Progress)
	}

	if err := s.CompleteJob(ctx, job.ID); err != nil {
		t.Fatalf("CompleteJob() error: %v", err)
	}
	got, _ = s.GetJob(ctx, job.ID)
	if got.Status != JobCompleted || got.Progress != 100 {
		t.Errorf("after complete: status=%s progress=%d, want completed/100", got.Status, got.Progress)
	}
}

func TestJobFailureRecordsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, job := seedRepoAndJob(t, s)

	if err := s.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.FailJob(ctx, job.ID, "clone timed out", "clone_timeout"); err != nil {
		t.Fatalf("FailJob() error: %v", err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.Status != JobFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != "clone timed out" || got.ErrorCode != "clone_timeout" {
		t.Errorf("error fields = %q/%q", got.ErrorMessage, got.ErrorCode)
	}
}

func TestJobIllegalTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, job := seedRepoAndJob(t, s)

	// queued -> completed skips processing.
	if err := s.CompleteJob(ctx, job.ID); !errors.Is(err, ErrBadTransition) {
		t.Errorf("CompleteJob on queued = %v, want ErrBadTransition", err)
	}

	if err := s.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	// Terminal states never move again.
	if err := s.StartJob(ctx, job.ID); !errors.Is(err, ErrBadTransition) {
		t.Errorf("StartJob on completed = %v, want ErrBadTransition", err)
	}
	if err := s.RequeueJob(ctx, job.ID); !errors.Is(err, ErrBadTransition) {
		t.Errorf("RequeueJob on completed = %v, want ErrBadTransition", err)
	}
}

func TestRequeueResetsProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, job := seedRepoAndJob(t, s)

	if err := s.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJobProgress(ctx, job.ID, "fetching repository", 20); err != nil {
		t.Fatal(err)
	}
	if err := s.RequeueJob(ctx, job.ID); err != nil {
		t.Fatalf("RequeueJob() error: %v", err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.Status != JobQueued || got.Progress != 0 || got.CurrentStep != "" {
		t.Errorf("after requeue: %+v, want queued with zero progress", got)
	}
	// Attempts carry across requeues.
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
}

func TestCreateJobRejectsSecondActiveJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo, job := seedRepoAndJob(t, s)

	// The queued job blocks a second insert, as does a processing one.
	if _, err := s.CreateJob(ctx, repo.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateJob with queued job error = %v, want ErrConflict", err)
	}
	if err := s.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateJob(ctx, repo.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateJob with processing job error = %v, want ErrConflict", err)
	}

	// A terminal job frees the slot.
	if err := s.CompleteJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateJob(ctx, repo.ID); err != nil {
		t.Errorf("CreateJob after completion error = %v, want nil", err)
	}
}

func TestActiveJobForRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo, job := seedRepoAndJob(t, s)

	active, err := s.ActiveJobForRepository(ctx, repo.ID)
	if err != nil {
		t.Fatalf("ActiveJobForRepository() error: %v", err)
	}
	if active.ID != job.ID {
		t.Errorf("active job = %s, want %s", active.ID, job.ID)
	}

	if err := s.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ActiveJobForRepository(ctx, repo.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after completion error = %v, want ErrNotFound", err)
	}
}

// ============================================================
// Analyses
// ============================================================

func completedAnalysis(repo Repository, job Job, score float64) Analysis {
	return Analysis{
		JobID:        job.ID,
		RepositoryID: repo.ID,
		SlopScore:    score,
		Engine:       "full",
		Metrics:      map[string]float64{"ai_signal_density": 0.4},
		Signals: []Signal{
			{Category: "hardcoded-data", Severity: "high", File: "main.go", Line: 42,
				Evidence: `users := []string{"alice", "bob"}`, Message: "inline fixture data"},
		},
		Notes:  []string{"README promises a REST API; no HTTP handlers found"},
		Claims: []ReadmeClaim{{Claim: "provides a REST API", Status: "contradicted"}},
	}
}

func TestSaveAndGetAnalysis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo, job := seedRepoAndJob(t, s)

	saved, err := s.SaveAnalysis(ctx, completedAnalysis(repo, job, 73.5))
	if err != nil {
		t.Fatalf("SaveAnalysis() error: %v", err)
	}

	got, err := s.GetAnalysis(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetAnalysis() error: %v", err)
	}
	if got.SlopScore != 73.5 {
		t.Errorf("score = %v, want 73.5", got.SlopScore)
	}
	if got.Metrics["ai_signal_density"] != 0.4 {
		t.Errorf("metrics = %v", got.Metrics)
	}
	if len(got.Signals) != 1 || got.Signals[0].Category != "hardcoded-data" {
		t.Errorf("signals = %+v", got.Signals)
	}
	if len(got.Notes) != 1 || len(got.Claims) != 1 {
		t.Errorf("notes=%d claims=%d, want 1/1", len(got.Notes), len(got.Claims))
	}
}

func TestSaveAnalysisOncePerJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo, job := seedRepoAndJob(t, s)

	if _, err := s.SaveAnalysis(ctx, completedAnalysis(repo, job, 50)); err != nil {
		t.Fatal(err)
	}
	_, err := s.SaveAnalysis(ctx, completedAnalysis(repo, job, 60))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("second save error = %v, want ErrConflict", err)
	}

	has, err := s.HasAnalysisForJob(ctx, job.ID)
	if err != nil || !has {
		t.Errorf("HasAnalysisForJob = %v, %v, want true, nil", has, err)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scores := map[string]float64{"clean": 12.0, "middling": 48.5, "sloppy": 91.0}
	for name, score := range scores {
		repo, err := s.UpsertRepository(ctx, "https://github.com/acme/"+name, "github.com", "acme", name)
		if err != nil {
			t.Fatal(err)
		}
		job, err := s.CreateJob(ctx, repo.ID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.SaveAnalysis(ctx, completedAnalysis(repo, job, score)); err != nil {
			t.Fatal(err)
		}
	}

	worst, err := s.Leaderboard(ctx, "worst", 10)
	if err != nil {
		t.Fatalf("Leaderboard(worst) error: %v", err)
	}
	if len(worst) != 3 || worst[0].Repository.Name != "sloppy" {
		t.Errorf("worst first = %+v, want sloppy on top", worst)
	}

	best, err := s.Leaderboard(ctx, "best", 10)
	if err != nil {
		t.Fatalf("Leaderboard(best) error: %v", err)
	}
	if len(best) != 3 || best[0].Repository.Name != "clean" {
		t.Errorf("best first = %+v, want clean on top", best)
	}
}

func TestLeaderboardUsesLatestAnalysis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo, job1 := seedRepoAndJob(t, s)

	if _, err := s.SaveAnalysis(ctx, completedAnalysis(repo, job1, 80)); err != nil {
		t.Fatal(err)
	}
	if err := s.StartJob(ctx, job1.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteJob(ctx, job1.ID); err != nil {
		t.Fatal(err)
	}
	job2, err := s.CreateJob(ctx, repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	a2 := completedAnalysis(repo, job2, 20)
	a2.AnalyzedAt = mustLatestTime(t, s, repo.ID)
	if _, err := s.SaveAnalysis(ctx, a2); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Leaderboard(ctx, "worst", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (one row per repository)", len(entries))
	}
	if entries[0].SlopScore != 20 {
		t.Errorf("score = %v, want latest score 20", entries[0].SlopScore)
	}
}

// mustLatestTime returns a timestamp strictly after the repository's
// newest analysis, so ordering by analyzed_at is deterministic.
func mustLatestTime(t *testing.T, s *Store, repoID string) time.Time {
	t.Helper()
	prev, err := s.LatestAnalysisForRepository(context.Background(), repoID)
	if err != nil {
		t.Fatal(err)
	}
	return prev.AnalyzedAt.Add(time.Millisecond)
}
