// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "time"

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// validTransitions enumerates the legal status edges. A processing job
// may return to queued when its queue lease expires and the message is
// redelivered.
var validTransitions = map[JobStatus][]JobStatus{
	JobQueued:     {JobProcessing},
	JobProcessing: {JobCompleted, JobFailed, JobQueued},
}

func transitionAllowed(from, to JobStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Repository is a submitted source repository.
type Repository struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Host      string    `json:"host"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Job tracks one analysis run for a repository.
type Job struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository_id"`
	Status       JobStatus `json:"status"`
	CurrentStep  string    `json:"current_step,omitempty"`
	Progress     int       `json:"progress"`
	Attempts     int       `json:"attempts"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Analysis is the scored result of a completed job.
type Analysis struct {
	ID           string             `json:"id"`
	JobID        string             `json:"job_id"`
	RepositoryID string             `json:"repository_id"`
	SlopScore    float64            `json:"slop_score"`
	Engine       string             `json:"engine"`
	Metrics      map[string]float64 `json:"metrics"`
	AnalyzedAt   time.Time          `json:"analyzed_at"`

	// Populated by GetAnalysis, nil on list queries.
	Signals []Signal      `json:"signals,omitempty"`
	Notes   []string      `json:"notes,omitempty"`
	Claims  []ReadmeClaim `json:"readme_claims,omitempty"`
}

// Signal is one concrete finding contributing to the score.
type Signal struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Evidence string `json:"evidence,omitempty"`
	Message  string `json:"message"`
}

// ReadmeClaim is a testable statement extracted from the README and its
// verification outcome: "verified", "unverified", or "contradicted".
type ReadmeClaim struct {
	Claim    string `json:"claim"`
	Status   string `json:"status"`
	Evidence string `json:"evidence,omitempty"`
}

// LeaderboardEntry pairs a repository with its latest score.
type LeaderboardEntry struct {
	Repository Repository `json:"repository"`
	AnalysisID string     `json:"analysis_id"`
	SlopScore  float64    `json:"slop_score"`
	AnalyzedAt time.Time  `json:"analyzed_at"`
}
