// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the request and response bodies of the
// public API.
package datatypes

import "github.com/slopscope/slopscope/services/store"

// SubmitRepositoryRequest asks for a repository to be analyzed.
type SubmitRepositoryRequest struct {
	// URL of a public repository on a supported host. The repourl tag is
	// registered in routes.SetupRoutes.
	URL string `json:"url" binding:"required,repourl"`
}

// SubmitRepositoryResponse acknowledges a submission. When an analysis
// for the repository is already queued or running, Deduplicated is true
// and Job is the existing job.
type SubmitRepositoryResponse struct {
	Repository   store.Repository `json:"repository"`
	Job          store.Job        `json:"job"`
	Deduplicated bool             `json:"deduplicated"`
}

// RepositoryResponse is a repository with its latest score, if any.
type RepositoryResponse struct {
	Repository  store.Repository `json:"repository"`
	LatestScore *float64         `json:"latest_score,omitempty"`
	AnalysisID  string           `json:"analysis_id,omitempty"`
}

// JobEvent is one progress update on the job event stream.
type JobEvent struct {
	JobID        string   `json:"job_id"`
	Status       string   `json:"status"`
	Step         string   `json:"step,omitempty"`
	Progress     int      `json:"progress"`
	ErrorMessage string   `json:"error_message,omitempty"`
	ErrorCode    string   `json:"error_code,omitempty"`
	SlopScore    *float64 `json:"slop_score,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
