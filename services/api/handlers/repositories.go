// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the API endpoints.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/slopscope/slopscope/pkg/validation"
	"github.com/slopscope/slopscope/services/api/datatypes"
	"github.com/slopscope/slopscope/services/api/observability"
	"github.com/slopscope/slopscope/services/queue"
	"github.com/slopscope/slopscope/services/store"
)

// HandleSubmitRepository accepts a repository URL, records it, and
// enqueues an analysis job. Resubmitting a repository that already has a
// queued or running job returns that job instead of starting another.
func HandleSubmitRepository(st *store.Store, q *queue.Queue, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SubmitRepositoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.CountSubmission("rejected")
			c.JSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{
				Error: "url must be a repository on a supported host"})
			return
		}

		// The binding tag already validated the URL; parse again for the
		// normalized form.
		ref, err := validation.ParseRepoURL(req.URL)
		if err != nil {
			metrics.CountSubmission("rejected")
			c.JSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		ctx := c.Request.Context()
		repo, err := st.UpsertRepository(ctx, ref.URL, ref.Host, ref.Owner, ref.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not record repository"})
			return
		}

		// Dedup: one live job per repository.
		if active, err := st.ActiveJobForRepository(ctx, repo.ID); err == nil {
			metrics.CountSubmission("deduplicated")
			c.JSON(http.StatusAccepted, datatypes.SubmitRepositoryResponse{
				Repository:   repo,
				Job:          active,
				Deduplicated: true,
			})
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not check job state"})
			return
		}

		job, err := st.CreateJob(ctx, repo.ID)
		if errors.Is(err, store.ErrConflict) {
			// A concurrent submission won the insert; hand back its job.
			active, aerr := st.ActiveJobForRepository(ctx, repo.ID)
			if aerr != nil {
				c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not check job state"})
				return
			}
			metrics.CountSubmission("deduplicated")
			c.JSON(http.StatusAccepted, datatypes.SubmitRepositoryResponse{
				Repository:   repo,
				Job:          active,
				Deduplicated: true,
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not create job"})
			return
		}

		body, err := queue.JobPayload{JobID: job.ID, RepositoryID: repo.ID, RepoURL: repo.URL}.Encode()
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not encode job"})
			return
		}
		if err := q.Enqueue(ctx, job.ID, body); err != nil && !errors.Is(err, queue.ErrDuplicate) {
			slog.Error("enqueue failed", "job_id", job.ID, "error", err)
			if ferr := st.FailJob(ctx, job.ID, "could not enqueue job", "enqueue_failed"); ferr != nil {
				slog.Warn("could not mark job failed", "job_id", job.ID, "error", ferr)
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not enqueue job"})
			return
		}

		metrics.CountSubmission("accepted")
		c.JSON(http.StatusAccepted, datatypes.SubmitRepositoryResponse{
			Repository: repo,
			Job:        job,
		})
	}
}

// HandleGetRepository returns one repository with its latest score.
func HandleGetRepository(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		repo, err := st.GetRepository(ctx, c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "repository not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not load repository"})
			return
		}

		resp := datatypes.RepositoryResponse{Repository: repo}
		if a, err := st.LatestAnalysisForRepository(ctx, repo.ID); err == nil {
			resp.LatestScore = &a.SlopScore
			resp.AnalysisID = a.ID
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleListRepositories returns known repositories, newest first.
func HandleListRepositories(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseLimit(c.Query("limit"), 50)
		repos, err := st.ListRepositories(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not list repositories"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"repositories": repos})
	}
}

// HandleRepositoryAnalysis returns the latest full analysis for a
// repository, including signals, notes, and README claims.
func HandleRepositoryAnalysis(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, err := st.GetRepository(ctx, c.Param("id")); errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "repository not found"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not load repository"})
			return
		}

		a, err := st.LatestAnalysisForRepository(ctx, c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "no analysis yet"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not load analysis"})
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
