// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/slopscope/slopscope/services/api/datatypes"
	"github.com/slopscope/slopscope/services/store"
)

// eventPollInterval is how often the event stream re-reads the job row.
// Workers persist progress through the shared store, so polling it is the
// coordination point between the two processes.
const eventPollInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API serves public read-only progress data.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleGetJob returns one job's current state.
func HandleGetJob(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := st.GetJob(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "job not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not load job"})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// HandleJobEvents upgrades to a WebSocket and streams job progress
// events until the job reaches a terminal state. Each event is sent only
// when the job row changed since the last poll.
func HandleJobEvents(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		jobID := c.Param("id")

		if _, err := st.GetJob(ctx, jobID); errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "job not found"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not load job"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the error response.
			return
		}
		defer conn.Close()

		// Drain client frames so close messages are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		var last datatypes.JobEvent
		ticker := time.NewTicker(eventPollInterval)
		defer ticker.Stop()

		for {
			job, err := st.GetJob(ctx, jobID)
			if err != nil {
				slog.Warn("event stream store read failed", "job_id", jobID, "error", err)
				return
			}

			event := jobEvent(c, st, job)
			if event != last {
				if err := conn.WriteJSON(event); err != nil {
					return
				}
				last = event
			}

			if job.Status == store.JobCompleted || job.Status == store.JobFailed {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)))
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// jobEvent projects a job row onto the event wire format, attaching the
// final score once the job completes.
func jobEvent(c *gin.Context, st *store.Store, job store.Job) datatypes.JobEvent {
	event := datatypes.JobEvent{
		JobID:        job.ID,
		Status:       string(job.Status),
		Step:         job.CurrentStep,
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		ErrorCode:    job.ErrorCode,
	}
	if job.Status == store.JobCompleted {
		if a, err := st.AnalysisForJob(c.Request.Context(), job.ID); err == nil {
			event.SlopScore = &a.SlopScore
		}
	}
	return event
}
