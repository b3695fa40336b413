// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slopscope/slopscope/services/queue"
	"github.com/slopscope/slopscope/services/store"
)

// HandleHealth reports liveness plus store and queue reachability.
func HandleHealth(st *store.Store, q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}

		if err := st.DB().PingContext(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["store"] = err.Error()
		}
		if stats, err := q.Stats(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["queue"] = err.Error()
		} else {
			body["queue_ready"] = stats.Ready
			body["queue_inflight"] = stats.InFlight
			body["queue_dead"] = stats.Dead
		}

		c.JSON(status, body)
	}
}
