// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slopscope/slopscope/services/api/datatypes"
	"github.com/slopscope/slopscope/services/store"
)

// HandleGetAnalysis returns a full analysis by ID.
func HandleGetAnalysis(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := st.GetAnalysis(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "analysis not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not load analysis"})
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// HandleLeaderboard ranks repositories by their latest slop score.
// order=best lists the cleanest first, order=worst the sloppiest.
func HandleLeaderboard(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		order := c.DefaultQuery("order", "worst")
		if order != "best" && order != "worst" {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "order must be best or worst"})
			return
		}

		limit := parseLimit(c.Query("limit"), 20)
		entries, err := st.Leaderboard(c.Request.Context(), order, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not build leaderboard"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": order, "entries": entries})
	}
}
