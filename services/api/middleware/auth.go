// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware holds gin middleware for the API service.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/slopscope/slopscope/services/api/datatypes"
)

// BearerAuth requires "Authorization: Bearer <token>" on every request.
// An empty configured token disables the check entirely, which is the
// local-development default.
func BearerAuth(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		got := extractBearerToken(c.GetHeader("Authorization"))
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				datatypes.ErrorResponse{Error: "missing bearer token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				datatypes.ErrorResponse{Error: "invalid bearer token"})
			return
		}
		c.Next()
	}
}

// extractBearerToken pulls the token out of an Authorization header.
// Returns "" when the header is absent or not a Bearer scheme.
func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
