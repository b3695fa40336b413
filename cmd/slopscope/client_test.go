// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopscope/slopscope/services/api/datatypes"
	"github.com/slopscope/slopscope/services/store"
)

func TestClientSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/repositories", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req datatypes.SubmitRepositoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://github.com/acme/widgets", req.URL)

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(datatypes.SubmitRepositoryResponse{
			Job: store.Job{ID: "job-1", Status: store.JobQueued},
		})
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, "tok")
	resp, err := client.submit("https://github.com/acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.Job.ID)
}

func TestClientSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(datatypes.ErrorResponse{Error: "unsupported hosting provider"})
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, "")
	_, err := client.submit("https://evil.example/a/b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported hosting provider")
	assert.Contains(t, err.Error(), "422")
}

func TestClientLeaderboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/leaderboard", r.URL.Path)
		assert.Equal(t, "best", r.URL.Query().Get("order"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(map[string]any{
			"entries": []store.LeaderboardEntry{
				{SlopScore: 12.5, Repository: store.Repository{Owner: "acme", Name: "clean"}},
			},
		})
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, "")
	entries, err := client.leaderboard("best", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 12.5, entries[0].SlopScore)
}
