// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopscope/slopscope/services/api/datatypes"
	"github.com/slopscope/slopscope/services/api/observability"
	"github.com/slopscope/slopscope/services/queue"
	"github.com/slopscope/slopscope/services/store"
)

type testEnv struct {
	router *gin.Engine
	store  *store.Store
	queue  *queue.Queue
}

func newTestEnv(t *testing.T, authToken string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q, err := queue.Open("", queue.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	router := gin.New()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	SetupRoutes(router, st, q, metrics, authToken)
	return &testEnv{router: router, store: st, queue: q}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// ============================================================
// Submission
// ============================================================

func TestSubmitRepository(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/v1/repositories",
		`{"url": "github.com/acme/widgets"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp datatypes.SubmitRepositoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://github.com/acme/widgets", resp.Repository.URL)
	assert.Equal(t, store.JobQueued, resp.Job.Status)
	assert.False(t, resp.Deduplicated)

	stats, err := env.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Ready)
}

func TestSubmitRepositoryDeduplicates(t *testing.T) {
	env := newTestEnv(t, "")

	first := env.do(t, http.MethodPost, "/v1/repositories",
		`{"url": "https://github.com/acme/widgets"}`, nil)
	require.Equal(t, http.StatusAccepted, first.Code)
	var firstResp datatypes.SubmitRepositoryResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := env.do(t, http.MethodPost, "/v1/repositories",
		`{"url": "https://github.com/acme/widgets.git"}`, nil)
	require.Equal(t, http.StatusAccepted, second.Code)
	var secondResp datatypes.SubmitRepositoryResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

	assert.True(t, secondResp.Deduplicated)
	assert.Equal(t, firstResp.Job.ID, secondResp.Job.ID)

	stats, err := env.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Ready, "dedup must not enqueue a second message")
}

func TestSubmitRepositoryRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{}`},
		{"not json", `oops`},
		{"unsupported host", `{"url": "https://evil.example.com/a/b"}`},
		{"extra path segments", `{"url": "https://github.com/a/b/c"}`},
		{"embedded credentials", `{"url": "https://user:pw@github.com/a/b"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/repositories", tt.body, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
}

// ============================================================
// Reads
// ============================================================

func TestGetRepositoryWithLatestScore(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	repo, err := env.store.UpsertRepository(ctx, "https://github.com/acme/widgets", "github.com", "acme", "widgets")
	require.NoError(t, err)
	job, err := env.store.CreateJob(ctx, repo.ID)
	require.NoError(t, err)
	require.NoError(t, env.store.StartJob(ctx, job.ID))
	_, err = env.store.SaveAnalysis(ctx, store.Analysis{
		JobID: job.ID, RepositoryID: repo.ID, SlopScore: 66.5, Engine: "full",
	})
	require.NoError(t, err)
	require.NoError(t, env.store.CompleteJob(ctx, job.ID))

	rec := env.do(t, http.MethodGet, "/v1/repositories/"+repo.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp datatypes.RepositoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.LatestScore)
	assert.Equal(t, 66.5, *resp.LatestScore)
	assert.NotEmpty(t, resp.AnalysisID)

	// The full analysis endpoint returns the same record.
	rec = env.do(t, http.MethodGet, "/v1/repositories/"+repo.ID+"/analysis", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var a store.Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, 66.5, a.SlopScore)
}

func TestGetUnknownResources(t *testing.T) {
	env := newTestEnv(t, "")

	for _, path := range []string{
		"/v1/repositories/nope",
		"/v1/repositories/nope/analysis",
		"/v1/jobs/nope",
		"/v1/analyses/nope",
	} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	seed := func(slug string, score float64) {
		owner, name, _ := strings.Cut(slug, "/")
		repo, err := env.store.UpsertRepository(ctx, "https://github.com/"+slug, "github.com", owner, name)
		require.NoError(t, err)
		job, err := env.store.CreateJob(ctx, repo.ID)
		require.NoError(t, err)
		require.NoError(t, env.store.StartJob(ctx, job.ID))
		_, err = env.store.SaveAnalysis(ctx, store.Analysis{
			JobID: job.ID, RepositoryID: repo.ID, SlopScore: score, Engine: "full",
		})
		require.NoError(t, err)
		require.NoError(t, env.store.CompleteJob(ctx, job.ID))
	}
	seed("acme/clean", 8.5)
	seed("acme/sloppy", 92.0)

	rec := env.do(t, http.MethodGet, "/v1/leaderboard?order=worst", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries []store.LeaderboardEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, 92.0, resp.Entries[0].SlopScore)

	rec = env.do(t, http.MethodGet, "/v1/leaderboard?order=sideways", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================
// Auth and health
// ============================================================

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t, "sekrit")

	rec := env.do(t, http.MethodGet, "/v1/leaderboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := http.Header{"Authorization": []string{"Bearer wrong"}}
	rec = env.do(t, http.MethodGet, "/v1/leaderboard", "", bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	good := http.Header{"Authorization": []string{"Bearer sekrit"}}
	rec = env.do(t, http.MethodGet, "/v1/leaderboard", "", good)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open.
	rec = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReportsQueueDepth(t *testing.T) {
	env := newTestEnv(t, "")
	require.NoError(t, env.queue.Enqueue(context.Background(), "j1", []byte(`{}`)))

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["queue_ready"])
}

// ============================================================
// Job events
// ============================================================

func TestJobEventsStreamUntilTerminal(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	repo, err := env.store.UpsertRepository(ctx, "https://github.com/acme/widgets", "github.com", "acme", "widgets")
	require.NoError(t, err)
	job, err := env.store.CreateJob(ctx, repo.ID)
	require.NoError(t, err)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/" + job.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	// Drive the job through its lifecycle as a worker would.
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = env.store.StartJob(ctx, job.ID)
		_ = env.store.UpdateJobProgress(ctx, job.ID, "scanning files", 30)
		time.Sleep(100 * time.Millisecond)
		_, _ = env.store.SaveAnalysis(ctx, store.Analysis{
			JobID: job.ID, RepositoryID: repo.ID, SlopScore: 41.0, Engine: "full",
		})
		_ = env.store.CompleteJob(ctx, job.ID)
	}()

	var events []datatypes.JobEvent
	for {
		var event datatypes.JobEvent
		if err := conn.ReadJSON(&event); err != nil {
			break
		}
		events = append(events, event)
		if event.Status == string(store.JobCompleted) {
			break
		}
	}

	require.NotEmpty(t, events)
	assert.Equal(t, string(store.JobQueued), events[0].Status)
	last := events[len(events)-1]
	require.Equal(t, string(store.JobCompleted), last.Status)
	require.NotNil(t, last.SlopScore)
	assert.Equal(t, 41.0, *last.SlopScore)
}

func TestJobEventsUnknownJob(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/v1/jobs/nope/events", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
