// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slopscope/slopscope/services/api/datatypes"
	"github.com/slopscope/slopscope/services/store"
)

// apiClient is a thin HTTP client for a slop-api server.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr datatypes.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

func (c *apiClient) submit(repoURL string) (datatypes.SubmitRepositoryResponse, error) {
	var resp datatypes.SubmitRepositoryResponse
	err := c.do(http.MethodPost, "/v1/repositories",
		datatypes.SubmitRepositoryRequest{URL: repoURL}, &resp)
	return resp, err
}

func (c *apiClient) job(id string) (store.Job, error) {
	var job store.Job
	err := c.do(http.MethodGet, "/v1/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

func (c *apiClient) analysis(id string) (store.Analysis, error) {
	var a store.Analysis
	err := c.do(http.MethodGet, "/v1/analyses/"+url.PathEscape(id), nil, &a)
	return a, err
}

func (c *apiClient) analysisForRepository(repoID string) (store.Analysis, error) {
	var a store.Analysis
	err := c.do(http.MethodGet, "/v1/repositories/"+url.PathEscape(repoID)+"/analysis", nil, &a)
	return a, err
}

func (c *apiClient) leaderboard(order string, limit int) ([]store.LeaderboardEntry, error) {
	var resp struct {
		Entries []store.LeaderboardEntry `json:"entries"`
	}
	path := "/v1/leaderboard?order=" + url.QueryEscape(order) + "&limit=" + strconv.Itoa(limit)
	err := c.do(http.MethodGet, path, nil, &resp)
	return resp.Entries, err
}

// events opens the job's WebSocket stream and delivers each progress
// event to fn until the stream closes.
func (c *apiClient) events(jobID string, fn func(datatypes.JobEvent)) error {
	wsBase := strings.Replace(c.base, "http", "ws", 1)
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(
		wsBase+"/v1/jobs/"+url.PathEscape(jobID)+"/events", header)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer conn.Close()

	for {
		var event datatypes.JobEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		fn(event)
	}
}
