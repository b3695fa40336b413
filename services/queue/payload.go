// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"encoding/json"
	"fmt"
)

// JobPayload is the message body for analysis jobs. The producer is the
// API service; the consumer is the worker.
type JobPayload struct {
	JobID        string `json:"job_id"`
	RepositoryID string `json:"repository_id"`
	RepoURL      string `json:"repo_url"`
}

// Encode serializes the payload for Enqueue.
func (p JobPayload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	return data, nil
}

// DecodeJobPayload parses a message body.
func DecodeJobPayload(body []byte) (JobPayload, error) {
	var p JobPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return JobPayload{}, fmt.Errorf("decode job payload: %w", err)
	}
	if p.JobID == "" || p.RepoURL == "" {
		return JobPayload{}, fmt.Errorf("job payload missing required fields")
	}
	return p, nil
}
