// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/slopscope/slopscope/services/store"
)

// Archiver uploads finished analysis reports to object storage. It is
// optional; a nil Archiver disables archival.
type Archiver struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewArchiver opens a GCS client for the named bucket. Credentials come
// from the environment (application default credentials).
func NewArchiver(ctx context.Context, bucket, prefix string) (*Archiver, error) {
	if bucket == "" {
		return nil, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Archiver{client: client, bucket: bucket, prefix: prefix}, nil
}

// Archive writes the analysis as a JSON object named by analysis ID.
func (a *Archiver) Archive(ctx context.Context, analysis store.Analysis) error {
	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	obj := a.client.Bucket(a.bucket).Object(a.prefix + analysis.ID + ".json")
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write report object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize report object: %w", err)
	}
	return nil
}

// Close releases the storage client.
func (a *Archiver) Close() error {
	return a.client.Close()
}
