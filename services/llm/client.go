// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the text-generation backends used for README
// claim adjudication. Backends share the Client interface; the factory
// wires in rate limiting so worker concurrency cannot blow provider
// quotas.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/slopscope/slopscope/pkg/ratelimit"
)

// Client generates a completion for a prompt.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options selects and tunes a backend.
type Options struct {
	// Backend is "openai", "gemini", or "none".
	Backend string

	// Model overrides the backend default model.
	Model string

	// RequestsPerMinute is the outbound rate budget.
	RequestsPerMinute int
}

// New builds the configured backend. Backend "none" (or empty) returns
// nil with no error; callers treat a nil Client as LLM disabled. ctx
// bounds backend construction (the Gemini client dials during setup).
func New(ctx context.Context, opts Options, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var inner Client
	var err error
	switch opts.Backend {
	case "", "none":
		return nil, nil
	case "openai":
		inner, err = NewOpenAIClient(opts.Model, logger)
	case "gemini":
		inner, err = NewGeminiClient(ctx, opts.Model, logger)
	default:
		return nil, fmt.Errorf("unknown llm backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	cfg := ratelimit.DefaultConfig()
	if opts.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = opts.RequestsPerMinute
	}
	return &limitedClient{
		inner:   inner,
		limiter: ratelimit.New(cfg, logger),
	}, nil
}

// limitedClient applies the shared rate limiter with retry and backoff
// around a backend.
type limitedClient struct {
	inner   Client
	limiter *ratelimit.Limiter
}

func (c *limitedClient) Name() string { return c.inner.Name() }

func (c *limitedClient) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := c.limiter.Do(ctx, func(ctx context.Context) error {
		var genErr error
		out, genErr = c.inner.Generate(ctx, prompt)
		return genErr
	})
	return out, err
}

// apiKeyFromEnv reads a key from the environment, falling back to the
// container secret path.
func apiKeyFromEnv(envVar, secretPath string) (string, error) {
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	if data, err := os.ReadFile(secretPath); err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	return "", fmt.Errorf("%s not set and secret %s not found", envVar, secretPath)
}
