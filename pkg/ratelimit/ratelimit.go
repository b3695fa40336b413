// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit provides a shared client-side rate limiter with
// exponential backoff retry, used for outbound LLM and hosting-provider
// API calls.
//
// The limiter enforces a requests-per-minute budget with a burst allowance
// (token bucket via golang.org/x/time/rate). Retries back off exponentially
// with jitter; responses that look like quota exhaustion (HTTP 429) get the
// full backoff, other transient errors a short linear delay.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRetriesExhausted wraps the last error after all attempts failed.
var ErrRetriesExhausted = errors.New("all retry attempts failed")

// Config controls limiter and retry behavior.
type Config struct {
	// RequestsPerMinute is the sustained request budget. Default: 10.
	RequestsPerMinute int

	// Burst is the maximum burst above the sustained rate.
	// Default: RequestsPerMinute.
	Burst int

	// MaxRetries is the number of retries after the first attempt. Default: 3.
	MaxRetries int

	// MinRetryDelay is the base backoff delay. Default: 1s.
	MinRetryDelay time.Duration

	// MaxRetryDelay caps the backoff delay. Default: 5m.
	MaxRetryDelay time.Duration

	// BackoffFactor is the exponential multiplier. Default: 2.0.
	BackoffFactor float64

	// Jitter randomizes delays to 50-100% of the computed value, avoiding
	// thundering-herd retries. Default: true (disabled only in tests).
	Jitter bool
}

// DefaultConfig returns the limiter defaults used for LLM backends.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 10,
		MaxRetries:        3,
		MinRetryDelay:     time.Second,
		MaxRetryDelay:     5 * time.Minute,
		BackoffFactor:     2.0,
		Jitter:            true,
	}
}

// Limiter is a thread-safe rate limiter with retry support.
type Limiter struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	requests int64
}

// New creates a Limiter from cfg, filling in defaults for zero fields.
func New(cfg Config, logger *slog.Logger) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MinRetryDelay <= 0 {
		cfg.MinRetryDelay = time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 5 * time.Minute
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2.0
	}
	if logger == nil {
		logger = slog.Default()
	}

	perRequest := rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	return &Limiter{
		cfg:     cfg,
		limiter: rate.NewLimiter(perRequest, cfg.Burst),
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until a request slot is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	l.mu.Lock()
	l.requests++
	l.mu.Unlock()
	return nil
}

// Do runs fn under the rate limit, retrying transient failures.
//
// Description:
//
//	Each attempt first waits for a limiter slot. On failure the next attempt
//	is delayed: quota errors (429) get full exponential backoff with jitter,
//	other errors a short linear delay. Permanent failure returns the last
//	error wrapped in ErrRetriesExhausted.
//
// Inputs:
//
//	ctx - Context for cancellation; honored during waits and delays.
//	fn - The operation. A nil return stops retrying.
//
// Outputs:
//
//	error - Nil on success; ctx.Err() on cancellation; otherwise the last
//	failure wrapped in ErrRetriesExhausted.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if err := l.Wait(ctx); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == l.cfg.MaxRetries {
			break
		}

		var delay time.Duration
		if IsQuotaError(lastErr) {
			delay = l.backoffDelay(attempt)
			l.logger.Info("quota error, backing off",
				"attempt", attempt+1,
				"delay", delay.String(),
				"error", lastErr.Error())
		} else {
			delay = l.cfg.MinRetryDelay * time.Duration(attempt+1)
			l.logger.Debug("transient error, retrying",
				"attempt", attempt+1,
				"delay", delay.String(),
				"error", lastErr.Error())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, l.cfg.MaxRetries+1, lastErr)
}

// Stats reports limiter usage for diagnostics endpoints.
type Stats struct {
	RequestsPerMinute int     `json:"requests_per_minute"`
	Burst             int     `json:"burst"`
	TotalRequests     int64   `json:"total_requests"`
	AvailableTokens   float64 `json:"available_tokens"`
}

// Stats returns a snapshot of limiter state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		RequestsPerMinute: l.cfg.RequestsPerMinute,
		Burst:             l.cfg.Burst,
		TotalRequests:     l.requests,
		AvailableTokens:   l.limiter.Tokens(),
	}
}

// backoffDelay computes min(minDelay * factor^attempt, maxDelay), with
// 50-100% jitter when enabled.
func (l *Limiter) backoffDelay(attempt int) time.Duration {
	delay := float64(l.cfg.MinRetryDelay)
	for i := 0; i < attempt; i++ {
		delay *= l.cfg.BackoffFactor
		if delay >= float64(l.cfg.MaxRetryDelay) {
			break
		}
	}
	if delay > float64(l.cfg.MaxRetryDelay) {
		delay = float64(l.cfg.MaxRetryDelay)
	}
	if l.cfg.Jitter {
		l.mu.Lock()
		delay *= 0.5 + l.rng.Float64()*0.5
		l.mu.Unlock()
	}
	return time.Duration(delay)
}

// IsQuotaError reports whether err looks like a provider quota rejection.
// Providers surface these inconsistently, so this matches both status
// codes and message text.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted")
}
