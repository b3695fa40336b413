// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads slopscope configuration from an optional YAML file
// with environment variable overrides.
//
// Precedence, lowest to highest: built-in defaults, YAML file, environment.
// Environment variables use the SLOPSCOPE_ prefix (SLOPSCOPE_API_ADDR,
// SLOPSCOPE_DB_PATH, ...). The scoring weights section can be hot-reloaded
// at runtime via Watcher.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrBadConfig indicates an unreadable or semantically invalid config file.
var ErrBadConfig = errors.New("invalid configuration")

// Config is the full application configuration shared by the API server,
// the worker, and the CLI.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Store   StoreConfig   `yaml:"store"`
	Queue   QueueConfig   `yaml:"queue"`
	Worker  WorkerConfig  `yaml:"worker"`
	LLM     LLMConfig     `yaml:"llm"`
	Scoring ScoringConfig `yaml:"scoring"`
	Archive ArchiveConfig `yaml:"archive"`
}

// APIConfig configures the HTTP service.
type APIConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// AuthToken, when non-empty, requires "Authorization: Bearer <token>"
	// on all /v1 routes. Empty disables auth (local development).
	AuthToken string `yaml:"auth_token"`

	// OTLPEndpoint enables OpenTelemetry tracing when non-empty.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path"`
}

// QueueConfig configures the durable job queue.
type QueueConfig struct {
	// Path is the Badger directory for queue state.
	Path string `yaml:"path"`

	// VisibilityTimeout is how long a received message stays invisible
	// before it is returned to the ready state.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`

	// MaxReceives is the receive count after which a message is
	// dead-lettered instead of retried.
	MaxReceives int `yaml:"max_receives"`
}

// WorkerConfig configures the analysis worker pool.
type WorkerConfig struct {
	// Concurrency is the number of concurrent job processors.
	Concurrency int `yaml:"concurrency"`

	// PollInterval is the idle delay between empty queue polls.
	PollInterval time.Duration `yaml:"poll_interval"`

	// CloneTimeout bounds the git clone step.
	CloneTimeout time.Duration `yaml:"clone_timeout"`

	// JobTimeout bounds a full analysis run.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// Workdir is the scratch directory for cloned repositories.
	Workdir string `yaml:"workdir"`

	// Engine selects the analysis engine: "full" or "mock".
	Engine string `yaml:"engine"`

	// MetricsAddr is the worker's Prometheus listen address. Empty
	// disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LLMConfig configures the optional README verification backend.
type LLMConfig struct {
	// Backend selects the provider: "openai", "gemini", or "none".
	Backend string `yaml:"backend"`

	// Model overrides the provider default model name.
	Model string `yaml:"model"`

	// RequestsPerMinute is the outbound rate budget.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// ScoringConfig holds the score aggregation weights. Values are relative;
// the scorer normalizes them. This section is hot-reloadable.
type ScoringConfig struct {
	ReadmeMismatch    float64 `yaml:"readme_mismatch"`
	AISignalDensity   float64 `yaml:"ai_signal_density"`
	HardcodingDensity float64 `yaml:"hardcoding_density"`
	ErrorHandling     float64 `yaml:"error_handling"`
	ChurnSuspicion    float64 `yaml:"churn_suspicion"`
}

// ArchiveConfig configures optional report archival to object storage.
type ArchiveConfig struct {
	// GCSBucket, when non-empty, enables upload of rendered analysis
	// reports to the named bucket.
	GCSBucket string `yaml:"gcs_bucket"`

	// Prefix is prepended to object names, e.g. "reports/".
	Prefix string `yaml:"prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Path: "slopscope.db",
		},
		Queue: QueueConfig{
			Path:              "queue",
			VisibilityTimeout: 30 * time.Second,
			MaxReceives:       3,
		},
		Worker: WorkerConfig{
			Concurrency:  2,
			PollInterval: 2 * time.Second,
			CloneTimeout: 2 * time.Minute,
			JobTimeout:   10 * time.Minute,
			Workdir:      os.TempDir(),
			Engine:       "full",
			MetricsAddr:  ":9091",
		},
		LLM: LLMConfig{
			Backend:           "none",
			RequestsPerMinute: 10,
		},
		Scoring: ScoringConfig{
			ReadmeMismatch:    0.30,
			AISignalDensity:   0.25,
			HardcodingDensity: 0.25,
			ErrorHandling:     0.10,
			ChurnSuspicion:    0.10,
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path, and
// environment overrides. An empty path skips the file layer; a missing
// file at a non-empty path is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrBadConfig, path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrBadConfig, path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("%w: worker concurrency must be >= 1", ErrBadConfig)
	}
	if c.Queue.MaxReceives < 1 {
		return fmt.Errorf("%w: queue max_receives must be >= 1", ErrBadConfig)
	}
	switch c.Worker.Engine {
	case "full", "mock":
	default:
		return fmt.Errorf("%w: unknown engine %q", ErrBadConfig, c.Worker.Engine)
	}
	switch c.LLM.Backend {
	case "", "none", "openai", "gemini":
	default:
		return fmt.Errorf("%w: unknown llm backend %q", ErrBadConfig, c.LLM.Backend)
	}
	total := c.Scoring.ReadmeMismatch + c.Scoring.AISignalDensity +
		c.Scoring.HardcodingDensity + c.Scoring.ErrorHandling + c.Scoring.ChurnSuspicion
	if total <= 0 {
		return fmt.Errorf("%w: scoring weights sum to zero", ErrBadConfig)
	}
	return nil
}

// applyEnv overlays SLOPSCOPE_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	setString(&cfg.API.Addr, "SLOPSCOPE_API_ADDR")
	setString(&cfg.API.AuthToken, "SLOPSCOPE_API_TOKEN")
	setString(&cfg.API.OTLPEndpoint, "SLOPSCOPE_OTLP_ENDPOINT")
	setString(&cfg.Store.Path, "SLOPSCOPE_DB_PATH")
	setString(&cfg.Queue.Path, "SLOPSCOPE_QUEUE_PATH")
	setString(&cfg.Worker.Workdir, "SLOPSCOPE_WORKDIR")
	setString(&cfg.Worker.Engine, "SLOPSCOPE_ENGINE")
	setString(&cfg.Worker.MetricsAddr, "SLOPSCOPE_WORKER_METRICS_ADDR")
	setString(&cfg.LLM.Backend, "SLOPSCOPE_LLM_BACKEND")
	setString(&cfg.LLM.Model, "SLOPSCOPE_LLM_MODEL")
	setString(&cfg.Archive.GCSBucket, "SLOPSCOPE_ARCHIVE_BUCKET")
	setInt(&cfg.Worker.Concurrency, "SLOPSCOPE_WORKER_CONCURRENCY")
	setInt(&cfg.Queue.MaxReceives, "SLOPSCOPE_QUEUE_MAX_RECEIVES")
	setInt(&cfg.LLM.RequestsPerMinute, "SLOPSCOPE_LLM_RPM")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
