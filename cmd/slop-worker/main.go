// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command slop-worker runs the analysis worker pool.
//
// It consumes jobs enqueued by slop-api, clones the submitted
// repositories, runs the slop detectors, and writes results back to the
// shared store. Scoring weights reload live when the config file changes.
//
// # Usage
//
//	go build -o slop-worker ./cmd/slop-worker
//	./slop-worker -config slopscope.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slopscope/slopscope/pkg/config"
	"github.com/slopscope/slopscope/pkg/logging"
	"github.com/slopscope/slopscope/services/analysis"
	"github.com/slopscope/slopscope/services/analysis/gitrepo"
	"github.com/slopscope/slopscope/services/analysis/readme"
	"github.com/slopscope/slopscope/services/analysis/score"
	"github.com/slopscope/slopscope/services/llm"
	"github.com/slopscope/slopscope/services/queue"
	"github.com/slopscope/slopscope/services/store"
	"github.com/slopscope/slopscope/services/worker"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "slop-worker", JSON: true})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	q, err := queue.Open(cfg.Queue.Path, queue.Options{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxReceives:       cfg.Queue.MaxReceives,
	})
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	defer q.Close()

	engine, err := buildEngine(ctx, cfg, logger.Slog())
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	// Scoring weights follow the config file without a restart.
	if *configPath != "" {
		if full, ok := engine.(*analysis.FullEngine); ok {
			_, err := config.Watch(ctx, *configPath, logger.Slog(), func(next config.Config) {
				full.SetWeights(weightsFrom(next.Scoring))
			})
			if err != nil {
				slog.Warn("config watch unavailable", "error", err)
			}
		}
	}

	archiver, err := worker.NewArchiver(ctx, cfg.Archive.GCSBucket, cfg.Archive.Prefix)
	if err != nil {
		log.Fatalf("archiver: %v", err)
	}
	if archiver != nil {
		defer archiver.Close()
	}

	metrics := worker.NewMetrics(nil)
	serveMetrics(ctx, cfg.Worker.MetricsAddr)

	w := worker.New(st, q, engine, archiver, metrics, worker.Options{
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		JobTimeout:   cfg.Worker.JobTimeout,
		MaxReceives:  cfg.Queue.MaxReceives,
	}, logger.Slog())

	if err := w.Run(ctx); err != nil {
		log.Fatalf("worker: %v", err)
	}
	slog.Info("worker stopped")
}

func buildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (analysis.Engine, error) {
	if cfg.Worker.Engine == "mock" {
		return analysis.MockEngine{}, nil
	}

	client, err := llm.New(ctx, llm.Options{
		Backend:           cfg.LLM.Backend,
		Model:             cfg.LLM.Model,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, logger)
	if err != nil {
		return nil, err
	}

	// The judge is optional; without one, claims fall back to the
	// heuristic checks alone.
	var judge readme.Judge
	if client != nil {
		judge = llm.NewClaimJudge(client)
		logger.Info("readme claim judge enabled", "backend", client.Name())
	}

	runner := gitrepo.NewRunner(cfg.Worker.Workdir, cfg.Worker.CloneTimeout)
	return analysis.NewFullEngine(runner, judge, weightsFrom(cfg.Scoring), logger), nil
}

func weightsFrom(s config.ScoringConfig) score.Weights {
	return score.Weights{
		score.ComponentReadmeMismatch:    s.ReadmeMismatch,
		score.ComponentAISignalDensity:   s.AISignalDensity,
		score.ComponentHardcodingDensity: s.HardcodingDensity,
		score.ComponentErrorHandling:     s.ErrorHandling,
		score.ComponentChurnSuspicion:    s.ChurnSuspicion,
	}
}

// serveMetrics exposes /metrics for Prometheus scrapes. Best-effort; the
// worker runs fine without it.
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics endpoint failed", "addr", addr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
