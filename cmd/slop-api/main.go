// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command slop-api starts the slopscope HTTP server.
//
// It serves the submission, job, analysis, and leaderboard endpoints and
// shares its SQLite store and Badger queue with slop-worker. Configuration
// comes from an optional YAML file plus SLOPSCOPE_* environment variables.
//
// # Usage
//
//	go build -o slop-api ./cmd/slop-api
//	./slop-api -config slopscope.yaml
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

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/slopscope/slopscope/pkg/config"
	"github.com/slopscope/slopscope/pkg/logging"
	"github.com/slopscope/slopscope/pkg/telemetry"
	"github.com/slopscope/slopscope/services/api/observability"
	"github.com/slopscope/slopscope/services/api/routes"
	"github.com/slopscope/slopscope/services/queue"
	"github.com/slopscope/slopscope/services/store"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "slop-api", JSON: true})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.API.OTLPEndpoint != "" {
		shutdown, err := telemetry.Init(ctx, "slop-api", version, cfg.API.OTLPEndpoint)
		if err != nil {
			log.Fatalf("telemetry: %v", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

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

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.API.OTLPEndpoint != "" {
		router.Use(otelgin.Middleware("slop-api"))
	}

	metrics := observability.NewMetrics(nil)
	routes.SetupRoutes(router, st, q, metrics, cfg.API.AuthToken)

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("api listening",
			"addr", cfg.API.Addr,
			"version", version,
			"auth_enabled", cfg.API.AuthToken != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
}
