// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the API endpoints onto a gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slopscope/slopscope/pkg/validation"
	"github.com/slopscope/slopscope/services/api/handlers"
	"github.com/slopscope/slopscope/services/api/middleware"
	"github.com/slopscope/slopscope/services/api/observability"
	"github.com/slopscope/slopscope/services/queue"
	"github.com/slopscope/slopscope/services/store"
)

// SetupRoutes registers all endpoints. authToken guards the /v1 group
// when non-empty; /health and /metrics stay open for probes.
func SetupRoutes(router *gin.Engine, st *store.Store, q *queue.Queue, metrics *observability.Metrics, authToken string) {
	registerValidations()

	if metrics != nil {
		router.Use(metrics.Middleware())
	}

	router.GET("/health", handlers.HandleHealth(st, q))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.BearerAuth(authToken))
	{
		repos := v1.Group("/repositories")
		{
			repos.POST("", handlers.HandleSubmitRepository(st, q, metrics))
			repos.GET("", handlers.HandleListRepositories(st))
			repos.GET("/:id", handlers.HandleGetRepository(st))
			repos.GET("/:id/analysis", handlers.HandleRepositoryAnalysis(st))
		}

		jobs := v1.Group("/jobs")
		{
			jobs.GET("/:id", handlers.HandleGetJob(st))
			jobs.GET("/:id/events", handlers.HandleJobEvents(st))
		}

		v1.GET("/analyses/:id", handlers.HandleGetAnalysis(st))
		v1.GET("/leaderboard", handlers.HandleLeaderboard(st))
	}
}

// registerValidations adds the repourl binding tag so request structs can
// declare repository URL fields declaratively.
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("repourl", func(fl validator.FieldLevel) bool {
		_, err := validation.ParseRepoURL(fl.Field().String())
		return err == nil
	})
}
