// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/slopscope/slopscope/pkg/config"
	"github.com/slopscope/slopscope/pkg/ux"
	"github.com/slopscope/slopscope/pkg/validation"
	"github.com/slopscope/slopscope/services/analysis"
	"github.com/slopscope/slopscope/services/analysis/gitrepo"
	"github.com/slopscope/slopscope/services/analysis/readme"
	"github.com/slopscope/slopscope/services/analysis/score"
	"github.com/slopscope/slopscope/services/llm"
)

// runAnalyze clones and scores a repository in-process. The same engine
// the worker runs, minus the store and queue.
func runAnalyze(cmd *cobra.Command, args []string) error {
	ref, err := validation.ParseRepoURL(args[0])
	if err != nil {
		return err
	}

	// Env-driven settings only; the CLI takes no config file.
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var engine analysis.Engine
	if useMock {
		engine = analysis.MockEngine{}
	} else {
		client, err := llm.New(cmd.Context(), llm.Options{
			Backend:           cfg.LLM.Backend,
			Model:             cfg.LLM.Model,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		}, logger)
		if err != nil {
			return err
		}
		var judge readme.Judge
		if client != nil {
			judge = llm.NewClaimJudge(client)
		}

		dir := workdir
		if dir == "" {
			dir = os.TempDir()
		}
		runner := gitrepo.NewRunner(dir, cfg.Worker.CloneTimeout)
		engine = analysis.NewFullEngine(runner, judge, score.Weights{
			score.ComponentReadmeMismatch:    cfg.Scoring.ReadmeMismatch,
			score.ComponentAISignalDensity:   cfg.Scoring.AISignalDensity,
			score.ComponentHardcodingDensity: cfg.Scoring.HardcodingDensity,
			score.ComponentErrorHandling:     cfg.Scoring.ErrorHandling,
			score.ComponentChurnSuspicion:    cfg.Scoring.ChurnSuspicion,
		}, logger)
	}

	progress := func(step string, pct int) {
		if !jsonOutput {
			fmt.Printf("  [%3d%%] %s\n", pct, step)
		}
	}

	ux.Printf(ux.Styles.Title, "analyzing %s", ref.Slug())
	result, err := engine.Analyze(cmd.Context(), analysis.Request{RepoURL: ref.URL}, progress)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}
	printResult(result)
	return nil
}

// printResult renders an in-process analysis result.
func printResult(result *analysis.Result) {
	ux.Printf(ux.ScoreStyle(result.SlopScore), "\nslop score: %.1f / 100", result.SlopScore)

	if len(result.Components) > 0 {
		fmt.Println("\ncomponents:")
		for name, value := range result.Components {
			fmt.Printf("  %-20s %.2f\n", name, value)
		}
	}

	if len(result.Claims) > 0 {
		fmt.Println("\nreadme claims:")
		for _, claim := range result.Claims {
			style := ux.Styles.Muted
			switch claim.Status {
			case readme.StatusVerified:
				style = ux.Styles.Good
			case readme.StatusContradicted:
				style = ux.Styles.Error
			}
			fmt.Printf("  [%s] %s\n", ux.Render(style, claim.Status), claim.Text)
		}
	}

	if len(result.Notes) > 0 {
		fmt.Println("\nnotes:")
		for _, note := range result.Notes {
			fmt.Printf("  - %s\n", note)
		}
	}

	if len(result.Signals) > 0 {
		fmt.Printf("\nsignals (%d):\n", len(result.Signals))
		shown := result.Signals
		if len(shown) > 15 {
			shown = shown[:15]
		}
		for _, sig := range shown {
			loc := "repository"
			if sig.File != "" {
				loc = fmt.Sprintf("%s:%d", sig.File, sig.Line)
			}
			fmt.Printf("  [%s/%s] %s: %s\n", sig.Category, sig.Severity, loc, sig.Message)
		}
		if len(result.Signals) > 15 {
			fmt.Printf("  ... and %d more (pass --json for all)\n", len(result.Signals)-15)
		}
	}
}
