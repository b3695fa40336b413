// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis runs the slop-scoring pipeline against a repository:
// clone, inventory, parse, detect, verify the README, and aggregate the
// score.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/slopscope/slopscope/services/analysis/ast"
	"github.com/slopscope/slopscope/services/analysis/gitrepo"
	"github.com/slopscope/slopscope/services/analysis/inventory"
	"github.com/slopscope/slopscope/services/analysis/readme"
	"github.com/slopscope/slopscope/services/analysis/score"
	"github.com/slopscope/slopscope/services/analysis/signals"
)

// Pipeline step names, persisted as job progress.
const (
	StepInitializing   = "initializing"
	StepFetching       = "fetching repository"
	StepScanning       = "scanning files"
	StepDetecting      = "running detectors"
	StepVerifyingRead  = "verifying readme"
	StepScoring        = "scoring"
	StepSaving         = "saving results"
)

// maxParsedFiles bounds tree-sitter work on huge repositories.
const maxParsedFiles = 400

// historyCommits is how much history feeds the churn detector.
const historyCommits = 50

// ProgressFunc receives step transitions. Implementations must be fast;
// the pipeline calls it inline.
type ProgressFunc func(step string, percent int)

// Request identifies the repository to analyze.
type Request struct {
	RepoURL string
}

// Result is the complete outcome of one analysis run.
type Result struct {
	SlopScore  float64
	Engine     string
	Components map[string]float64
	Signals    []signals.Signal
	Claims     []readme.Claim
	Notes      []string
}

// Engine runs one analysis.
type Engine interface {
	Name() string
	Analyze(ctx context.Context, req Request, progress ProgressFunc) (*Result, error)
}

// FullEngine is the production pipeline.
type FullEngine struct {
	runner   *gitrepo.Runner
	registry *signals.Registry
	verifier *readme.Verifier
	weights  atomic.Pointer[score.Weights]
	logger   *slog.Logger
}

// NewFullEngine assembles the pipeline. judge may be nil (LLM disabled).
func NewFullEngine(runner *gitrepo.Runner, judge readme.Judge, weights score.Weights, logger *slog.Logger) *FullEngine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &FullEngine{
		runner:   runner,
		registry: signals.NewRegistry(logger),
		verifier: readme.NewVerifier(judge, logger),
		logger:   logger,
	}
	e.weights.Store(&weights)
	return e
}

// SetWeights swaps the scoring weights. Called by the config watcher;
// in-flight runs pick the new weights up at their scoring step.
func (e *FullEngine) SetWeights(w score.Weights) {
	e.weights.Store(&w)
}

func (e *FullEngine) Name() string { return "full" }

// Analyze runs the pipeline end to end.
func (e *FullEngine) Analyze(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(string, int) {}
	}
	progress(StepInitializing, 0)

	progress(StepFetching, 10)
	checkout, err := e.runner.Clone(ctx, req.RepoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() {
		if err := checkout.Remove(); err != nil {
			e.logger.Warn("checkout cleanup failed", "dir", checkout.Dir, "error", err)
		}
	}()

	progress(StepScanning, 30)
	inv, err := inventory.Scan(ctx, checkout.Dir)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	sources := e.parseSources(ctx, inv)

	gitLog, err := checkout.LogPatches(ctx, historyCommits)
	if err != nil {
		e.logger.Warn("history unavailable, skipping churn detection",
			"repo", req.RepoURL, "error", err)
		gitLog = ""
	}

	progress(StepDetecting, 50)
	target := &signals.Target{Inventory: inv, Sources: sources, GitLog: gitLog}
	sigs, err := e.registry.Run(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	progress(StepVerifyingRead, 70)
	var claims []readme.Claim
	if inv.ReadmePath != "" {
		claims, err = e.verifier.Verify(ctx, readme.Extract(inv.Readme), inv)
		if err != nil {
			return nil, fmt.Errorf("verify readme: %w", err)
		}
	}

	progress(StepScoring, 90)
	totalLines := 0
	for _, src := range sources {
		totalLines += src.LineCount
	}
	comps := score.FromAnalysis(sigs, claims, totalLines, inv.ReadmePath != "", gitLog != "")
	final := score.Compute(comps, *e.weights.Load())

	return &Result{
		SlopScore:  final,
		Engine:     e.Name(),
		Components: comps,
		Signals:    sigs,
		Claims:     claims,
		Notes:      buildNotes(inv, sigs, claims),
	}, nil
}

// parseSources runs tree-sitter over the supported files, capped.
// Unparseable files are logged and skipped.
func (e *FullEngine) parseSources(ctx context.Context, inv *inventory.Inventory) []*ast.Source {
	var sources []*ast.Source
	for _, f := range inv.Files {
		if len(sources) >= maxParsedFiles {
			break
		}
		if !ast.Supported(f.Language) {
			continue
		}
		data, err := inv.ReadSource(f.Path)
		if err != nil {
			continue
		}
		src, err := ast.Parse(ctx, data, f.Path, f.Language)
		if err != nil {
			e.logger.Debug("parse skipped", "file", f.Path, "error", err)
			continue
		}
		sources = append(sources, src)
	}
	return sources
}

// buildNotes produces the human-readable summary stored alongside the
// score.
func buildNotes(inv *inventory.Inventory, sigs []signals.Signal, claims []readme.Claim) []string {
	var notes []string

	if inv.ReadmePath == "" {
		notes = append(notes, "repository has no README")
	}
	for _, c := range claims {
		if c.Status == readme.StatusContradicted {
			note := fmt.Sprintf("README claim contradicted: %q", c.Text)
			if c.Evidence != "" {
				note += " (" + c.Evidence + ")"
			}
			notes = append(notes, note)
		}
	}
	// Repository-level signals read as findings in their own right.
	for _, s := range sigs {
		if s.File == "" && s.Message != "" {
			notes = append(notes, s.Message)
		}
	}

	counts := signals.CountByCategory(sigs)
	if n := counts[signals.CategoryHardcodedData]; n > 5 {
		notes = append(notes, fmt.Sprintf("%d hardcoded values found across the tree", n))
	}
	if n := counts[signals.CategorySwallowedErrors]; n > 5 {
		notes = append(notes, fmt.Sprintf("%d error paths silently discard failures", n))
	}
	return notes
}

// MockEngine produces a stable pseudo-score without touching the
// network. Selected with engine "mock" for demos and load tests.
type MockEngine struct{}

func (MockEngine) Name() string { return "mock" }

func (MockEngine) Analyze(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(string, int) {}
	}
	for _, step := range []struct {
		name string
		pct  int
	}{
		{StepInitializing, 0},
		{StepFetching, 25},
		{StepDetecting, 50},
		{StepScoring, 90},
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(step.name, step.pct)
	}

	return &Result{
		SlopScore:  score.MockScore(req.RepoURL),
		Engine:     "mock",
		Components: map[string]float64{},
		Notes:      []string{"mock engine result, no analysis performed"},
	}, nil
}
