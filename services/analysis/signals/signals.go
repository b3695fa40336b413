// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package signals detects concrete indicators of careless or generated
// code in a repository checkout.
//
// Each detector owns one signal category and examines a shared Target.
// The registry runs detectors concurrently; a failing detector is
// logged and skipped rather than failing the whole analysis.
package signals

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/slopscope/slopscope/services/analysis/ast"
	"github.com/slopscope/slopscope/services/analysis/inventory"
)

// Category labels the kind of slop a signal indicates.
type Category string

const (
	CategoryHardcodedData   Category = "hardcoded-data"
	CategoryFakeAPI         Category = "fake-api"
	CategoryVerboseNaming   Category = "verbose-naming"
	CategoryObviousComments Category = "obvious-comments"
	CategorySwallowedErrors Category = "swallowed-errors"
	CategoryTODODensity     Category = "todo-density"
	CategoryHistoryRewrite  Category = "history-rewrite"
)

// Severity grades a signal's contribution to the score.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Signal is one concrete finding.
type Signal struct {
	Category Category
	Severity Severity
	File     string
	Line     int
	Evidence string
	Message  string
}

// Target is the material detectors examine. Sources holds the parsed
// view of every supported-language file; GitLog may be empty when the
// checkout has no usable history.
type Target struct {
	Inventory *inventory.Inventory
	Sources   []*ast.Source
	GitLog    string
}

// Detector finds signals of one category.
type Detector interface {
	Name() string
	Category() Category
	Detect(ctx context.Context, target *Target) ([]Signal, error)
}

// Registry holds the active detector set.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	detectors []Detector
	logger    *slog.Logger
}

// NewRegistry creates a registry with the default detector set.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		detectors: []Detector{
			&HardcodedDataDetector{},
			&FakeAPIDetector{},
			&VerboseNamingDetector{},
			&ObviousCommentsDetector{},
			&TODODensityDetector{},
			&SwallowedErrorsDetector{},
			&HistoryRewriteDetector{},
		},
		logger: logger,
	}
}

// Register adds a custom detector.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors = append(r.detectors, d)
}

// Detectors returns a snapshot of the registered detectors.
func (r *Registry) Detectors() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Detector, len(r.detectors))
	copy(out, r.detectors)
	return out
}

// Run executes all detectors concurrently and returns the combined
// signals sorted by file, line, then category.
func (r *Registry) Run(ctx context.Context, target *Target) ([]Signal, error) {
	detectors := r.Detectors()

	var mu sync.Mutex
	var all []Signal

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, d := range detectors {
		g.Go(func() error {
			found, err := d.Detect(gctx, target)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("detector failed, skipping",
					"detector", d.Name(), "error", err)
				return nil
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].File != all[j].File {
			return all[i].File < all[j].File
		}
		if all[i].Line != all[j].Line {
			return all[i].Line < all[j].Line
		}
		return all[i].Category < all[j].Category
	})
	return all, nil
}

// CountByCategory tallies signals per category.
func CountByCategory(sigs []Signal) map[Category]int {
	out := make(map[Category]int)
	for _, s := range sigs {
		out[s.Category]++
	}
	return out
}
