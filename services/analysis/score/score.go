// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package score aggregates detector output and README verification into
// the 0-100 slop score.
package score

import (
	"math"

	"github.com/slopscope/slopscope/services/analysis/readme"
	"github.com/slopscope/slopscope/services/analysis/signals"
)

// Component names. Each maps to a 0..1 badness value.
const (
	ComponentReadmeMismatch    = "readme_mismatch"
	ComponentAISignalDensity   = "ai_signal_density"
	ComponentHardcodingDensity = "hardcoding_density"
	ComponentErrorHandling     = "error_handling"
	ComponentChurnSuspicion    = "churn_suspicion"
)

// Components holds per-component badness in 0..1. A missing key means
// the component could not be computed (no README, no history) and its
// weight is redistributed.
type Components map[string]float64

// Weights are relative component weights; Compute normalizes them over
// the components actually present.
type Weights map[string]float64

// severityPoints converts signal severity into contribution points.
var severityPoints = map[signals.Severity]float64{
	signals.SeverityLow:    1,
	signals.SeverityMedium: 3,
	signals.SeverityHigh:   6,
}

// componentFor assigns each signal category to a score component.
var componentFor = map[signals.Category]string{
	signals.CategoryHardcodedData:   ComponentHardcodingDensity,
	signals.CategoryFakeAPI:         ComponentAISignalDensity,
	signals.CategoryVerboseNaming:   ComponentAISignalDensity,
	signals.CategoryObviousComments: ComponentAISignalDensity,
	signals.CategoryTODODensity:     ComponentAISignalDensity,
	signals.CategorySwallowedErrors: ComponentErrorHandling,
	signals.CategoryHistoryRewrite:  ComponentChurnSuspicion,
}

// saturationK tunes the points-per-KLOC level that maps to 0.5 badness.
const saturationK = 15.0

// FromAnalysis builds score components from detector signals, README
// claims, and the parsed line count.
//
// readmePresent and historyPresent gate their components: a repository
// without a README is not penalized on readme_mismatch, its weight
// shifts to the remaining components.
func FromAnalysis(sigs []signals.Signal, claims []readme.Claim, totalLines int, readmePresent, historyPresent bool) Components {
	comps := Components{}

	points := map[string]float64{}
	for _, s := range sigs {
		comp, ok := componentFor[s.Category]
		if !ok {
			continue
		}
		points[comp] += severityPoints[s.Severity]
	}

	kloc := float64(totalLines) / 1000.0
	if kloc < 0.05 {
		kloc = 0.05
	}
	for _, comp := range []string{ComponentAISignalDensity, ComponentHardcodingDensity, ComponentErrorHandling} {
		comps[comp] = saturate(points[comp] / kloc)
	}

	if historyPresent {
		// Churn findings are per-repository, not per-line.
		comps[ComponentChurnSuspicion] = saturate(points[ComponentChurnSuspicion] * 3)
	}
	if readmePresent {
		comps[ComponentReadmeMismatch] = readme.MismatchScore(claims)
	}
	return comps
}

// saturate maps unbounded points onto 0..1 with diminishing returns.
func saturate(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (x + saturationK)
}

// Compute folds components into the final 0-100 score. Weights for
// absent components are redistributed across the present ones. The
// result is clamped and rounded half-up to one decimal.
func Compute(comps Components, weights Weights) float64 {
	var totalWeight, sum float64
	for name, w := range weights {
		v, ok := comps[name]
		if !ok || w <= 0 {
			continue
		}
		totalWeight += w
		sum += w * clamp01(v)
	}
	if totalWeight == 0 {
		return 0
	}
	return round1(sum / totalWeight * 100)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round1 rounds half-up to one decimal place.
func round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
