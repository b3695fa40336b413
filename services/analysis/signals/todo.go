// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signals

import (
	"context"
	"fmt"
	"regexp"
)

// TODODensityDetector measures unfinished-work markers. Scattered TODOs
// are normal; a high density relative to code size suggests scaffolding
// shipped as product.
type TODODensityDetector struct{}

func (d *TODODensityDetector) Name() string       { return "todo_density" }
func (d *TODODensityDetector) Category() Category { return CategoryTODODensity }

var todoMarker = regexp.MustCompile(`(?i)\b(TODO|FIXME|XXX|HACK)\b`)

// todosPerKLOC is the density threshold, in markers per thousand lines
// of parsed source, above which the repository-level signal fires.
const todosPerKLOC = 5.0

func (d *TODODensityDetector) Detect(ctx context.Context, target *Target) ([]Signal, error) {
	var out []Signal
	totalLines := 0
	totalMarkers := 0

	for _, src := range target.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		totalLines += src.LineCount
		for _, c := range src.Comments {
			if todoMarker.MatchString(c.Text) {
				totalMarkers++
				// Individual markers are low severity; the density
				// signal below carries the weight.
				out = append(out, Signal{
					Category: CategoryTODODensity,
					Severity: SeverityLow,
					File:     src.Path,
					Line:     c.Line,
					Evidence: truncate(c.Text, 80),
					Message:  "unfinished-work marker",
				})
			}
		}
	}

	if totalLines > 0 {
		density := float64(totalMarkers) / float64(totalLines) * 1000
		if density > todosPerKLOC {
			out = append(out, Signal{
				Category: CategoryTODODensity,
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("%.1f TODO markers per 1000 lines (%d total)", density, totalMarkers),
			})
		}
	}
	return out, nil
}
