// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signals

import (
	"context"
	"regexp"
	"strings"
)

// FakeAPIDetector flags production code that fakes real behavior:
// mock-named functions outside tests, placeholder payloads, and inline
// JSON blobs masquerading as API responses.
type FakeAPIDetector struct{}

func (d *FakeAPIDetector) Name() string       { return "fake_api" }
func (d *FakeAPIDetector) Category() Category { return CategoryFakeAPI }

var (
	mockNamePattern = regexp.MustCompile(`(?i)^(mock|fake|stub|dummy)[_A-Z]|[_]?(mock|fake|stub|dummy)(ed)?$`)

	placeholderPattern = regexp.MustCompile(`(?i)(lorem ipsum|john doe|jane doe|example\.com/fake|sample data|placeholder|not implemented yet|coming soon)`)
)

func (d *FakeAPIDetector) Detect(ctx context.Context, target *Target) ([]Signal, error) {
	var out []Signal
	for _, src := range target.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isTestPath(src.Path) {
			continue
		}

		for _, fn := range src.Functions {
			if fn.Name != "" && mockNamePattern.MatchString(fn.Name) {
				out = append(out, Signal{
					Category: CategoryFakeAPI,
					Severity: SeverityHigh,
					File:     src.Path,
					Line:     fn.StartLine,
					Evidence: fn.Name,
					Message:  "mock-named function in non-test code",
				})
			}
		}

		for _, lit := range src.Literals {
			if lit.Kind != "string" {
				continue
			}
			if m := placeholderPattern.FindString(lit.Value); m != "" {
				out = append(out, Signal{
					Category: CategoryFakeAPI,
					Severity: SeverityMedium,
					File:     src.Path,
					Line:     lit.Line,
					Evidence: m,
					Message:  "placeholder content in non-test code",
				})
			}
			if looksLikeInlineJSON(lit.Value) {
				out = append(out, Signal{
					Category: CategoryFakeAPI,
					Severity: SeverityMedium,
					File:     src.Path,
					Line:     lit.Line,
					Evidence: truncate(lit.Value, 60),
					Message:  "inline JSON payload, likely canned response",
				})
			}
		}
	}
	return out, nil
}

// looksLikeInlineJSON matches multi-field JSON object literals embedded
// in strings. Single-field blobs are usually legitimate fixtures or
// templates.
func looksLikeInlineJSON(s string) bool {
	t := strings.TrimSpace(s)
	if len(t) < 40 || !strings.HasPrefix(t, "{") || !strings.HasSuffix(t, "}") {
		return false
	}
	return strings.Count(t, "\":") >= 3 || strings.Count(t, "': ") >= 3
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
