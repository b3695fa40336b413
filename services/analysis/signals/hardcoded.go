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
	"strings"
)

// HardcodedDataDetector flags values that belong in configuration or a
// secret store: credentials, endpoint URLs, addresses, and magic-number
// clusters.
type HardcodedDataDetector struct{}

func (d *HardcodedDataDetector) Name() string       { return "hardcoded_data" }
func (d *HardcodedDataDetector) Category() Category { return CategoryHardcodedData }

var (
	secretPattern = regexp.MustCompile(`(?i)(sk-[a-z0-9]{8,}|AKIA[A-Z0-9]{12,}|ghp_[A-Za-z0-9]{20,}|xox[bap]-[A-Za-z0-9-]{10,}|-----BEGIN [A-Z ]*PRIVATE KEY-----)`)
	endpointPattern = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|0\.0\.0\.0|\d{1,3}(\.\d{1,3}){3})(:\d+)?`)
	ipPattern       = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

	// trivialNumbers never count as magic.
	trivialNumbers = map[string]bool{
		"0": true, "1": true, "2": true, "-1": true,
		"10": true, "100": true, "1000": true,
		"0.0": true, "1.0": true, "0.5": true,
	}
)

// magicNumberThreshold is the per-file count of distinct non-trivial
// numeric literals above which a density signal is emitted.
const magicNumberThreshold = 12

func (d *HardcodedDataDetector) Detect(ctx context.Context, target *Target) ([]Signal, error) {
	var out []Signal
	for _, src := range target.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isTestPath(src.Path) {
			continue
		}

		magic := make(map[string]int)
		for _, lit := range src.Literals {
			switch lit.Kind {
			case "string":
				out = append(out, d.checkString(src.Path, lit.Value, lit.Line)...)
			case "number":
				if !trivialNumbers[lit.Value] {
					if magic[lit.Value] == 0 {
						magic[lit.Value] = lit.Line
					}
				}
			}
		}

		if len(magic) >= magicNumberThreshold {
			out = append(out, Signal{
				Category: CategoryHardcodedData,
				Severity: SeverityMedium,
				File:     src.Path,
				Message:  fmt.Sprintf("%d distinct magic numbers in one file", len(magic)),
			})
		}
	}
	return out, nil
}

func (d *HardcodedDataDetector) checkString(path, value string, line int) []Signal {
	var out []Signal
	if m := secretPattern.FindString(value); m != "" {
		out = append(out, Signal{
			Category: CategoryHardcodedData,
			Severity: SeverityHigh,
			File:     path,
			Line:     line,
			Evidence: redact(m),
			Message:  "credential-shaped literal in source",
		})
	}
	if endpointPattern.MatchString(value) || ipPattern.MatchString(value) {
		out = append(out, Signal{
			Category: CategoryHardcodedData,
			Severity: SeverityMedium,
			File:     path,
			Line:     line,
			Evidence: value,
			Message:  "hardcoded network endpoint",
		})
	}
	return out
}

// redact keeps enough of a matched secret to locate it without
// reproducing it in reports.
func redact(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "..."
}

func isTestPath(path string) bool {
	base := strings.ToLower(path)
	return strings.HasSuffix(base, "_test.go") ||
		strings.Contains(base, "/test/") ||
		strings.Contains(base, "/tests/") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(base, "/test_") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.")
}
