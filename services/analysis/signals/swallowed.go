// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signals

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
)

// SwallowedErrorsDetector finds error paths that discard failures:
// empty catch and except blocks, and ignored error returns. These scan
// raw source lines since the patterns span statements.
type SwallowedErrorsDetector struct{}

func (d *SwallowedErrorsDetector) Name() string       { return "swallowed_errors" }
func (d *SwallowedErrorsDetector) Category() Category { return CategorySwallowedErrors }

type swallowPattern struct {
	languages map[string]bool
	re        *regexp.Regexp
	message   string
	severity  Severity
}

var swallowPatterns = []swallowPattern{
	{
		languages: map[string]bool{"go": true},
		re:        regexp.MustCompile(`if\s+err\s*!=\s*nil\s*\{\s*\}`),
		message:   "error checked then ignored",
		severity:  SeverityHigh,
	},
	{
		languages: map[string]bool{"go": true},
		re:        regexp.MustCompile(`^\s*_\s*=\s*err\b`),
		message:   "error assigned to blank identifier",
		severity:  SeverityMedium,
	},
	{
		languages: map[string]bool{"python": true},
		re:        regexp.MustCompile(`except[^:]*:\s*(pass|\.\.\.)\s*$`),
		message:   "exception silently swallowed",
		severity:  SeverityHigh,
	},
	{
		languages: map[string]bool{"python": true},
		re:        regexp.MustCompile(`except\s*:\s*$`),
		message:   "bare except clause",
		severity:  SeverityMedium,
	},
	{
		languages: map[string]bool{"javascript": true, "typescript": true},
		re:        regexp.MustCompile(`catch\s*(\([^)]*\))?\s*\{\s*\}`),
		message:   "empty catch block",
		severity:  SeverityHigh,
	},
	{
		languages: map[string]bool{"javascript": true, "typescript": true},
		re:        regexp.MustCompile(`\.catch\s*\(\s*\(\s*\)\s*=>\s*\{\s*\}\s*\)`),
		message:   "promise rejection discarded",
		severity:  SeverityHigh,
	},
}

func (d *SwallowedErrorsDetector) Detect(ctx context.Context, target *Target) ([]Signal, error) {
	var out []Signal
	for _, src := range target.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isTestPath(src.Path) {
			continue
		}

		raw, err := target.Inventory.ReadSource(src.Path)
		if err != nil {
			continue
		}

		scanner := bufio.NewScanner(bytes.NewReader(raw))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			for _, p := range swallowPatterns {
				if !p.languages[src.Language] {
					continue
				}
				if p.re.MatchString(line) {
					out = append(out, Signal{
						Category: CategorySwallowedErrors,
						Severity: p.severity,
						File:     src.Path,
						Line:     lineNo,
						Evidence: truncate(line, 100),
						Message:  p.message,
					})
				}
			}
		}
	}
	return out, nil
}
