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
	"strings"
	"unicode"
)

// VerboseNamingDetector flags identifier names in the over-explained
// style generated code favors: five-plus-word names, and names padded
// with filler words that add no information.
type VerboseNamingDetector struct{}

func (d *VerboseNamingDetector) Name() string       { return "verbose_naming" }
func (d *VerboseNamingDetector) Category() Category { return CategoryVerboseNaming }

// maxNameWords is the word count above which a name reads as prose.
const maxNameWords = 5

// fillerWords add nothing when they appear inside a longer name.
var fillerWords = map[string]bool{
	"temporary": true, "variable": true, "that": true, "which": true,
	"holds": true, "stores": true, "containing": true, "the": true,
	"actual": true, "current": true, "final": true, "result": true,
	"value": true, "data": true, "object": true, "instance": true,
	"helper": true, "function": true, "method": true, "used": true,
	"for": true, "storing": true,
}

// perFileCap limits noise from a single pathological file.
const verboseNamingPerFileCap = 10

func (d *VerboseNamingDetector) Detect(ctx context.Context, target *Target) ([]Signal, error) {
	var out []Signal
	for _, src := range target.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isTestPath(src.Path) {
			continue
		}

		fileCount := 0
		for _, id := range src.Identifiers {
			if fileCount >= verboseNamingPerFileCap {
				break
			}
			words := splitName(id.Name)
			if len(words) < maxNameWords {
				continue
			}
			filler := 0
			for _, w := range words {
				if fillerWords[w] {
					filler++
				}
			}

			severity := SeverityLow
			message := fmt.Sprintf("%d-word identifier", len(words))
			if filler >= 2 {
				severity = SeverityMedium
				message = fmt.Sprintf("%d-word identifier with %d filler words", len(words), filler)
			}
			out = append(out, Signal{
				Category: CategoryVerboseNaming,
				Severity: severity,
				File:     src.Path,
				Line:     id.Line,
				Evidence: id.Name,
				Message:  message,
			})
			fileCount++
		}
	}
	return out, nil
}

// splitName breaks camelCase, PascalCase, and snake_case names into
// lowercase words.
func splitName(name string) []string {
	var words []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			flush()
		case unicode.IsUpper(r):
			// Start a new word unless continuing an acronym run.
			if i > 0 && !unicode.IsUpper(runes[i-1]) {
				flush()
			} else if i > 0 && i+1 < len(runes) && unicode.IsUpper(runes[i-1]) && unicode.IsLower(runes[i+1]) {
				flush()
			}
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
