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

// ObviousCommentsDetector flags comments that restate the adjacent code
// instead of adding information. Narration comment density is a strong
// marker of generated code.
type ObviousCommentsDetector struct{}

func (d *ObviousCommentsDetector) Name() string       { return "obvious_comments" }
func (d *ObviousCommentsDetector) Category() Category { return CategoryObviousComments }

// narrationPrefixes open comments that describe the next line rather
// than the reason for it.
var narrationPrefixes = []string{
	"increment ", "decrement ", "initialize ", "initialise ",
	"create a new ", "create the ", "set the ", "get the ",
	"loop over ", "loop through ", "iterate over ", "iterate through ",
	"return the ", "call the ", "check if ", "check whether ",
	"define the ", "declare ", "add the ", "append the ",
	"update the ", "assign ", "import ", "print the ",
	"this function ", "this method ", "this class ",
	"first, ", "next, ", "then, ", "finally, ",
}

var sectionBanner = regexp.MustCompile(`^[-=*#\s]{8,}$`)

const obviousCommentsPerFileCap = 10

func (d *ObviousCommentsDetector) Detect(ctx context.Context, target *Target) ([]Signal, error) {
	var out []Signal
	for _, src := range target.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isTestPath(src.Path) {
			continue
		}

		fileCount := 0
		for _, c := range src.Comments {
			if fileCount >= obviousCommentsPerFileCap {
				break
			}
			text := strings.ToLower(strings.TrimSpace(c.Text))
			if text == "" || sectionBanner.MatchString(text) {
				continue
			}
			for _, prefix := range narrationPrefixes {
				if strings.HasPrefix(text, prefix) {
					out = append(out, Signal{
						Category: CategoryObviousComments,
						Severity: SeverityLow,
						File:     src.Path,
						Line:     c.Line,
						Evidence: truncate(c.Text, 80),
						Message:  "comment narrates the code",
					})
					fileCount++
					break
				}
			}
		}
	}
	return out, nil
}
