// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package readme extracts testable claims from a repository README and
// verifies them against the actual checkout.
package readme

import (
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Claim statuses.
const (
	StatusVerified     = "verified"
	StatusUnverified   = "unverified"
	StatusContradicted = "contradicted"
)

// Claim is one testable statement from the README.
type Claim struct {
	Text     string
	Status   string
	Evidence string
}

// maxClaims bounds extraction; a README making fifty claims is itself
// a data point, but verifying twenty is enough for scoring.
const maxClaims = 20

// capabilityVerbs mark sentences that assert what the project does.
var capabilityVerbs = regexp.MustCompile(`(?i)\b(provides|supports|implements|features|includes|offers|enables|allows|handles|blazingly fast|production[- ]ready|battle[- ]tested|fully tested|thoroughly tested|zero dependencies|no dependencies)\b`)

var bulletPrefix = regexp.MustCompile(`^\s*[-*+]\s+`)

// Extract pulls capability claims out of README markdown. Long READMEs
// are chunked first so section structure survives sentence splitting.
func Extract(markdown string) []Claim {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithChunkSize(1500),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(markdown)
	if err != nil {
		chunks = []string{markdown}
	}

	seen := make(map[string]bool)
	var claims []Claim
	for _, chunk := range chunks {
		for _, line := range strings.Split(chunk, "\n") {
			if len(claims) >= maxClaims {
				return claims
			}
			text := cleanLine(line)
			if text == "" || len(text) < 15 || len(text) > 300 {
				continue
			}
			if !capabilityVerbs.MatchString(text) {
				continue
			}
			key := strings.ToLower(text)
			if seen[key] {
				continue
			}
			seen[key] = true
			claims = append(claims, Claim{Text: text, Status: StatusUnverified})
		}
	}
	return claims
}

// cleanLine strips markdown decoration from a candidate claim line.
func cleanLine(line string) string {
	text := strings.TrimSpace(line)
	if strings.HasPrefix(text, "#") || strings.HasPrefix(text, ">") || strings.HasPrefix(text, "|") {
		return ""
	}
	if strings.HasPrefix(text, "```") || strings.HasPrefix(text, "    ") {
		return ""
	}
	text = bulletPrefix.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "`", "")
	return strings.TrimSpace(text)
}
