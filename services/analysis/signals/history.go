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

	"github.com/sourcegraph/go-diff/diff"
)

// HistoryRewriteDetector inspects recent commit history for the churn
// shape of regenerated code: bulk drops, repeated wholesale rewrites of
// the same file, and runs of contentless commit subjects.
type HistoryRewriteDetector struct{}

func (d *HistoryRewriteDetector) Name() string       { return "history_rewrite" }
func (d *HistoryRewriteDetector) Category() Category { return CategoryHistoryRewrite }

const (
	// bulkDropLines is the single-commit added-line count treated as a
	// code dump rather than incremental work.
	bulkDropLines = 2000

	// rewriteLines marks a per-file change as a wholesale rewrite when
	// both additions and deletions exceed it.
	rewriteLines = 100
)

var genericSubject = regexp.MustCompile(`(?i)^(fix(es)?|update[sd]?|wip|changes?|stuff|more fixes|minor|cleanup|misc|final( final)*|works?( now)?|\.+)$`)

type commitPatch struct {
	hash    string
	subject string
	body    string
}

func (d *HistoryRewriteDetector) Detect(ctx context.Context, target *Target) ([]Signal, error) {
	if strings.TrimSpace(target.GitLog) == "" {
		return nil, nil
	}

	commits := splitCommits(target.GitLog)
	var out []Signal

	rewrites := make(map[string]int)
	generic := 0

	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if genericSubject.MatchString(strings.TrimSpace(c.subject)) {
			generic++
		}
		if c.body == "" {
			continue
		}

		fileDiffs, err := diff.ParseMultiFileDiff([]byte(c.body))
		if err != nil {
			// Unparseable patches (binary files, exotic formats) are
			// skipped, not fatal.
			continue
		}

		totalAdded := 0
		for _, fd := range fileDiffs {
			stat := fd.Stat()
			totalAdded += int(stat.Added) + int(stat.Changed)
			if stat.Added+stat.Changed > rewriteLines && stat.Deleted+stat.Changed > rewriteLines {
				name := strings.TrimPrefix(fd.NewName, "b/")
				rewrites[name]++
			}
		}
		if totalAdded > bulkDropLines {
			out = append(out, Signal{
				Category: CategoryHistoryRewrite,
				Severity: SeverityMedium,
				Evidence: shortHash(c.hash),
				Message:  fmt.Sprintf("single commit adds %d lines (%q)", totalAdded, truncate(c.subject, 60)),
			})
		}
	}

	for file, count := range rewrites {
		if count >= 2 {
			out = append(out, Signal{
				Category: CategoryHistoryRewrite,
				Severity: SeverityHigh,
				File:     file,
				Message:  fmt.Sprintf("file wholesale-rewritten in %d recent commits", count),
			})
		}
	}

	if len(commits) >= 5 && generic*2 > len(commits) {
		out = append(out, Signal{
			Category: CategoryHistoryRewrite,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("%d of %d recent commit subjects are contentless", generic, len(commits)),
		})
	}
	return out, nil
}

// splitCommits parses the log format produced by the fetch layer:
// "commit <hash>\nauthor <name>\nsubject <subject>\n" followed by the
// patch body.
func splitCommits(log string) []commitPatch {
	var out []commitPatch
	var cur *commitPatch
	var body strings.Builder

	flush := func() {
		if cur != nil {
			cur.body = body.String()
			out = append(out, *cur)
			body.Reset()
		}
	}

	for _, line := range strings.Split(log, "\n") {
		switch {
		case strings.HasPrefix(line, "commit "):
			flush()
			cur = &commitPatch{hash: strings.TrimPrefix(line, "commit ")}
		case cur != nil && strings.HasPrefix(line, "subject "):
			cur.subject = strings.TrimPrefix(line, "subject ")
		case cur != nil && strings.HasPrefix(line, "author "):
			// Author is parsed but unused today.
		case cur != nil:
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()
	return out
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
