// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gitrepo fetches repositories for analysis using the git
// command line.
//
// Clones are shallow but keep enough history for the churn detector.
// All git invocations run with explicit argument lists, a context
// deadline, and a capped output buffer.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// cloneDepth keeps recent history available to the churn detector
	// without pulling full clones of large repositories.
	cloneDepth = 50

	// maxOutputBytes caps captured git output. git log -p on a noisy
	// repository can run to hundreds of megabytes otherwise.
	maxOutputBytes = 8 << 20
)

// Runner clones repositories into a scratch directory.
type Runner struct {
	workdir      string
	cloneTimeout time.Duration
}

// NewRunner creates a Runner that clones under workdir.
func NewRunner(workdir string, cloneTimeout time.Duration) *Runner {
	if cloneTimeout <= 0 {
		cloneTimeout = 2 * time.Minute
	}
	return &Runner{workdir: workdir, cloneTimeout: cloneTimeout}
}

// Checkout is a cloned working tree. Call Remove when done.
type Checkout struct {
	Dir string
	URL string
}

// Clone performs a shallow clone of url into a fresh directory under
// the runner's workdir. The caller owns cleanup via Checkout.Remove.
func (r *Runner) Clone(ctx context.Context, url string) (*Checkout, error) {
	dir := fmt.Sprintf("%s/slopscope-%s", r.workdir, uuid.NewString())
	if err := os.MkdirAll(r.workdir, 0750); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cloneTimeout)
	defer cancel()

	_, err := runGit(ctx, "", "clone",
		"--depth", strconv.Itoa(cloneDepth),
		"--no-tags",
		"--single-branch",
		url, dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("clone %s: timeout after %v", url, r.cloneTimeout)
		}
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}

	return &Checkout{Dir: dir, URL: url}, nil
}

// Remove deletes the working tree.
func (c *Checkout) Remove() error {
	return os.RemoveAll(c.Dir)
}

// HeadCommit returns the checked-out commit hash.
func (c *Checkout) HeadCommit(ctx context.Context) (string, error) {
	return runGit(ctx, c.Dir, "rev-parse", "HEAD")
}

// CommitCount returns the number of commits reachable in the shallow
// clone. Capped at the clone depth by construction.
func (c *Checkout) CommitCount(ctx context.Context) (int, error) {
	out, err := runGit(ctx, c.Dir, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}

// LogPatches returns `git log -p` output for up to maxCommits recent
// commits, oldest first. The churn detector parses this for rewrite
// patterns.
func (c *Checkout) LogPatches(ctx context.Context, maxCommits int) (string, error) {
	if maxCommits <= 0 {
		maxCommits = cloneDepth
	}
	return runGit(ctx, c.Dir, "log",
		"-p",
		"--no-color",
		"--reverse",
		"--format=commit %H%nauthor %an%nsubject %s",
		"-n", strconv.Itoa(maxCommits))
}

// CommitSubjects returns recent commit subject lines, newest first.
func (c *Checkout) CommitSubjects(ctx context.Context, maxCommits int) ([]string, error) {
	if maxCommits <= 0 {
		maxCommits = cloneDepth
	}
	out, err := runGit(ctx, c.Dir, "log", "--format=%s", "-n", strconv.Itoa(maxCommits))
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// runGit executes git with a capped stdout buffer. An empty dir runs in
// the process working directory (used only for clone, which names its
// destination explicitly).
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// Never prompt for credentials on private or vanished repos.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxOutputBytes}
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// limitedWriter discards writes past its limit.
type limitedWriter struct {
	w       *bytes.Buffer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		if _, err := lw.w.Write(p[:remaining]); err != nil {
			return 0, err
		}
		lw.written = lw.limit
		return len(p), nil
	}
	n, err := lw.w.Write(p)
	lw.written += n
	return n, err
}
