// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitrepo

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in PATH")
	}
}

// makeSourceRepo builds a local repository with two commits to clone
// from over the file transport.
func makeSourceRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}

	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0600); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "initial commit")

	if err := os.WriteFile(filepath.Join(dir, "util.go"), []byte("package main\n\nfunc helper() {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "add helper")

	return dir
}

func TestCloneAndInspect(t *testing.T) {
	requireGit(t)
	src := makeSourceRepo(t)

	runner := NewRunner(t.TempDir(), time.Minute)
	checkout, err := runner.Clone(context.Background(), src)
	if err != nil {
		t.Fatalf("Clone() error: %v", err)
	}
	defer checkout.Remove()

	if _, err := os.Stat(filepath.Join(checkout.Dir, "main.go")); err != nil {
		t.Errorf("cloned tree missing main.go: %v", err)
	}

	head, err := checkout.HeadCommit(context.Background())
	if err != nil {
		t.Fatalf("HeadCommit() error: %v", err)
	}
	if len(head) != 40 {
		t.Errorf("HeadCommit() = %q, want 40-char hash", head)
	}

	count, err := checkout.CommitCount(context.Background())
	if err != nil {
		t.Fatalf("CommitCount() error: %v", err)
	}
	if count != 2 {
		t.Errorf("CommitCount() = %d, want 2", count)
	}

	subjects, err := checkout.CommitSubjects(context.Background(), 10)
	if err != nil {
		t.Fatalf("CommitSubjects() error: %v", err)
	}
	if len(subjects) != 2 || subjects[0] != "add helper" {
		t.Errorf("CommitSubjects() = %v", subjects)
	}
}

func TestLogPatchesContainsDiffs(t *testing.T) {
	requireGit(t)
	src := makeSourceRepo(t)

	runner := NewRunner(t.TempDir(), time.Minute)
	checkout, err := runner.Clone(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	defer checkout.Remove()

	log, err := checkout.LogPatches(context.Background(), 10)
	if err != nil {
		t.Fatalf("LogPatches() error: %v", err)
	}
	if !strings.Contains(log, "diff --git") {
		t.Errorf("LogPatches() output missing diffs:\n%s", log)
	}
	if !strings.Contains(log, "subject add helper") {
		t.Errorf("LogPatches() output missing subject line:\n%s", log)
	}
}

func TestCloneMissingRepoFails(t *testing.T) {
	requireGit(t)

	runner := NewRunner(t.TempDir(), 10*time.Second)
	_, err := runner.Clone(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("Clone() of missing repo succeeded, want error")
	}
}

func TestLimitedWriterCapsOutput(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	n, err := lw.Write([]byte("0123456789abcdef"))
	if err != nil || n != 16 {
		t.Fatalf("Write() = %d, %v, want 16, nil", n, err)
	}
	if buf.String() != "0123456789" {
		t.Errorf("buffer = %q, want first 10 bytes", buf.String())
	}

	// Further writes are swallowed without error.
	if n, err := lw.Write([]byte("more")); err != nil || n != 4 {
		t.Errorf("post-limit Write() = %d, %v, want 4, nil", n, err)
	}
	if buf.Len() != 10 {
		t.Errorf("buffer grew past limit: %d", buf.Len())
	}
}
