// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
	// Must not panic
	logger.Info("test message", "key", "value")
	logger.Debug("filtered at default level")
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "testsvc",
		Quiet:   true,
	})

	logger.Info("persisted line", "job_id", "abc-123")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	filename := "testsvc_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "persisted line") {
		t.Errorf("log file missing message, got: %s", content)
	}
	if !strings.Contains(content, "abc-123") {
		t.Errorf("log file missing attribute, got: %s", content)
	}
	if !strings.Contains(content, `"service":"testsvc"`) {
		t.Errorf("log file missing service attribute, got: %s", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "filter",
		Quiet:   true,
	})

	logger.Info("should be filtered")
	logger.Warn("should appear")
	logger.Close()

	filename := "filter_" + time.Now().Format("2006-01-02") + ".log"
	data, _ := os.ReadFile(filepath.Join(dir, filename))
	content := string(data)

	if strings.Contains(content, "should be filtered") {
		t.Error("Info message appeared despite Warn level")
	}
	if !strings.Contains(content, "should appear") {
		t.Error("Warn message missing")
	}
}

func TestExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Quiet:    true,
		Service:  "export",
		Exporter: exporter,
	})

	logger.Info("exported", "count", 3)

	// Export is asynchronous; wait briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(exporter.Entries()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 exported entry, got %d", len(entries))
	}
	if entries[0].Message != "exported" {
		t.Errorf("entry message = %q, want %q", entries[0].Message, "exported")
	}
	if entries[0].Service != "export" {
		t.Errorf("entry service = %q, want %q", entries[0].Service, "export")
	}
	if entries[0].Attrs["count"] != 3 {
		t.Errorf("entry attrs = %v, want count=3", entries[0].Attrs)
	}
}

func TestWith(t *testing.T) {
	dir := t.TempDir()

	parent := New(Config{Level: LevelInfo, LogDir: dir, Service: "with", Quiet: true})
	child := parent.With("request_id", "req-9")
	child.Info("scoped")
	parent.Close()

	filename := "with_" + time.Now().Format("2006-01-02") + ".log"
	data, _ := os.ReadFile(filepath.Join(dir, filename))
	if !strings.Contains(string(data), "req-9") {
		t.Error("child logger attribute missing from output")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir available")
	}

	got := expandPath("~/logs")
	want := filepath.Join(home, "logs")
	if got != want {
		t.Errorf("expandPath(~/logs) = %q, want %q", got, want)
	}

	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath(/var/log) = %q, want unchanged", got)
	}
}
