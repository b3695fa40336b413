// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestScanCatalogsSourceFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":             "package main\n\nfunc main() {}\n",
		"internal/util.go":    "package internal\n",
		"scripts/run.py":      "print('hi')\n",
		"web/app.ts":          "export const x = 1;\n",
		"README.md":           "# Demo\n\nA demo service.\n",
		"Makefile":            "all:\n",
		"vendor/dep/dep.go":   "package dep\n",
		"node_modules/x/i.js": "module.exports = {};\n",
		".git/config":         "[core]\n",
	})

	inv, err := Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	if len(inv.Files) != 4 {
		t.Errorf("Files = %d, want 4 (vendored trees pruned)", len(inv.Files))
	}
	for _, f := range inv.Files {
		if filepath.IsAbs(f.Path) {
			t.Errorf("file path %q is absolute, want relative", f.Path)
		}
	}
	if got := len(inv.FilesByLanguage("go")); got != 2 {
		t.Errorf("go files = %d, want 2", got)
	}
	if inv.PrimaryLanguage() != "go" {
		t.Errorf("PrimaryLanguage() = %q, want go", inv.PrimaryLanguage())
	}
	if inv.ReadmePath != "README.md" {
		t.Errorf("ReadmePath = %q, want README.md", inv.ReadmePath)
	}
	if inv.Readme == "" {
		t.Error("Readme content is empty")
	}
}

func TestScanWithoutReadmeOrGoMod(t *testing.T) {
	root := writeTree(t, map[string]string{"lib.py": "x = 1\n"})

	inv, err := Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if inv.ReadmePath != "" {
		t.Errorf("ReadmePath = %q, want empty", inv.ReadmePath)
	}
	if inv.GoModulePath != "" || len(inv.GoModules) != 0 {
		t.Errorf("go.mod fields populated without a go.mod: %q %v", inv.GoModulePath, inv.GoModules)
	}
	if inv.PrimaryLanguage() != "python" {
		t.Errorf("PrimaryLanguage() = %q, want python", inv.PrimaryLanguage())
	}
}

func TestScanParsesGoMod(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod": `module example.com/demo

go 1.22

require (
	github.com/gin-gonic/gin v1.10.0
	golang.org/x/sync v0.8.0 // indirect
)
`,
		"main.go": "package main\n",
	})

	inv, err := Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if inv.GoModulePath != "example.com/demo" {
		t.Errorf("GoModulePath = %q", inv.GoModulePath)
	}
	if len(inv.GoModules) != 2 {
		t.Fatalf("GoModules = %d, want 2", len(inv.GoModules))
	}
	if inv.GoModules[0].Path != "github.com/gin-gonic/gin" || inv.GoModules[0].Indirect {
		t.Errorf("first module = %+v", inv.GoModules[0])
	}
	if !inv.GoModules[1].Indirect {
		t.Errorf("second module should be indirect: %+v", inv.GoModules[1])
	}
}

func TestScanTolerantOfBrokenGoMod(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":  "this is not a module file {{{",
		"main.go": "package main\n",
	})

	inv, err := Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if inv.GoModulePath != "" {
		t.Errorf("GoModulePath = %q, want empty for unparseable go.mod", inv.GoModulePath)
	}
}

func TestReadSource(t *testing.T) {
	root := writeTree(t, map[string]string{"pkg/a.go": "package pkg\n"})

	inv, err := Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	data, err := inv.ReadSource(filepath.Join("pkg", "a.go"))
	if err != nil {
		t.Fatalf("ReadSource() error: %v", err)
	}
	if string(data) != "package pkg\n" {
		t.Errorf("ReadSource() = %q", data)
	}
}
