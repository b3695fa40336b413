// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package inventory walks a checked-out repository and catalogs its
// source files, languages, README, and declared Go dependencies.
package inventory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// maxSourceBytes caps reads of individual source files. Generated or
// vendored monsters past this size are skipped, not truncated.
const maxSourceBytes = 1 << 20

// prunedDirs are never descended into. Vendored and generated trees
// drown the detectors in third-party code.
var prunedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"vendor":       true,
	"node_modules": true,
	"third_party":  true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
}

// languageByExt maps source extensions to a language label. Only these
// languages feed the detectors.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".kt":    "kotlin",
	".swift": "swift",
}

// File is one source file in the inventory. Path is relative to the
// repository root.
type File struct {
	Path     string
	Language string
	Size     int64
}

// Module is a dependency declared in go.mod.
type Module struct {
	Path     string
	Version  string
	Indirect bool
}

// Inventory is the catalog of a repository checkout.
type Inventory struct {
	Root          string
	Files         []File
	LanguageBytes map[string]int64
	TotalFiles    int

	// ReadmePath is relative to Root, empty when no README exists.
	ReadmePath string
	Readme     string

	// GoModulePath and GoModules come from a root go.mod, if present.
	GoModulePath string
	GoModules    []Module
}

// Scan builds the inventory for the tree rooted at root.
func Scan(ctx context.Context, root string) (*Inventory, error) {
	inv := &Inventory{
		Root:          root,
		LanguageBytes: make(map[string]int64),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != root && prunedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		inv.TotalFiles++

		lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxSourceBytes {
			return nil
		}

		inv.Files = append(inv.Files, File{Path: rel, Language: lang, Size: info.Size()})
		inv.LanguageBytes[lang] += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	if err := inv.loadReadme(); err != nil {
		return nil, err
	}
	if err := inv.loadGoMod(); err != nil {
		return nil, err
	}
	return inv, nil
}

// PrimaryLanguage returns the language with the most bytes, or "".
func (inv *Inventory) PrimaryLanguage() string {
	var best string
	var bestBytes int64
	for lang, n := range inv.LanguageBytes {
		if n > bestBytes || (n == bestBytes && lang < best) {
			best, bestBytes = lang, n
		}
	}
	return best
}

// FilesByLanguage returns inventory files in the given language.
func (inv *Inventory) FilesByLanguage(lang string) []File {
	var out []File
	for _, f := range inv.Files {
		if f.Language == lang {
			out = append(out, f)
		}
	}
	return out
}

// ReadSource reads a file from the checkout by its inventory path.
func (inv *Inventory) ReadSource(rel string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(inv.Root, rel))
	if err != nil {
		return nil, err
	}
	if len(data) > maxSourceBytes {
		data = data[:maxSourceBytes]
	}
	return data, nil
}

func (inv *Inventory) loadReadme() error {
	for _, name := range []string{"README.md", "README", "readme.md", "Readme.md", "README.rst", "README.txt"} {
		path := filepath.Join(inv.Root, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read readme: %w", err)
		}
		if len(data) > maxSourceBytes {
			data = data[:maxSourceBytes]
		}
		inv.ReadmePath = name
		inv.Readme = string(data)
		return nil
	}
	return nil
}

func (inv *Inventory) loadGoMod() error {
	path := filepath.Join(inv.Root, "go.mod")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read go.mod: %w", err)
	}

	mod, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		// A broken go.mod is itself a finding for the detectors, not a
		// reason to abort the scan.
		return nil
	}
	if mod.Module != nil {
		inv.GoModulePath = mod.Module.Mod.Path
	}
	for _, req := range mod.Require {
		inv.GoModules = append(inv.GoModules, Module{
			Path:     req.Mod.Path,
			Version:  req.Mod.Version,
			Indirect: req.Indirect,
		})
	}
	return nil
}
