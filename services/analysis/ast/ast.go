// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ast parses source files with tree-sitter and extracts the
// facts the slop detectors consume: declared names, comments, literals,
// and function spans.
//
// Parsing is error-tolerant. Syntactically broken files still yield
// partial results, with the problem noted in Source.Errors.
package ast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// MaxFileSize is the largest file the parser accepts.
const MaxFileSize = 10 * 1024 * 1024

var (
	// ErrUnsupportedLanguage is returned for languages without a grammar.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrFileTooLarge is returned when content exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrInvalidContent is returned for non-UTF-8 input.
	ErrInvalidContent = errors.New("content is not valid UTF-8")
)

// Identifier is a declared name: a function, variable, or constant.
type Identifier struct {
	Name string
	Kind string // "func", "var", or "const"
	Line int
}

// Comment is one source comment with markers stripped.
type Comment struct {
	Text string
	Line int
}

// Literal is a string or numeric literal.
type Literal struct {
	Kind  string // "string" or "number"
	Value string
	Line  int
}

// Function records a function or method span.
type Function struct {
	Name      string
	StartLine int
	EndLine   int
}

// Source is the extracted view of one parsed file.
type Source struct {
	Path        string
	Language    string
	LineCount   int
	Identifiers []Identifier
	Comments    []Comment
	Literals    []Literal
	Functions   []Function
	Errors      []string
}

// Supported reports whether the language has a grammar.
func Supported(language string) bool {
	switch language {
	case "go", "python", "javascript", "typescript":
		return true
	}
	return false
}

func grammarFor(language string) *sitter.Language {
	switch language {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	}
	return nil
}

// Parse extracts a Source from content. A fresh tree-sitter parser is
// created per call, so Parse is safe for concurrent use.
func Parse(ctx context.Context, content []byte, path, language string) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := grammarFor(language)
	if lang == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	if int64(len(content)) > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(content))
	}
	if !utf8.Valid(content) {
		return nil, ErrInvalidContent
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	src := &Source{
		Path:      path,
		Language:  language,
		LineCount: strings.Count(string(content), "\n") + 1,
	}

	root := tree.RootNode()
	if root == nil {
		src.Errors = append(src.Errors, "tree-sitter returned nil root node")
		return src, nil
	}
	if root.HasError() {
		src.Errors = append(src.Errors, "source contains syntax errors")
	}

	walk(root, content, language, src)
	return src, nil
}

// walk visits every node, dispatching on language-specific node types.
func walk(node *sitter.Node, content []byte, language string, src *Source) {
	switch language {
	case "go":
		visitGo(node, content, src)
	case "python":
		visitPython(node, content, src)
	case "javascript", "typescript":
		visitJS(node, content, src)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), content, language, src)
	}
}

func visitGo(node *sitter.Node, content []byte, src *Source) {
	switch node.Type() {
	case "comment":
		src.addComment(node, content)
	case "interpreted_string_literal", "raw_string_literal":
		src.addLiteral(node, content, "string")
	case "int_literal", "float_literal":
		src.addLiteral(node, content, "number")
	case "function_declaration", "method_declaration":
		src.addFunction(node, content, node.ChildByFieldName("name"))
	case "var_spec", "const_spec":
		kind := "var"
		if node.Type() == "const_spec" {
			kind = "const"
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "identifier" {
				src.addIdentifier(child, content, kind)
			}
		}
	case "short_var_declaration":
		if left := node.ChildByFieldName("left"); left != nil {
			for i := 0; i < int(left.NamedChildCount()); i++ {
				child := left.NamedChild(i)
				if child.Type() == "identifier" {
					src.addIdentifier(child, content, "var")
				}
			}
		}
	}
}

func visitPython(node *sitter.Node, content []byte, src *Source) {
	switch node.Type() {
	case "comment":
		src.addComment(node, content)
	case "string":
		src.addLiteral(node, content, "string")
	case "integer", "float":
		src.addLiteral(node, content, "number")
	case "function_definition":
		src.addFunction(node, content, node.ChildByFieldName("name"))
	case "assignment":
		if left := node.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
			src.addIdentifier(left, content, "var")
		}
	}
}

func visitJS(node *sitter.Node, content []byte, src *Source) {
	switch node.Type() {
	case "comment":
		src.addComment(node, content)
	case "string", "template_string":
		src.addLiteral(node, content, "string")
	case "number":
		src.addLiteral(node, content, "number")
	case "function_declaration", "generator_function_declaration":
		src.addFunction(node, content, node.ChildByFieldName("name"))
	case "method_definition":
		src.addFunction(node, content, node.ChildByFieldName("name"))
	case "variable_declarator":
		if name := node.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			src.addIdentifier(name, content, "var")
		}
	}
}

func (src *Source) addComment(node *sitter.Node, content []byte) {
	text := node.Content(content)
	text = strings.TrimPrefix(text, "//")
	text = strings.TrimPrefix(text, "#")
	text = strings.TrimPrefix(text, "/*")
	text = strings.TrimSuffix(text, "*/")
	src.Comments = append(src.Comments, Comment{
		Text: strings.TrimSpace(text),
		Line: int(node.StartPoint().Row) + 1,
	})
}

func (src *Source) addLiteral(node *sitter.Node, content []byte, kind string) {
	value := node.Content(content)
	if kind == "string" {
		value = strings.Trim(value, "\"'`")
	}
	src.Literals = append(src.Literals, Literal{
		Kind:  kind,
		Value: value,
		Line:  int(node.StartPoint().Row) + 1,
	})
}

func (src *Source) addFunction(node *sitter.Node, content []byte, nameNode *sitter.Node) {
	name := ""
	if nameNode != nil {
		name = nameNode.Content(content)
	}
	src.Functions = append(src.Functions, Function{
		Name:      name,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
	})
	if name != "" {
		src.Identifiers = append(src.Identifiers, Identifier{
			Name: name,
			Kind: "func",
			Line: int(node.StartPoint().Row) + 1,
		})
	}
}

func (src *Source) addIdentifier(node *sitter.Node, content []byte, kind string) {
	name := node.Content(content)
	if name == "" || name == "_" {
		return
	}
	src.Identifiers = append(src.Identifiers, Identifier{
		Name: name,
		Kind: kind,
		Line: int(node.StartPoint().Row) + 1,
	})
}
